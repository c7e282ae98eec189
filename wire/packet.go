// Package wire implements the mage frame codec: the variable-length,
// length-of-length framed record described by the protocol's packet format.
//
// A Packet is never persisted; it exists only long enough to be produced by
// a sender and consumed by a receiver.
package wire

import "errors"

var (
	// ErrEncodingOverflow is returned when id, sequence or data_len would
	// need more than 3 bytes to represent.
	ErrEncodingOverflow = errors.New("wire: field exceeds 24 bits")
	// ErrChannelOverflow is returned when channel exceeds 4 bits.
	ErrChannelOverflow = errors.New("wire: channel exceeds 0xF")
	// ErrFrameTooSmall is returned when max_size cannot hold the
	// unavoidable header overhead.
	ErrFrameTooSmall = errors.New("wire: max_size smaller than header overhead")
	// ErrShortBuffer is returned by Deserialize when the input does not
	// contain a complete header.
	ErrShortBuffer = errors.New("wire: buffer too short to contain a header")
)

// protocolVersion is the only version this codec understands; it occupies
// the high nibble of byte 0 alongside the channel id.
const protocolVersion = 0

// maxFieldValue is the largest value a length-tagged field may hold (3
// bytes, big-endian).
const maxFieldValue = 0xFF_FFFF

// Packet is one framed plaintext record.
type Packet struct {
	Channel  uint8
	Version  uint8
	ID       uint32
	Sequence uint32
	DataLen  uint32
	Data     []byte
}

// BySequence implements ordering on Packets by Sequence alone, per spec.
type BySequence []Packet

func (s BySequence) Len() int           { return len(s) }
func (s BySequence) Less(i, j int) bool { return s[i].Sequence < s[j].Sequence }
func (s BySequence) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Config is the per-session agreement on which optional header fields are
// present and the maximum plaintext size of one record. It is constant for
// the lifetime of a Session.
type Config struct {
	HasID      bool
	HasSeq     bool
	HasDataLen bool
	MaxSize    int
}

// minOverhead is the two mandatory header bytes; present regardless of
// which optional fields are enabled.
const minOverhead = 2

// byteLength returns how many bytes (0..3) are needed to hold value when the
// field is enabled; disabled fields always take 0 bytes, and an enabled
// zero value still costs 1 byte.
func byteLength(enabled bool, value uint32) (int, error) {
	if !enabled {
		return 0, nil
	}
	if value > maxFieldValue {
		return 0, ErrEncodingOverflow
	}
	switch {
	case value > 0xFFFF:
		return 3, nil
	case value > 0xFF:
		return 2, nil
	default:
		return 1, nil
	}
}

// Serialize lays out a Packet on the wire per the frame format:
//
//	byte 0    : (version<<4) | channel
//	byte 1    : (id_len<<4) | (seq_len<<2) | data_len_len
//	bytes 2.. : id, sequence, data_len (big-endian, length-tagged)
//	bytes ... : payload
//
// It returns the serialized record and the number of payload bytes it
// consumed from data. If the overhead plus payload would exceed
// cfg.MaxSize, the payload is truncated (and data_len_len reshrunk if
// necessary) to fit.
func (cfg *Config) Serialize(id uint32, channel uint8, sequence uint32, data []byte) ([]byte, int, error) {
	if channel > 0xF {
		return nil, 0, ErrChannelOverflow
	}

	idLen, err := byteLength(cfg.HasID, id)
	if err != nil {
		return nil, 0, err
	}
	seqLen, err := byteLength(cfg.HasSeq, sequence)
	if err != nil {
		return nil, 0, err
	}

	overhead := minOverhead + idLen + seqLen
	if overhead > cfg.MaxSize {
		return nil, 0, ErrFrameTooSmall
	}

	dataLen := len(data)
	if room := cfg.MaxSize - overhead; dataLen > room {
		dataLen = room
	}
	dataLenLen, err := byteLength(cfg.HasDataLen, uint32(dataLen))
	if err != nil {
		return nil, 0, err
	}

	for overhead+dataLen+dataLenLen > cfg.MaxSize {
		dataLen--
		if dataLen < 0 {
			return nil, 0, ErrFrameTooSmall
		}
		dataLenLen, err = byteLength(cfg.HasDataLen, uint32(dataLen))
		if err != nil {
			return nil, 0, err
		}
	}

	out := make([]byte, 0, overhead+dataLenLen+dataLen)
	out = append(out, (protocolVersion<<4)|channel)
	out = append(out, byte((idLen<<4)|(seqLen<<2)|dataLenLen))
	out = appendBigEndian(out, id, idLen)
	out = appendBigEndian(out, sequence, seqLen)
	out = appendBigEndian(out, uint32(dataLen), dataLenLen)
	out = append(out, data[:dataLen]...)

	return out, dataLen, nil
}

func appendBigEndian(dst []byte, v uint32, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

func bigEndianUint(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = (v << 8) | uint32(c)
	}
	return v
}

// Deserialize parses a single framed record from buf and returns the
// decoded Packet along with the number of bytes it consumed, so the caller
// can advance past this record. If data_len_len is 0, the payload is taken
// to span the remainder of buf.
func Deserialize(buf []byte) (Packet, int, error) {
	if len(buf) < minOverhead {
		return Packet{}, 0, ErrShortBuffer
	}

	channel := buf[0] & 0xF
	version := buf[0] >> 4

	idLen := int((buf[1] >> 4) & 0x3)
	seqLen := int((buf[1] >> 2) & 0x3)
	dataLenLen := int(buf[1] & 0x3)

	offset := minOverhead + idLen + seqLen + dataLenLen
	if len(buf) < offset {
		return Packet{}, 0, ErrShortBuffer
	}

	pos := minOverhead
	id := bigEndianUint(buf[pos : pos+idLen])
	pos += idLen
	seq := bigEndianUint(buf[pos : pos+seqLen])
	pos += seqLen

	var dataLen uint32
	if dataLenLen > 0 {
		dataLen = bigEndianUint(buf[pos : pos+dataLenLen])
	} else {
		dataLen = uint32(len(buf) - offset)
	}
	pos += dataLenLen

	end := offset + int(dataLen)
	if len(buf) < end {
		return Packet{}, 0, ErrShortBuffer
	}

	var data []byte
	if dataLen > 0 {
		data = make([]byte, dataLen)
		copy(data, buf[offset:end])
	}

	p := Packet{
		Channel:  channel,
		Version:  version,
		ID:       id,
		Sequence: seq,
		DataLen:  dataLen,
		Data:     data,
	}
	return p, end, nil
}
