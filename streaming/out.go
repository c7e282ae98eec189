// Package streaming implements Stream-out (chunking and encryption) and
// Stream-in (decryption and parsing), the engine that turns a payload into
// a sequence of encrypted wire records and back.
package streaming

import (
	"io"

	mcrypto "github.com/xndrbh/mage/crypto"
	"github.com/xndrbh/mage/wire"
)

// Out chunks a (id, channel, payload) tuple into sequenced, encrypted
// records written to a byte sink. It is internally stateful (the AEAD
// pusher) and must be serialized by its owner — the canonical arrangement
// is one Out per Session, driven only by that Session's outgoing pump.
type Out struct {
	cfg    *wire.Config
	pusher *mcrypto.Pusher
	w      io.Writer
}

// NewOut constructs a Stream-out bound to cfg and pusher, writing ciphertext
// records to w.
func NewOut(cfg *wire.Config, pusher *mcrypto.Pusher, w io.Writer) *Out {
	return &Out{cfg: cfg, pusher: pusher, w: w}
}

// Chunk implements §4.3: it serializes payload into as many Packets as
// needed to respect cfg.MaxSize, sealing and writing each as one
// contiguous ciphertext record. Sequence numbers start at 0 and increase
// monotonically within this call.
func (o *Out) Chunk(id uint32, channel uint8, payload []byte) error {
	written := 0
	seq := uint32(0)

	for {
		plain, w, err := o.cfg.Serialize(id, channel, seq, payload[written:])
		if err != nil {
			return err
		}
		written += w
		seq++

		record := o.pusher.Seal(plain)
		if _, err := o.w.Write(record); err != nil {
			return err
		}

		if written >= len(payload) {
			return nil
		}
	}
}
