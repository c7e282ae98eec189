package streaming

import (
	"errors"
	"io"
	"net"
	"syscall"

	mcrypto "github.com/xndrbh/mage/crypto"
	"github.com/xndrbh/mage/wire"
)

// ErrTransportFailure wraps a fatal (non-retryable) transport read error.
var ErrTransportFailure = errors.New("streaming: fatal transport read error")

// In decrypts and parses the byte source into Packets. It is internally
// stateful (the AEAD puller and its accumulation buffer) and must be
// serialized by its owner, mirroring Out.
type In struct {
	cfg    *wire.Config
	puller *mcrypto.Puller
	r      io.Reader

	buf []byte
}

// NewIn constructs a Stream-in bound to cfg and puller, reading ciphertext
// bytes from r.
func NewIn(cfg *wire.Config, puller *mcrypto.Puller, r io.Reader) *In {
	return &In{cfg: cfg, puller: puller, r: r}
}

// Dechunk implements §4.4: it accumulates bytes from the transport,
// attempting AEAD decryption after every additional byte until decryption
// succeeds or the accumulation buffer reaches AEAD_OVERHEAD + MaxSize. On
// success it parses the plaintext into a Packet. On failure at the maximum
// buffer size, or when the source reaches EOF while buffered bytes have not
// authenticated, it returns ErrDecryptFailure and the caller must treat the
// session as poisoned.
func (in *In) Dechunk() (wire.Packet, error) {
	limit := mcrypto.Overhead + in.cfg.MaxSize
	one := make([]byte, 1)

	for {
		if len(in.buf) > 0 {
			if plain, err := in.puller.Open(in.buf); err == nil {
				in.buf = in.buf[:0]
				p, _, derr := wire.Deserialize(plain)
				if derr != nil {
					return wire.Packet{}, derr
				}
				return p, nil
			}
		}

		if len(in.buf) >= limit {
			return wire.Packet{}, mcrypto.ErrDecryptFailure
		}

		n, err := in.r.Read(one)
		if n > 0 {
			in.buf = append(in.buf, one[:n]...)
		}
		if err != nil {
			if isRetryable(err, len(in.buf) > 0) {
				continue
			}
			if errors.Is(err, io.EOF) && n == 0 && len(in.buf) > 0 {
				return wire.Packet{}, mcrypto.ErrDecryptFailure
			}
			return wire.Packet{}, wrapFatal(err)
		}
	}
}

func wrapFatal(err error) error {
	return errors.Join(ErrTransportFailure, err)
}

// isRetryable classifies a transport read error per §4.4/§7: Interrupted,
// WouldBlock, and a short (unexpected-EOF) read while the accumulation
// buffer is non-empty are absorbed locally; everything else is fatal.
func isRetryable(err error, bufNonEmpty bool) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) && bufNonEmpty {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return true
		}
	}
	if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return true
	}
	return false
}
