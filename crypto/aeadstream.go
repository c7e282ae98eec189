package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// HeaderSize is the number of bytes a fresh AEAD stream header occupies on
// the wire; it corresponds to HEADERBYTES in §4.2/§6.
const HeaderSize = chacha20poly1305.NonceSizeX

// Overhead is the fixed per-record ciphertext expansion (the authentication
// tag); it corresponds to AEAD_OVERHEAD in §4.3/§4.4.
const Overhead = chacha20poly1305.Overhead

// ErrDecryptFailure is returned when a ciphertext record fails to
// authenticate.
var ErrDecryptFailure = errors.New("crypto: record failed to authenticate")

// ErrHeaderDecodeFailure is returned when a received header is not
// HeaderSize bytes.
var ErrHeaderDecodeFailure = errors.New("crypto: peer header malformed or truncated")

// Pusher encrypts a session's outgoing records. It is stateful (it owns a
// monotonically advancing nonce counter) and must be serialized by its
// owner; a mage Session's Stream-out is its canonical single owner.
type Pusher struct {
	aead    chacha20poly1305.AEAD
	nonce   [chacha20poly1305.NonceSizeX]byte
	counter uint64
}

// NewPusher initializes an AEAD stream encryptor with key, generating a
// fresh random header that must be transmitted to the peer before any
// record produced by Seal can be understood.
func NewPusher(key [SubkeySize]byte) (*Pusher, []byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, nil, err
	}
	p := &Pusher{aead: aead}
	if _, err := rand.Reader.Read(p.nonce[:]); err != nil {
		return nil, nil, err
	}
	header := make([]byte, HeaderSize)
	copy(header, p.nonce[:])
	return p, header, nil
}

// Seal encrypts plaintext into one ciphertext record, exactly Overhead
// bytes larger than plaintext.
func (p *Pusher) Seal(plaintext []byte) []byte {
	nonce := p.recordNonce()
	out := p.aead.Seal(nil, nonce[:], plaintext, nil)
	p.counter++
	return out
}

func (p *Pusher) recordNonce() [chacha20poly1305.NonceSizeX]byte {
	var n [chacha20poly1305.NonceSizeX]byte
	copy(n[:], p.nonce[:])
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], p.counter)
	for i := 0; i < 8; i++ {
		n[len(n)-8+i] ^= ctr[i]
	}
	return n
}

// Puller decrypts a session's incoming records. Like Pusher it is stateful
// and must be serialized by its owner.
type Puller struct {
	aead    chacha20poly1305.AEAD
	nonce   [chacha20poly1305.NonceSizeX]byte
	counter uint64
}

// NewPuller initializes an AEAD stream decryptor with key and the header
// received from the peer.
func NewPuller(key [SubkeySize]byte, header []byte) (*Puller, error) {
	if len(header) != HeaderSize {
		return nil, ErrHeaderDecodeFailure
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	pl := &Puller{aead: aead}
	copy(pl.nonce[:], header)
	return pl, nil
}

// Open decrypts a single ciphertext record. On authentication failure it
// returns ErrDecryptFailure; the caller must treat the owning session as
// poisoned and not retry.
func (pl *Puller) Open(ciphertext []byte) ([]byte, error) {
	nonce := pl.recordNonce()
	plaintext, err := pl.aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailure
	}
	pl.counter++
	return plaintext, nil
}

func (pl *Puller) recordNonce() [chacha20poly1305.NonceSizeX]byte {
	var n [chacha20poly1305.NonceSizeX]byte
	copy(n[:], pl.nonce[:])
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], pl.counter)
	for i := 0; i < 8; i++ {
		n[len(n)-8+i] ^= ctr[i]
	}
	return n
}
