// Package crypto derives the session keys a mage handshake needs: a
// deterministic long-term keypair from a 32-byte seed, the one-round X25519
// key exchange between two such keypairs, and the role-asymmetric HKDF
// expansion into mirrored rx/tx subkeys. The derivation follows the same
// two building blocks ratchet.go and stream.go lean on throughout this
// codebase: curve25519.ScalarBaseMult/X25519 for the Diffie-Hellman
// step, and hkdf.New + io.ReadFull for expanding a shared secret into named
// subkeys.
package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// SeedSize is the length in bytes of the secret seed material a peer's
	// long-term keypair is derived from.
	SeedSize = 32
	// PublicKeySize is the length in bytes of a derived public key.
	PublicKeySize = 32
	// SubkeySize is the length in bytes of the derived rx/tx subkeys.
	SubkeySize = 32
)

// ErrBadKeyMaterial is returned when a seed or remote public key is not
// exactly 32 bytes.
var ErrBadKeyMaterial = errors.New("crypto: key material must be exactly 32 bytes")

// ErrHandshakeSignatureFailure is returned when the key exchange refuses
// the supplied inputs (a degenerate or low-order remote public key).
var ErrHandshakeSignatureFailure = errors.New("crypto: key exchange rejected remote public key")

// Keypair is a peer's long-term asymmetric keypair, deterministically
// derived from a seed.
type Keypair struct {
	Private [SeedSize]byte
	Public  [PublicKeySize]byte
}

// DeriveKeypair computes the long-term keypair for seed. The private key is
// the seed itself (clamped implicitly by ScalarBaseMult, matching the
// curve25519 convention used elsewhere in this codebase); the public key is
// its basepoint multiple.
func DeriveKeypair(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, ErrBadKeyMaterial
	}
	kp := &Keypair{}
	copy(kp.Private[:], seed)
	curve25519.ScalarBaseMult(&kp.Public, &kp.Private)
	return kp, nil
}

// SessionKeys holds the two mirrored AEAD subkeys derived from a handshake:
// Tx encrypts outgoing records, Rx decrypts incoming ones.
type SessionKeys struct {
	Rx [SubkeySize]byte
	Tx [SubkeySize]byte
}

// Exchange performs the one-round key exchange between the local keypair
// and remotePublic, parameterized by isServer, and returns the mirrored
// rx/tx subkeys. Peer A's Tx equals peer B's Rx whenever A and B hold
// opposite values of isServer and agree on the (local, remote) keypairs.
func Exchange(local *Keypair, remotePublic []byte, isServer bool) (*SessionKeys, error) {
	if len(remotePublic) != PublicKeySize {
		return nil, ErrBadKeyMaterial
	}
	var remote [PublicKeySize]byte
	copy(remote[:], remotePublic)

	if isZero(remote[:]) {
		return nil, ErrHandshakeSignatureFailure
	}

	var shared [32]byte
	sharedSlice, err := curve25519.X25519(local.Private[:], remote[:])
	if err != nil {
		return nil, ErrHandshakeSignatureFailure
	}
	copy(shared[:], sharedSlice)

	// ikm binds the shared secret to both public keys so that a
	// passively-observed shared value from a different pairing can never be
	// confused for this one. clientPub/serverPub are ordered independent of
	// which side is computing the exchange so both peers hash identical
	// input keying material.
	var clientPub, serverPub [PublicKeySize]byte
	if isServer {
		serverPub = local.Public
		copy(clientPub[:], remote[:])
	} else {
		clientPub = local.Public
		copy(serverPub[:], remote[:])
	}

	ikm := make([]byte, 0, 96)
	ikm = append(ikm, shared[:]...)
	ikm = append(ikm, clientPub[:]...)
	ikm = append(ikm, serverPub[:]...)

	// Two labelled expansions, one per direction; clientToServer becomes
	// the client's Tx and the server's Rx, and vice versa, which is the
	// mirroring property the handshake requires.
	clientToServer := expand(ikm, []byte("mage-kx-client-to-server"))
	serverToClient := expand(ikm, []byte("mage-kx-server-to-client"))

	keys := &SessionKeys{}
	if isServer {
		copy(keys.Rx[:], clientToServer)
		copy(keys.Tx[:], serverToClient)
	} else {
		copy(keys.Tx[:], clientToServer)
		copy(keys.Rx[:], serverToClient)
	}
	return keys, nil
}

func expand(ikm, info []byte) []byte {
	r := hkdf.New(sha256.New, ikm, nil, info)
	out := make([]byte, SubkeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(err) // hkdf.New's reader cannot fail on a well-formed hash
	}
	return out
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
