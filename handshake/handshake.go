// Package handshake derives session keys from (local seed, remote public
// key, role) and exchanges the two peers' AEAD stream headers, producing a
// ready-to-use pair of crypto.Pusher/crypto.Puller.
//
// The exchange order is role-asymmetric: the server reads the remote
// header first, then writes its own; the client writes first, then reads.
// This breaks the symmetric blocking-read deadlock that would otherwise
// occur if both peers tried to read before writing (see connection.rs's
// Stream::new, which likewise special-cases server vs. client at
// construction time).
package handshake

import (
	"errors"
	"io"

	mcrypto "github.com/xndrbh/mage/crypto"
)

// ErrTransportFailure is returned when an I/O error occurs before both
// headers have been exchanged.
var ErrTransportFailure = errors.New("handshake: transport failed before header exchange completed")

// Result is the outcome of a successful handshake: a ready decryptor for
// incoming records and a ready encryptor for outgoing ones.
type Result struct {
	Puller *mcrypto.Puller
	Pusher *mcrypto.Pusher
}

// Run performs steps 1-5 of §4.2 against r and w, the two halves of a
// full-duplex transport stream. isServer selects the role-asymmetric header exchange order.
func Run(isServer bool, seed, remotePublic []byte, r io.Reader, w io.Writer) (*Result, error) {
	local, err := mcrypto.DeriveKeypair(seed)
	if err != nil {
		return nil, err
	}

	keys, err := mcrypto.Exchange(local, remotePublic, isServer)
	if err != nil {
		return nil, err
	}

	pusher, header, err := mcrypto.NewPusher(keys.Tx)
	if err != nil {
		return nil, err
	}

	peerHeader := make([]byte, mcrypto.HeaderSize)
	if isServer {
		if _, err := io.ReadFull(r, peerHeader); err != nil {
			return nil, wrapTransport(err)
		}
		if _, err := w.Write(header); err != nil {
			return nil, wrapTransport(err)
		}
	} else {
		if _, err := w.Write(header); err != nil {
			return nil, wrapTransport(err)
		}
		if _, err := io.ReadFull(r, peerHeader); err != nil {
			return nil, wrapTransport(err)
		}
	}

	puller, err := mcrypto.NewPuller(keys.Rx, peerHeader)
	if err != nil {
		return nil, err
	}

	return &Result{Puller: puller, Pusher: pusher}, nil
}

func wrapTransport(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return mcrypto.ErrHeaderDecodeFailure
	}
	return ErrTransportFailure
}
