// Package session ties the handshake, streaming and mux packages together
// into the "Session" data model of spec.md §3: the state shared by a pair
// of peers, holding the PacketConfig, the transport pair, and the
// multiplexer (which owns the two AEAD sub-streams). The role is used
// during the handshake and is not stored.
package session

import (
	"context"
	"errors"
	"io"
	"sync"

	clog "github.com/charmbracelet/log"

	"github.com/xndrbh/mage/handshake"
	"github.com/xndrbh/mage/internal/halt"
	mlog "github.com/xndrbh/mage/log"
	"github.com/xndrbh/mage/mux"
	"github.com/xndrbh/mage/streaming"
	"github.com/xndrbh/mage/transport"
)

// ErrClosed is returned by session operations attempted after Close.
var ErrClosed = errors.New("session: closed")

// Session is one authenticated, encrypted bidirectional byte pipe between
// two peers. It is created by a handshake and destroyed when either
// direction fails or the transport closes.
type Session struct {
	cfg    Config
	pair   *transport.Pair
	mux    *mux.Multiplexer
	logger *clog.Logger

	halt.Halt
	closeOnce sync.Once
}

// Open runs the handshake (§4.2) over pair and, on success, constructs a
// Session with its Stream-out/Stream-in and Multiplexer wired together.
// isServer selects the role-asymmetric handshake header order documented
// in handshake.Run.
func Open(ctx context.Context, pair *transport.Pair, isServer bool, seed, remotePublic []byte, cfg Config) (*Session, error) {
	logger := mlog.New("mage/session", "info", nil)

	res, err := handshake.Run(isServer, seed, remotePublic, pair, pair)
	if err != nil {
		logger.Error("handshake failed", "err", err)
		return nil, err
	}
	logger.Info("handshake complete", "role", roleName(isServer))

	out := streaming.NewOut(&cfg.Packet, res.Pusher, pair)
	in := streaming.NewIn(&cfg.Packet, res.Puller, pair)
	m := mux.New(&cfg.Packet, out, in, cfg.ReorderWindow)

	s := &Session{
		cfg:    cfg,
		pair:   pair,
		mux:    m,
		logger: logger,
	}
	return s, nil
}

func roleName(isServer bool) string {
	if isServer {
		return "server"
	}
	return "client"
}

// OpenChannel allocates a new logical channel endpoint, per §4.5.
func (s *Session) OpenChannel(id uint8) (*mux.Handle, error) {
	return s.mux.OpenChannel(id)
}

// RunOutgoing drains and transmits pending channel writes until ctx is
// done or the session is closed. Callers typically run this in its own
// goroutine.
func (s *Session) RunOutgoing(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.HaltCh():
			return ErrClosed
		default:
		}
		if err := s.mux.PumpOutgoing(); err != nil {
			if errors.Is(err, mux.ErrChannelClosed) {
				return ErrClosed
			}
			s.logger.Error("pump outgoing failed, aborting session", "err", err)
			s.Close()
			return err
		}
	}
}

// RunIncoming blocks dechunking and routing records until ctx is done, the
// session is closed, or a fatal error occurs. Callers typically run this
// in its own goroutine.
func (s *Session) RunIncoming(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.HaltCh():
			return ErrClosed
		default:
		}
		if err := s.mux.PumpIncoming(); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("peer closed transport")
			} else {
				s.logger.Error("pump incoming failed, aborting session", "err", err)
			}
			s.Close()
			return err
		}
	}
}

// Close releases the session's transport handle and drains subscriber
// queues. It is safe to call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Halt.Halt()
		s.mux.Close()
		err = s.pair.Close()
		s.logger.Info("session closed")
	})
	return err
}
