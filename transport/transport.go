// Package transport is the uniform listen/accept/connect facade mage
// sessions are built on top of: concrete variants (plain TCP, SOCKS-
// wrapped, HTTP-tunnelled) differ only in what handshake bytes, if any,
// they exchange before handing the raw byte pipe to a Session. This
// mirrors sys_socket.rs's three transport kinds and sockatz/common/conn.go's
// pattern of wrapping a net.Conn after a sub-protocol handshake.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
)

// ErrTransportFailure is the single error category concrete transports
// map underlying I/O errors to, per spec.md §4.6/§7.
var ErrTransportFailure = errors.New("transport: underlying I/O failure")

// Pair is an owned (reader, writer) produced by Connect or Accept. Both
// halves must be safely usable from separate goroutines; a net.Conn
// already satisfies this.
type Pair struct {
	io.Reader
	io.Writer
	Closer io.Closer
}

// Close releases the underlying connection, if any.
func (p *Pair) Close() error {
	if p.Closer == nil {
		return nil
	}
	return p.Closer.Close()
}

// Listener accepts inbound Pairs.
type Listener interface {
	Accept(ctx context.Context) (*Pair, error)
	Close() error
	Addr() net.Addr
}

// Transport is the capability set a mage session is built on: listen for
// inbound connections, or dial out to a remote address.
type Transport interface {
	Listen(ctx context.Context, addr string) (Listener, error)
	Connect(ctx context.Context, addr string) (*Pair, error)
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrTransportFailure, err)
}

// PairFromConn adapts a net.Conn to a transport.Pair.
func PairFromConn(conn net.Conn) *Pair {
	return &Pair{Reader: conn, Writer: conn, Closer: conn}
}
