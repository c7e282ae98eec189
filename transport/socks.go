package transport

import (
	"context"
	"errors"
	"net"

	"golang.org/x/net/proxy"
)

// ErrSocksListenUnsupported is returned by SOCKS.Listen: a SOCKS proxy has
// no notion of accepting inbound connections on mage's behalf (per
// sys_socket.rs, the SOCKS transport variant is dial-only).
var ErrSocksListenUnsupported = errors.New("transport: SOCKS transport does not support Listen")

// SOCKS dials out through a SOCKS5 proxy before handing the resulting
// net.Conn to the session, using golang.org/x/net/proxy (the same module
// katzenpost depends on for its networking stack).
type SOCKS struct {
	ProxyAddr string
	Auth      *proxy.Auth
}

func (s *SOCKS) Connect(ctx context.Context, addr string) (*Pair, error) {
	dialer, err := proxy.SOCKS5("tcp", s.ProxyAddr, s.Auth, proxy.Direct)
	if err != nil {
		return nil, wrapErr(err)
	}
	var conn net.Conn
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		conn, err = ctxDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return PairFromConn(conn), nil
}

func (s *SOCKS) Listen(ctx context.Context, addr string) (Listener, error) {
	return nil, ErrSocksListenUnsupported
}
