package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrHTTPListenUnsupported is returned by HTTP.Listen: like SOCKS, an HTTP
// CONNECT proxy has no notion of accepting inbound connections.
var ErrHTTPListenUnsupported = errors.New("transport: HTTP transport does not support Listen")

// HTTP tunnels a TCP byte stream through an HTTP proxy using the CONNECT
// method, then hands back the raw net.Conn for the session to layer its
// own handshake and AEAD stream on top — the same "wrap a net.Conn after a
// sub-protocol handshake" shape sockatz/common/conn.go uses for its QUIC
// transport.
type HTTP struct {
	ProxyAddr string
	Dialer    net.Dialer
}

func (h *HTTP) Connect(ctx context.Context, addr string) (*Pair, error) {
	conn, err := h.Dialer.DialContext(ctx, "tcp", h.ProxyAddr)
	if err != nil {
		return nil, wrapErr(err)
	}

	req, err := http.NewRequest(http.MethodConnect, "http://"+addr, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	req.Host = addr
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, wrapErr(err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, wrapErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, wrapErr(fmt.Errorf("transport: CONNECT tunnel refused: %s", resp.Status))
	}

	return PairFromConn(conn), nil
}

func (h *HTTP) Listen(ctx context.Context, addr string) (Listener, error) {
	return nil, ErrHTTPListenUnsupported
}
