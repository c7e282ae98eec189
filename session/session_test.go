package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mcrypto "github.com/xndrbh/mage/crypto"
	"github.com/xndrbh/mage/transport"
)

func seedOf(v byte) []byte {
	b := make([]byte, mcrypto.SeedSize)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestSessionEndToEndChannelExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientConn, serverConn := net.Pipe()

	clientSeed := seedOf(1)
	serverSeed := seedOf(2)
	clientKP, err := mcrypto.DeriveKeypair(clientSeed)
	require.NoError(t, err)
	serverKP, err := mcrypto.DeriveKeypair(serverSeed)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Packet.MaxSize = 256

	type openResult struct {
		sess *Session
		err  error
	}
	clientCh := make(chan openResult, 1)
	serverCh := make(chan openResult, 1)

	go func() {
		s, err := Open(ctx, transport.PairFromConn(clientConn), false, clientSeed, serverKP.Public[:], cfg)
		clientCh <- openResult{s, err}
	}()
	go func() {
		s, err := Open(ctx, transport.PairFromConn(serverConn), true, serverSeed, clientKP.Public[:], cfg)
		serverCh <- openResult{s, err}
	}()

	co := <-clientCh
	so := <-serverCh
	require.NoError(t, co.err)
	require.NoError(t, so.err)
	defer co.sess.Close()
	defer so.sess.Close()

	clientChan, err := co.sess.OpenChannel(4)
	require.NoError(t, err)
	serverChan, err := so.sess.OpenChannel(4)
	require.NoError(t, err)

	go co.sess.RunOutgoing(ctx)
	go so.sess.RunIncoming(ctx)

	require.NoError(t, clientChan.Send([]byte("hello server")))

	done := make(chan []byte, 1)
	go func() {
		p, err := serverChan.Recv()
		if err != nil {
			done <- nil
			return
		}
		done <- p
	}()

	select {
	case got := <-done:
		require.Equal(t, []byte("hello server"), got)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for channel delivery")
	}
}
