package mux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	mcrypto "github.com/xndrbh/mage/crypto"
	"github.com/xndrbh/mage/streaming"
	"github.com/xndrbh/mage/wire"
)

func linkedMux(t *testing.T) (*Multiplexer, *streaming.Out) {
	t.Helper()
	cfg := &wire.Config{HasID: true, HasSeq: true, HasDataLen: true, MaxSize: 256}

	var k [mcrypto.SubkeySize]byte
	for i := range k {
		k[i] = 5
	}
	pusher, header, err := mcrypto.NewPusher(k)
	require.NoError(t, err)
	puller, err := mcrypto.NewPuller(k, header)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	senderOut := streaming.NewOut(cfg, pusher, buf)
	receiverIn := streaming.NewIn(cfg, puller, buf)
	return New(cfg, nil, receiverIn, 1), senderOut
}

// TestBroadcastFanOut covers spec.md §8 scenario 5: two subscribers on
// channel 4 both receive a byte-identical copy; a channel-15 subscriber
// receives nothing.
func TestBroadcastFanOut(t *testing.T) {
	m, senderOut := linkedMux(t)

	sub1, err := m.OpenChannel(4)
	require.NoError(t, err)
	sub2, err := m.OpenChannel(4)
	require.NoError(t, err)
	other, err := m.OpenChannel(0xF)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{7}, 100)
	require.NoError(t, senderOut.Chunk(0, 4, payload))
	require.NoError(t, m.PumpIncoming())

	p1, ok := sub1.recv.pop()
	require.True(t, ok)
	require.Equal(t, payload, p1)

	p2, ok := sub2.recv.pop()
	require.True(t, ok)
	require.Equal(t, payload, p2)

	_, ok = other.recv.tryPop()
	require.False(t, ok)
}

func TestOpenChannelRejectsOutOfRange(t *testing.T) {
	m, _ := linkedMux(t)
	_, err := m.OpenChannel(16)
	require.ErrorIs(t, err, wire.ErrChannelOverflow)
}

func TestCloseMarksHandlesClosed(t *testing.T) {
	m, _ := linkedMux(t)
	h, err := m.OpenChannel(1)
	require.NoError(t, err)
	m.Close()
	require.ErrorIs(t, h.Send([]byte("x")), ErrChannelClosed)
}

// TestPumpIncomingReordersShuffledWindow covers spec.md §8 "Ordering": a
// Stream-in given records arriving shuffled within one max_size-bounded
// window must emit Packets sorted by sequence. The three records below are
// sealed (and so placed on the wire, in AEAD nonce-counter order — which
// cannot itself be shuffled without desynchronizing the stream) out of
// sequence order: sequence 2 first, then 0, then 1. A Multiplexer with
// reorderWindow=3 must still deliver the three payloads in sequence order
// (A, B, C) rather than wire-arrival order (C, A, B).
func TestPumpIncomingReordersShuffledWindow(t *testing.T) {
	cfg := &wire.Config{HasID: true, HasSeq: true, HasDataLen: true, MaxSize: 256}

	var k [mcrypto.SubkeySize]byte
	for i := range k {
		k[i] = 6
	}
	pusher, header, err := mcrypto.NewPusher(k)
	require.NoError(t, err)
	puller, err := mcrypto.NewPuller(k, header)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	sealInWireOrder := func(sequence uint32, payload []byte) {
		plain, _, err := cfg.Serialize(0, 3, sequence, payload)
		require.NoError(t, err)
		buf.Write(pusher.Seal(plain))
	}
	sealInWireOrder(2, []byte("C"))
	sealInWireOrder(0, []byte("A"))
	sealInWireOrder(1, []byte("B"))

	receiverIn := streaming.NewIn(cfg, puller, buf)
	m := New(cfg, nil, receiverIn, 3)

	sub, err := m.OpenChannel(3)
	require.NoError(t, err)
	require.NoError(t, m.PumpIncoming())

	first, ok := sub.recv.pop()
	require.True(t, ok)
	require.Equal(t, []byte("A"), first)

	second, ok := sub.recv.pop()
	require.True(t, ok)
	require.Equal(t, []byte("B"), second)

	third, ok := sub.recv.pop()
	require.True(t, ok)
	require.Equal(t, []byte("C"), third)
}
