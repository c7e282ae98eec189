package streaming

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	mcrypto "github.com/xndrbh/mage/crypto"
	"github.com/xndrbh/mage/wire"
)

func pairedStreams(t *testing.T, cfg *wire.Config) (*Out, *In) {
	t.Helper()
	var k [mcrypto.SubkeySize]byte
	for i := range k {
		k[i] = 9
	}
	pusher, header, err := mcrypto.NewPusher(k)
	require.NoError(t, err)
	puller, err := mcrypto.NewPuller(k, header)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	return NewOut(cfg, pusher, buf), NewIn(cfg, puller, buf)
}

func TestChunkDechunkRoundTrip(t *testing.T) {
	cfg := &wire.Config{HasID: true, HasSeq: true, HasDataLen: true, MaxSize: 256}
	out, in := pairedStreams(t, cfg)

	require.NoError(t, out.Chunk(13, 8, []byte{3, 3, 3, 3}))
	p, err := in.Dechunk()
	require.NoError(t, err)
	require.EqualValues(t, 8, p.Channel)
	require.EqualValues(t, 13, p.ID)
	require.Equal(t, []byte{3, 3, 3, 3}, p.Data)
}

// TestLargePayloadSplitsAcrossRecords covers spec.md §8 scenario 4: a
// payload larger than one record's capacity becomes multiple consecutively
// sequenced records that reassemble byte-identical.
func TestLargePayloadSplitsAcrossRecords(t *testing.T) {
	cfg := &wire.Config{HasID: true, HasSeq: true, HasDataLen: true, MaxSize: 100}
	out, in := pairedStreams(t, cfg)

	payload := bytes.Repeat([]byte{4}, 512)
	require.NoError(t, out.Chunk(0, 2, payload))

	var reassembled []byte
	var lastSeq uint32
	count := 0
	for len(reassembled) < len(payload) {
		p, err := in.Dechunk()
		require.NoError(t, err)
		if count > 0 {
			require.Equal(t, lastSeq+1, p.Sequence)
		}
		lastSeq = p.Sequence
		reassembled = append(reassembled, p.Data...)
		count++
	}
	require.Equal(t, payload, reassembled)
	require.Greater(t, count, 1)
}

func TestEmptyPayloadProducesOneRecord(t *testing.T) {
	cfg := &wire.Config{HasID: true, HasSeq: true, HasDataLen: true, MaxSize: 256}
	out, in := pairedStreams(t, cfg)
	require.NoError(t, out.Chunk(1, 1, nil))
	p, err := in.Dechunk()
	require.NoError(t, err)
	require.Empty(t, p.Data)
}

// TestDecryptFailureOnForeignSession covers spec.md §8: feeding Stream-in
// ciphertext produced under a different session's key yields a decrypt
// failure on the first record.
func TestDecryptFailureOnForeignSession(t *testing.T) {
	cfg := &wire.Config{HasID: true, HasSeq: true, HasDataLen: true, MaxSize: 256}

	var k1, k2 [mcrypto.SubkeySize]byte
	for i := range k1 {
		k1[i] = 1
		k2[i] = 2
	}
	pusher, header, err := mcrypto.NewPusher(k1)
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	out := NewOut(cfg, pusher, buf)
	require.NoError(t, out.Chunk(0, 0, []byte("hello")))

	foreignPuller, err := mcrypto.NewPuller(k2, header)
	require.NoError(t, err)
	in := NewIn(cfg, foreignPuller, buf)
	_, err = in.Dechunk()
	require.ErrorIs(t, err, mcrypto.ErrDecryptFailure)
}
