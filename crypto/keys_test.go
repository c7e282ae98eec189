package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seedOf(v byte) []byte {
	b := make([]byte, SeedSize)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestDeriveKeypairRejectsWrongLength(t *testing.T) {
	_, err := DeriveKeypair(seedOf(1)[:31])
	require.ErrorIs(t, err, ErrBadKeyMaterial)
}

func TestExchangeMirrorsAcrossRoles(t *testing.T) {
	client, err := DeriveKeypair(seedOf(1))
	require.NoError(t, err)
	server, err := DeriveKeypair(seedOf(2))
	require.NoError(t, err)

	clientKeys, err := Exchange(client, server.Public[:], false)
	require.NoError(t, err)
	serverKeys, err := Exchange(server, client.Public[:], true)
	require.NoError(t, err)

	require.Equal(t, clientKeys.Tx, serverKeys.Rx)
	require.Equal(t, clientKeys.Rx, serverKeys.Tx)
}

func TestExchangeRejectsZeroPublicKey(t *testing.T) {
	client, err := DeriveKeypair(seedOf(1))
	require.NoError(t, err)
	zero := make([]byte, PublicKeySize)
	_, err = Exchange(client, zero, false)
	require.ErrorIs(t, err, ErrHandshakeSignatureFailure)
}

func TestExchangeRejectsWrongLengthPublicKey(t *testing.T) {
	client, err := DeriveKeypair(seedOf(1))
	require.NoError(t, err)
	_, err = Exchange(client, seedOf(1)[:31], false)
	require.ErrorIs(t, err, ErrBadKeyMaterial)
}
