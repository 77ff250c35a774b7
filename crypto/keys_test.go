package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	address := key.PubKey().Address()
	encoded := address.String()
	require.True(t, strings.HasPrefix(encoded, string(RSCPrefix)+"1"))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, RSCPrefix, decoded.Prefix())
	require.Equal(t, address.Bytes(), decoded.Bytes())
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.Error(t, err)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Bytes(), restored.PubKey().Address().Bytes())
}
