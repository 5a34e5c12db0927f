package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCipherRoundTrip(t *testing.T) {
	for _, name := range CipherNames() {
		c, err := ParseCipher(name)
		require.NoError(t, err)
		require.Equal(t, name, c.String())
	}
	_, err := ParseCipher("rot13")
	require.Error(t, err)
}

func TestParseMACRoundTrip(t *testing.T) {
	for _, name := range MACNames() {
		m, err := ParseMAC(name)
		require.NoError(t, err)
		require.Equal(t, name, m.String())
	}
	_, err := ParseMAC("crc32")
	require.Error(t, err)
}

func TestParseZipRoundTrip(t *testing.T) {
	for _, name := range ZipNames() {
		z, err := ParseZip(name)
		require.NoError(t, err)
		require.Equal(t, name, z.String())
	}
	_, err := ParseZip("lzma")
	require.Error(t, err)
}

func TestEnumValuesAreWireStable(t *testing.T) {
	require.Equal(t, Cipher(4), CipherAES128)
	require.Equal(t, Cipher(5), CipherAES256)
	require.Equal(t, MAC(3), MACSHA1)
	require.Equal(t, MAC(5), MACSHA256)
	require.Equal(t, Zip(3), ZipZlib)
}
