package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

func encryptAll(t *testing.T, c Cipher, key, iv, plaintext []byte) []byte {
	t.Helper()
	bc, err := NewBlockCipher(c, true, key, iv)
	require.NoError(t, err)
	defer bc.Close()

	var out bytes.Buffer
	chunk, err := bc.Update(plaintext)
	require.NoError(t, err)
	out.Write(chunk)
	chunk, err = bc.Final()
	require.NoError(t, err)
	out.Write(chunk)
	return out.Bytes()
}

func decryptAll(t *testing.T, c Cipher, key, iv, ciphertext []byte) ([]byte, error) {
	t.Helper()
	bc, err := NewBlockCipher(c, false, key, iv)
	require.NoError(t, err)
	defer bc.Close()

	out := bytes.NewBuffer([]byte{})
	chunk, err := bc.Update(ciphertext)
	if err != nil {
		return nil, err
	}
	out.Write(chunk)
	chunk, err = bc.Final()
	if err != nil {
		return nil, err
	}
	out.Write(chunk)
	return out.Bytes(), nil
}

func TestBlockCipherRoundTrip(t *testing.T) {
	for _, c := range []Cipher{CipherBlowfish, CipherCAST5, CipherAES128, CipherAES256} {
		key := make([]byte, c.KeyLen())
		for i := range key {
			key[i] = byte(i)
		}
		iv := make([]byte, c.BlockSize())
		for i := range iv {
			iv[i] = byte(255 - i)
		}

		for _, n := range []int{0, 1, c.BlockSize() - 1, c.BlockSize(), c.BlockSize() + 1, c.BlockSize() * 5} {
			plaintext := make([]byte, n)
			for i := range plaintext {
				plaintext[i] = byte(i % 251)
			}

			ciphertext := encryptAll(t, c, key, iv, plaintext)
			require.Zero(t, len(ciphertext)%c.BlockSize(), "ciphertext must be block-aligned")

			decrypted, err := decryptAll(t, c, key, iv, ciphertext)
			require.NoError(t, err)
			require.Equal(t, plaintext, decrypted)
		}
	}
}

func TestBlockCipherNone(t *testing.T) {
	plaintext := []byte("credential payload, no confidentiality requested")
	ciphertext := encryptAll(t, CipherNone, nil, nil, plaintext)
	require.Equal(t, plaintext, ciphertext)

	decrypted, err := decryptAll(t, CipherNone, nil, nil, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestBlockCipherRejectsTamperedPadding(t *testing.T) {
	key := make([]byte, CipherAES128.KeyLen())
	iv := make([]byte, CipherAES128.BlockSize())

	ciphertext := encryptAll(t, CipherAES128, key, iv, []byte("short message"))
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err := decryptAll(t, CipherAES128, key, iv, ciphertext)
	require.ErrorIs(t, err, muerrors.ErrCryptoFailed)
}

func TestBlockCipherStateMachine(t *testing.T) {
	key := make([]byte, CipherAES128.KeyLen())
	iv := make([]byte, CipherAES128.BlockSize())

	bc, err := NewBlockCipher(CipherAES128, true, key, iv)
	require.NoError(t, err)

	_, err = bc.Final()
	require.NoError(t, err)

	_, err = bc.Update([]byte("too late"))
	require.Error(t, err)

	_, err = bc.Final()
	require.Error(t, err)
}

func TestMACSumVerify(t *testing.T) {
	key := []byte("a sixteen byte key")
	data := []byte("the header and inner credential bytes")

	for _, m := range []MAC{MACMD5, MACSHA1, MACRIPEMD160, MACSHA256} {
		tag, err := Sum(m, key, data)
		require.NoError(t, err)
		require.Len(t, tag, m.Size())
		require.True(t, Verify(m, key, data, tag))

		tamperedTag := append([]byte(nil), tag...)
		tamperedTag[0] ^= 0xFF
		require.False(t, Verify(m, key, data, tamperedTag))

		require.False(t, Verify(m, key, append(data, 0x00), tag))
	}
}

func TestMACUnknown(t *testing.T) {
	_, err := Sum(MAC(99), []byte("key"), []byte("data"))
	require.Error(t, err)
}

func TestZipRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("compress me please "), 200)

	for _, z := range []Zip{ZipNone, ZipZlib, ZipBzlib} {
		compressed, err := Compress(z, data)
		require.NoError(t, err)
		if z != ZipNone {
			require.NotEqual(t, data, compressed)
		}

		decompressed, err := Decompress(z, compressed)
		require.NoError(t, err)
		require.Equal(t, data, decompressed)
	}
}

func TestRandomBytes(t *testing.T) {
	b, err := RandomBytes(32)
	require.NoError(t, err)
	require.Len(t, b, 32)

	b2, err := RandomBytes(32)
	require.NoError(t, err)
	require.NotEqual(t, b, b2)
}
