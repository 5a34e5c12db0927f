package credential

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/yuyake44/munge/internal/crypto"
)

// subkeys holds the cipher key, IV, and MAC subkey for one credential,
// derived from the daemon's shared secret and that credential's public
// salt. All three are read from a single HKDF stream in a fixed order
// (cipher key, then IV, then MAC key); reordering the reads would
// silently change every derived key.
type subkeys struct {
	cipherKey []byte
	iv        []byte
	macKey    []byte
}

// Close zeros the derived key material. The IV is public (it travels in
// the header) but is cleared with the rest for uniformity.
func (k *subkeys) Close() {
	crypto.SecureZeroMultiple(k.cipherKey, k.iv, k.macKey)
}

func deriveSubkeys(secret, salt []byte, c crypto.Cipher, m crypto.MAC) (*subkeys, error) {
	reader := hkdf.New(sha256.New, secret, salt, []byte("munge-credential-v1"))

	cipherKey := make([]byte, c.KeyLen())
	if c != crypto.CipherNone {
		if _, err := io.ReadFull(reader, cipherKey); err != nil {
			return nil, err
		}
	}

	iv := make([]byte, c.BlockSize())
	if c != crypto.CipherNone {
		if _, err := io.ReadFull(reader, iv); err != nil {
			return nil, err
		}
	}

	macKeyLen := m.Size()
	if macKeyLen == 0 {
		macKeyLen = sha256.Size
	}
	macKey := make([]byte, macKeyLen)
	if _, err := io.ReadFull(reader, macKey); err != nil {
		return nil, err
	}

	return &subkeys{cipherKey: cipherKey, iv: iv, macKey: macKey}, nil
}
