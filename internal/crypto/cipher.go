// Package crypto implements the cipher, MAC, and compression
// primitives a credential is built from: an enum-driven CBC cipher with
// an explicit lifecycle state machine, HMAC over a selectable digest,
// and zlib/bzip2 payload compression.
package crypto

import (
	gocipher "crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// Cipher identifies the symmetric cipher a credential was sealed with.
// The numeric values are stable on the wire across releases. CipherNone
// is a pass-through primitive only — the credential codec refuses it in
// both directions, since a credential is always encrypted. CipherDefault
// resolves to CipherAES128 at encode time.
type Cipher int

const (
	CipherNone Cipher = iota
	CipherDefault
	CipherBlowfish
	CipherCAST5
	CipherAES128
	CipherAES256
)

// KeyLen returns the symmetric key length c requires.
func (c Cipher) KeyLen() int {
	switch c {
	case CipherBlowfish:
		return 16
	case CipherCAST5:
		return 16
	case CipherAES128:
		return 16
	case CipherAES256:
		return 32
	default:
		return 0
	}
}

// BlockSize returns the block size c operates on.
func (c Cipher) BlockSize() int {
	switch c {
	case CipherBlowfish:
		return blowfish.BlockSize
	case CipherCAST5:
		return cast5.BlockSize
	case CipherAES128, CipherAES256:
		return gocipher.BlockSize
	default:
		return 0
	}
}

func newBlockCipher(c Cipher, key []byte) (cipher.Block, error) {
	switch c {
	case CipherBlowfish:
		return blowfish.NewCipher(key)
	case CipherCAST5:
		return cast5.NewCipher(key)
	case CipherAES128, CipherAES256:
		return gocipher.NewCipher(key)
	default:
		return nil, muerrors.ErrUnknownCipher
	}
}

type cipherState int

const (
	stateInit cipherState = iota
	stateUpdating
	stateFinal
	stateClosed
)

// BlockCipher is a CBC encrypt/decrypt state machine with an explicit
// lifecycle: NewBlockCipher, then repeated Update calls with any-size
// chunks, then exactly one Final call, then Close. Update after Final
// is a checked ErrCipherState, never undefined behavior.
type BlockCipher struct {
	cipherType Cipher
	encrypt    bool
	block      cipher.Block
	blockSize  int
	cbc        cipher.BlockMode
	buf        []byte // partial block carried between Update calls
	state      cipherState
}

// NewBlockCipher constructs a BlockCipher for c, in encrypt or decrypt
// mode, using key and iv (both must already be the correct length for
// c — callers derive them via internal/credential's salt expansion).
func NewBlockCipher(c Cipher, encrypt bool, key, iv []byte) (*BlockCipher, error) {
	if c == CipherNone {
		return &BlockCipher{cipherType: c, encrypt: encrypt, state: stateInit}, nil
	}
	block, err := newBlockCipher(c, key)
	if err != nil {
		return nil, muerrors.ErrCryptoFailed
	}
	blockSize := block.BlockSize()
	if len(iv) != blockSize {
		return nil, muerrors.ErrCryptoFailed
	}
	var mode cipher.BlockMode
	if encrypt {
		mode = cipher.NewCBCEncrypter(block, iv)
	} else {
		mode = cipher.NewCBCDecrypter(block, iv)
	}
	return &BlockCipher{
		cipherType: c,
		encrypt:    encrypt,
		block:      block,
		blockSize:  blockSize,
		cbc:        mode,
		state:      stateInit,
	}, nil
}

// Update feeds in bytes and returns any newly produced output. It
// buffers a trailing partial block between calls; on decrypt, the last
// full block is always held back so Final has something to strip
// padding from.
func (bc *BlockCipher) Update(in []byte) ([]byte, error) {
	if bc.state == stateClosed || bc.state == stateFinal {
		return nil, muerrors.ErrCipherState
	}
	bc.state = stateUpdating
	if bc.cipherType == CipherNone {
		out := make([]byte, len(in))
		copy(out, in)
		return out, nil
	}

	bc.buf = append(bc.buf, in...)

	var avail int
	if bc.encrypt {
		avail = len(bc.buf)
	} else {
		// Keep at least one full block buffered for Final to unpad.
		avail = len(bc.buf) - bc.blockSize
	}
	nBlocks := avail / bc.blockSize
	if nBlocks <= 0 {
		return nil, nil
	}
	n := nBlocks * bc.blockSize
	chunk := bc.buf[:n]
	out := make([]byte, n)
	bc.cbc.CryptBlocks(out, chunk)
	bc.buf = append([]byte(nil), bc.buf[n:]...)
	return out, nil
}

// Final flushes the remaining buffered bytes, applying or stripping
// PKCS#5/#7 padding, and transitions the cipher to its terminal state.
func (bc *BlockCipher) Final() ([]byte, error) {
	if bc.state == stateClosed || bc.state == stateFinal {
		return nil, muerrors.ErrCipherState
	}
	bc.state = stateFinal
	if bc.cipherType == CipherNone {
		return nil, nil
	}

	if bc.encrypt {
		pad := bc.blockSize - (len(bc.buf) % bc.blockSize)
		if pad == 0 {
			pad = bc.blockSize
		}
		padded := make([]byte, len(bc.buf)+pad)
		copy(padded, bc.buf)
		for i := len(bc.buf); i < len(padded); i++ {
			padded[i] = byte(pad)
		}
		out := make([]byte, len(padded))
		bc.cbc.CryptBlocks(out, padded)
		return out, nil
	}

	if len(bc.buf) != bc.blockSize {
		return nil, muerrors.ErrCryptoFailed
	}
	out := make([]byte, bc.blockSize)
	bc.cbc.CryptBlocks(out, bc.buf)
	return stripPadding(out, bc.blockSize)
}

// stripPadding validates and removes PKCS#5/#7 padding. Any anomaly — a
// pad count outside [1, blockSize] or a mismatched padding byte — is
// collapsed to the single ErrCryptoFailed sentinel, never distinguished
// from a MAC failure, so a decryption oracle can't be built from
// padding behavior.
func stripPadding(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, muerrors.ErrCryptoFailed
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > blockSize || pad > len(data) {
		return nil, muerrors.ErrCryptoFailed
	}
	for i := len(data) - pad; i < len(data); i++ {
		if int(data[i]) != pad {
			return nil, muerrors.ErrCryptoFailed
		}
	}
	return data[:len(data)-pad], nil
}

// Close marks the cipher terminally closed. It does not zero the block
// cipher's internal key schedule (the Go standard library and
// golang.org/x/crypto block ciphers don't expose that), but it does
// clear the buffered partial block.
func (bc *BlockCipher) Close() {
	if bc.state == stateClosed {
		return
	}
	SecureZero(bc.buf)
	bc.buf = nil
	bc.state = stateClosed
}

// RandomBytes returns n bytes read from crypto/rand, used for credential
// salts and the fd-passing handshake's random file names (IVs are
// derived, not drawn from here). A read failure is treated as fatal by callers: the daemon
// process has no fallback entropy source.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, muerrors.NewCryptoError("rand", err)
	}
	return b, nil
}
