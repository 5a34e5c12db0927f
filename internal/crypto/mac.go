package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"hash"

	"golang.org/x/crypto/ripemd160"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// MAC identifies the keyed message-authentication algorithm a
// credential is sealed with. The numeric values are stable on the wire
// across releases; MACDefault resolves to MACSHA1 at encode time.
type MAC int

const (
	MACNone MAC = iota
	MACDefault
	MACMD5
	MACSHA1
	MACRIPEMD160
	MACSHA256
)

// Size returns the digest size in bytes for m.
func (m MAC) Size() int {
	switch m {
	case MACMD5:
		return md5.Size
	case MACSHA1:
		return sha1.Size
	case MACRIPEMD160:
		return ripemd160.Size
	case MACSHA256:
		return sha256.Size
	default:
		return 0
	}
}

func newHash(m MAC) (func() hash.Hash, error) {
	switch m {
	case MACMD5:
		return md5.New, nil
	case MACSHA1:
		return sha1.New, nil
	case MACRIPEMD160:
		return ripemd160.New, nil
	case MACSHA256:
		return sha256.New, nil
	default:
		return nil, muerrors.ErrUnknownMAC
	}
}

// Sum computes the keyed MAC of data under key using algorithm m. There
// is no MAC-less mode: MACNone, like any other value without a hash
// behind it, returns ErrUnknownMAC.
func Sum(m MAC, key, data []byte) ([]byte, error) {
	newFn, err := newHash(m)
	if err != nil {
		return nil, err
	}
	h := hmac.New(newFn, key)
	defer SecureZeroHash(h)
	h.Write(data)
	return h.Sum(nil), nil
}

// Verify recomputes the MAC of data under key and compares it against
// tag in constant time, so a timing side channel can't be used to learn
// which byte of the tag was wrong.
func Verify(m MAC, key, data, tag []byte) bool {
	computed, err := Sum(m, key, data)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, tag) == 1
}
