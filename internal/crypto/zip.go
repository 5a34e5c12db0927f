package crypto

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// Zip identifies the compression applied to the inner payload before
// encryption. The numeric values are stable on the wire across
// releases; ZipDefault resolves to ZipNone at encode time.
type Zip int

const (
	ZipNone Zip = iota
	ZipDefault
	ZipBzlib
	ZipZlib
)

// Compress compresses data using z. ZipNone and ZipDefault return data
// unchanged.
func Compress(z Zip, data []byte) ([]byte, error) {
	switch z {
	case ZipNone, ZipDefault:
		return data, nil
	case ZipZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, muerrors.NewCryptoError("zlib-compress", err)
		}
		if err := w.Close(); err != nil {
			return nil, muerrors.NewCryptoError("zlib-compress", err)
		}
		return buf.Bytes(), nil
	case ZipBzlib:
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, nil)
		if err != nil {
			return nil, muerrors.NewCryptoError("bzip2-compress", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, muerrors.NewCryptoError("bzip2-compress", err)
		}
		if err := w.Close(); err != nil {
			return nil, muerrors.NewCryptoError("bzip2-compress", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, muerrors.ErrUnknownZip
	}
}

// Decompress reverses Compress. Any decompression failure collapses to
// ErrCryptoFailed, consistent with the rest of the credential codec's
// uniform error surface; an unknown z returns ErrUnknownZip.
func Decompress(z Zip, data []byte) ([]byte, error) {
	switch z {
	case ZipNone, ZipDefault:
		return data, nil
	case ZipZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, muerrors.ErrCryptoFailed
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, muerrors.ErrCryptoFailed
		}
		return out, nil
	case ZipBzlib:
		r, err := bzip2.NewReader(bytes.NewReader(data), nil)
		if err != nil {
			return nil, muerrors.ErrCryptoFailed
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, muerrors.ErrCryptoFailed
		}
		return out, nil
	default:
		return nil, muerrors.ErrUnknownZip
	}
}
