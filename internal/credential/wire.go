package credential

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"

	"github.com/yuyake44/munge/internal/defs"
	muerrors "github.com/yuyake44/munge/internal/errors"
)

// wireVersion is the only envelope version this codec emits or accepts.
const wireVersion = 1

// wireHeader is the plaintext preamble of a credential: everything
// needed to verify and decrypt it. Only the ciphertext (the serialized,
// compressed wireInner) is confidential; the header, including the
// per-credential salt, is public.
type wireHeader struct {
	version    uint8
	cipher     uint8
	mac        uint8
	zip        uint8
	salt       [defs.CredSaltLen]byte
	realm      string
	iv         []byte
	ciphertext []byte
}

// marshal serializes h without its MAC tag; the tag is computed over
// exactly these bytes by the caller.
func (h *wireHeader) marshal() []byte {
	var buf bytes.Buffer
	buf.WriteByte(h.version)
	buf.WriteByte(h.cipher)
	buf.WriteByte(h.mac)
	buf.WriteByte(h.zip)
	buf.Write(h.salt[:])

	realmBytes := []byte(h.realm)
	writeUint32(&buf, uint32(len(realmBytes)))
	buf.Write(realmBytes)

	writeUint32(&buf, uint32(len(h.iv)))
	buf.Write(h.iv)

	writeUint32(&buf, uint32(len(h.ciphertext)))
	buf.Write(h.ciphertext)

	return buf.Bytes()
}

func unmarshalHeader(b []byte) (*wireHeader, error) {
	r := bytes.NewReader(b)
	h := &wireHeader{}

	var err error
	if h.version, err = r.ReadByte(); err != nil {
		return nil, muerrors.ErrCryptoFailed
	}
	if h.cipher, err = r.ReadByte(); err != nil {
		return nil, muerrors.ErrCryptoFailed
	}
	if h.mac, err = r.ReadByte(); err != nil {
		return nil, muerrors.ErrCryptoFailed
	}
	if h.zip, err = r.ReadByte(); err != nil {
		return nil, muerrors.ErrCryptoFailed
	}
	if _, err = readFull(r, h.salt[:]); err != nil {
		return nil, err
	}

	realmLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if realmLen > defs.MaxReqLen {
		return nil, muerrors.ErrCryptoFailed
	}
	realmBytes := make([]byte, realmLen)
	if _, err = readFull(r, realmBytes); err != nil {
		return nil, err
	}
	h.realm = string(realmBytes)

	ivLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if ivLen > defs.MaxBlockLen {
		return nil, muerrors.ErrCryptoFailed
	}
	h.iv = make([]byte, ivLen)
	if _, err = readFull(r, h.iv); err != nil {
		return nil, err
	}

	ctLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if ctLen > defs.MaxReqLen {
		return nil, muerrors.ErrCryptoFailed
	}
	h.ciphertext = make([]byte, ctLen)
	if _, err = readFull(r, h.ciphertext); err != nil {
		return nil, err
	}

	return h, nil
}

// wireInner is the structure encrypted inside the ciphertext:
// identity, validity window, optional restrictions, and the caller's
// opaque payload.
type wireInner struct {
	uid            uint32
	gid            uint32
	encodeTime     int64
	ttl            uint32
	uidRestriction int64
	gidRestriction int64
	payload        []byte
}

func (in *wireInner) marshal() []byte {
	var buf bytes.Buffer
	writeUint32(&buf, in.uid)
	writeUint32(&buf, in.gid)
	writeInt64(&buf, in.encodeTime)
	writeUint32(&buf, in.ttl)
	writeInt64(&buf, in.uidRestriction)
	writeInt64(&buf, in.gidRestriction)
	writeUint32(&buf, uint32(len(in.payload)))
	buf.Write(in.payload)
	return buf.Bytes()
}

func unmarshalInner(b []byte) (*wireInner, error) {
	r := bytes.NewReader(b)
	in := &wireInner{}

	var err error
	if in.uid, err = readUint32(r); err != nil {
		return nil, err
	}
	if in.gid, err = readUint32(r); err != nil {
		return nil, err
	}
	if in.encodeTime, err = readInt64(r); err != nil {
		return nil, err
	}
	if in.ttl, err = readUint32(r); err != nil {
		return nil, err
	}
	if in.uidRestriction, err = readInt64(r); err != nil {
		return nil, err
	}
	if in.gidRestriction, err = readInt64(r); err != nil {
		return nil, err
	}
	payloadLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if payloadLen > defs.MaxReqLen {
		return nil, muerrors.ErrCryptoFailed
	}
	in.payload = make([]byte, payloadLen)
	if _, err = readFull(r, in.payload); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, muerrors.ErrCryptoFailed
	}
	return in, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	// A zero-length read is a success even at EOF; bytes.Reader.Read
	// would report io.EOF for it, which must not fail an empty payload.
	if len(b) == 0 {
		return 0, nil
	}
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, muerrors.ErrCryptoFailed
	}
	return n, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// envelope wraps and unwraps the "MUNGE:<base64>:" ASCII framing the
// credential is transported as.
func envelopeWrap(body []byte) string {
	return defs.CredPrefix + base64.StdEncoding.EncodeToString(body) + defs.CredSuffix
}

func envelopeUnwrap(s string) ([]byte, error) {
	if len(s) < len(defs.CredPrefix)+len(defs.CredSuffix) {
		return nil, muerrors.ErrCryptoFailed
	}
	if s[:len(defs.CredPrefix)] != defs.CredPrefix {
		return nil, muerrors.ErrCryptoFailed
	}
	s = s[len(defs.CredPrefix):]
	if s[len(s)-len(defs.CredSuffix):] != defs.CredSuffix {
		return nil, muerrors.ErrCryptoFailed
	}
	s = s[:len(s)-len(defs.CredSuffix)]
	body, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, muerrors.ErrCryptoFailed
	}
	return body, nil
}
