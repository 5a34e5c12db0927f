package dispatcher

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/crypto"
)

// EncodeReq is the body of an EncodeRequest frame: the policy
// parameters a client supplies to seal a new credential. UID/GID are
// filled in server-side from the authenticated peer identity, never
// taken from the wire.
type EncodeReq struct {
	Cipher         crypto.Cipher
	MAC            crypto.MAC
	Zip            crypto.Zip
	Realm          string
	TTL            time.Duration
	UIDRestriction int64
	GIDRestriction int64
	Payload        []byte
}

// EncodeResp is the body of an EncodeResponse frame.
type EncodeResp struct {
	Status     credential.Status
	Credential string
	ErrMsg     string
}

// DecodeReq is the body of a DecodeRequest frame. Retry is the
// client-set flag bit marking this as a resend of a request whose reply
// was lost; the daemon honors it by not counting the resend as a replay.
type DecodeReq struct {
	Credential string
	Retry      bool
}

// decodeFlagRetry is bit 0 of the DECODE_REQUEST flags byte.
const decodeFlagRetry = 0x01

// DecodeResp is the body of a DecodeResponse frame.
type DecodeResp struct {
	Status         credential.Status
	UID            uint32
	GID            uint32
	EncodeTime     time.Time
	TTL            time.Duration
	UIDRestriction int64
	GIDRestriction int64
	Payload        []byte
	ErrMsg         string
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

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalEncodeReq serializes an EncodeReq into a frame body.
func MarshalEncodeReq(req EncodeReq) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(req.Cipher))
	buf.WriteByte(byte(req.MAC))
	buf.WriteByte(byte(req.Zip))
	writeString(buf, req.Realm)
	writeUint32(buf, uint32(req.TTL/time.Second))
	writeInt64(buf, req.UIDRestriction)
	writeInt64(buf, req.GIDRestriction)
	writeBytes(buf, req.Payload)
	return buf.Bytes()
}

// UnmarshalEncodeReq parses an EncodeRequest frame body.
func UnmarshalEncodeReq(body []byte) (EncodeReq, error) {
	var req EncodeReq
	r := bytes.NewReader(body)

	cipherB, err := r.ReadByte()
	if err != nil {
		return req, err
	}
	macB, err := r.ReadByte()
	if err != nil {
		return req, err
	}
	zipB, err := r.ReadByte()
	if err != nil {
		return req, err
	}
	req.Cipher = crypto.Cipher(cipherB)
	req.MAC = crypto.MAC(macB)
	req.Zip = crypto.Zip(zipB)

	if req.Realm, err = readString(r); err != nil {
		return req, err
	}
	ttl, err := readUint32(r)
	if err != nil {
		return req, err
	}
	req.TTL = time.Duration(ttl) * time.Second
	if req.UIDRestriction, err = readInt64(r); err != nil {
		return req, err
	}
	if req.GIDRestriction, err = readInt64(r); err != nil {
		return req, err
	}
	if req.Payload, err = readBytes(r); err != nil {
		return req, err
	}
	if r.Len() != 0 {
		return req, fmt.Errorf("trailing bytes in ENCODE_REQUEST body")
	}
	return req, nil
}

// MarshalEncodeResp serializes an EncodeResp into a frame body.
func MarshalEncodeResp(resp EncodeResp) []byte {
	buf := new(bytes.Buffer)
	writeUint32(buf, uint32(resp.Status))
	writeString(buf, resp.Credential)
	writeString(buf, resp.ErrMsg)
	return buf.Bytes()
}

// UnmarshalEncodeResp parses an EncodeResponse frame body.
func UnmarshalEncodeResp(body []byte) (EncodeResp, error) {
	var resp EncodeResp
	r := bytes.NewReader(body)
	status, err := readUint32(r)
	if err != nil {
		return resp, err
	}
	resp.Status = credential.Status(status)
	if resp.Credential, err = readString(r); err != nil {
		return resp, err
	}
	if resp.ErrMsg, err = readString(r); err != nil {
		return resp, err
	}
	if r.Len() != 0 {
		return resp, fmt.Errorf("trailing bytes in ENCODE_RESPONSE body")
	}
	return resp, nil
}

// MarshalDecodeReq serializes a DecodeReq into a frame body.
func MarshalDecodeReq(req DecodeReq) []byte {
	buf := new(bytes.Buffer)
	writeString(buf, req.Credential)
	var flags byte
	if req.Retry {
		flags |= decodeFlagRetry
	}
	buf.WriteByte(flags)
	return buf.Bytes()
}

// UnmarshalDecodeReq parses a DecodeRequest frame body.
func UnmarshalDecodeReq(body []byte) (DecodeReq, error) {
	var req DecodeReq
	r := bytes.NewReader(body)
	var err error
	if req.Credential, err = readString(r); err != nil {
		return req, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return req, err
	}
	req.Retry = flags&decodeFlagRetry != 0
	if r.Len() != 0 {
		return req, fmt.Errorf("trailing bytes in DECODE_REQUEST body")
	}
	return req, nil
}

// MarshalDecodeResp serializes a DecodeResp into a frame body.
func MarshalDecodeResp(resp DecodeResp) []byte {
	buf := new(bytes.Buffer)
	writeUint32(buf, uint32(resp.Status))
	writeUint32(buf, resp.UID)
	writeUint32(buf, resp.GID)
	writeInt64(buf, resp.EncodeTime.Unix())
	writeUint32(buf, uint32(resp.TTL/time.Second))
	writeInt64(buf, resp.UIDRestriction)
	writeInt64(buf, resp.GIDRestriction)
	writeBytes(buf, resp.Payload)
	writeString(buf, resp.ErrMsg)
	return buf.Bytes()
}

// UnmarshalDecodeResp parses a DecodeResponse frame body.
func UnmarshalDecodeResp(body []byte) (DecodeResp, error) {
	var resp DecodeResp
	r := bytes.NewReader(body)

	status, err := readUint32(r)
	if err != nil {
		return resp, err
	}
	resp.Status = credential.Status(status)
	if resp.UID, err = readUint32(r); err != nil {
		return resp, err
	}
	if resp.GID, err = readUint32(r); err != nil {
		return resp, err
	}
	encodeTime, err := readInt64(r)
	if err != nil {
		return resp, err
	}
	resp.EncodeTime = time.Unix(encodeTime, 0).UTC()
	ttl, err := readUint32(r)
	if err != nil {
		return resp, err
	}
	resp.TTL = time.Duration(ttl) * time.Second
	if resp.UIDRestriction, err = readInt64(r); err != nil {
		return resp, err
	}
	if resp.GIDRestriction, err = readInt64(r); err != nil {
		return resp, err
	}
	if resp.Payload, err = readBytes(r); err != nil {
		return resp, err
	}
	if resp.ErrMsg, err = readString(r); err != nil {
		return resp, err
	}
	if r.Len() != 0 {
		return resp, fmt.Errorf("trailing bytes in DECODE_RESPONSE body")
	}
	return resp, nil
}
