// Package dispatcher accepts connections on munged's local socket,
// hands each to a worker from a bounded pool, reads one framed request,
// drives credential encode or decode, and writes one framed reply.
package dispatcher

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/yuyake44/munge/internal/defs"
	muerrors "github.com/yuyake44/munge/internal/errors"
	"github.com/yuyake44/munge/internal/util"
)

// wireMagic opens every frame.
var wireMagic = [4]byte{'M', 'N', 'G', '2'}

// MessageType identifies a frame's body layout.
type MessageType uint8

const (
	EncodeRequest MessageType = iota + 1
	EncodeResponse
	DecodeRequest
	DecodeResponse
)

func (t MessageType) String() string {
	switch t {
	case EncodeRequest:
		return "ENCODE_REQUEST"
	case EncodeResponse:
		return "ENCODE_RESPONSE"
	case DecodeRequest:
		return "DECODE_REQUEST"
	case DecodeResponse:
		return "DECODE_RESPONSE"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

const wireVersion = 1

// frameHeaderLen is magic(4) + version(1) + type(1) + length(4).
const frameHeaderLen = 4 + 1 + 1 + 4

// Frame is one message: a type tag plus an opaque, type-specific body.
// A Frame produced by ReadFrame holds its body in a pooled buffer;
// Release returns it once the body has been parsed.
type Frame struct {
	Type MessageType
	Body []byte

	backing []byte
}

// Release hands the frame's pooled read buffer back (zeroed) and clears
// Body. Safe to call on a zero Frame or more than once.
func (f *Frame) Release() {
	if f.backing == nil {
		return
	}
	util.PutReqBuffer(f.backing)
	f.backing = nil
	f.Body = nil
}

// WriteFrame writes magic | version | type | length | body to conn, all
// multi-byte integers in network byte order.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Body) > defs.MaxReqLen {
		return muerrors.Wrap(muerrors.BadLength, fmt.Sprintf("frame body length %d exceeds %d", len(f.Body), defs.MaxReqLen))
	}
	header := make([]byte, frameHeaderLen)
	copy(header[0:4], wireMagic[:])
	header[4] = wireVersion
	header[5] = byte(f.Type)
	binary.BigEndian.PutUint32(header[6:10], uint32(len(f.Body)))

	if _, err := w.Write(header); err != nil {
		return muerrors.NewSocketError("write-frame", err)
	}
	if len(f.Body) > 0 {
		if _, err := w.Write(f.Body); err != nil {
			return muerrors.NewSocketError("write-frame", err)
		}
	}
	return nil
}

// ReadFrame reads one frame from r, rejecting a length beyond
// defs.MaxReqLen before the body is allocated so a malicious peer can't
// force an oversized allocation by lying about length.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, muerrors.NewSocketError("read-frame", err)
	}
	if string(header[0:4]) != string(wireMagic[:]) {
		return Frame{}, muerrors.NewSocketError("read-frame", fmt.Errorf("bad magic"))
	}
	if header[4] != wireVersion {
		return Frame{}, muerrors.NewSocketError("read-frame", fmt.Errorf("unsupported wire version %d", header[4]))
	}
	typ := MessageType(header[5])
	length := binary.BigEndian.Uint32(header[6:10])
	if length > defs.MaxReqLen {
		return Frame{}, muerrors.Wrap(muerrors.BadLength, fmt.Sprintf("frame body length %d exceeds %d", length, defs.MaxReqLen))
	}

	if length == 0 {
		return Frame{Type: typ}, nil
	}
	backing := util.GetReqBuffer()
	body := backing[:length]
	if _, err := io.ReadFull(r, body); err != nil {
		util.PutReqBuffer(backing)
		return Frame{}, muerrors.NewSocketError("read-frame", err)
	}
	return Frame{Type: typ, Body: body, backing: backing}, nil
}
