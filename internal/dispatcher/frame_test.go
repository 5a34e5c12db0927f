package dispatcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yuyake44/munge/internal/defs"
	muerrors "github.com/yuyake44/munge/internal/errors"
)

func TestFrameRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	want := Frame{Type: EncodeRequest, Body: []byte("hello request")}
	require.NoError(t, WriteFrame(buf, want))

	got, err := ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, want.Type, got.Type)
	require.Equal(t, want.Body, got.Body)
}

func TestFrameEmptyBody(t *testing.T) {
	buf := new(bytes.Buffer)
	want := Frame{Type: DecodeResponse, Body: nil}
	require.NoError(t, WriteFrame(buf, want))

	got, err := ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, want.Type, got.Type)
	require.Empty(t, got.Body)
}

func TestFrameReleaseRecyclesBuffer(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteFrame(buf, Frame{Type: DecodeRequest, Body: []byte("credential bytes")}))

	got, err := ReadFrame(buf)
	require.NoError(t, err)
	require.NotNil(t, got.Body)

	got.Release()
	require.Nil(t, got.Body)
	got.Release() // idempotent
}

func TestFrameRejectsBadMagic(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteFrame(buf, Frame{Type: EncodeRequest}))
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xFF

	_, err := ReadFrame(bytes.NewReader(corrupted))
	require.Error(t, err)
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	header := make([]byte, frameHeaderLen)
	copy(header[0:4], wireMagic[:])
	header[4] = wireVersion
	header[5] = byte(EncodeRequest)
	header[6] = 0xFF
	header[7] = 0xFF
	header[8] = 0xFF
	header[9] = 0xFF

	_, err := ReadFrame(bytes.NewReader(header))
	require.Error(t, err)
	require.Equal(t, muerrors.BadLength, muerrors.KindOf(err))
}

func TestFrameRejectsOversizedWrite(t *testing.T) {
	buf := new(bytes.Buffer)
	err := WriteFrame(buf, Frame{Type: EncodeRequest, Body: make([]byte, defs.MaxReqLen+1)})
	require.Error(t, err)
	require.Equal(t, muerrors.BadLength, muerrors.KindOf(err))
}

func TestFrameRejectsUnknownVersion(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteFrame(buf, Frame{Type: EncodeRequest}))
	corrupted := buf.Bytes()
	corrupted[4] = 99

	_, err := ReadFrame(bytes.NewReader(corrupted))
	require.Error(t, err)
}

func TestMessageTypeString(t *testing.T) {
	require.Equal(t, "ENCODE_REQUEST", EncodeRequest.String())
	require.Equal(t, "DECODE_RESPONSE", DecodeResponse.String())
}
