package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/crypto"
)

func TestEncodeReqRoundTrip(t *testing.T) {
	want := EncodeReq{
		Cipher:         crypto.CipherAES256,
		MAC:            crypto.MACSHA256,
		Zip:            crypto.ZipZlib,
		Realm:          "example.realm",
		TTL:            45 * time.Second,
		UIDRestriction: 1000,
		GIDRestriction: credential.NoRestriction,
		Payload:        []byte("payload bytes"),
	}
	got, err := UnmarshalEncodeReq(MarshalEncodeReq(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeReqEmptyPayload(t *testing.T) {
	want := EncodeReq{Cipher: crypto.CipherDefault, MAC: crypto.MACDefault, Zip: crypto.ZipNone}
	got, err := UnmarshalEncodeReq(MarshalEncodeReq(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeRespRoundTrip(t *testing.T) {
	want := EncodeResp{Status: credential.StatusSuccess, Credential: "MUNGE:abc:"}
	got, err := UnmarshalEncodeResp(MarshalEncodeResp(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeRespError(t *testing.T) {
	want := EncodeResp{Status: credential.StatusInvalidCred, ErrMsg: "bad arg"}
	got, err := UnmarshalEncodeResp(MarshalEncodeResp(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeReqRoundTrip(t *testing.T) {
	for _, retry := range []bool{false, true} {
		want := DecodeReq{Credential: "MUNGE:xyz:", Retry: retry}
		got, err := UnmarshalDecodeReq(MarshalDecodeReq(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeRespRoundTrip(t *testing.T) {
	want := DecodeResp{
		Status:         credential.StatusSuccess,
		UID:            1000,
		GID:            1000,
		EncodeTime:     time.Unix(1700000000, 0).UTC(),
		TTL:            300 * time.Second,
		UIDRestriction: credential.NoRestriction,
		GIDRestriction: credential.NoRestriction,
		Payload:        []byte("hello"),
	}
	got, err := UnmarshalDecodeResp(MarshalDecodeResp(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeRespRejectsTrailingBytes(t *testing.T) {
	body := MarshalDecodeResp(DecodeResp{})
	body = append(body, 0xFF)
	_, err := UnmarshalDecodeResp(body)
	require.Error(t, err)
}

func TestUnmarshalEncodeReqRejectsShortBody(t *testing.T) {
	_, err := UnmarshalEncodeReq([]byte{1, 2})
	require.Error(t, err)
}
