package credential

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yuyake44/munge/internal/defs"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0xFF, 0x00}
	s := envelopeWrap(body)
	require.Equal(t, defs.CredPrefix, s[:len(defs.CredPrefix)])

	out, err := envelopeUnwrap(s)
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestEnvelopeUnwrapRejectsBadFraming(t *testing.T) {
	_, err := envelopeUnwrap("garbage")
	require.Error(t, err)

	_, err = envelopeUnwrap("MUNGE:not-base64!!!:")
	require.Error(t, err)
}

func TestWireHeaderRoundTrip(t *testing.T) {
	h := &wireHeader{
		version:    wireVersion,
		cipher:     4,
		mac:        3,
		zip:        0,
		realm:      "example.org",
		iv:         []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		ciphertext: []byte("some ciphertext bytes"),
	}
	for i := range h.salt {
		h.salt[i] = byte(i)
	}

	b := h.marshal()
	out, err := unmarshalHeader(b)
	require.NoError(t, err)
	require.Equal(t, h.version, out.version)
	require.Equal(t, h.cipher, out.cipher)
	require.Equal(t, h.mac, out.mac)
	require.Equal(t, h.zip, out.zip)
	require.Equal(t, h.salt, out.salt)
	require.Equal(t, h.realm, out.realm)
	require.Equal(t, h.iv, out.iv)
	require.Equal(t, h.ciphertext, out.ciphertext)
}

func TestWireInnerRoundTrip(t *testing.T) {
	in := &wireInner{
		uid:            1000,
		gid:            2000,
		encodeTime:     1_700_000_000,
		ttl:            300,
		uidRestriction: NoRestriction,
		gidRestriction: 42,
		payload:        []byte("payload bytes"),
	}
	b := in.marshal()
	out, err := unmarshalInner(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestWireInnerEmptyPayload(t *testing.T) {
	in := &wireInner{
		uid: 1000, gid: 1000,
		encodeTime: 1_700_000_000, ttl: 60,
		uidRestriction: NoRestriction, gidRestriction: NoRestriction,
	}
	out, err := unmarshalInner(in.marshal())
	require.NoError(t, err)
	require.Empty(t, out.payload)
}

func TestWireInnerRejectsTrailingGarbage(t *testing.T) {
	in := &wireInner{uidRestriction: NoRestriction, gidRestriction: NoRestriction}
	b := append(in.marshal(), 0xFF)
	_, err := unmarshalInner(b)
	require.Error(t, err)
}
