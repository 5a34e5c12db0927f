package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	require.Equal(t, "success", Success.String())
	require.Equal(t, "invalid credential", InvalidCred.String())
	require.Equal(t, "unknown error", Kind(999).String())
}

func TestKindExitStatus(t *testing.T) {
	require.Equal(t, 0, Success.ExitStatus())
	require.Equal(t, int(AuthFailure), AuthFailure.ExitStatus())
}

func TestKindIsError(t *testing.T) {
	var err error = InvalidCred
	require.EqualError(t, err, "invalid credential")
}

func TestCryptoError(t *testing.T) {
	base := errors.New("underlying")
	ce := NewCryptoError("mac", base)
	require.Equal(t, "crypto mac: underlying", ce.Error())
	require.Equal(t, base, ce.Unwrap())

	ceNil := NewCryptoError("cipher", nil)
	require.Equal(t, "crypto cipher failed", ceNil.Error())
}

func TestCodecError(t *testing.T) {
	base := errors.New("mac mismatch")
	ce := NewCodecError(InvalidCred, "decode", base)
	require.Contains(t, ce.Error(), "invalid credential")
	require.ErrorIs(t, ce, base)

	var target *CodecError
	require.True(t, As(ce, &target))
	require.Equal(t, InvalidCred, target.Kind)
}

func TestSocketError(t *testing.T) {
	base := errors.New("broken pipe")
	se := NewSocketError("write", base)
	require.Equal(t, "socket write: broken pipe", se.Error())
	require.ErrorIs(t, se, base)
}

func TestWrap(t *testing.T) {
	base := errors.New("base")
	wrapped := Wrap(base, "context")
	require.EqualError(t, wrapped, "context: base")
	require.Nil(t, Wrap(nil, "context"))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, Success, KindOf(nil))
	require.Equal(t, ExpiredCred, KindOf(ExpiredCred))
	require.Equal(t, ReplayedCred, KindOf(NewCodecError(ReplayedCred, "decode", nil)))
	require.Equal(t, Snafu, KindOf(errors.New("unrecognized")))
}
