//go:build !linux

package peerauth

import (
	"net"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// FromConn has no SO_PEERCRED equivalent wired on this platform; callers
// fall back to the fd-passing handshake in fdpass.go.
func FromConn(conn *net.UnixConn) (Identity, error) {
	return Identity{}, muerrors.NewSocketError("peercred", errUnsupported)
}

var errUnsupported = &unsupportedError{}

type unsupportedError struct{}

func (*unsupportedError) Error() string { return "SO_PEERCRED not supported on this platform" }

// Authenticate resolves the peer identity for a just-accepted
// connection via the fd-passing handshake, since this platform offers
// no kernel peer-credential query.
func Authenticate(conn *net.UnixConn) (Identity, error) {
	return DefaultFDPass().Authenticate(conn)
}

// RespondIfNeeded is the client half of Authenticate: run the
// fd-passing handshake's client side before sending the request.
func RespondIfNeeded(conn *net.UnixConn) error {
	return Respond(conn)
}
