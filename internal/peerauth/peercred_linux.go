//go:build linux

package peerauth

import (
	"net"

	"golang.org/x/sys/unix"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// FromConn reads the peer's credentials directly from the kernel via
// SO_PEERCRED. This is the primary authentication path: no message
// exchange with the peer is needed, and the result can't be spoofed by
// anything the peer sends.
func FromConn(conn *net.UnixConn) (Identity, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Identity{}, muerrors.NewSocketError("syscall-conn", err)
	}

	var ucred *unix.Ucred
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return Identity{}, muerrors.NewSocketError("peercred", ctrlErr)
	}
	if sockErr != nil {
		return Identity{}, muerrors.NewSocketError("peercred", sockErr)
	}
	return Identity{UID: ucred.Uid, GID: ucred.Gid}, nil
}

// Authenticate resolves the peer identity for a just-accepted
// connection: on this platform SO_PEERCRED answers directly, so no
// handshake with the peer is needed.
func Authenticate(conn *net.UnixConn) (Identity, error) {
	return FromConn(conn)
}

// RespondIfNeeded is the client half of Authenticate. SO_PEERCRED needs
// nothing from the client, so this is a no-op.
func RespondIfNeeded(conn *net.UnixConn) error {
	return nil
}
