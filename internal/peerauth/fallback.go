//go:build linux

package peerauth

import (
	"net"

	"golang.org/x/sys/unix"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// FromConnFallback authenticates a peer from an SCM_CREDENTIALS
// ancillary message rather than reading SO_PEERCRED — an alternate for
// sockets where GetsockoptUcred fails (e.g. the listening socket crossed a
// network-namespace boundary some kernels refuse SO_PEERCRED on).
// Authenticate does not call it. The server enables SO_PASSCRED on its
// end, waits for the peer to send one byte (it sends no request of its
// own), and recovers the peer's real uid/gid from
// the kernel-verified ucred the peer's sendmsg carried — the kernel
// rejects a ucred the sender doesn't actually hold, so this is no
// weaker than SO_PEERCRED, just a different syscall path.
func FromConnFallback(conn *net.UnixConn) (Identity, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Identity{}, muerrors.NewSocketError("syscall-conn", err)
	}

	var ucred *unix.Ucred
	var opErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		if sErr := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PASSCRED, 1); sErr != nil {
			opErr = sErr
			return true
		}

		buf := make([]byte, 1)
		oob := make([]byte, unix.CmsgSpace(unix.SizeofUcred))
		n, oobn, _, _, rErr := unix.Recvmsg(int(fd), buf, oob, 0)
		if rErr == unix.EAGAIN {
			return false
		}
		if rErr != nil {
			opErr = rErr
			return true
		}
		if n < 1 {
			opErr = muerrors.ErrCryptoFailed
			return true
		}

		msgs, pErr := unix.ParseSocketControlMessage(oob[:oobn])
		if pErr != nil || len(msgs) == 0 {
			opErr = muerrors.ErrCryptoFailed
			return true
		}
		cred, cErr := unix.ParseUnixCredentials(&msgs[0])
		if cErr != nil {
			opErr = cErr
			return true
		}
		ucred = cred
		return true
	})
	if ctrlErr != nil {
		return Identity{}, muerrors.NewSocketError("fallback-auth", ctrlErr)
	}
	if opErr != nil {
		return Identity{}, muerrors.NewSocketError("fallback-auth", opErr)
	}
	return Identity{UID: ucred.Uid, GID: ucred.Gid}, nil
}
