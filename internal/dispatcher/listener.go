package dispatcher

import (
	"errors"
	"net"
	"os"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// Bind listens on a UNIX domain socket at path, removing a stale socket
// file first if nothing is currently listening on it. A stale path is
// detected by attempting to connect: success means a live daemon owns
// it (bind must fail, not steal the socket out from under it); failure
// means the path is a leftover from an unclean shutdown and is safe to
// remove.
func Bind(path string) (*net.UnixListener, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, muerrors.NewSocketError("resolve-addr", err)
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, muerrors.NewSocketError("listen", err)
	}
	return l, nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return muerrors.NewSocketError("stat-socket", err)
	}

	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return muerrors.NewSocketError("bind", errors.New("socket already in use by a running daemon"))
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return muerrors.NewSocketError("remove-stale-socket", err)
	}
	return nil
}
