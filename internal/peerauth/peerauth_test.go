//go:build linux

package peerauth

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpairConn(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	f1 := os.NewFile(uintptr(fds[0]), "sp0")
	f2 := os.NewFile(uintptr(fds[1]), "sp1")
	c1, err := net.FileConn(f1)
	require.NoError(t, err)
	c2, err := net.FileConn(f2)
	require.NoError(t, err)
	f1.Close()
	f2.Close()
	return c1.(*net.UnixConn), c2.(*net.UnixConn)
}

func TestFromConnReadsOwnCredentials(t *testing.T) {
	c1, c2 := socketpairConn(t)
	defer c1.Close()
	defer c2.Close()

	id, err := FromConn(c1)
	require.NoError(t, err)
	require.EqualValues(t, os.Getuid(), id.UID)
	require.EqualValues(t, os.Getgid(), id.GID)
}

func TestFromConnFallbackReadsOwnCredentials(t *testing.T) {
	c1, c2 := socketpairConn(t)
	defer c1.Close()

	go func() {
		defer c2.Close()
		_, _ = c2.Write([]byte{0})
	}()

	id, err := FromConnFallback(c1)
	require.NoError(t, err)
	require.EqualValues(t, os.Getuid(), id.UID)
	require.EqualValues(t, os.Getgid(), id.GID)
}

func TestFDPassHandshake(t *testing.T) {
	c1, c2 := socketpairConn(t)
	defer c1.Close()
	defer c2.Close()

	auth := FDPass{ServerDir: t.TempDir(), ClientDir: t.TempDir()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- Respond(c2)
	}()

	id, err := auth.Authenticate(c1)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.EqualValues(t, os.Getuid(), id.UID)
	require.EqualValues(t, os.Getgid(), id.GID)

	// Both random-named artifacts must be gone.
	for _, dir := range []string{auth.ServerDir, auth.ClientDir} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, entries)
	}
}
