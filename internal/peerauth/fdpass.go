package peerauth

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/yuyake44/munge/internal/crypto"
	"github.com/yuyake44/munge/internal/defs"
	muerrors "github.com/yuyake44/munge/internal/errors"
)

// FDPass is the file-descriptor-passing handshake, the portable
// authentication path for socket types and platforms where the kernel
// offers no peer-credential query at all.
//
// The server picks two random filenames: a FIFO in a directory only it
// can write (ServerDir), and a regular file in a world-writable sticky
// directory (ClientDir). It sends both paths to the client; the client
// creates the regular file, opens the FIFO for writing, and passes the
// open descriptor of its file back over the socket. fstat of the
// received descriptor yields st_uid/st_gid stamped by the kernel at
// file creation, which the client cannot forge.
type FDPass struct {
	ServerDir string
	ClientDir string
}

// DefaultFDPass uses the stock auth directories.
func DefaultFDPass() FDPass {
	return FDPass{ServerDir: defs.AuthServerDir, ClientDir: defs.AuthClientDir}
}

func randomName(dir string) (string, error) {
	b, err := crypto.RandomBytes(defs.AuthRndBytes)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".munge-auth-"+hex.EncodeToString(b)), nil
}

// Authenticate runs the server side of the handshake on conn and
// returns the peer's identity. Both random-named artifacts are
// unlinked before returning, on success and failure alike.
func (a FDPass) Authenticate(conn *net.UnixConn) (Identity, error) {
	serverPath, err := randomName(a.ServerDir)
	if err != nil {
		return Identity{}, muerrors.NewSocketError("auth-rnd", err)
	}
	clientPath, err := randomName(a.ClientDir)
	if err != nil {
		return Identity{}, muerrors.NewSocketError("auth-rnd", err)
	}

	if err := unix.Mkfifo(serverPath, 0o600); err != nil {
		return Identity{}, muerrors.NewSocketError("auth-mkfifo", err)
	}
	defer os.Remove(serverPath)
	defer os.Remove(clientPath)

	// Hold the FIFO's read end open so the client's open-for-write
	// doesn't block forever; a process that cannot open it never gets
	// past this step of the handshake.
	fifo, err := os.OpenFile(serverPath, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return Identity{}, muerrors.NewSocketError("auth-fifo-open", err)
	}
	defer fifo.Close()

	if err := writeAuthPath(conn, serverPath); err != nil {
		return Identity{}, err
	}
	if err := writeAuthPath(conn, clientPath); err != nil {
		return Identity{}, err
	}

	gotPath, fd, err := recvAuthFD(conn)
	if err != nil {
		return Identity{}, err
	}
	defer unix.Close(fd)

	if gotPath != clientPath {
		return Identity{}, muerrors.NewSocketError("auth-verify", fmt.Errorf("peer returned unexpected path"))
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Identity{}, muerrors.NewSocketError("auth-fstat", err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return Identity{}, muerrors.NewSocketError("auth-verify", fmt.Errorf("peer descriptor is not a regular file"))
	}

	// The descriptor must reference the file actually at clientPath,
	// not a same-named file swapped in elsewhere.
	var onDisk unix.Stat_t
	if err := unix.Lstat(clientPath, &onDisk); err != nil {
		return Identity{}, muerrors.NewSocketError("auth-verify", err)
	}
	if onDisk.Dev != st.Dev || onDisk.Ino != st.Ino {
		return Identity{}, muerrors.NewSocketError("auth-verify", fmt.Errorf("peer descriptor does not match created file"))
	}

	return Identity{UID: st.Uid, GID: st.Gid}, nil
}

// Respond runs the client side of the handshake on conn: create the
// file the server named, open the server's FIFO for writing, and pass
// the file's descriptor back.
func Respond(conn *net.UnixConn) error {
	serverPath, err := readAuthPath(conn)
	if err != nil {
		return err
	}
	clientPath, err := readAuthPath(conn)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(clientPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return muerrors.NewSocketError("auth-create", err)
	}
	defer f.Close()

	fifo, err := os.OpenFile(serverPath, os.O_WRONLY, 0)
	if err != nil {
		return muerrors.NewSocketError("auth-fifo-open", err)
	}
	defer fifo.Close()

	return sendAuthFD(conn, clientPath, int(f.Fd()))
}

func writeAuthPath(conn *net.UnixConn, path string) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(path)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return muerrors.NewSocketError("auth-send-path", err)
	}
	if _, err := conn.Write([]byte(path)); err != nil {
		return muerrors.NewSocketError("auth-send-path", err)
	}
	return nil
}

func readAuthPath(conn *net.UnixConn) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return "", muerrors.NewSocketError("auth-read-path", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > unix.PathMax {
		return "", muerrors.NewSocketError("auth-read-path", fmt.Errorf("implausible path length %d", n))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", muerrors.NewSocketError("auth-read-path", err)
	}
	return string(buf), nil
}

func sendAuthFD(conn *net.UnixConn, path string, fd int) error {
	msg := make([]byte, 4+len(path))
	binary.BigEndian.PutUint32(msg[:4], uint32(len(path)))
	copy(msg[4:], path)
	rights := unix.UnixRights(fd)
	if _, _, err := conn.WriteMsgUnix(msg, rights, nil); err != nil {
		return muerrors.NewSocketError("auth-send-fd", err)
	}
	return nil
}

func recvAuthFD(conn *net.UnixConn) (string, int, error) {
	buf := make([]byte, 4+unix.PathMax)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return "", -1, muerrors.NewSocketError("auth-recv-fd", err)
	}
	if n < 4 {
		return "", -1, muerrors.NewSocketError("auth-recv-fd", fmt.Errorf("short auth message"))
	}
	pathLen := binary.BigEndian.Uint32(buf[:4])
	if int(pathLen) != n-4 {
		return "", -1, muerrors.NewSocketError("auth-recv-fd", fmt.Errorf("inconsistent auth message length"))
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil || len(msgs) == 0 {
		return "", -1, muerrors.NewSocketError("auth-recv-fd", fmt.Errorf("no ancillary data from peer"))
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil || len(fds) != 1 {
		return "", -1, muerrors.NewSocketError("auth-recv-fd", fmt.Errorf("expected exactly one descriptor from peer"))
	}
	return string(buf[4:n]), fds[0], nil
}
