// Package client is the socket-transport half of the munge CLI:
// connect to munged's local socket, send one framed request, read one
// framed reply, retrying a bounded number of times with a short linear
// backoff (defs.SocketConnectAttempts / defs.SocketXferAttempts).
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/defs"
	"github.com/yuyake44/munge/internal/dispatcher"
	muerrors "github.com/yuyake44/munge/internal/errors"
	"github.com/yuyake44/munge/internal/peerauth"
)

// SocketEnvVar is the environment variable that overrides the default
// socket path.
const SocketEnvVar = "MUNGE_SOCKET"

// DefaultSocketPath resolves the socket path: explicit override, then
// MUNGE_SOCKET, then defs.SocketName.
func DefaultSocketPath(override string) string {
	if override != "" {
		return override
	}
	if v := os.Getenv(SocketEnvVar); v != "" {
		return v
	}
	return defs.SocketName
}

// Client is a thin, stateless wrapper around a socket path; each call
// opens a fresh connection, exactly as munged's "one request per
// connection" worker model expects.
type Client struct {
	SocketPath string
}

// New builds a Client for the given socket path (already resolved via
// DefaultSocketPath).
func New(socketPath string) *Client {
	return &Client{SocketPath: socketPath}
}

func (c *Client) dial() (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < defs.SocketConnectAttempts; attempt++ {
		conn, err := net.Dial("unix", c.SocketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(defs.SocketXferUsleep * time.Duration(attempt+1))
	}
	return nil, muerrors.NewSocketError("dial", fmt.Errorf("could not connect to %s after %d attempts: %w", c.SocketPath, defs.SocketConnectAttempts, lastErr))
}

// transact sends one frame and reads one reply, retrying the full
// round trip (not just the connect) up to defs.SocketXferAttempts times
// — a fresh connection and a fresh attempt each time, since munged
// closes the connection after one request regardless of outcome.
func (c *Client) transact(req dispatcher.Frame) (dispatcher.Frame, error) {
	var lastErr error
	for attempt := 0; attempt < defs.SocketXferAttempts; attempt++ {
		reply, err := c.transactOnce(req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		time.Sleep(defs.SocketXferUsleep * time.Duration(attempt+1))
	}
	return dispatcher.Frame{}, lastErr
}

func (c *Client) transactOnce(req dispatcher.Frame) (dispatcher.Frame, error) {
	conn, err := c.dial()
	if err != nil {
		return dispatcher.Frame{}, err
	}
	defer conn.Close()

	// On platforms where the daemon can't query peer credentials from
	// the kernel, it runs an authentication handshake before reading
	// the request; answer it first.
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := peerauth.RespondIfNeeded(uc); err != nil {
			return dispatcher.Frame{}, err
		}
	}

	if err := dispatcher.WriteFrame(conn, req); err != nil {
		return dispatcher.Frame{}, err
	}
	return dispatcher.ReadFrame(conn)
}

// Encode asks munged to seal req into a credential string.
func (c *Client) Encode(req dispatcher.EncodeReq) (string, error) {
	reply, err := c.transact(dispatcher.Frame{Type: dispatcher.EncodeRequest, Body: dispatcher.MarshalEncodeReq(req)})
	if err != nil {
		return "", err
	}
	if reply.Type != dispatcher.EncodeResponse {
		reply.Release()
		return "", fmt.Errorf("unexpected reply type %s", reply.Type)
	}
	resp, err := dispatcher.UnmarshalEncodeResp(reply.Body)
	reply.Release()
	if err != nil {
		return "", err
	}
	if resp.Status != credential.StatusSuccess {
		return "", fmt.Errorf("%s: %s", resp.Status, resp.ErrMsg)
	}
	return resp.Credential, nil
}

// Decode asks munged to validate and unseal a credential string. Unlike
// Encode, each resend after a failed round trip sets the request's retry
// bit, so the daemon can tell our own resend apart from a replayed
// credential.
func (c *Client) Decode(cred string) (dispatcher.DecodeResp, error) {
	var reply dispatcher.Frame
	var err error
	for attempt := 0; attempt < defs.SocketXferAttempts; attempt++ {
		req := dispatcher.DecodeReq{Credential: cred, Retry: attempt > 0}
		reply, err = c.transactOnce(dispatcher.Frame{Type: dispatcher.DecodeRequest, Body: dispatcher.MarshalDecodeReq(req)})
		if err == nil {
			break
		}
		time.Sleep(defs.SocketXferUsleep * time.Duration(attempt+1))
	}
	if err != nil {
		return dispatcher.DecodeResp{}, err
	}
	if reply.Type != dispatcher.DecodeResponse {
		reply.Release()
		return dispatcher.DecodeResp{}, fmt.Errorf("unexpected reply type %s", reply.Type)
	}
	resp, err := dispatcher.UnmarshalDecodeResp(reply.Body)
	reply.Release()
	if err != nil {
		return dispatcher.DecodeResp{}, err
	}
	if resp.Status != credential.StatusSuccess {
		return resp, fmt.Errorf("%s: %s", resp.Status, resp.ErrMsg)
	}
	return resp, nil
}
