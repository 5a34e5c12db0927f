// Package peerauth identifies the UID/GID of the process on the other
// end of a connected UNIX domain socket. The primary path reads
// SO_PEERCRED directly off the socket (Linux), with no round trip
// required. The fallback, for platforms or socket types where
// SO_PEERCRED isn't available, runs a file-descriptor-passing handshake
// and takes the identity from fstat of the received descriptor.
package peerauth

import "fmt"

// Identity is the authenticated UID/GID of a connected peer.
type Identity struct {
	UID uint32
	GID uint32
}

func (id Identity) String() string {
	return fmt.Sprintf("uid=%d gid=%d", id.UID, id.GID)
}
