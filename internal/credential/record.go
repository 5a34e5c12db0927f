// Package credential implements the MUNGE credential codec: encoding a
// Record into the opaque "MUNGE:...:" string form, and decoding it back
// with MAC verification, decryption, replay-suppression, and temporal
// and identity-restriction checks, in that order, so no later check can
// run against tampered or unauthenticated bytes.
//
package credential

import (
	"time"

	"github.com/yuyake44/munge/internal/crypto"
)

// Record is the decoded representation of a credential: everything the
// encoder was asked to seal, plus a caller-supplied opaque payload.
type Record struct {
	Cipher         crypto.Cipher
	MAC            crypto.MAC
	Zip            crypto.Zip
	Realm          string
	UID            uint32
	GID            uint32
	EncodeTime     time.Time
	TTL            time.Duration
	UIDRestriction int64 // -1 means unrestricted
	GIDRestriction int64 // -1 means unrestricted
	Payload        []byte
}

// NoRestriction is the sentinel value for UIDRestriction/GIDRestriction
// meaning "no restriction beyond the encoding identity".
const NoRestriction int64 = -1

// Status is the outcome of a Decode call, a restriction of errors.Kind
// to the values a credential decode can actually produce.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidCred
	StatusReplayedCred
	StatusExpiredCred
	StatusRewoundCred
	StatusUIDMismatch
	StatusGIDMismatch
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidCred:
		return "invalid credential"
	case StatusReplayedCred:
		return "replayed credential"
	case StatusExpiredCred:
		return "expired credential"
	case StatusRewoundCred:
		return "rewound credential"
	case StatusUIDMismatch:
		return "uid mismatch"
	case StatusGIDMismatch:
		return "gid mismatch"
	default:
		return "unknown status"
	}
}
