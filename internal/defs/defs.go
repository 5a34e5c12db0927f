// Package defs carries the compile-time policy defaults munged and
// munge ship with. Everything here is an overridable default, not a
// protocol constant: the wire format itself is defined by
// internal/credential.
package defs

import "time"

// Credential string framing.
const (
	CredPrefix = "MUNGE:"
	CredSuffix = ":"
)

// Salt and length bounds.
const (
	CredSaltLen  = 8
	MaxBlockLen  = 16
	MaxKeyLen    = 32
	MaxMDLen     = 32
	MaxReqLen    = 1 << 20 // MUNGE_MAXIMUM_REQ_LEN
	AuthRndBytes = 16
)

// Default and maximum TTL, in seconds.
const (
	DefaultTTL = 300
	MaxTTL     = 3600
)

// CredSkew is the clock-skew tolerance applied to temporal checks: a
// credential is rewound only if its encode time is more than CredSkew in
// the future, and expired only once encode_time + ttl + CredSkew has
// passed. Replay-cache entries live until the same skewed expiry.
const CredSkew = 60 * time.Second

// Group-file re-parse behavior.
const (
	GroupStatFlag   = true
	GroupParseTimer = 900 * time.Second
)

// Replay cache behavior.
const (
	ReplayRetryFlag  = true
	ReplayPurgeTimer = 60 * time.Second
)

// Socket behavior.
const (
	SocketBacklog         = 256
	SocketName            = "/var/run/munge/munge.socket.2"
	SocketConnectAttempts = 5
	SocketXferAttempts    = 5
	SocketXferUsleep      = 10 * time.Millisecond
)

// Threads is the default dispatcher worker pool size.
const Threads = 2

// Auth fd-passing fallback defaults.
const (
	AuthRootAllowFlag = false
	AuthServerDir     = "/var/lib/munge"
	AuthClientDir     = "/tmp"
)

// Daemon file locations.
const (
	DaemonLogfile    = "/var/log/munge/munged.log"
	DaemonPidfile    = "/var/run/munge/munged.pid"
	DaemonRandomSeed = "/var/lib/munge/munge.seed"
	DaemonSecretKey  = "/etc/munge/munge.key"
)
