// Package daemon owns munged's process-wide state: the symmetric key,
// the replay cache, the group-membership snapshot, and the worker pool.
// One Daemon value is passed explicitly to the pieces that need it, not
// a set of ambient globals.
package daemon

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/yuyake44/munge/internal/config"
	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/crypto"
	"github.com/yuyake44/munge/internal/defs"
	"github.com/yuyake44/munge/internal/dispatcher"
	muerrors "github.com/yuyake44/munge/internal/errors"
	"github.com/yuyake44/munge/internal/group"
	"github.com/yuyake44/munge/internal/log"
	"github.com/yuyake44/munge/internal/peerauth"
	"github.com/yuyake44/munge/internal/replay"
)

// Daemon is the owned process-wide state of munged. Zero value is not
// usable; construct via New.
type Daemon struct {
	cfg *config.Config

	key []byte

	replay  *replay.Cache
	groups  *group.Manager
	pool    *dispatcher.Pool
	listen  *net.UnixListener
	pidLock *flock.Flock

	stopReplay chan struct{}
}

// New constructs a Daemon from cfg: ensures the PRNG seed file, loads
// and validates the key file, builds the initial group snapshot, and
// creates the replay cache. It does not yet bind the socket, write the
// pidfile, or start the worker pool — call Start for that.
func New(cfg *config.Config) (*Daemon, error) {
	if err := ensureSeedFile(defs.DaemonRandomSeed); err != nil {
		log.Warn("could not persist prng seed file, continuing with crypto/rand only", log.Err(err))
	}

	key, err := loadSecretKey(cfg.Key.File)
	if err != nil {
		return nil, err
	}

	groups, err := group.NewManager(cfg.Group.PasswdFile, cfg.Group.GroupFile)
	if err != nil {
		crypto.SecureZero(key)
		return nil, fmt.Errorf("build initial group snapshot: %w", err)
	}

	return &Daemon{
		cfg:        cfg,
		key:        key,
		replay:     replay.New(),
		groups:     groups,
		stopReplay: make(chan struct{}),
	}, nil
}

// loadSecretKey reads the daemon's shared key, refusing a key file
// that is readable by group or other.
func loadSecretKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, muerrors.NewSocketError("stat-key", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, muerrors.NewSocketError("key-permissions",
			fmt.Errorf("%s must not be group- or world-readable (mode %#o)", path, info.Mode().Perm()))
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, muerrors.NewSocketError("read-key", err)
	}
	if len(key) == 0 {
		return nil, muerrors.NewSocketError("read-key", fmt.Errorf("%s is empty", path))
	}
	return key, nil
}

// ensureSeedFile makes sure a PRNG seed file exists, creating one from
// crypto/rand if not. The seed itself is never consulted by this
// implementation — crypto/rand.Reader is always the actual entropy
// source — but downstream tooling may inspect its presence/mtime.
func ensureSeedFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	seed := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return err
	}
	return os.WriteFile(path, seed, 0o600)
}

// Start binds the socket (stale-path handling included), writes the
// pidfile under an exclusive flock, spawns the replay-purge and
// group-refresh loops, and starts the worker pool. It blocks until the
// accept loop exits (normally via Stop).
func (d *Daemon) Start() error {
	lock := flock.New(d.cfg.Runtime.Pidfile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return muerrors.NewSocketError("pidfile-lock", err)
	}
	if !locked {
		return muerrors.NewSocketError("pidfile-lock", fmt.Errorf("another munged instance holds %s", d.cfg.Runtime.Pidfile))
	}
	d.pidLock = lock

	if err := os.WriteFile(d.cfg.Runtime.Pidfile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		lock.Unlock()
		return muerrors.NewSocketError("write-pidfile", err)
	}

	l, err := dispatcher.Bind(d.cfg.Socket.Path)
	if err != nil {
		d.cleanupPidfile()
		return err
	}
	d.listen = l

	go d.groups.Run()
	go d.purgeLoop()

	d.pool = dispatcher.NewPool(d.cfg.Runtime.NumThreads, 10*time.Second, d)
	return d.pool.Serve(l)
}

func (d *Daemon) purgeLoop() {
	ticker := time.NewTicker(d.cfg.Replay.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopReplay:
			return
		case <-ticker.C:
			d.replay.Purge(time.Now(), 4096)
		}
	}
}

func (d *Daemon) cleanupPidfile() {
	os.Remove(d.cfg.Runtime.Pidfile)
	if d.pidLock != nil {
		d.pidLock.Unlock()
		os.Remove(d.cfg.Runtime.Pidfile + ".lock")
	}
}

// Stop halts the worker pool (bounded grace wait), unlinks the socket,
// removes the pidfile, stops the group and replay background loops, and
// zeroizes the key.
func (d *Daemon) Stop(grace time.Duration) {
	if d.pool != nil {
		d.pool.Stop(grace)
	}
	if d.listen != nil {
		d.listen.Close()
		os.Remove(d.cfg.Socket.Path)
	}
	close(d.stopReplay)
	if d.groups != nil {
		d.groups.Stop()
	}
	d.cleanupPidfile()
	crypto.SecureZero(d.key)
}

// WaitForSignal blocks until SIGTERM or SIGINT, then calls Stop with a
// 5 second grace window.
func (d *Daemon) WaitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("received shutdown signal")
	d.Stop(5 * time.Second)
}

// Encode implements dispatcher.Handler, sealing a fresh credential for
// the authenticated peer. UID/GID always come from peer, never from the
// request body.
func (d *Daemon) Encode(peer peerauth.Identity, req dispatcher.EncodeReq) dispatcher.EncodeResp {
	ttl := req.TTL
	if ttl == 0 {
		ttl = d.cfg.Runtime.DefaultTTL
	}
	if ttl > d.cfg.Runtime.MaxTTL {
		ttl = d.cfg.Runtime.MaxTTL
	}

	rec := &credential.Record{
		Cipher:         req.Cipher,
		MAC:            req.MAC,
		Zip:            req.Zip,
		Realm:          req.Realm,
		UID:            peer.UID,
		GID:            peer.GID,
		TTL:            ttl,
		UIDRestriction: req.UIDRestriction,
		GIDRestriction: req.GIDRestriction,
		Payload:        req.Payload,
	}

	cred, err := credential.Encode(rec, d.key, credential.EncodeOptions{})
	if err != nil {
		return dispatcher.EncodeResp{Status: credential.StatusInvalidCred, ErrMsg: err.Error()}
	}
	return dispatcher.EncodeResp{Status: credential.StatusSuccess, Credential: cred}
}

// Decode implements dispatcher.Handler, validating and unsealing a
// credential on behalf of the authenticated peer. The request's retry
// bit is honored only when the daemon's replay-retry policy permits it.
func (d *Daemon) Decode(peer peerauth.Identity, req dispatcher.DecodeReq) dispatcher.DecodeResp {
	snapshot := d.groups.Snapshot()
	rec, status, err := credential.Decode(req.Credential, d.key, credential.DecodeOptions{
		Replay:            d.replay,
		CallerUID:         int64(peer.UID),
		CallerGID:         int64(peer.GID),
		RetryPermitted:    req.Retry && defs.ReplayRetryFlag,
		GroupMember:       snapshot.IsMember,
		AllowRootOverride: defs.AuthRootAllowFlag,
	})
	if err != nil || status != credential.StatusSuccess {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		return dispatcher.DecodeResp{Status: status, ErrMsg: msg}
	}

	return dispatcher.DecodeResp{
		Status:         credential.StatusSuccess,
		UID:            rec.UID,
		GID:            rec.GID,
		EncodeTime:     rec.EncodeTime,
		TTL:            rec.TTL,
		UIDRestriction: rec.UIDRestriction,
		GIDRestriction: rec.GIDRestriction,
		Payload:        rec.Payload,
	}
}
