// Package replay implements the credential replay-suppression cache: a
// bounded, time-indexed set of fingerprints a credential's MAC-verified
// bytes hash to, guarded by one lock covering both probe-and-insert and
// purge.
//
// Insertions are provisional until confirmed: a decode that fails a
// later validation stage rescinds its own insertion, and a client that
// resends a request it never saw the reply to (its retry bit set)
// displaces the earlier insertion instead of being permanently flagged
// as a replay.
package replay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

// MaxEntries is the soft capacity ceiling: once reached, ProbeAndInsert
// refuses new entries with ErrTemporary rather than evicting live ones.
const MaxEntries = 1 << 20

type entry struct {
	expiry    time.Time
	token     string
	confirmed bool
}

// Cache is a replay-suppression cache of decoded credential
// fingerprints, provisional or confirmed, kept until they expire.
type Cache struct {
	mu      sync.Mutex
	entries map[[32]byte]*entry
	tokens  map[string]*entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[[32]byte]*entry),
		tokens:  make(map[string]*entry),
	}
}

// ProbeAndInsert atomically checks whether fingerprint has already been
// seen and, if not, inserts it with expiry and issues a transaction
// token. A fingerprint already present — confirmed or still
// provisional — is reported as replayed; provisional entries are
// treated the same as confirmed ones because a second concurrent
// decode of the same credential is exactly the replay this cache
// exists to catch.
//
// retry implements the client retry policy: a client that timed out
// waiting for a reply resends the same credential with its retry bit
// set, and the daemon honors it by displacing the earlier insertion
// rather than flagging the client's own resend as a replay. The old
// entry's token is invalidated; the caller gets a fresh one.
func (c *Cache) ProbeAndInsert(fingerprint [32]byte, expiry time.Time, retry bool) (replayed bool, token string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[fingerprint]; ok {
		if !retry {
			return true, "", nil
		}
		delete(c.tokens, old.token)
		delete(c.entries, fingerprint)
	}
	if len(c.entries) >= MaxEntries {
		return false, "", muerrors.ErrTemporary
	}

	tok := uuid.NewString()
	e := &entry{expiry: expiry, token: tok}
	c.entries[fingerprint] = e
	c.tokens[tok] = e
	return false, tok, nil
}

// Confirm finalizes a provisional insertion: the credential was fully
// validated and its decode result was delivered to the caller, so the
// fingerprint now stays in the cache until it expires, full stop — it
// can no longer be rescinded.
func (c *Cache) Confirm(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.tokens[token]; ok {
		e.confirmed = true
	}
}

// Rescind removes a provisional insertion, as if it had never been
// probed. Used when a later validation stage (temporal or identity
// check, or decompression) rejects the credential. A client's own retry
// does not go through Rescind; ProbeAndInsert displaces the old entry.
func (c *Cache) Rescind(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.tokens[token]
	if !ok || e.confirmed {
		return
	}
	delete(c.tokens, token)
	for fp, candidate := range c.entries {
		if candidate == e {
			delete(c.entries, fp)
			break
		}
	}
}

// Purge removes expired entries, in bounded chunks of at most max
// deletions per call, to cap worst-case purge latency under a large
// cache. Call periodically from a time.Ticker at defs.ReplayPurgeTimer.
func (c *Cache) Purge(now time.Time, max int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, e := range c.entries {
		if removed >= max {
			break
		}
		if now.After(e.expiry) {
			delete(c.entries, fp)
			delete(c.tokens, e.token)
			removed++
		}
	}
	return removed
}

// Len reports the current number of tracked fingerprints, for metrics
// and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
