package replay

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	muerrors "github.com/yuyake44/munge/internal/errors"
)

func fp(i int) [32]byte {
	var f [32]byte
	binary.BigEndian.PutUint32(f[:4], uint32(i))
	return f
}

func TestProbeAndInsertDetectsReplay(t *testing.T) {
	c := New()
	expiry := time.Now().Add(time.Minute)

	replayed, token, err := c.ProbeAndInsert(fp(1), expiry, false)
	require.NoError(t, err)
	require.False(t, replayed)
	require.NotEmpty(t, token)

	replayed, _, err = c.ProbeAndInsert(fp(1), expiry, false)
	require.NoError(t, err)
	require.True(t, replayed)
}

func TestRescindAllowsRetry(t *testing.T) {
	c := New()
	expiry := time.Now().Add(time.Minute)

	_, token, err := c.ProbeAndInsert(fp(2), expiry, false)
	require.NoError(t, err)

	c.Rescind(token)

	replayed, _, err := c.ProbeAndInsert(fp(2), expiry, false)
	require.NoError(t, err)
	require.False(t, replayed, "rescinded entry should not count as a replay")
}

func TestRetryDisplacesPriorInsertion(t *testing.T) {
	c := New()
	expiry := time.Now().Add(time.Minute)

	_, oldToken, err := c.ProbeAndInsert(fp(7), expiry, false)
	require.NoError(t, err)
	c.Confirm(oldToken)

	replayed, newToken, err := c.ProbeAndInsert(fp(7), expiry, true)
	require.NoError(t, err)
	require.False(t, replayed, "a retry must not be flagged as a replay")
	require.NotEqual(t, oldToken, newToken)

	// The displaced entry's token must be dead.
	c.Rescind(oldToken)
	replayed, _, err = c.ProbeAndInsert(fp(7), expiry, false)
	require.NoError(t, err)
	require.True(t, replayed)
}

func TestConfirmPreventsRescind(t *testing.T) {
	c := New()
	expiry := time.Now().Add(time.Minute)

	_, token, err := c.ProbeAndInsert(fp(3), expiry, false)
	require.NoError(t, err)

	c.Confirm(token)
	c.Rescind(token) // should be a no-op once confirmed

	replayed, _, err := c.ProbeAndInsert(fp(3), expiry, false)
	require.NoError(t, err)
	require.True(t, replayed)
}

func TestPurgeRemovesExpiredEntriesInChunks(t *testing.T) {
	c := New()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	for i := 0; i < 10; i++ {
		_, _, err := c.ProbeAndInsert(fp(i), past, false)
		require.NoError(t, err)
	}
	_, _, err := c.ProbeAndInsert(fp(200), future, false)
	require.NoError(t, err)

	removed := c.Purge(time.Now(), 3)
	require.Equal(t, 3, removed)
	require.Equal(t, 8, c.Len())

	removed = c.Purge(time.Now(), 100)
	require.Equal(t, 7, removed)
	require.Equal(t, 1, c.Len())
}

func TestProbeAndInsertCapacityCeiling(t *testing.T) {
	c := New()
	expiry := time.Now().Add(time.Minute)

	// Directly inflate the map to simulate being at capacity, rather
	// than actually inserting a million entries.
	for i := 0; i < MaxEntries; i++ {
		c.entries[fp(i)] = &entry{expiry: expiry}
	}

	_, _, err := c.ProbeAndInsert(fp(MaxEntries+1), expiry, false)
	require.ErrorIs(t, err, muerrors.ErrTemporary)
}

func TestConcurrentProbesYieldOneFresh(t *testing.T) {
	c := New()
	expiry := time.Now().Add(time.Minute)

	const workers = 16
	var wg sync.WaitGroup
	var fresh atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replayed, _, err := c.ProbeAndInsert(fp(99), expiry, false)
			if err != nil {
				t.Error(err)
				return
			}
			if !replayed {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, fresh.Load(), "exactly one concurrent probe may win")
	require.Equal(t, 1, c.Len())
}
