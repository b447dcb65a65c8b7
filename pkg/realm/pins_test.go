package realm

import (
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/logger"
	"github.com/adfharrison1/livedb/pkg/storage"
)

func pinnedVersions(store *storage.Store) int {
	return store.GetMemoryStats()["pinned_versions"].(int)
}

func TestRealm_ApplyDropsStaleTasks(t *testing.T) {
	r, store := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a", "price": 1})
	res := findAll(t, r, nil)
	require.True(t, res.IsLoaded())

	snap, err := store.OpenSnapshot()
	require.NoError(t, err)
	stale := domain.ResultSet{Table: "items", Version: res.set.Version}
	assert.False(t, r.apply(task{results: res, set: stale, snap: snap}))
	assert.True(t, snap.Released())
	n, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other := findAll(t, r, nil)
	require.NoError(t, other.Invalidate())
	snap, err = store.OpenSnapshot()
	require.NoError(t, err)
	newer := domain.ResultSet{Table: "items", Version: res.set.Version + 1}
	assert.False(t, r.apply(task{results: other, set: newer, snap: snap}))
	assert.True(t, snap.Released())
}

func TestRealm_SnapshotsReleased(t *testing.T) {
	r, store := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a", "price": 1})
	res := findAll(t, r, nil)
	held := res.snap
	require.NotNil(t, held)

	commitExternally(t, store, domain.Record{"name": "b", "price": 2})
	version, err := store.CurrentVersion()
	require.NoError(t, err)
	tickUntil(t, r, func() bool { return res.set.Version == version })

	assert.True(t, held.Released())
	assert.Equal(t, 1, pinnedVersions(store))

	held = res.snap
	require.NoError(t, res.Invalidate())
	assert.Nil(t, res.snap)
	assert.Equal(t, 1, pinnedVersions(store), "realm keeps its own snapshot")

	live := findAll(t, r, nil)
	require.NotNil(t, live.snap)
	require.NoError(t, r.Close())
	assert.True(t, held.Released())
	assert.Nil(t, live.snap)
	assert.Equal(t, 0, pinnedVersions(store))
}

func TestRealm_WriteScopeReleasesSnapshot(t *testing.T) {
	r, store := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a", "price": 1}, domain.Record{"name": "b", "price": 2})
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.EqualTo("name", "a") })
	held := res.snap

	commitExternally(t, store, domain.Record{"name": "c", "price": 3})
	require.NoError(t, r.BeginWrite())
	deleted, err := res.DeleteAllFromRealm()
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Nil(t, res.snap)
	assert.True(t, held.Released())

	_, err = r.CommitWrite()
	require.NoError(t, err)
	assert.NotNil(t, res.snap)
	n, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// stale background evaluations are dropped and unpinned on Tick
	tickUntil(t, r, func() bool { return pinnedVersions(store) == 1 })
	assert.Equal(t, StateLoaded, res.State())
}

func TestRealm_RejectedSubmitRetriedOnTick(t *testing.T) {
	store, err := storage.Open(storage.WithLogger(logger.Discard()), storage.WithGCInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	r, err := Open(store, newTestRegistry(t), WithLogger(logger.Discard()), WithPool(pool))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	seed(t, r, domain.Record{"name": "a", "price": 1}, domain.Record{"name": "b", "price": 2})

	block := make(chan struct{})
	started := make(chan struct{})
	require.Eventually(t, func() bool {
		return pool.Submit(func() {
			close(started)
			<-block
		}) == nil
	}, time.Second, time.Millisecond)
	<-started

	q, err := r.Where("items")
	require.NoError(t, err)
	res, err := r.FindAllAsync(q)
	require.NoError(t, err)

	r.sched.mu.Lock()
	retry := r.sched.retry
	r.sched.mu.Unlock()
	assert.True(t, retry)

	_, err = r.Tick()
	require.NoError(t, err)
	assert.Equal(t, StateLoading, res.State())

	close(block)
	tickUntil(t, r, res.IsLoaded)
	n, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
