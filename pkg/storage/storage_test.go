package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/logger"
)

func newTestStore(t *testing.T, options ...StorageOption) *Store {
	t.Helper()
	options = append([]StorageOption{WithLogger(logger.Discard()), WithGCInterval(0)}, options...)
	s, err := Open(options...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertAll(t *testing.T, s *Store, table string, recs ...domain.Record) []domain.RecordID {
	t.Helper()
	tx, err := s.BeginWrite()
	require.NoError(t, err)
	var ids []domain.RecordID
	for _, rec := range recs {
		id, err := tx.Insert(table, rec)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err = tx.Commit()
	require.NoError(t, err)
	return ids
}

func scanIDs(t *testing.T, v domain.View, table string) []domain.RecordID {
	t.Helper()
	var ids []domain.RecordID
	require.NoError(t, v.Scan(table, func(id domain.RecordID, _ domain.Record) bool {
		ids = append(ids, id)
		return true
	}))
	return ids
}

func TestStore_OpenDefaults(t *testing.T) {
	s := newTestStore(t)

	assert.True(t, s.IsOpen())
	assert.Equal(t, ".", s.dataDir)
	assert.Equal(t, 5*time.Minute, s.saveInterval)
	assert.False(t, s.backgroundSave)

	version, err := s.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
}

func TestStore_CommitCreatesNewVersion(t *testing.T) {
	s := newTestStore(t)

	before, err := s.OpenSnapshot()
	require.NoError(t, err)
	defer before.Release()

	ids := insertAll(t, s, "items", domain.Record{"name": "a"}, domain.Record{"name": "b"})

	after, err := s.OpenSnapshot()
	require.NoError(t, err)
	defer after.Release()

	assert.Equal(t, uint64(0), before.Version())
	assert.Equal(t, uint64(1), after.Version())
	assert.Empty(t, scanIDs(t, before, "items"))
	assert.Equal(t, ids, scanIDs(t, after, "items"))

	rec, ok := after.Get("items", ids[0])
	require.True(t, ok)
	assert.Equal(t, "a", rec["name"])
	assert.Equal(t, string(ids[0]), rec[domain.IDField])
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items", domain.Record{"n": int64(1)}, domain.Record{"n": int64(2)})

	old, err := s.OpenSnapshot()
	require.NoError(t, err)
	defer old.Release()

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Update("items", ids[0], domain.Record{"n": int64(10)}))
	require.NoError(t, tx.Delete("items", ids[1]))
	_, err = tx.Commit()
	require.NoError(t, err)

	rec, ok := old.Get("items", ids[0])
	require.True(t, ok)
	assert.Equal(t, int64(1), rec["n"])
	assert.Equal(t, ids, scanIDs(t, old, "items"))

	latest, err := s.Advance(old)
	require.NoError(t, err)
	defer latest.Release()
	assert.Equal(t, uint64(2), latest.Version())
	rec, ok = latest.Get("items", ids[0])
	require.True(t, ok)
	assert.Equal(t, int64(10), rec["n"])
	assert.Equal(t, ids[:1], scanIDs(t, latest, "items"))
}

func TestStore_AdvanceWithoutNewCommitReturnsSameSnapshot(t *testing.T) {
	s := newTestStore(t)
	insertAll(t, s, "items", domain.Record{"n": int64(1)})

	snap, err := s.OpenSnapshot()
	require.NoError(t, err)

	same, err := s.Advance(snap)
	require.NoError(t, err)
	assert.Same(t, snap, same)

	// Two references are held now
	snap.Release()
	assert.False(t, snap.Released())
	same.Release()
	assert.True(t, snap.Released())

	err = snap.Scan("items", func(domain.RecordID, domain.Record) bool { return true })
	assert.ErrorIs(t, err, domain.ErrIllegalState)
}

func TestStore_InsertionOrderSurvivesUpdates(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items",
		domain.Record{"n": int64(1)},
		domain.Record{"n": int64(2)},
		domain.Record{"n": int64(3)},
	)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Update("items", ids[0], domain.Record{"n": int64(100)}))
	_, err = tx.Commit()
	require.NoError(t, err)

	snap, err := s.OpenSnapshot()
	require.NoError(t, err)
	defer snap.Release()
	assert.Equal(t, ids, scanIDs(t, snap, "items"))
}

func TestStore_ReinsertAfterDeleteMovesToEnd(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items",
		domain.Record{domain.IDField: "a"},
		domain.Record{domain.IDField: "b"},
	)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Delete("items", ids[0]))
	_, err = tx.Commit()
	require.NoError(t, err)

	insertAll(t, s, "items", domain.Record{domain.IDField: "a"})

	snap, err := s.OpenSnapshot()
	require.NoError(t, err)
	defer snap.Release()
	assert.Equal(t, []domain.RecordID{"b", "a"}, scanIDs(t, snap, "items"))
}

func TestWriteTxn_Errors(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items", domain.Record{domain.IDField: "x"})

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Insert("items", domain.Record{domain.IDField: "x"})
	assert.ErrorIs(t, err, domain.ErrIllegalArgument)

	_, err = tx.Insert("", domain.Record{})
	assert.ErrorIs(t, err, domain.ErrIllegalArgument)

	err = tx.Update("items", "missing", domain.Record{"n": 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = tx.Delete("items", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = tx.DeleteMany("items", []domain.RecordID{ids[0], ids[0]})
	assert.ErrorIs(t, err, domain.ErrIllegalArgument)
}

func TestWriteTxn_DeleteManyIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items", domain.Record{}, domain.Record{})

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	err = tx.DeleteMany("items", []domain.RecordID{ids[0], "missing", ids[1]})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, tx.Pending())
	version, err := tx.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	snap, err := s.OpenSnapshot()
	require.NoError(t, err)
	defer snap.Release()
	assert.Equal(t, ids, scanIDs(t, snap, "items"))
}

func TestWriteTxn_ViewSeesOwnWrites(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items", domain.Record{"n": int64(1)}, domain.Record{"n": int64(2)})

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	defer tx.Rollback()

	newID, err := tx.Insert("items", domain.Record{"n": int64(3)})
	require.NoError(t, err)
	require.NoError(t, tx.Delete("items", ids[0]))
	require.NoError(t, tx.Update("items", ids[1], domain.Record{"n": int64(20)}))

	view := tx.View()
	assert.Equal(t, uint64(2), view.Version())
	assert.Equal(t, []domain.RecordID{ids[1], newID}, scanIDs(t, view, "items"))
	rec, ok := view.Get("items", ids[1])
	require.True(t, ok)
	assert.Equal(t, int64(20), rec["n"])
	_, ok = view.Get("items", ids[0])
	assert.False(t, ok)
}

func TestWriteTxn_RollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	_, err = tx.Insert("items", domain.Record{"n": int64(1)})
	require.NoError(t, err)
	tx.Rollback()

	version, err := s.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)

	_, err = tx.Insert("items", domain.Record{})
	assert.ErrorIs(t, err, domain.ErrIllegalState)
}

func TestStore_SubscribersSeeCommits(t *testing.T) {
	s := newTestStore(t)

	var seen []uint64
	cancel := s.Subscribe(func(version uint64) {
		seen = append(seen, version)
	})

	insertAll(t, s, "items", domain.Record{})
	insertAll(t, s, "items", domain.Record{})
	cancel()
	insertAll(t, s, "items", domain.Record{})

	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestStore_ClosedStoreFails(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.OpenSnapshot()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.False(t, s.IsOpen())

	_, err = s.OpenSnapshot()
	assert.True(t, errors.Is(err, domain.ErrConnectionClosed))
	_, err = s.BeginWrite()
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
	_, err = s.Advance(snap)
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
	err = snap.Scan("items", func(domain.RecordID, domain.Record) bool { return true })
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)

	// Closing twice is harmless
	assert.NoError(t, s.Close())
}

func TestStore_GarbageCollectionRespectsPins(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items", domain.Record{"n": int64(1)})

	update := func(n int64) {
		tx, err := s.BeginWrite()
		require.NoError(t, err)
		require.NoError(t, tx.Update("items", ids[0], domain.Record{"n": n}))
		_, err = tx.Commit()
		require.NoError(t, err)
	}
	update(2)
	update(3)

	pinned, err := s.OpenSnapshot()
	require.NoError(t, err)
	update(4)

	// Versions 1 and 2 are older than anything the pin (3) or the head (4) can see
	assert.Equal(t, 2, s.CollectGarbage())
	rec, ok := pinned.Get("items", ids[0])
	require.True(t, ok)
	assert.Equal(t, int64(3), rec["n"])

	pinned.Release()
	assert.Equal(t, 1, s.CollectGarbage())
	assert.Equal(t, 0, s.CollectGarbage())
}

func TestStore_GarbageCollectionDropsDeletedRecords(t *testing.T) {
	s := newTestStore(t)
	ids := insertAll(t, s, "items", domain.Record{}, domain.Record{})

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Delete("items", ids[0]))
	_, err = tx.Commit()
	require.NoError(t, err)

	assert.Equal(t, 2, s.CollectGarbage())
	s.mu.RLock()
	assert.Len(t, s.tables["items"].chains, 1)
	assert.Len(t, s.tables["items"].order, 1)
	s.mu.RUnlock()
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	due := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s1, err := Open(WithLogger(logger.Discard()), WithDataDir(dir), WithCheckpointFile("data"+FileExtension), WithGCInterval(0))
	require.NoError(t, err)
	ids := insertAll(t, s1, "tasks",
		domain.Record{"title": "write", "price": int64(10), "ratio": 0.5, "done": true, "due": due, "owner": domain.Ref{Table: "users", ID: "u1"}},
		domain.Record{"title": "review", "price": nil},
	)
	require.NoError(t, s1.Close())

	assert.FileExists(t, filepath.Join(dir, "data"+FileExtension))

	s2, err := Open(WithLogger(logger.Discard()), WithDataDir(dir), WithCheckpointFile("data"+FileExtension), WithGCInterval(0))
	require.NoError(t, err)
	defer s2.Close()

	snap, err := s2.OpenSnapshot()
	require.NoError(t, err)
	defer snap.Release()

	assert.Equal(t, uint64(1), snap.Version())
	assert.Equal(t, ids, scanIDs(t, snap, "tasks"))

	rec, ok := snap.Get("tasks", ids[0])
	require.True(t, ok)
	assert.Equal(t, "write", rec["title"])
	assert.Equal(t, int64(10), rec["price"])
	assert.Equal(t, 0.5, rec["ratio"])
	assert.Equal(t, true, rec["done"])
	assert.True(t, due.Equal(rec["due"].(time.Time)))
	assert.Equal(t, domain.Ref{Table: "users", ID: "u1"}, rec["owner"])

	rec, ok = snap.Get("tasks", ids[1])
	require.True(t, ok)
	assert.Nil(t, rec["price"])
}

func TestReadHeader_RejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus")
	require.NoError(t, os.WriteFile(path, []byte("GODB\x01\x00\x00\x00\x00\x00\x00\x00"), 0644))
	_, err := readCheckpoint(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file format")
}
