package realm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/logger"
	"github.com/adfharrison1/livedb/pkg/schema"
	"github.com/adfharrison1/livedb/pkg/storage"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()
	require.NoError(t, registry.Define(schema.Table{
		Name: "items",
		Fields: []schema.Field{
			{Name: "name", Type: schema.TypeString, Nullable: true},
			{Name: "price", Type: schema.TypeInt, Nullable: true},
			{Name: "due", Type: schema.TypeDate, Nullable: true},
		},
	}))
	return registry
}

func newTestRealm(t *testing.T) (*Realm, *storage.Store) {
	t.Helper()
	store, err := storage.Open(storage.WithLogger(logger.Discard()), storage.WithGCInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r, err := Open(store, newTestRegistry(t), WithLogger(logger.Discard()), WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, store
}

func seed(t *testing.T, r *Realm, recs ...domain.Record) []domain.RecordID {
	t.Helper()
	var ids []domain.RecordID
	require.NoError(t, r.ExecuteTransaction(func(r *Realm) error {
		for _, rec := range recs {
			id, err := r.Insert("items", rec)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}))
	return ids
}

func findAll(t *testing.T, r *Realm, build func(q *queryBuilder) *queryBuilder) *Results {
	t.Helper()
	q, err := r.Where("items")
	require.NoError(t, err)
	if build != nil {
		q = build(q)
	}
	res, err := r.FindAll(q)
	require.NoError(t, err)
	return res
}

// commitExternally writes through the store directly, as another connection would.
func commitExternally(t *testing.T, store *storage.Store, rec domain.Record) domain.RecordID {
	t.Helper()
	tx, err := store.BeginWrite()
	require.NoError(t, err)
	id, err := tx.Insert("items", rec)
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	return id
}

func tickUntil(t *testing.T, r *Realm, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		_, err := r.Tick()
		require.NoError(t, err)
		if cond() {
			return
		}
		select {
		case <-r.Wakeup():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not reached before deadline")
		}
	}
}

// onOtherGoroutine runs fn on a fresh goroutine and waits for it.
func onOtherGoroutine(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
	wg.Wait()
}

func TestRealm_PriceScenario(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r,
		domain.Record{"name": "a", "price": 10},
		domain.Record{"name": "b", "price": nil},
		domain.Record{"name": "c", "price": 30},
	)
	res := findAll(t, r, nil)

	lo, err := res.Min("price")
	require.NoError(t, err)
	assert.Equal(t, int64(10), lo.Value())

	hi, err := res.Max("price")
	require.NoError(t, err)
	assert.Equal(t, int64(30), hi.Value())

	sum, err := res.Sum("price")
	require.NoError(t, err)
	assert.Equal(t, int64(40), sum.Value())

	avg, err := res.Average("price")
	require.NoError(t, err)
	assert.Equal(t, 20.0, avg)

	_, ok, err := res.MaxDate("due")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = res.MinDate("due")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = res.Min("name")
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFieldType))
	_, _, err = res.MaxDate("price")
	assert.True(t, errors.Is(err, domain.ErrFieldTypeMismatch))
	_, err = res.Sum("colour")
	assert.True(t, errors.Is(err, domain.ErrUnknownField))
}

func TestRealm_EmptyAggregates(t *testing.T) {
	r, _ := newTestRealm(t)
	res := findAll(t, r, nil)

	size, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	sum, err := res.Sum("price")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Value())

	lo, err := res.Min("price")
	require.NoError(t, err)
	assert.False(t, lo.Present)
}

func TestResults_LoadStates(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a"})

	q, err := r.Where("items")
	require.NoError(t, err)
	res, err := r.FindAllAsync(q)
	require.NoError(t, err)
	assert.Equal(t, StateLoading, res.State())
	assert.False(t, res.IsLoaded())

	ok, err := res.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, res.IsLoaded())

	ok, err = res.Load()
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestResults_AsyncDeliveredOnTick(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a"}, domain.Record{"name": "b"})

	q, err := r.Where("items")
	require.NoError(t, err)
	res, err := r.FindAllAsync(q.EqualTo("name", "b"))
	require.NoError(t, err)

	fired := 0
	_, err = res.AddChangeListener(func(*Results) { fired++ })
	require.NoError(t, err)

	tickUntil(t, r, res.IsLoaded)
	assert.Equal(t, 1, fired)
	ids, err := res.IDs()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestResults_DeleteAllFromRealm(t *testing.T) {
	r, _ := newTestRealm(t)
	ids := seed(t, r,
		domain.Record{"name": "x", "price": 1},
		domain.Record{"name": "y", "price": 2},
		domain.Record{"name": "z", "price": 3},
		domain.Record{"name": "keep", "price": 100},
	)
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.LessThan("price", 10) })

	_, err := res.DeleteAllFromRealm()
	assert.True(t, errors.Is(err, domain.ErrNotInWrite))
	assert.True(t, errors.Is(err, domain.ErrIllegalState))

	require.NoError(t, r.BeginWrite())
	deleted, err := res.DeleteAllFromRealm()
	require.NoError(t, err)
	assert.True(t, deleted)
	size, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	_, err = r.CommitWrite()
	require.NoError(t, err)

	for _, id := range ids[:3] {
		_, found, err := r.Get("items", id)
		require.NoError(t, err)
		assert.False(t, found)
	}
	_, found, err := r.Get("items", ids[3])
	require.NoError(t, err)
	assert.True(t, found)

	version, err := r.Version()
	require.NoError(t, err)

	empty := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.LessThan("price", 10) })
	require.NoError(t, r.BeginWrite())
	deleted, err = empty.DeleteAllFromRealm()
	require.NoError(t, err)
	assert.False(t, deleted)
	after, err := r.CommitWrite()
	require.NoError(t, err)
	assert.Equal(t, version, after, "nothing was committed")
}

func TestResults_DeleteAllSkipsRecordsChangedElsewhere(t *testing.T) {
	r, store := newTestRealm(t)
	ids := seed(t, r,
		domain.Record{"name": "x", "price": 5},
		domain.Record{"name": "y", "price": 6},
	)
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.LessThan("price", 10) })

	// another connection moves x out of the query
	tx, err := store.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Update("items", ids[0], domain.Record{"price": int64(50)}))
	_, err = tx.Commit()
	require.NoError(t, err)

	require.NoError(t, r.BeginWrite())
	deleted, err := res.DeleteAllFromRealm()
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = r.CommitWrite()
	require.NoError(t, err)

	rec, found, err := r.Get("items", ids[0])
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(50), rec["price"])
	_, found, err = r.Get("items", ids[1])
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResults_DeleteAllSkipsRecordsDeletedElsewhere(t *testing.T) {
	r, store := newTestRealm(t)
	ids := seed(t, r, domain.Record{"name": "a"}, domain.Record{"name": "b"})
	res := findAll(t, r, nil)

	tx, err := store.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Delete("items", ids[0]))
	_, err = tx.Commit()
	require.NoError(t, err)

	require.NoError(t, r.ExecuteTransaction(func(r *Realm) error {
		deleted, err := res.DeleteAllFromRealm()
		assert.True(t, deleted)
		return err
	}))

	_, found, err := r.Get("items", ids[1])
	require.NoError(t, err)
	assert.False(t, found)
	size, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestResults_DeleteAllSeesEarlierWritesInScope(t *testing.T) {
	r, _ := newTestRealm(t)
	ids := seed(t, r, domain.Record{"price": 1}, domain.Record{"price": 2})
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.LessThan("price", 10) })

	require.NoError(t, r.ExecuteTransaction(func(r *Realm) error {
		if err := r.Update("items", ids[0], domain.Record{"price": 99}); err != nil {
			return err
		}
		_, err := res.DeleteAllFromRealm()
		return err
	}))

	_, found, err := r.Get("items", ids[0])
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = r.Get("items", ids[1])
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResults_Where(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r,
		domain.Record{"name": "a", "price": 5},
		domain.Record{"name": "b", "price": 15},
		domain.Record{"name": "c", "price": 25},
	)
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.GreaterThan("price", 10) })

	q, err := res.Where()
	require.NoError(t, err)
	narrowed, err := r.FindAll(q.LessThan("price", 20))
	require.NoError(t, err)

	rec, err := narrowed.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "b", rec["name"])
	size, err := narrowed.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestResults_WhereKeepsSort(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r,
		domain.Record{"name": "a", "price": 5},
		domain.Record{"name": "b", "price": 15},
		domain.Record{"name": "c", "price": 25},
		domain.Record{"name": "d", "price": 15},
	)
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder {
		return q.GreaterThan("price", 10).Sort("price", true)
	})

	q, err := res.Where()
	require.NoError(t, err)
	narrowed, err := r.FindAll(q.Sort("name", true))
	require.NoError(t, err)

	recs, err := narrowed.Records()
	require.NoError(t, err)
	var names []string
	for _, rec := range recs {
		names = append(names, rec["name"].(string))
	}
	assert.Equal(t, []string{"c", "d", "b"}, names)
}

func TestRealm_CloseInvalidates(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a"})
	res := findAll(t, r, nil)
	require.True(t, res.IsValid())

	require.NoError(t, r.Close())
	assert.True(t, r.IsClosed())
	assert.False(t, res.IsValid())
	assert.False(t, res.IsLoaded())
	assert.Same(t, r, res.Realm())

	_, err := res.Where()
	assert.True(t, errors.Is(err, domain.ErrIllegalState))
	_, err = res.DeleteAllFromRealm()
	assert.True(t, errors.Is(err, domain.ErrIllegalState))
	_, err = res.Sum("price")
	assert.True(t, errors.Is(err, domain.ErrIllegalState))
	_, err = res.AddChangeListener(func(*Results) {})
	assert.True(t, errors.Is(err, domain.ErrIllegalState))

	ok, err := res.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, errors.Is(r.BeginWrite(), domain.ErrConnectionClosed))
	_, err = r.Where("items")
	assert.True(t, errors.Is(err, domain.ErrIllegalState))
	assert.NoError(t, r.Close())
}

func TestRealm_WrongThread(t *testing.T) {
	r, _ := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a"})
	res := findAll(t, r, nil)

	var errs []error
	onOtherGoroutine(func() {
		_, err := res.Where()
		errs = append(errs, err)
		_, err = res.Sum("price")
		errs = append(errs, err)
		_, err = res.DeleteAllFromRealm()
		errs = append(errs, err)
		_, err = res.Load()
		errs = append(errs, err)
		_, err = res.Size()
		errs = append(errs, err)
		errs = append(errs, r.BeginWrite())
		_, err = r.Where("items")
		errs = append(errs, err)
		_, err = r.Tick()
		errs = append(errs, err)
		errs = append(errs, r.Close())
	})

	for i, err := range errs {
		assert.True(t, errors.Is(err, domain.ErrWrongThread), "call %d: %v", i, err)
		assert.True(t, errors.Is(err, domain.ErrIllegalState), "call %d", i)
	}

	assert.True(t, res.IsValid())
	_, err := res.Where()
	assert.NoError(t, err)
	_, err = res.Sum("price")
	assert.NoError(t, err)
}

func TestResults_LiveUpdates(t *testing.T) {
	r, store := newTestRealm(t)
	seed(t, r, domain.Record{"name": "a", "price": 1})
	res := findAll(t, r, func(q *queryBuilder) *queryBuilder { return q.LessThan("price", 10) })

	var seen [][]domain.RecordID
	_, err := res.AddChangeListener(func(res *Results) {
		ids, err := res.IDs()
		require.NoError(t, err)
		seen = append(seen, ids)
	})
	require.NoError(t, err)

	// a commit that does not change the matching set does not notify
	commitExternally(t, store, domain.Record{"_id": "big", "price": int64(50)})
	id := commitExternally(t, store, domain.Record{"_id": "small", "price": int64(5)})

	tickUntil(t, r, func() bool { return len(seen) > 0 })
	last := seen[len(seen)-1]
	assert.Contains(t, last, id)
	assert.Len(t, last, 2)

	version, err := res.Version()
	require.NoError(t, err)
	current, err := store.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, current, version)
}

func TestResults_ListenerRemoval(t *testing.T) {
	r, store := newTestRealm(t)
	res := findAll(t, r, nil)

	calls := 0
	token, err := res.AddChangeListener(func(*Results) { calls++ })
	require.NoError(t, err)
	require.NoError(t, res.RemoveChangeListener(token))
	assert.True(t, errors.Is(res.RemoveChangeListener(token), domain.ErrNotFound))

	commitExternally(t, store, domain.Record{"price": int64(1)})
	tickUntil(t, r, func() bool {
		size, err := res.Size()
		require.NoError(t, err)
		return size == 1
	})
	assert.Equal(t, 0, calls)
}

func TestRealm_WriteScope(t *testing.T) {
	r, _ := newTestRealm(t)

	_, err := r.Insert("items", domain.Record{"name": "a"})
	assert.True(t, errors.Is(err, domain.ErrNotInWrite))

	require.NoError(t, r.BeginWrite())
	assert.True(t, errors.Is(r.BeginWrite(), domain.ErrAlreadyInWrite))
	_, err = r.Insert("items", domain.Record{"name": 42})
	assert.True(t, errors.Is(err, domain.ErrIllegalArgument))

	id, err := r.Insert("items", domain.Record{"name": "a", "price": 3})
	require.NoError(t, err)

	// queries inside the write see staged records
	inWrite := findAll(t, r, nil)
	size, err := inWrite.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.NoError(t, r.CancelWrite())
	assert.False(t, r.IsInWrite())

	size, err = inWrite.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	_, found, err := r.Get("items", id)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.BeginWrite())
	id, err = r.Insert("items", domain.Record{"name": "b", "price": 4})
	require.NoError(t, err)
	require.NoError(t, r.Update("items", id, domain.Record{"price": 8}))
	assert.True(t, errors.Is(r.Update("items", id, domain.Record{"colour": "red"}), domain.ErrUnknownField))
	_, err = r.CommitWrite()
	require.NoError(t, err)

	rec, found, err := r.Get("items", id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(8), rec["price"])

	// results bound to a snapshot catch up on the next tick
	tickUntil(t, r, func() bool {
		size, err := inWrite.Size()
		require.NoError(t, err)
		return size == 1
	})
}

func TestRealm_ExecuteTransactionRollsBack(t *testing.T) {
	r, _ := newTestRealm(t)
	boom := errors.New("boom")

	err := r.ExecuteTransaction(func(r *Realm) error {
		if _, err := r.Insert("items", domain.Record{"name": "a"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.IsInWrite())

	res := findAll(t, r, nil)
	size, err := res.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestResults_Invalidate(t *testing.T) {
	r, _ := newTestRealm(t)
	res := findAll(t, r, nil)

	require.NoError(t, res.Invalidate())
	assert.False(t, res.IsValid())
	_, err := res.Size()
	assert.True(t, errors.Is(err, domain.ErrInvalidCollection))
	assert.False(t, r.IsClosed())
}

func TestUnmanagedList(t *testing.T) {
	registry := newTestRegistry(t)
	table, err := registry.Table("items")
	require.NoError(t, err)

	list, err := NewUnmanagedList(table,
		domain.Record{"price": 2},
		domain.Record{"price": nil},
		domain.Record{"price": 4},
	)
	require.NoError(t, err)

	assert.Nil(t, list.Realm())
	assert.True(t, list.IsValid())
	assert.True(t, list.IsLoaded())

	avg, err := list.Average("price")
	require.NoError(t, err)
	assert.Equal(t, 3.0, avg)

	_, err = list.Where()
	assert.True(t, errors.Is(err, domain.ErrIllegalState))
	_, err = list.DeleteAllFromRealm()
	assert.True(t, errors.Is(err, domain.ErrIllegalState))
	_, err = list.Min("name")
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFieldType))

	_, err = NewUnmanagedList(table, domain.Record{"price": "x"})
	assert.True(t, errors.Is(err, domain.ErrIllegalArgument))
}

func TestLooper_Do(t *testing.T) {
	store, err := storage.Open(storage.WithLogger(logger.Discard()), storage.WithGCInterval(0))
	require.NoError(t, err)
	defer store.Close()
	registry := newTestRegistry(t)

	l, err := StartLooper(func() (*Realm, error) {
		return Open(store, registry, WithLogger(logger.Discard()))
	}, 10*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	err = l.Do(ctx, func(r *Realm) error {
		return r.ExecuteTransaction(func(r *Realm) error {
			_, err := r.Insert("items", domain.Record{"name": "a", "price": 7})
			return err
		})
	})
	require.NoError(t, err)

	var sum int64
	err = l.Do(ctx, func(r *Realm) error {
		q, err := r.Where("items")
		if err != nil {
			return err
		}
		res, err := r.FindAll(q)
		if err != nil {
			return err
		}
		defer res.Invalidate()
		n, err := res.Sum("price")
		sum = n.Int
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), sum)

	err = l.Do(ctx, func(r *Realm) error { panic("bad task") })
	assert.True(t, errors.Is(err, domain.ErrIllegalState))

	require.NoError(t, l.Close())
	assert.True(t, errors.Is(l.Do(ctx, func(*Realm) error { return nil }), domain.ErrConnectionClosed))
}
