// Package realm provides goroutine-confined connections over a shared store,
// with live query results kept current by a cooperative scheduler.
package realm

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/logger"
	"github.com/adfharrison1/livedb/pkg/query"
	"github.com/adfharrison1/livedb/pkg/schema"
	"github.com/adfharrison1/livedb/pkg/storage"
)

const defaultWorkers = 4

// Realm is a connection to a Store. A Realm, and every Results it returns,
// may only be used from the goroutine that opened it.
type Realm struct {
	store    *storage.Store
	registry *schema.Registry
	engine   *query.Engine
	logger   *slog.Logger
	workers  int
	pool     *ants.Pool
	ownsPool bool

	owner  int64
	closed atomic.Bool

	// owner goroutine only
	snap    *storage.Snapshot
	tx      *storage.WriteTxn
	results map[*Results]struct{}

	sched       *scheduler
	unsubscribe func()
}

// Open connects to store on the calling goroutine, which becomes the owner.
func Open(store *storage.Store, registry *schema.Registry, options ...Option) (*Realm, error) {
	if store == nil || registry == nil {
		return nil, fmt.Errorf("%w: store and registry are required", domain.ErrIllegalArgument)
	}

	r := &Realm{
		store:    store,
		registry: registry,
		workers:  defaultWorkers,
		owner:    goid(),
		results:  make(map[*Results]struct{}),
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	if r.engine == nil {
		r.engine = query.NewEngine(nil)
	}
	if r.pool == nil {
		pool, err := ants.NewPool(r.workers, ants.WithNonblocking(true), ants.WithPanicHandler(func(v any) {
			r.logger.Error("live results evaluation panic", "panic", v)
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to create evaluation pool: %w", err)
		}
		r.pool = pool
		r.ownsPool = true
	}

	snap, err := store.OpenSnapshot()
	if err != nil {
		r.releasePool()
		return nil, err
	}
	r.snap = snap
	r.sched = newScheduler(store, r.engine, r.pool, r.logger)
	r.unsubscribe = store.Subscribe(r.sched.onCommit)

	r.logger.Debug("realm opened", "owner", r.owner, "version", snap.Version())
	return r, nil
}

// OwnerID returns the id of the goroutine that owns the realm.
func (r *Realm) OwnerID() int64 {
	return r.owner
}

// IsClosed reports whether Close was called. It is safe from any goroutine.
func (r *Realm) IsClosed() bool {
	return r.closed.Load()
}

// Registry returns the schema registry the realm validates against.
func (r *Realm) Registry() *schema.Registry {
	return r.registry
}

func (r *Realm) checkThread() error {
	if goid() != r.owner {
		return domain.ErrWrongThread
	}
	return nil
}

func (r *Realm) check() error {
	if err := r.checkThread(); err != nil {
		return err
	}
	if r.closed.Load() {
		return domain.ErrConnectionClosed
	}
	return nil
}

func (r *Realm) requireWrite() error {
	if r.tx == nil {
		return domain.ErrNotInWrite
	}
	return nil
}

// Close cancels any open write scope and invalidates every Results of the realm.
// Closing twice is a no-op.
func (r *Realm) Close() error {
	if err := r.checkThread(); err != nil {
		return err
	}
	if r.closed.Load() {
		return nil
	}

	if r.tx != nil {
		r.tx.Rollback()
		r.tx = nil
	}
	r.unsubscribe()
	r.sched.stop()

	r.closed.Store(true)
	for res := range r.results {
		res.invalidate()
	}
	r.snap.Release()
	r.snap = nil
	r.releasePool()

	r.logger.Debug("realm closed", "owner", r.owner)
	return nil
}

func (r *Realm) releasePool() {
	if r.ownsPool && r.pool != nil {
		r.pool.Release()
	}
}

// BeginWrite opens a write scope. It blocks while another connection writes.
func (r *Realm) BeginWrite() error {
	if err := r.check(); err != nil {
		return err
	}
	if r.tx != nil {
		return domain.ErrAlreadyInWrite
	}
	tx, err := r.store.BeginWrite()
	if err != nil {
		return err
	}
	r.tx = tx
	if err := r.advance(); err != nil {
		r.tx.Rollback()
		r.tx = nil
		return err
	}
	return nil
}

// CommitWrite commits the write scope and returns the new version.
func (r *Realm) CommitWrite() (uint64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if err := r.requireWrite(); err != nil {
		return 0, err
	}
	tx := r.tx
	r.tx = nil
	version, err := tx.Commit()
	if err != nil {
		r.rebind()
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	r.rebind()
	return version, nil
}

// CancelWrite discards the write scope.
func (r *Realm) CancelWrite() error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.requireWrite(); err != nil {
		return err
	}
	r.tx.Rollback()
	r.tx = nil
	r.rebind()
	return nil
}

// IsInWrite reports whether a write scope is open.
func (r *Realm) IsInWrite() bool {
	return r.tx != nil
}

// ExecuteTransaction runs fn in a write scope, committing when fn returns nil
// and cancelling otherwise.
func (r *Realm) ExecuteTransaction(fn func(r *Realm) error) error {
	if err := r.BeginWrite(); err != nil {
		return err
	}
	if err := fn(r); err != nil {
		if r.tx != nil {
			r.tx.Rollback()
			r.tx = nil
			r.rebind()
		}
		return err
	}
	_, err := r.CommitWrite()
	return err
}

// Insert validates and stages a record, returning its identifier.
func (r *Realm) Insert(table string, rec domain.Record) (domain.RecordID, error) {
	if err := r.check(); err != nil {
		return "", err
	}
	if err := r.requireWrite(); err != nil {
		return "", err
	}
	normalized, err := r.registry.ValidateRecord(table, rec)
	if err != nil {
		return "", err
	}
	return r.tx.Insert(table, normalized)
}

// Update validates and stages changes to an existing record.
func (r *Realm) Update(table string, id domain.RecordID, changes domain.Record) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.requireWrite(); err != nil {
		return err
	}
	t, err := r.registry.Table(table)
	if err != nil {
		return err
	}
	normalized, err := t.NormalizeChanges(changes)
	if err != nil {
		return err
	}
	return r.tx.Update(table, id, normalized)
}

// Delete stages the removal of a record.
func (r *Realm) Delete(table string, id domain.RecordID) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.requireWrite(); err != nil {
		return err
	}
	return r.tx.Delete(table, id)
}

// Get returns a record as seen by the realm, including staged writes.
func (r *Realm) Get(table string, id domain.RecordID) (domain.Record, bool, error) {
	if err := r.check(); err != nil {
		return nil, false, err
	}
	if _, err := r.registry.Table(table); err != nil {
		return nil, false, err
	}
	rec, ok := r.view().Get(table, id)
	return rec, ok, nil
}

// Version returns the version the realm currently reads.
func (r *Realm) Version() (uint64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	return r.view().Version(), nil
}

// Where starts a query over table.
func (r *Realm) Where(table string) (*query.Query, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if _, err := r.registry.Table(table); err != nil {
		return nil, err
	}
	return query.New(table, nil), nil
}

// FindAll evaluates q and returns loaded, live results.
func (r *Realm) FindAll(q *query.Query) (*Results, error) {
	res, err := r.newResults(q)
	if err != nil {
		return nil, err
	}
	if _, err := res.Load(); err != nil {
		res.invalidate()
		return nil, err
	}
	return res, nil
}

// FindAllAsync returns results in the Loading state. They are evaluated in
// the background and become Loaded on a later Tick, or earlier via Load.
func (r *Realm) FindAllAsync(q *query.Query) (*Results, error) {
	res, err := r.newResults(q)
	if err != nil {
		return nil, err
	}
	res.state.Store(int32(StateLoading))
	r.sched.request(res)
	return res, nil
}

func (r *Realm) newResults(q *query.Query) (*Results, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: query cannot be nil", domain.ErrIllegalArgument)
	}
	compiled, err := q.Compile(r.registry)
	if err != nil {
		return nil, err
	}
	res := &Results{realm: r, compiled: compiled}
	r.results[res] = struct{}{}
	r.sched.register(res, compiled)
	return res, nil
}

// Refresh moves the realm to the latest committed version and delivers
// pending notifications. It reports whether the version changed.
func (r *Realm) Refresh() (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	if r.tx != nil {
		return false, fmt.Errorf("%w: cannot refresh inside a write", domain.ErrIllegalState)
	}
	before := r.snap.Version()
	if _, err := r.Tick(); err != nil {
		return false, err
	}
	return r.snap.Version() != before, nil
}

// Tick applies the results evaluated in the background since the last tick
// and runs change listeners. It does nothing inside a write scope. It returns
// the number of results that changed.
func (r *Realm) Tick() (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if r.tx != nil {
		return 0, nil
	}
	if err := r.advance(); err != nil {
		return 0, err
	}

	changed := 0
	for _, t := range r.sched.drain() {
		if r.apply(t) {
			changed++
		}
	}
	return changed, nil
}

// Wakeup is signalled when background results are waiting for a Tick.
func (r *Realm) Wakeup() <-chan struct{} {
	return r.sched.wake
}

// view returns the write view inside a write scope, the realm snapshot otherwise.
func (r *Realm) view() domain.View {
	if r.tx != nil {
		return r.tx.View()
	}
	return r.snap
}

// advance moves the realm snapshot to the latest committed version.
func (r *Realm) advance() error {
	next, err := r.store.Advance(r.snap)
	if err != nil {
		return err
	}
	r.snap.Release()
	r.snap = next
	return nil
}

// latest returns a retained snapshot of the latest committed version.
func (r *Realm) latest() (*storage.Snapshot, error) {
	if err := r.advance(); err != nil {
		return nil, err
	}
	if err := r.snap.Retain(); err != nil {
		return nil, err
	}
	return r.snap, nil
}

// rebind re-evaluates results that were evaluated against a write view once
// the write scope ends.
func (r *Realm) rebind() {
	if err := r.advance(); err != nil {
		r.logger.Warn("failed to advance realm after write", "error", err)
	}
	for res := range r.results {
		if !res.writeBound {
			continue
		}
		before := res.set
		if err := res.evaluate(); err != nil {
			r.logger.Warn("failed to re-evaluate results after write", "table", res.Table(), "error", err)
			res.invalidate()
			continue
		}
		if !before.Equal(res.set) {
			res.notify()
		}
	}
}

// apply installs a background evaluation. Results older than the ones
// already held are dropped.
func (r *Realm) apply(t task) bool {
	res := t.results
	switch res.State() {
	case StateInvalid:
		t.snap.Release()
		return false
	case StateLoaded:
		if res.writeBound || t.set.Version <= res.set.Version {
			t.snap.Release()
			return false
		}
	}

	first := res.State() != StateLoaded
	changed := first || !res.set.Equal(t.set)
	res.bind(t.snap, t.snap, t.set)
	res.state.Store(int32(StateLoaded))
	if changed {
		res.notify()
	}
	return changed
}
