package realm

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/adfharrison1/livedb/pkg/aggregate"
	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/metrics"
	"github.com/adfharrison1/livedb/pkg/query"
	"github.com/adfharrison1/livedb/pkg/storage"
)

// State is the load state of a Results.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ListenerToken identifies a registered change listener.
type ListenerToken int

type listener struct {
	token ListenerToken
	fn    func(*Results)
}

// Results is a live, ordered set of records matching a query. It caches the
// identifiers evaluated against exactly one version and is refreshed by the
// realm's scheduler on Tick.
type Results struct {
	realm    *Realm
	compiled *query.Compiled
	state    atomic.Int32

	// owner goroutine only
	view       domain.View
	snap       *storage.Snapshot
	set        domain.ResultSet
	writeBound bool
	listeners  []listener
	nextToken  ListenerToken
}

var _ Collection = (*Results)(nil)

// Table returns the table the results are drawn from.
func (r *Results) Table() string {
	return r.compiled.Table
}

// State returns the current load state. It is safe from any goroutine.
func (r *Results) State() State {
	if r.realm.IsClosed() {
		return StateInvalid
	}
	return State(r.state.Load())
}

// IsValid reports whether the results can still be used. It never fails.
func (r *Results) IsValid() bool {
	return r.State() != StateInvalid
}

// IsLoaded reports whether the results hold an evaluated set.
func (r *Results) IsLoaded() bool {
	return r.State() == StateLoaded
}

// Realm returns the owning connection.
func (r *Results) Realm() *Realm {
	return r.realm
}

func (r *Results) check() error {
	if err := r.realm.checkThread(); err != nil {
		return err
	}
	if !r.IsValid() {
		return domain.ErrInvalidCollection
	}
	return nil
}

// Load evaluates the query against the latest version if the results are not
// loaded yet, blocking until done. It returns false only when the results
// became invalid.
func (r *Results) Load() (bool, error) {
	if err := r.realm.checkThread(); err != nil {
		return false, err
	}
	switch r.State() {
	case StateLoaded:
		return true, nil
	case StateInvalid:
		return false, nil
	}

	if err := r.evaluate(); err != nil {
		if !r.IsValid() || r.realm.IsClosed() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// evaluate binds the results to the realm's current view: the write view
// inside a write scope, the latest snapshot otherwise.
func (r *Results) evaluate() error {
	if r.realm.tx != nil {
		view := r.realm.tx.View()
		set, err := r.realm.engine.Evaluate(context.Background(), r.compiled, view)
		if err != nil {
			return err
		}
		r.bind(view, nil, set)
		r.writeBound = true
		r.state.Store(int32(StateLoaded))
		return nil
	}

	snap, err := r.realm.latest()
	if err != nil {
		return err
	}
	set, err := r.realm.engine.Evaluate(context.Background(), r.compiled, snap)
	if err != nil {
		snap.Release()
		return err
	}
	r.bind(snap, snap, set)
	r.state.Store(int32(StateLoaded))
	return nil
}

// bind takes ownership of snap (which may be nil for write views) and
// releases the previously held snapshot.
func (r *Results) bind(view domain.View, snap *storage.Snapshot, set domain.ResultSet) {
	if r.snap != nil {
		r.snap.Release()
	}
	r.view = view
	r.snap = snap
	r.set = set
	r.writeBound = false
}

func (r *Results) ensureLoaded() error {
	if err := r.check(); err != nil {
		return err
	}
	if r.IsLoaded() {
		return nil
	}
	ok, err := r.Load()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCollection
	}
	return nil
}

// Where returns a query over the same table, restricted to records matching
// the query these results were created from and sorted the same way.
// Sort keys added to the returned query rank after the inherited ones.
func (r *Results) Where() (*query.Query, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	q := query.New(r.compiled.Table, r.compiled.Predicate)
	for _, key := range r.compiled.Sort {
		q = q.Sort(key.Field, key.Descending)
	}
	return q, nil
}

func (r *Results) records() iter.Seq[domain.Record] {
	view, table, ids := r.view, r.compiled.Table, r.set.IDs
	return func(yield func(domain.Record) bool) {
		for _, id := range ids {
			rec, ok := view.Get(table, id)
			if !ok {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

func (r *Results) aggregate(op aggregate.Op, field string) (aggregate.Result, error) {
	if err := r.ensureLoaded(); err != nil {
		return aggregate.Result{}, err
	}
	f, err := r.realm.registry.Field(r.compiled.Table, field)
	if err != nil {
		return aggregate.Result{}, err
	}
	return aggregate.Compute(context.Background(), op, f, r.records())
}

// Min returns the smallest non-null value of a numeric field.
func (r *Results) Min(field string) (aggregate.Number, error) {
	res, err := r.aggregate(aggregate.OpMin, field)
	return res.Number, err
}

// Max returns the largest non-null value of a numeric field.
func (r *Results) Max(field string) (aggregate.Number, error) {
	res, err := r.aggregate(aggregate.OpMax, field)
	return res.Number, err
}

// Sum returns the sum of a numeric field, zero when every value is null.
// Integer sums wrap around on int64 overflow.
func (r *Results) Sum(field string) (aggregate.Number, error) {
	res, err := r.aggregate(aggregate.OpSum, field)
	return res.Number, err
}

// Average returns the mean over non-null values of a numeric field.
func (r *Results) Average(field string) (float64, error) {
	res, err := r.aggregate(aggregate.OpAverage, field)
	return res.Number.Float, err
}

func (r *Results) MinDate(field string) (time.Time, bool, error) {
	res, err := r.aggregate(aggregate.OpMinDate, field)
	return res.Date, res.Present, err
}

func (r *Results) MaxDate(field string) (time.Time, bool, error) {
	res, err := r.aggregate(aggregate.OpMaxDate, field)
	return res.Date, res.Present, err
}

// Aggregate runs op over field.
func (r *Results) Aggregate(op aggregate.Op, field string) (aggregate.Result, error) {
	return r.aggregate(op, field)
}

// DeleteAllFromRealm deletes every record of the results inside the current
// write scope and clears the results. It reports whether anything was
// deleted. The results are first re-evaluated against the write view, so
// only records matching at that point are deleted. On failure nothing is
// deleted.
func (r *Results) DeleteAllFromRealm() (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	if err := r.realm.requireWrite(); err != nil {
		return false, err
	}
	if err := r.evaluate(); err != nil {
		return false, err
	}
	if r.set.Len() == 0 {
		return false, nil
	}

	if err := r.realm.tx.DeleteMany(r.compiled.Table, r.set.IDs); err != nil {
		return false, err
	}
	r.set = domain.ResultSet{Table: r.set.Table, Version: r.set.Version}
	return true, nil
}

// Size returns the number of records.
func (r *Results) Size() (int, error) {
	if err := r.ensureLoaded(); err != nil {
		return 0, err
	}
	return r.set.Len(), nil
}

// Get returns the i-th record.
func (r *Results) Get(i int) (domain.Record, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	if i < 0 || i >= r.set.Len() {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", domain.ErrIllegalArgument, i, r.set.Len())
	}
	rec, ok := r.view.Get(r.compiled.Table, r.set.IDs[i])
	if !ok {
		return nil, fmt.Errorf("%w: record %s", domain.ErrNotFound, r.set.IDs[i])
	}
	return rec, nil
}

// Records returns copies of every record, in order.
func (r *Results) Records() ([]domain.Record, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, r.set.Len())
	for rec := range r.records() {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// IDs returns the record identifiers, in order.
func (r *Results) IDs() ([]domain.RecordID, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	return append([]domain.RecordID(nil), r.set.IDs...), nil
}

// Version returns the version the results were evaluated against.
func (r *Results) Version() (uint64, error) {
	if err := r.ensureLoaded(); err != nil {
		return 0, err
	}
	return r.set.Version, nil
}

// AddChangeListener registers fn to run on the owner goroutine whenever the
// identifiers of the results change.
func (r *Results) AddChangeListener(fn func(*Results)) (ListenerToken, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if fn == nil {
		return 0, fmt.Errorf("%w: listener cannot be nil", domain.ErrIllegalArgument)
	}
	r.nextToken++
	r.listeners = append(r.listeners, listener{token: r.nextToken, fn: fn})
	return r.nextToken, nil
}

func (r *Results) RemoveChangeListener(token ListenerToken) error {
	if err := r.check(); err != nil {
		return err
	}
	for i, l := range r.listeners {
		if l.token == token {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: listener %d", domain.ErrNotFound, token)
}

func (r *Results) RemoveAllChangeListeners() error {
	if err := r.check(); err != nil {
		return err
	}
	r.listeners = nil
	return nil
}

func (r *Results) notify() {
	listeners := append([]listener(nil), r.listeners...)
	for _, l := range listeners {
		metrics.NotificationsTotal.Inc()
		l.fn(r)
	}
}

// Invalidate releases the results. Every later call except IsValid, IsLoaded,
// State and Realm fails.
func (r *Results) Invalidate() error {
	if err := r.realm.checkThread(); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

func (r *Results) invalidate() {
	r.state.Store(int32(StateInvalid))
	if r.snap != nil {
		r.snap.Release()
		r.snap = nil
	}
	r.view = nil
	r.listeners = nil
	r.realm.sched.unregister(r)
	delete(r.realm.results, r)
}
