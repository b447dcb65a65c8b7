package realm

import (
	"fmt"
	"slices"
	"time"

	"github.com/adfharrison1/livedb/pkg/aggregate"
	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/query"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Collection is the read and bulk-delete surface shared by managed Results
// and in-memory UnmanagedLists. Fields are addressed by name and checked
// against the schema on every call.
type Collection interface {
	Where() (*query.Query, error)
	Min(field string) (aggregate.Number, error)
	Max(field string) (aggregate.Number, error)
	Sum(field string) (aggregate.Number, error)
	Average(field string) (float64, error)
	MinDate(field string) (time.Time, bool, error)
	MaxDate(field string) (time.Time, bool, error)
	DeleteAllFromRealm() (bool, error)
	IsLoaded() bool
	Load() (bool, error)
	IsValid() bool
	Realm() *Realm
	Size() (int, error)
}

var errUnmanaged = fmt.Errorf("%w: collection is not managed by a realm", domain.ErrIllegalState)

// UnmanagedList is a detached, in-memory collection of records of one table.
// It is always loaded and valid and has no realm.
type UnmanagedList struct {
	table   *schema.Table
	records []domain.Record
}

var _ Collection = (*UnmanagedList)(nil)

// NewUnmanagedList creates a list of records normalized against table.
func NewUnmanagedList(table *schema.Table, records ...domain.Record) (*UnmanagedList, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: table cannot be nil", domain.ErrIllegalArgument)
	}
	l := &UnmanagedList{table: table}
	for _, rec := range records {
		if err := l.Add(rec); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add appends a record.
func (l *UnmanagedList) Add(rec domain.Record) error {
	normalized, err := l.table.NormalizeRecord(rec)
	if err != nil {
		return err
	}
	l.records = append(l.records, normalized)
	return nil
}

// Get returns the i-th record.
func (l *UnmanagedList) Get(i int) (domain.Record, error) {
	if i < 0 || i >= len(l.records) {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", domain.ErrIllegalArgument, i, len(l.records))
	}
	return l.records[i], nil
}

// Where fails: unmanaged lists cannot be queried.
func (l *UnmanagedList) Where() (*query.Query, error) {
	return nil, errUnmanaged
}

func (l *UnmanagedList) aggregate(op aggregate.Op, field string) (aggregate.Result, error) {
	f, ok := l.table.Field(field)
	if !ok {
		return aggregate.Result{}, fmt.Errorf("%w: %s.%s", domain.ErrUnknownField, l.table.Name, field)
	}
	rule, err := aggregate.RuleFor(op)
	if err != nil {
		return aggregate.Result{}, err
	}
	if err := rule.Check(f); err != nil {
		return aggregate.Result{}, err
	}
	return aggregate.Collect(f, slices.Values(l.records)).Result(op)
}

func (l *UnmanagedList) Min(field string) (aggregate.Number, error) {
	res, err := l.aggregate(aggregate.OpMin, field)
	return res.Number, err
}

func (l *UnmanagedList) Max(field string) (aggregate.Number, error) {
	res, err := l.aggregate(aggregate.OpMax, field)
	return res.Number, err
}

func (l *UnmanagedList) Sum(field string) (aggregate.Number, error) {
	res, err := l.aggregate(aggregate.OpSum, field)
	return res.Number, err
}

func (l *UnmanagedList) Average(field string) (float64, error) {
	res, err := l.aggregate(aggregate.OpAverage, field)
	return res.Number.Float, err
}

func (l *UnmanagedList) MinDate(field string) (time.Time, bool, error) {
	res, err := l.aggregate(aggregate.OpMinDate, field)
	return res.Date, res.Present, err
}

func (l *UnmanagedList) MaxDate(field string) (time.Time, bool, error) {
	res, err := l.aggregate(aggregate.OpMaxDate, field)
	return res.Date, res.Present, err
}

// DeleteAllFromRealm fails: there is no realm to delete from.
func (l *UnmanagedList) DeleteAllFromRealm() (bool, error) {
	return false, errUnmanaged
}

func (l *UnmanagedList) IsLoaded() bool      { return true }
func (l *UnmanagedList) Load() (bool, error) { return true, nil }
func (l *UnmanagedList) IsValid() bool       { return true }
func (l *UnmanagedList) Realm() *Realm       { return nil }

func (l *UnmanagedList) Size() (int, error) {
	return len(l.records), nil
}
