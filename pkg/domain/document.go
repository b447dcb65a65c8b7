package domain

import "fmt"

// RecordID identifies a record within its table. It never changes once assigned.
type RecordID string

// IDField is the reserved field holding a record's identifier.
const IDField = "_id"

// Record maps field names to typed values.
//
// Stored values are one of int64, float64, string, bool, time.Time, Ref or nil.
type Record map[string]interface{}

// Ref is a reference to a record in another table.
type Ref struct {
	Table string   `msgpack:"table" json:"table"`
	ID    RecordID `msgpack:"id" json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Table, r.ID)
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the record identifier stored under IDField, if any.
func (r Record) ID() RecordID {
	switch v := r[IDField].(type) {
	case RecordID:
		return v
	case string:
		return RecordID(v)
	default:
		return ""
	}
}

// ResultSet is an ordered sequence of record identifiers matching a predicate
// against a single snapshot version.
type ResultSet struct {
	Table   string
	Version uint64
	IDs     []RecordID
}

// Len returns the number of identifiers in the set.
func (rs ResultSet) Len() int {
	return len(rs.IDs)
}

// Equal reports whether both sets hold the same identifiers in the same order.
// Versions are not compared.
func (rs ResultSet) Equal(other ResultSet) bool {
	if rs.Table != other.Table || len(rs.IDs) != len(other.IDs) {
		return false
	}
	for i := range rs.IDs {
		if rs.IDs[i] != other.IDs[i] {
			return false
		}
	}
	return true
}

// View is a point-in-time readable state of the store.
type View interface {
	// Version is the commit version this view observes.
	Version() uint64
	// Scan visits live records of a table in insertion order until fn returns false.
	Scan(table string, fn func(id RecordID, rec Record) bool) error
	// Get returns a live record by id.
	Get(table string, id RecordID) (Record, bool)
}
