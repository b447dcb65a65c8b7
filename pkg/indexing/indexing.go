package indexing

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// StableView is a view whose contents never change for its version.
type StableView interface {
	domain.View
	Stable() bool
}

// IndexEngine tracks which fields are indexed and serves indexes built
// against stable snapshots.
type IndexEngine struct {
	mu       sync.RWMutex
	declared map[string]map[string]bool // table -> field
	cache    *LRUCache
}

// NewIndexEngine creates a new index engine caching up to capacity built indexes.
func NewIndexEngine(capacity int) *IndexEngine {
	if capacity <= 0 {
		capacity = 64
	}
	return &IndexEngine{
		declared: make(map[string]map[string]bool),
		cache:    NewLRUCache(capacity),
	}
}

// Index maps a field's values to record ids, in insertion order, at one version.
type Index struct {
	Table    string
	Field    string
	Version  uint64
	Inverted map[interface{}][]domain.RecordID
}

// Key normalizes a stored value into a comparable map key.
func Key(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return timeKey(val.UnixNano())
	case int:
		return int64(val)
	default:
		return v
	}
}

type timeKey int64

// BuildIndex indexes all live records of a table visible in view.
func BuildIndex(view domain.View, table, field string) (*Index, error) {
	idx := &Index{
		Table:    table,
		Field:    field,
		Version:  view.Version(),
		Inverted: make(map[interface{}][]domain.RecordID),
	}
	err := view.Scan(table, func(id domain.RecordID, rec domain.Record) bool {
		key := Key(rec[field])
		idx.Inverted[key] = append(idx.Inverted[key], id)
		return true
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Query returns record ids whose field equals value, in insertion order.
func (idx *Index) Query(value interface{}) []domain.RecordID {
	if ids, ok := idx.Inverted[Key(value)]; ok {
		return ids
	}
	return nil
}

// CreateIndex declares an index on a table field.
func (ie *IndexEngine) CreateIndex(table, field string) error {
	ie.mu.Lock()
	defer ie.mu.Unlock()

	if ie.declared[table] == nil {
		ie.declared[table] = make(map[string]bool)
	}
	if ie.declared[table][field] {
		return fmt.Errorf("%w: index on field %s already exists in table %s", domain.ErrIllegalArgument, field, table)
	}
	ie.declared[table][field] = true
	return nil
}

// DropIndex removes an index declaration. Cached indexes for the field are evicted.
func (ie *IndexEngine) DropIndex(table, field string) error {
	ie.mu.Lock()
	defer ie.mu.Unlock()

	if !ie.declared[table][field] {
		return fmt.Errorf("%w: index on field %s in table %s", domain.ErrNotFound, field, table)
	}
	delete(ie.declared[table], field)
	ie.cache.RemovePrefix(cachePrefix(table, field))
	return nil
}

// HasIndex reports whether the field is declared as indexed.
func (ie *IndexEngine) HasIndex(table, field string) bool {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	return ie.declared[table][field]
}

// GetIndexes returns the indexed fields of a table, sorted.
func (ie *IndexEngine) GetIndexes(table string) []string {
	ie.mu.RLock()
	defer ie.mu.RUnlock()

	names := make([]string, 0, len(ie.declared[table]))
	for field := range ie.declared[table] {
		names = append(names, field)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the index of table.field for the view, building and caching it on first use.
// Only stable views are served; ok is false otherwise or when no index is declared.
func (ie *IndexEngine) Lookup(view domain.View, table, field string) (idx *Index, ok bool, err error) {
	stable, isStable := view.(StableView)
	if !isStable || !stable.Stable() || !ie.HasIndex(table, field) {
		return nil, false, nil
	}

	key := cacheKey(table, field, view.Version())
	if cached, found := ie.cache.Get(key); found {
		return cached, true, nil
	}

	idx, err = BuildIndex(view, table, field)
	if err != nil {
		return nil, false, err
	}
	ie.cache.Put(key, idx)
	return idx, true, nil
}

func cachePrefix(table, field string) string {
	return table + "\x00" + field + "\x00"
}

func cacheKey(table, field string, version uint64) string {
	return fmt.Sprintf("%s%d", cachePrefix(table, field), version)
}
