package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// Registry resolves table and field names to typed descriptors.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Define registers a table. Redefining an existing table is an error.
func (r *Registry) Define(table Table) error {
	if table.Name == "" {
		return fmt.Errorf("%w: table name cannot be empty", domain.ErrIllegalArgument)
	}

	t := &Table{
		Name:   table.Name,
		Fields: make([]Field, 0, len(table.Fields)),
		byName: make(map[string]int, len(table.Fields)),
	}
	for _, f := range table.Fields {
		if f.Name == "" || f.Name == domain.IDField {
			return fmt.Errorf("%w: invalid field name %q in table %s", domain.ErrIllegalArgument, f.Name, table.Name)
		}
		if _, dup := t.byName[f.Name]; dup {
			return fmt.Errorf("%w: duplicate field %s in table %s", domain.ErrIllegalArgument, f.Name, table.Name)
		}
		if _, ok := fieldTypeNames[f.Type]; !ok {
			return fmt.Errorf("%w: field %s has unknown type", domain.ErrIllegalArgument, f.Name)
		}
		t.byName[f.Name] = len(t.Fields)
		t.Fields = append(t.Fields, f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[t.Name]; exists {
		return fmt.Errorf("%w: table %s already defined", domain.ErrIllegalArgument, t.Name)
	}
	r.tables[t.Name] = t
	return nil
}

// Table returns the schema of a table.
func (r *Registry) Table(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
	}
	return t, nil
}

// Tables returns all table names, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field resolves table.field to a descriptor.
func (r *Registry) Field(table, field string) (Field, error) {
	t, err := r.Table(table)
	if err != nil {
		return Field{}, err
	}
	f, ok := t.Field(field)
	if !ok {
		return Field{}, fmt.Errorf("%w: %s.%s", domain.ErrUnknownField, table, field)
	}
	return f, nil
}

// ValidateRecord checks a record against the table schema and returns a copy
// with every value normalized to its stored representation.
func (r *Registry) ValidateRecord(table string, rec domain.Record) (domain.Record, error) {
	t, err := r.Table(table)
	if err != nil {
		return nil, err
	}
	return t.NormalizeRecord(rec)
}

// NormalizeRecord returns a copy of rec with every value converted to its
// stored representation. Missing fields are stored as nil.
func (t *Table) NormalizeRecord(rec domain.Record) (domain.Record, error) {
	out := make(domain.Record, len(t.Fields)+1)
	for name := range rec {
		if name == domain.IDField {
			continue
		}
		if _, ok := t.Field(name); !ok {
			return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownField, t.Name, name)
		}
	}
	for _, f := range t.Fields {
		v, err := Normalize(f, rec[f.Name])
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name, f.Name, err)
		}
		out[f.Name] = v
	}
	if id := rec.ID(); id != "" {
		out[domain.IDField] = string(id)
	}
	return out, nil
}

// NormalizeChanges validates a partial update. The identifier field is ignored.
func (t *Table) NormalizeChanges(changes domain.Record) (domain.Record, error) {
	out := make(domain.Record, len(changes))
	for name, v := range changes {
		if name == domain.IDField {
			continue
		}
		f, ok := t.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownField, t.Name, name)
		}
		norm, err := Normalize(f, v)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name, f.Name, err)
		}
		out[name] = norm
	}
	return out, nil
}

// Normalize converts v to the stored representation of the field type.
func Normalize(f Field, v interface{}) (interface{}, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("%w: field %s is not nullable", domain.ErrIllegalArgument, f.Name)
		}
		return nil, nil
	}

	switch f.Type {
	case TypeInt:
		if n, ok := ToInt64(v); ok {
			return n, nil
		}
	case TypeFloat:
		if n, ok := ToFloat64(v); ok {
			return n, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, d)
			if err == nil {
				return parsed.UTC(), nil
			}
		}
	case TypeObject:
		switch ref := v.(type) {
		case domain.Ref:
			return ref, nil
		case string:
			return domain.Ref{Table: f.Target, ID: domain.RecordID(ref)}, nil
		case domain.RecordID:
			return domain.Ref{Table: f.Target, ID: ref}, nil
		}
	}
	return nil, fmt.Errorf("%w: value %v (%T) is not a valid %s", domain.ErrIllegalArgument, v, v, f.Type)
}

// ToFloat64 converts various numeric types to float64 for comparison
func ToFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt64 converts integral numeric values to int64. Floats are accepted only
// when they carry no fractional part, which is how JSON numbers arrive.
func ToInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		// 2^63 is exact in float64; anything at or beyond it does not fit
		if v < -(1<<63) || v >= 1<<63 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return ToInt64(float64(v))
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// File is the JSON layout of a schema file.
type File struct {
	Tables []Table `json:"tables"`
}

// Load reads table definitions from JSON and defines them in the registry.
func (r *Registry) Load(reader io.Reader) error {
	var file File
	if err := json.NewDecoder(reader).Decode(&file); err != nil {
		return fmt.Errorf("failed to decode schema: %w", err)
	}
	for _, t := range file.Tables {
		if err := r.Define(t); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile reads table definitions from a JSON file.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}
