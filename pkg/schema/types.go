package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the storage type of a field.
type FieldType int

const (
	TypeInt FieldType = iota + 1
	TypeFloat
	TypeString
	TypeBool
	TypeDate
	TypeObject
)

var fieldTypeNames = map[FieldType]string{
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeString: "string",
	TypeBool:   "bool",
	TypeDate:   "date",
	TypeObject: "object",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// IsNumeric reports whether min/max/sum/average apply to the type.
func (t FieldType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// IsTemporal reports whether minDate/maxDate apply to the type.
func (t FieldType) IsTemporal() bool {
	return t == TypeDate
}

// ParseFieldType parses the textual name used in schema files.
func ParseFieldType(s string) (FieldType, error) {
	for t, name := range fieldTypeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

func (t FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *FieldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Field describes a single typed field of a table.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
	Indexed  bool      `json:"indexed,omitempty"`
	// Target is the referenced table for TypeObject fields.
	Target string `json:"target,omitempty"`
}

// Table describes the fields of one table, in declaration order.
type Table struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`

	byName map[string]int
}

// Field resolves a field by name.
func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// IndexedFields returns the names of fields declared as indexed.
func (t *Table) IndexedFields() []string {
	var names []string
	for _, f := range t.Fields {
		if f.Indexed {
			names = append(names, f.Name)
		}
	}
	return names
}
