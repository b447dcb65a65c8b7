package query

import (
	"fmt"
	"strings"
)

// Op is a comparison operator.
type Op int

const (
	OpEqual Op = iota + 1
	OpNotEqual
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpBetween
	OpIn
	OpBeginsWith
	OpEndsWith
	OpContains
	OpIsNull
	OpIsNotNull
)

var opNames = map[Op]string{
	OpEqual:          "==",
	OpNotEqual:       "!=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpBetween:        "between",
	OpIn:             "in",
	OpBeginsWith:     "beginswith",
	OpEndsWith:       "endswith",
	OpContains:       "contains",
	OpIsNull:         "isnull",
	OpIsNotNull:      "isnotnull",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Case selects string comparison sensitivity.
type Case int

const (
	Sensitive Case = iota
	Insensitive
)

// Predicate is an immutable boolean expression over record fields.
type Predicate interface {
	String() string
	predicate()
}

// Comparison compares one field against operand values.
type Comparison struct {
	Field  string
	Op     Op
	Values []interface{}
	Case   Case
}

// And matches when every term matches. An empty And matches everything.
type And struct {
	Terms []Predicate
}

// Or matches when any term matches. An empty Or matches nothing.
type Or struct {
	Terms []Predicate
}

// Not negates a term.
type Not struct {
	Term Predicate
}

// All matches every record.
type All struct{}

func (Comparison) predicate() {}
func (And) predicate()        {}
func (Or) predicate()         {}
func (Not) predicate()        {}
func (All) predicate()        {}

func (c Comparison) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	suffix := ""
	if c.Case == Insensitive {
		suffix = "[c]"
	}
	return fmt.Sprintf("%s %s%s %s", c.Field, c.Op, suffix, strings.Join(parts, ","))
}

func (a And) String() string { return joinTerms(a.Terms, " AND ", "TRUEPREDICATE") }
func (o Or) String() string  { return joinTerms(o.Terms, " OR ", "FALSEPREDICATE") }
func (n Not) String() string { return "NOT (" + n.Term.String() + ")" }
func (All) String() string   { return "TRUEPREDICATE" }

func joinTerms(terms []Predicate, sep, empty string) string {
	if len(terms) == 0 {
		return empty
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = "(" + t.String() + ")"
	}
	return strings.Join(parts, sep)
}

// SortKey orders results by one field.
type SortKey struct {
	Field      string
	Descending bool
}
