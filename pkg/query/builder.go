package query

import (
	"fmt"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// group accumulates the terms between BeginGroup and EndGroup. Terms are kept
// in disjunctive form: AND binds tighter than OR.
type group struct {
	disjuncts [][]Predicate
	pendingOr bool
}

func newGroup() *group {
	return &group{disjuncts: [][]Predicate{nil}}
}

func (g *group) add(p Predicate) {
	last := len(g.disjuncts) - 1
	g.disjuncts[last] = append(g.disjuncts[last], p)
	g.pendingOr = false
}

func (g *group) build() Predicate {
	var ors []Predicate
	for _, terms := range g.disjuncts {
		switch len(terms) {
		case 0:
			continue
		case 1:
			ors = append(ors, terms[0])
		default:
			ors = append(ors, And{Terms: terms})
		}
	}
	switch len(ors) {
	case 0:
		return All{}
	case 1:
		return ors[0]
	default:
		return Or{Terms: ors}
	}
}

// Query builds a predicate over one table. Builder methods record the first
// error and ignore later calls; Build reports it.
type Query struct {
	table      string
	base       Predicate
	stack      []*group
	pendingNot []bool
	sort       []SortKey
	err        error
}

// New starts a query over table, restricted to records matching base (nil for all records).
func New(table string, base Predicate) *Query {
	if base == nil {
		base = All{}
	}
	return &Query{
		table:      table,
		base:       base,
		stack:      []*group{newGroup()},
		pendingNot: []bool{false},
	}
}

// Table returns the table the query runs against.
func (q *Query) Table() string {
	return q.table
}

// Err returns the first builder error.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) fail(format string, args ...interface{}) *Query {
	if q.err == nil {
		q.err = fmt.Errorf("%w: "+format, append([]interface{}{domain.ErrIllegalArgument}, args...)...)
	}
	return q
}

func (q *Query) top() int {
	return len(q.stack) - 1
}

func (q *Query) addTerm(p Predicate) *Query {
	if q.err != nil {
		return q
	}
	i := q.top()
	if q.pendingNot[i] {
		p = Not{Term: p}
		q.pendingNot[i] = false
	}
	q.stack[i].add(p)
	return q
}

func (q *Query) compare(field string, op Op, c Case, values ...interface{}) *Query {
	if field == "" {
		return q.fail("field name cannot be empty")
	}
	return q.addTerm(Comparison{Field: field, Op: op, Values: values, Case: c})
}

// EqualTo matches records whose field equals value. A nil value matches nulls.
func (q *Query) EqualTo(field string, value interface{}) *Query {
	if value == nil {
		return q.IsNull(field)
	}
	return q.compare(field, OpEqual, Sensitive, value)
}

// EqualToFold is EqualTo with case-insensitive string comparison.
func (q *Query) EqualToFold(field string, value string) *Query {
	return q.compare(field, OpEqual, Insensitive, value)
}

// NotEqualTo matches records whose field differs from value, including nulls.
func (q *Query) NotEqualTo(field string, value interface{}) *Query {
	if value == nil {
		return q.IsNotNull(field)
	}
	return q.compare(field, OpNotEqual, Sensitive, value)
}

func (q *Query) GreaterThan(field string, value interface{}) *Query {
	return q.compare(field, OpGreater, Sensitive, value)
}

func (q *Query) GreaterThanOrEqualTo(field string, value interface{}) *Query {
	return q.compare(field, OpGreaterOrEqual, Sensitive, value)
}

func (q *Query) LessThan(field string, value interface{}) *Query {
	return q.compare(field, OpLess, Sensitive, value)
}

func (q *Query) LessThanOrEqualTo(field string, value interface{}) *Query {
	return q.compare(field, OpLessOrEqual, Sensitive, value)
}

// Between matches from <= field <= to.
func (q *Query) Between(field string, from, to interface{}) *Query {
	return q.compare(field, OpBetween, Sensitive, from, to)
}

// In matches records whose field equals any of values.
func (q *Query) In(field string, values ...interface{}) *Query {
	if len(values) == 0 {
		return q.fail("in() needs at least one value for field %s", field)
	}
	return q.compare(field, OpIn, Sensitive, values...)
}

func (q *Query) BeginsWith(field, prefix string, c Case) *Query {
	return q.compare(field, OpBeginsWith, c, prefix)
}

func (q *Query) EndsWith(field, suffix string, c Case) *Query {
	return q.compare(field, OpEndsWith, c, suffix)
}

func (q *Query) Contains(field, substr string, c Case) *Query {
	return q.compare(field, OpContains, c, substr)
}

func (q *Query) IsNull(field string) *Query {
	return q.compare(field, OpIsNull, Sensitive)
}

func (q *Query) IsNotNull(field string) *Query {
	return q.compare(field, OpIsNotNull, Sensitive)
}

// Or makes the next condition an alternative to the conditions before it.
func (q *Query) Or() *Query {
	if q.err != nil {
		return q
	}
	g := q.stack[q.top()]
	last := g.disjuncts[len(g.disjuncts)-1]
	if len(last) == 0 || q.pendingNot[q.top()] {
		return q.fail("or() must follow a condition")
	}
	g.disjuncts = append(g.disjuncts, nil)
	g.pendingOr = true
	return q
}

// Not negates the next condition or group.
func (q *Query) Not() *Query {
	if q.err != nil {
		return q
	}
	i := q.top()
	if q.pendingNot[i] {
		return q.fail("not() cannot be repeated")
	}
	q.pendingNot[i] = true
	return q
}

// BeginGroup opens a parenthesised sub-expression.
func (q *Query) BeginGroup() *Query {
	if q.err != nil {
		return q
	}
	q.stack = append(q.stack, newGroup())
	q.pendingNot = append(q.pendingNot, false)
	return q
}

// EndGroup closes the innermost group.
func (q *Query) EndGroup() *Query {
	if q.err != nil {
		return q
	}
	i := q.top()
	if i == 0 {
		return q.fail("endGroup() without beginGroup()")
	}
	g := q.stack[i]
	if g.pendingOr || q.pendingNot[i] {
		return q.fail("group ends with a dangling or()/not()")
	}
	if len(g.disjuncts) == 1 && len(g.disjuncts[0]) == 0 {
		return q.fail("empty group")
	}
	q.stack = q.stack[:i]
	q.pendingNot = q.pendingNot[:i]
	return q.addTerm(g.build())
}

// Sort appends a sort key. Earlier keys take precedence.
func (q *Query) Sort(field string, descending bool) *Query {
	if q.err != nil {
		return q
	}
	if field == "" {
		return q.fail("sort field cannot be empty")
	}
	q.sort = append(q.sort, SortKey{Field: field, Descending: descending})
	return q
}

// Build returns the complete predicate: the base scope AND the built conditions.
func (q *Query) Build() (Predicate, []SortKey, error) {
	if q.err != nil {
		return nil, nil, q.err
	}
	if len(q.stack) != 1 {
		return nil, nil, fmt.Errorf("%w: %d unclosed group(s)", domain.ErrIllegalArgument, len(q.stack)-1)
	}
	if q.stack[0].pendingOr || q.pendingNot[0] {
		return nil, nil, fmt.Errorf("%w: query ends with a dangling or()/not()", domain.ErrIllegalArgument)
	}

	built := q.stack[0].build()
	sort := append([]SortKey(nil), q.sort...)

	if _, all := q.base.(All); all {
		return built, sort, nil
	}
	if _, all := built.(All); all {
		return q.base, sort, nil
	}
	return And{Terms: []Predicate{q.base, built}}, sort, nil
}
