package query

import (
	"fmt"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Compiled is a predicate whose field names were resolved against the schema.
// It is immutable and may be evaluated against any number of views concurrently.
type Compiled struct {
	Table     string
	Predicate Predicate
	Sort      []SortKey

	root       node
	sortFields []schema.Field
	// equalities are top-level conjunct equality terms usable for index lookups
	equalities []equality
	fields     map[string]schema.Field
}

type equality struct {
	field string
	value interface{}
}

// Field returns the descriptor resolved for a field used by the predicate.
func (c *Compiled) Field(name string) (schema.Field, bool) {
	f, ok := c.fields[name]
	return f, ok
}

// Match reports whether a record satisfies the predicate.
func (c *Compiled) Match(rec domain.Record) bool {
	return c.root.match(rec)
}

type node interface {
	match(rec domain.Record) bool
}

type andNode []node
type orNode []node
type notNode struct{ term node }
type allNode struct{}

func (n andNode) match(rec domain.Record) bool {
	for _, t := range n {
		if !t.match(rec) {
			return false
		}
	}
	return true
}

func (n orNode) match(rec domain.Record) bool {
	for _, t := range n {
		if t.match(rec) {
			return true
		}
	}
	return false
}

func (n notNode) match(rec domain.Record) bool { return !n.term.match(rec) }
func (allNode) match(domain.Record) bool       { return true }

type compareNode struct {
	field    schema.Field
	op       Op
	operands []interface{}
	c        Case
}

func (n compareNode) match(rec domain.Record) bool {
	v := rec[n.field.Name]
	switch n.op {
	case OpIsNull:
		return v == nil
	case OpIsNotNull:
		return v != nil
	case OpEqual:
		return valuesEqual(v, n.operands[0], n.c)
	case OpNotEqual:
		return !valuesEqual(v, n.operands[0], n.c)
	case OpIn:
		for _, o := range n.operands {
			if valuesEqual(v, o, n.c) {
				return true
			}
		}
		return false
	case OpBeginsWith, OpEndsWith, OpContains:
		s, ok := v.(string)
		return ok && stringMatch(n.op, s, n.operands[0].(string), n.c)
	}

	if v == nil {
		return false
	}
	switch n.op {
	case OpGreater:
		cmp, ok := compareValues(v, n.operands[0])
		return ok && cmp > 0
	case OpGreaterOrEqual:
		cmp, ok := compareValues(v, n.operands[0])
		return ok && cmp >= 0
	case OpLess:
		cmp, ok := compareValues(v, n.operands[0])
		return ok && cmp < 0
	case OpLessOrEqual:
		cmp, ok := compareValues(v, n.operands[0])
		return ok && cmp <= 0
	case OpBetween:
		lo, okLo := compareValues(v, n.operands[0])
		hi, okHi := compareValues(v, n.operands[1])
		return okLo && okHi && lo >= 0 && hi <= 0
	}
	return false
}

// Resolver resolves field names of a table to descriptors.
type Resolver interface {
	Field(table, field string) (schema.Field, error)
}

// Compile resolves and type-checks every field of the query.
func (q *Query) Compile(resolver Resolver) (*Compiled, error) {
	pred, sortKeys, err := q.Build()
	if err != nil {
		return nil, err
	}
	return CompilePredicate(resolver, q.table, pred, sortKeys)
}

// CompilePredicate compiles a predicate and sort keys for table.
func CompilePredicate(resolver Resolver, table string, pred Predicate, sortKeys []SortKey) (*Compiled, error) {
	c := &Compiled{
		Table:     table,
		Predicate: pred,
		Sort:      sortKeys,
		fields:    make(map[string]schema.Field),
	}

	root, err := c.compileNode(resolver, pred)
	if err != nil {
		return nil, err
	}
	c.root = root
	c.collectEqualities(pred)

	for _, key := range sortKeys {
		f, err := c.resolve(resolver, key.Field)
		if err != nil {
			return nil, err
		}
		if f.Type == schema.TypeObject {
			return nil, fmt.Errorf("%w: cannot sort on object field %s", domain.ErrIllegalArgument, f.Name)
		}
		c.sortFields = append(c.sortFields, f)
	}
	return c, nil
}

func (c *Compiled) resolve(resolver Resolver, name string) (schema.Field, error) {
	if f, ok := c.fields[name]; ok {
		return f, nil
	}
	f, err := resolver.Field(c.Table, name)
	if err != nil {
		return schema.Field{}, err
	}
	c.fields[name] = f
	return f, nil
}

func (c *Compiled) compileNode(resolver Resolver, p Predicate) (node, error) {
	switch pred := p.(type) {
	case All:
		return allNode{}, nil
	case And:
		out := make(andNode, 0, len(pred.Terms))
		for _, t := range pred.Terms {
			n, err := c.compileNode(resolver, t)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case Or:
		out := make(orNode, 0, len(pred.Terms))
		for _, t := range pred.Terms {
			n, err := c.compileNode(resolver, t)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case Not:
		n, err := c.compileNode(resolver, pred.Term)
		if err != nil {
			return nil, err
		}
		return notNode{term: n}, nil
	case Comparison:
		return c.compileComparison(resolver, pred)
	default:
		return nil, fmt.Errorf("%w: unsupported predicate %T", domain.ErrIllegalArgument, p)
	}
}

func (c *Compiled) compileComparison(resolver Resolver, cmp Comparison) (node, error) {
	f, err := c.resolve(resolver, cmp.Field)
	if err != nil {
		return nil, err
	}

	want := 1
	switch cmp.Op {
	case OpIsNull, OpIsNotNull:
		want = 0
	case OpBetween:
		want = 2
	case OpIn:
		want = -1
	}
	if want >= 0 && len(cmp.Values) != want {
		return nil, fmt.Errorf("%w: %s on %s expects %d value(s), got %d", domain.ErrIllegalArgument, cmp.Op, f.Name, want, len(cmp.Values))
	}

	switch cmp.Op {
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpBetween:
		if !f.Type.IsNumeric() && !f.Type.IsTemporal() {
			return nil, fmt.Errorf("%w: %s is not supported on %s field %s", domain.ErrIllegalArgument, cmp.Op, f.Type, f.Name)
		}
	case OpBeginsWith, OpEndsWith, OpContains:
		if f.Type != schema.TypeString {
			return nil, fmt.Errorf("%w: %s is only supported on string fields, %s is %s", domain.ErrIllegalArgument, cmp.Op, f.Name, f.Type)
		}
	case OpEqual, OpNotEqual:
		if cmp.Case == Insensitive && f.Type != schema.TypeString {
			return nil, fmt.Errorf("%w: case-insensitive comparison on non-string field %s", domain.ErrIllegalArgument, f.Name)
		}
	}

	operands := make([]interface{}, len(cmp.Values))
	nullable := f
	nullable.Nullable = true
	for i, v := range cmp.Values {
		norm, err := normalizeOperand(f, nullable, cmp.Op, v)
		if err != nil {
			return nil, err
		}
		operands[i] = norm
	}
	return compareNode{field: f, op: cmp.Op, operands: operands, c: cmp.Case}, nil
}

// normalizeOperand converts an operand to the field's stored representation.
// Numeric fields accept any numeric operand so int fields can be compared with
// fractional bounds.
func normalizeOperand(f, nullable schema.Field, op Op, v interface{}) (interface{}, error) {
	if v == nil {
		if op == OpIn {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s on %s does not accept null", domain.ErrIllegalArgument, op, f.Name)
	}
	if f.Type.IsNumeric() {
		if n, ok := schema.ToInt64(v); ok && f.Type == schema.TypeInt {
			return n, nil
		}
		if n, ok := schema.ToFloat64(v); ok {
			return n, nil
		}
	}
	norm, err := schema.Normalize(nullable, v)
	if err != nil {
		return nil, fmt.Errorf("operand for %s: %w", f.Name, err)
	}
	return norm, nil
}

// collectEqualities records equality terms reachable through top-level ANDs.
func (c *Compiled) collectEqualities(p Predicate) {
	switch pred := p.(type) {
	case And:
		for _, t := range pred.Terms {
			c.collectEqualities(t)
		}
	case Comparison:
		if pred.Op == OpEqual && pred.Case == Sensitive {
			f := c.fields[pred.Field]
			if v, err := normalizeOperand(f, f, pred.Op, pred.Values[0]); err == nil {
				c.equalities = append(c.equalities, equality{field: pred.Field, value: v})
			}
		}
	}
}
