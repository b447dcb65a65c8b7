package aggregate

import (
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Number is a numeric aggregate in the kind of its field. Present is false
// for "no value".
type Number struct {
	Kind    schema.FieldType
	Int     int64
	Float   float64
	Present bool
}

// Float64 returns the value as a float64.
func (n Number) Float64() float64 {
	if n.Kind == schema.TypeInt {
		return float64(n.Int)
	}
	return n.Float
}

// Value returns the value as int64 or float64, or nil when absent.
func (n Number) Value() interface{} {
	if !n.Present {
		return nil
	}
	if n.Kind == schema.TypeInt {
		return n.Int
	}
	return n.Float
}

func (n Number) String() string {
	switch {
	case !n.Present:
		return "<none>"
	case n.Kind == schema.TypeInt:
		return strconv.FormatInt(n.Int, 10)
	default:
		return strconv.FormatFloat(n.Float, 'g', -1, 64)
	}
}

func (n Number) less(other Number) bool {
	if n.Kind == schema.TypeInt {
		return n.Int < other.Int
	}
	return n.Float < other.Float
}

// Stats holds one accumulator per statistic, filled by a single linear scan.
type Stats struct {
	Field schema.Field
	// Rows is the number of records scanned, Count the number with a non-null value.
	Rows  int
	Count int

	min, max         Number
	sumInt           int64
	sumFloat         float64
	intTotal         float64 // sumInt without int64 wraparound
	minDate, maxDate time.Time
	hasDate          bool
}

// Collect scans records once and accumulates every statistic for field.
func Collect(field schema.Field, records iter.Seq[domain.Record]) *Stats {
	s := &Stats{Field: field}
	for rec := range records {
		s.Add(rec[field.Name])
	}
	return s
}

// Add folds one value into the accumulators. Nulls and values of the wrong
// kind only count as rows.
func (s *Stats) Add(v interface{}) {
	s.Rows++
	if v == nil {
		return
	}

	switch s.Field.Type {
	case schema.TypeInt:
		n, ok := schema.ToInt64(v)
		if !ok {
			return
		}
		s.sumInt += n
		s.intTotal += float64(n)
		s.addNumber(Number{Kind: schema.TypeInt, Int: n, Present: true})
	case schema.TypeFloat:
		f, ok := schema.ToFloat64(v)
		if !ok {
			return
		}
		s.sumFloat += f
		s.addNumber(Number{Kind: schema.TypeFloat, Float: f, Present: true})
	case schema.TypeDate:
		t, ok := v.(time.Time)
		if !ok {
			return
		}
		s.Count++
		if !s.hasDate || t.Before(s.minDate) {
			s.minDate = t
		}
		if !s.hasDate || t.After(s.maxDate) {
			s.maxDate = t
		}
		s.hasDate = true
	}
}

func (s *Stats) addNumber(n Number) {
	s.Count++
	if !s.min.Present || n.less(s.min) {
		s.min = n
	}
	if !s.max.Present || s.max.less(n) {
		s.max = n
	}
}

// Result is the outcome of one aggregate operation.
type Result struct {
	Op     Op
	Number Number
	Date   time.Time
	// Present is false when the operation yields no value.
	Present bool
}

// Value returns the result as int64, float64 or time.Time, or nil when absent.
func (r Result) Value() interface{} {
	if !r.Present {
		return nil
	}
	if r.Op == OpMinDate || r.Op == OpMaxDate {
		return r.Date
	}
	return r.Number.Value()
}

// Result applies the rule of op to the accumulated statistics.
func (s *Stats) Result(op Op) (Result, error) {
	rule, err := RuleFor(op)
	if err != nil {
		return Result{}, err
	}
	if err := rule.Check(s.Field); err != nil {
		return Result{}, err
	}

	if s.Count == 0 {
		return emptyResult(rule, s.Field), nil
	}

	switch op {
	case OpMin:
		return Result{Op: op, Number: s.min, Present: true}, nil
	case OpMax:
		return Result{Op: op, Number: s.max, Present: true}, nil
	case OpSum:
		sum := Number{Kind: s.Field.Type, Int: s.sumInt, Float: s.sumFloat, Present: true}
		return Result{Op: op, Number: sum, Present: true}, nil
	case OpAverage:
		total := s.sumFloat
		if s.Field.Type == schema.TypeInt {
			total = s.intTotal
		}
		avg := Number{Kind: schema.TypeFloat, Float: total / float64(s.Count), Present: true}
		return Result{Op: op, Number: avg, Present: true}, nil
	case OpMinDate:
		return Result{Op: op, Date: s.minDate, Present: true}, nil
	case OpMaxDate:
		return Result{Op: op, Date: s.maxDate, Present: true}, nil
	}
	return Result{}, fmt.Errorf("%w: unknown aggregate %s", domain.ErrIllegalArgument, op)
}

func emptyResult(rule Rule, f schema.Field) Result {
	switch rule.Empty {
	case EmptyTypedZero:
		return Result{Op: rule.Op, Number: Number{Kind: f.Type, Present: true}, Present: true}
	case EmptyZeroFloat:
		return Result{Op: rule.Op, Number: Number{Kind: schema.TypeFloat, Present: true}, Present: true}
	default:
		return Result{Op: rule.Op}
	}
}
