package aggregate

import (
	"fmt"
	"strings"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Op is an aggregate operation.
type Op int

const (
	OpMin Op = iota + 1
	OpMax
	OpSum
	OpAverage
	OpMinDate
	OpMaxDate
)

var opNames = map[Op]string{
	OpMin:     "min",
	OpMax:     "max",
	OpSum:     "sum",
	OpAverage: "average",
	OpMinDate: "mindate",
	OpMaxDate: "maxdate",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp parses an operation name, case-insensitively.
func ParseOp(s string) (Op, error) {
	for op, name := range opNames {
		if strings.EqualFold(s, name) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown aggregate %q", domain.ErrIllegalArgument, s)
}

// Requirement is the field type an operation accepts.
type Requirement int

const (
	RequireNumeric Requirement = iota + 1
	RequireTemporal
)

// EmptyPolicy is what an operation returns when no non-null value was seen.
type EmptyPolicy int

const (
	// EmptyAbsent yields a result with no value.
	EmptyAbsent EmptyPolicy = iota + 1
	// EmptyTypedZero yields zero of the field's numeric kind.
	EmptyTypedZero
	// EmptyZeroFloat yields 0.0.
	EmptyZeroFloat
)

// Rule fixes the accepted field type and empty-input policy of one operation.
type Rule struct {
	Op       Op
	Requires Requirement
	Empty    EmptyPolicy
}

var rules = map[Op]Rule{
	OpMin:     {Op: OpMin, Requires: RequireNumeric, Empty: EmptyAbsent},
	OpMax:     {Op: OpMax, Requires: RequireNumeric, Empty: EmptyAbsent},
	OpSum:     {Op: OpSum, Requires: RequireNumeric, Empty: EmptyTypedZero},
	OpAverage: {Op: OpAverage, Requires: RequireNumeric, Empty: EmptyZeroFloat},
	OpMinDate: {Op: OpMinDate, Requires: RequireTemporal, Empty: EmptyAbsent},
	OpMaxDate: {Op: OpMaxDate, Requires: RequireTemporal, Empty: EmptyAbsent},
}

// RuleFor returns the rule of op.
func RuleFor(op Op) (Rule, error) {
	r, ok := rules[op]
	if !ok {
		return Rule{}, fmt.Errorf("%w: unknown aggregate %s", domain.ErrIllegalArgument, op)
	}
	return r, nil
}

// Check validates the field against the rule before any record is scanned.
func (r Rule) Check(f schema.Field) error {
	switch r.Requires {
	case RequireNumeric:
		if !f.Type.IsNumeric() {
			return fmt.Errorf("%w: %s requires a numeric field, %s is %s", domain.ErrUnsupportedFieldType, r.Op, f.Name, f.Type)
		}
	case RequireTemporal:
		if !f.Type.IsTemporal() {
			return fmt.Errorf("%w: %s requires a date field, %s is %s", domain.ErrFieldTypeMismatch, r.Op, f.Name, f.Type)
		}
	}
	return nil
}
