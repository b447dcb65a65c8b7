package query

import (
	"strings"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// compareValues orders two stored values of the same field type. ok is false
// when the values are not ordered relative to each other.
func compareValues(a, b interface{}) (cmp int, ok bool) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return compareInt(av, bv), true
		case float64:
			return compareFloat(float64(av), bv), true
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return compareFloat(av, bv), true
		case int64:
			return compareFloat(av, float64(bv)), true
		}
	case string:
		if bv, isStr := b.(string); isStr {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, isTime := b.(time.Time); isTime {
			return av.Compare(bv), true
		}
	case bool:
		if bv, isBool := b.(bool); isBool {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	case domain.Ref:
		if bv, isRef := b.(domain.Ref); isRef {
			if av == bv {
				return 0, true
			}
			return strings.Compare(av.String(), bv.String()), true
		}
	}
	return 0, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// valuesEqual compares two stored values for equality.
func valuesEqual(a, b interface{}, c Case) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c == Insensitive {
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return strings.EqualFold(as, bs)
			}
		}
	}
	cmp, ok := compareValues(a, b)
	return ok && cmp == 0
}

func stringMatch(op Op, value, operand string, c Case) bool {
	if c == Insensitive {
		value = strings.ToLower(value)
		operand = strings.ToLower(operand)
	}
	switch op {
	case OpBeginsWith:
		return strings.HasPrefix(value, operand)
	case OpEndsWith:
		return strings.HasSuffix(value, operand)
	case OpContains:
		return strings.Contains(value, operand)
	default:
		return false
	}
}
