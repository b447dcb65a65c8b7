package api

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/query"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Pagination and sort parameters are not filters.
var reservedParams = map[string]bool{
	"limit":  true,
	"offset": true,
	"after":  true,
	"sort":   true,
}

// applyFilters adds one condition per query parameter to q. A parameter is
// either field=value (equality) or field.op=value with op one of ne, gt, gte,
// lt, lte, prefix, suffix, contains, in (comma separated). The literal null
// matches null. sort=a,-b orders by a ascending then b descending.
func applyFilters(q *query.Query, table *schema.Table, params url.Values) (*query.Query, error) {
	keys := make([]string, 0, len(params))
	for key := range params {
		if !reservedParams[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := params.Get(key)
		name, op, _ := strings.Cut(key, ".")
		f, ok := table.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownField, table.Name, name)
		}

		if op == "in" {
			parts := strings.Split(raw, ",")
			values := make([]interface{}, len(parts))
			for i, part := range parts {
				v, err := parseValue(f, part)
				if err != nil {
					return nil, err
				}
				values[i] = v
			}
			q = q.In(name, values...)
			continue
		}

		switch op {
		case "prefix":
			q = q.BeginsWith(name, raw, query.Sensitive)
			continue
		case "suffix":
			q = q.EndsWith(name, raw, query.Sensitive)
			continue
		case "contains":
			q = q.Contains(name, raw, query.Insensitive)
			continue
		}

		v, err := parseValue(f, raw)
		if err != nil {
			return nil, err
		}
		switch op {
		case "":
			q = q.EqualTo(name, v)
		case "ne":
			q = q.NotEqualTo(name, v)
		case "gt":
			q = q.GreaterThan(name, v)
		case "gte":
			q = q.GreaterThanOrEqualTo(name, v)
		case "lt":
			q = q.LessThan(name, v)
		case "lte":
			q = q.LessThanOrEqualTo(name, v)
		default:
			return nil, fmt.Errorf("%w: unknown filter operator %q", domain.ErrIllegalArgument, op)
		}
	}

	if s := params.Get("sort"); s != "" {
		for _, field := range strings.Split(s, ",") {
			desc := strings.HasPrefix(field, "-")
			q = q.Sort(strings.TrimPrefix(field, "-"), desc)
		}
	}
	return q, nil
}

// parseValue converts a query parameter to a value of the field's type.
func parseValue(f schema.Field, raw string) (interface{}, error) {
	if raw == "null" {
		return nil, nil
	}

	var (
		v   interface{}
		err error
	)
	switch f.Type {
	case schema.TypeInt:
		v, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// fractional bounds are valid on int fields
			v, err = strconv.ParseFloat(raw, 64)
		}
	case schema.TypeFloat:
		v, err = strconv.ParseFloat(raw, 64)
	case schema.TypeBool:
		v, err = strconv.ParseBool(raw)
	case schema.TypeDate:
		v, err = time.Parse(time.RFC3339Nano, raw)
	default:
		v = raw
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s value %q for field %s", domain.ErrIllegalArgument, f.Type, raw, f.Name)
	}
	return v, nil
}

// paginationOptions reads limit, offset and after.
func paginationOptions(params url.Values) (*domain.PaginationOptions, error) {
	options := domain.DefaultPaginationOptions()
	options.After = params.Get("after")
	for name, target := range map[string]*int{"limit": &options.Limit, "offset": &options.Offset} {
		raw := params.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s %q", domain.ErrIllegalArgument, name, raw)
		}
		*target = n
	}
	return options, options.Validate()
}
