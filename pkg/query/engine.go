package query

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/indexing"
	"github.com/adfharrison1/livedb/pkg/metrics"
)

// Engine evaluates compiled queries against views.
type Engine struct {
	indexes *indexing.IndexEngine
}

// NewEngine creates an engine. indexes may be nil, in which case every
// evaluation is a full scan.
func NewEngine(indexes *indexing.IndexEngine) *Engine {
	return &Engine{indexes: indexes}
}

// Indexes returns the index engine used for equality lookups.
func (e *Engine) Indexes() *indexing.IndexEngine {
	return e.indexes
}

type match struct {
	id  domain.RecordID
	rec domain.Record
}

// Evaluate returns the ids of records in view matching c, in insertion order
// unless c carries sort keys. Evaluating the same query against the same
// version always yields the same result.
func (e *Engine) Evaluate(ctx context.Context, c *Compiled, view domain.View) (domain.ResultSet, error) {
	tr := otel.Tracer("livedb/query")
	_, span := tr.Start(ctx, "Engine.Evaluate", trace.WithAttributes(
		attribute.String("table", c.Table),
		attribute.Int64("version", int64(view.Version())),
		attribute.String("predicate", c.Predicate.String()),
	))
	defer span.End()

	start := time.Now()
	matches, indexed, err := e.collect(c, view)
	metrics.QueryDuration.WithLabelValues(c.Table).Observe(time.Since(start).Seconds())
	metrics.QueryEvaluations.WithLabelValues(c.Table, strconv.FormatBool(indexed), metrics.Status(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ResultSet{}, err
	}

	if len(c.sortFields) > 0 {
		sortMatches(matches, c)
	}

	ids := make([]domain.RecordID, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	span.SetAttributes(attribute.Int("matches", len(ids)), attribute.Bool("indexed", indexed))
	return domain.ResultSet{Table: c.Table, Version: view.Version(), IDs: ids}, nil
}

func (e *Engine) collect(c *Compiled, view domain.View) ([]match, bool, error) {
	var matches []match

	if e.indexes != nil {
		for _, eq := range c.equalities {
			idx, ok, err := e.indexes.Lookup(view, c.Table, eq.field)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			for _, id := range idx.Query(eq.value) {
				rec, found := view.Get(c.Table, id)
				if found && c.Match(rec) {
					matches = append(matches, match{id: id, rec: rec})
				}
			}
			return matches, true, nil
		}
	}

	err := view.Scan(c.Table, func(id domain.RecordID, rec domain.Record) bool {
		if c.Match(rec) {
			matches = append(matches, match{id: id, rec: rec})
		}
		return true
	})
	return matches, false, err
}

// sortMatches orders by the sort keys with nulls first in ascending order.
// Ties keep insertion order.
func sortMatches(matches []match, c *Compiled) {
	sort.SliceStable(matches, func(i, j int) bool {
		for k, f := range c.sortFields {
			cmp := compareForSort(matches[i].rec[f.Name], matches[j].rec[f.Name])
			if cmp == 0 {
				continue
			}
			if c.Sort[k].Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareForSort(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	cmp, _ := compareValues(a, b)
	return cmp
}
