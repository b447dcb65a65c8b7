package realm

import (
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/adfharrison1/livedb/pkg/query"
)

// Option configures a Realm.
type Option func(*Realm)

// WithWorkers sets the size of the background evaluation pool created for the realm.
func WithWorkers(n int) Option {
	return func(r *Realm) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithPool evaluates live results on a pool shared with other realms. The
// pool is not released when the realm closes.
func WithPool(pool *ants.Pool) Option {
	return func(r *Realm) {
		r.pool = pool
	}
}

// WithEngine sets the query engine, typically to share an index engine.
func WithEngine(engine *query.Engine) Option {
	return func(r *Realm) {
		r.engine = engine
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Realm) {
		r.logger = logger
	}
}
