package realm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/metrics"
	"github.com/adfharrison1/livedb/pkg/query"
	"github.com/adfharrison1/livedb/pkg/storage"
)

// task carries a background evaluation to the owner goroutine. It holds one
// reference on snap.
type task struct {
	results *Results
	set     domain.ResultSet
	snap    *storage.Snapshot
}

// scheduler re-evaluates the live results of one realm after every commit.
// Evaluation runs on the pool against immutable snapshots; results queue up
// until the owner drains them on Tick.
type scheduler struct {
	store  *storage.Store
	engine *query.Engine
	pool   *ants.Pool
	logger *slog.Logger
	wake   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	live      map[*Results]*query.Compiled
	initial   map[*Results]struct{}
	requested uint64
	evaluated uint64
	running   bool
	retry     bool
	stopped   bool
	tasks     []task
}

func newScheduler(store *storage.Store, engine *query.Engine, pool *ants.Pool, logger *slog.Logger) *scheduler {
	version, _ := store.CurrentVersion()
	return &scheduler{
		store:     store,
		engine:    engine,
		pool:      pool,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		live:      make(map[*Results]*query.Compiled),
		initial:   make(map[*Results]struct{}),
		requested: version,
		evaluated: version,
	}
}

func (s *scheduler) register(res *Results, c *query.Compiled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[res] = c
}

func (s *scheduler) unregister(res *Results) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, res)
	delete(s.initial, res)
}

// request schedules a first evaluation of res regardless of new commits.
func (s *scheduler) request(res *Results) {
	s.mu.Lock()
	s.initial[res] = struct{}{}
	start := s.claimLocked()
	s.mu.Unlock()
	if start {
		s.submit()
	}
}

// onCommit is the store subscriber. It runs on the committing goroutine.
func (s *scheduler) onCommit(version uint64) {
	s.mu.Lock()
	if version > s.requested {
		s.requested = version
	}
	start := s.claimLocked()
	s.mu.Unlock()
	if start {
		s.submit()
	}
}

// claimLocked marks an evaluation as running. The caller must submit it
// after unlocking.
func (s *scheduler) claimLocked() bool {
	if s.running || s.stopped {
		return false
	}
	s.running = true
	s.wg.Add(1)
	return true
}

func (s *scheduler) submit() {
	if err := s.pool.Submit(s.run); err != nil {
		s.mu.Lock()
		s.running = false
		s.retry = true
		s.mu.Unlock()
		s.wg.Done()
		s.logger.Debug("evaluation deferred to next tick", "error", err)
	}
}

// next picks the results to evaluate: all of them after a new commit,
// otherwise only first-time requests.
func (s *scheduler) next() (targets map[*Results]*query.Compiled, full bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.running = false
		return nil, false, false
	}

	full = s.requested > s.evaluated
	targets = make(map[*Results]*query.Compiled)
	if full {
		for res, c := range s.live {
			targets[res] = c
		}
	} else {
		for res := range s.initial {
			if c, live := s.live[res]; live {
				targets[res] = c
			}
		}
	}
	s.initial = make(map[*Results]struct{})

	if !full && len(targets) == 0 {
		s.running = false
		return nil, false, false
	}
	return targets, full, true
}

func (s *scheduler) run() {
	defer s.wg.Done()
	for {
		targets, full, ok := s.next()
		if !ok {
			return
		}

		snap, err := s.store.OpenSnapshot()
		if err != nil {
			s.logger.Debug("stopping evaluation", "error", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
		if full {
			s.mu.Lock()
			if snap.Version() > s.evaluated {
				s.evaluated = snap.Version()
			}
			s.mu.Unlock()
		}

		for res, c := range targets {
			set, err := s.engine.Evaluate(context.Background(), c, snap)
			if err != nil {
				s.logger.Warn("live results evaluation failed", "table", c.Table, "error", err)
				continue
			}
			if err := snap.Retain(); err != nil {
				break
			}
			s.post(task{results: res, set: set, snap: snap})
		}
		snap.Release()
	}
}

func (s *scheduler) post(t task) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		t.snap.Release()
		return
	}
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	metrics.PendingTasks.Inc()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain hands the queued tasks to the owner and resubmits work the pool
// turned away.
func (s *scheduler) drain() []task {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	start := false
	if s.retry {
		s.retry = false
		start = s.claimLocked()
	}
	s.mu.Unlock()

	metrics.PendingTasks.Sub(float64(len(tasks)))
	if start {
		s.submit()
	}
	return tasks
}

func (s *scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		t.snap.Release()
	}
	metrics.PendingTasks.Sub(float64(len(s.tasks)))
	s.tasks = nil
}
