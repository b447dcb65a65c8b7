package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/logger"
	"github.com/adfharrison1/livedb/pkg/metrics"
)

// Store is an in-memory versioned record store. Every commit produces a new
// version; snapshots read a fixed version until released.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]*table
	current uint64 // latest committed version
	seq     uint64 // insertion sequence, shared by all tables
	pins    map[uint64]int
	closed  bool

	// Single writer
	writeMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[int]func(version uint64)
	nextSubID   int

	// Configuration
	dataDir        string
	checkpointFile string
	backgroundSave bool
	saveInterval   time.Duration
	gcInterval     time.Duration
	logger         *slog.Logger

	// Background workers
	backgroundWg sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// Open creates a store, loading the checkpoint file when one is configured and exists.
func Open(options ...StorageOption) (*Store, error) {
	s := &Store{
		tables:       make(map[string]*table),
		pins:         make(map[uint64]int),
		subscribers:  make(map[int]func(uint64)),
		dataDir:      ".",
		saveInterval: 5 * time.Minute,
		gcInterval:   time.Minute,
		stopChan:     make(chan struct{}),
	}

	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if s.checkpointFile != "" {
		if err := s.loadCheckpoint(s.checkpointPath()); err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
	}

	s.startBackgroundWorkers()
	s.logger.Info("store opened", "version", s.current, "tables", len(s.tables))
	return s, nil
}

// IsOpen reports whether Close has not been called yet.
func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// CurrentVersion returns the latest committed version.
func (s *Store) CurrentVersion() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, domain.ErrConnectionClosed
	}
	return s.current, nil
}

// OpenSnapshot pins the latest committed version.
func (s *Store) OpenSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrConnectionClosed
	}
	return s.pinLocked(s.current), nil
}

// Advance returns a snapshot of the latest committed version. If nothing was
// committed since snap was taken, snap itself is returned with an extra reference.
// Either way the caller still owns, and must release, snap.
func (s *Store) Advance(snap *Snapshot) (*Snapshot, error) {
	if snap == nil || snap.store != s {
		return nil, fmt.Errorf("%w: snapshot does not belong to this store", domain.ErrIllegalArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrConnectionClosed
	}
	if snap.version >= s.current {
		if err := snap.retainLocked(); err != nil {
			return nil, err
		}
		return snap, nil
	}
	return s.pinLocked(s.current), nil
}

// Subscribe registers fn to be called after every commit with the new version.
// fn runs on the committing goroutine and must not block.
func (s *Store) Subscribe(fn func(version uint64)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(version uint64) {
	s.subMu.RLock()
	subs := make([]func(uint64), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(version)
	}
}

// Tables returns the names of tables that have ever held a record.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}

// Close stops background workers, writes a final checkpoint when configured
// and fails every later call with ErrConnectionClosed.
func (s *Store) Close() error {
	s.stopBackgroundWorkers()

	// Wait for an in-flight writer
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var saveErr error
	if s.checkpointFile != "" {
		saveErr = s.SaveToFile(s.checkpointPath())
	}

	s.mu.Lock()
	s.closed = true
	s.tables = make(map[string]*table)
	s.mu.Unlock()

	s.logger.Info("store closed")
	return saveErr
}

func (s *Store) checkpointPath() string {
	if filepath.IsAbs(s.checkpointFile) {
		return s.checkpointFile
	}
	return filepath.Join(s.dataDir, s.checkpointFile)
}

func (s *Store) pinLocked(version uint64) *Snapshot {
	s.pins[version]++
	metrics.PinnedSnapshots.Inc()
	return &Snapshot{store: s, version: version, refs: 1}
}

func (s *Store) unpinLocked(version uint64) {
	s.pins[version]--
	if s.pins[version] <= 0 {
		delete(s.pins, version)
	}
	metrics.PinnedSnapshots.Dec()
}

// oldestPinnedLocked returns the oldest version any reader may still observe.
func (s *Store) oldestPinnedLocked() uint64 {
	oldest := s.current
	for v := range s.pins {
		if v < oldest {
			oldest = v
		}
	}
	return oldest
}

func (s *Store) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}
