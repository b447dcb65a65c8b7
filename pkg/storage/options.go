package storage

import (
	"log/slog"
	"time"
)

type StorageOption func(*Store)

// WithDataDir sets the directory checkpoint files are resolved against.
func WithDataDir(dir string) StorageOption {
	return func(s *Store) {
		s.dataDir = dir
	}
}

// WithCheckpointFile enables loading the store from, and saving it to, a checkpoint file.
// Relative paths are resolved against the data directory.
func WithCheckpointFile(name string) StorageOption {
	return func(s *Store) {
		s.checkpointFile = name
	}
}

// WithBackgroundSave saves a checkpoint on every interval. Requires WithCheckpointFile.
func WithBackgroundSave(interval time.Duration) StorageOption {
	return func(s *Store) {
		s.backgroundSave = true
		s.saveInterval = interval
	}
}

// WithGCInterval sets how often unreachable record versions are pruned. Zero disables background GC.
func WithGCInterval(interval time.Duration) StorageOption {
	return func(s *Store) {
		s.gcInterval = interval
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) StorageOption {
	return func(s *Store) {
		s.logger = logger
	}
}
