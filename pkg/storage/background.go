package storage

import (
	"runtime"
	"time"

	"github.com/adfharrison1/livedb/pkg/metrics"
)

// GetMemoryStats returns current memory usage statistics
func (s *Store) GetMemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, versions := 0, 0
	for _, t := range s.tables {
		for _, chain := range t.chains {
			records++
			for cur := chain.head; cur != nil; cur = cur.next {
				versions++
			}
		}
	}

	return map[string]interface{}{
		"alloc_mb":        m.Alloc / 1024 / 1024,
		"sys_mb":          m.Sys / 1024 / 1024,
		"num_goroutines":  runtime.NumGoroutine(),
		"tables":          len(s.tables),
		"record_chains":   records,
		"record_versions": versions,
		"version":         s.current,
		"pinned_versions": len(s.pins),
	}
}

// CollectGarbage prunes record versions that neither the head nor any pinned
// snapshot can observe. It returns the number of versions removed.
func (s *Store) CollectGarbage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	oldest := s.oldestPinnedLocked()
	removed := 0
	for _, t := range s.tables {
		removed += t.prune(oldest)
	}
	if removed > 0 {
		metrics.VersionsPruned.Add(float64(removed))
		s.logger.Debug("garbage collected record versions", "removed", removed, "oldest_pinned", oldest)
	}
	return removed
}

func (s *Store) startBackgroundWorkers() {
	if s.backgroundSave && s.checkpointFile != "" && s.saveInterval > 0 {
		s.backgroundWg.Add(1)
		go func() {
			defer s.backgroundWg.Done()
			ticker := time.NewTicker(s.saveInterval)
			defer ticker.Stop()

			var saved uint64
			for {
				select {
				case <-ticker.C:
					current, err := s.CurrentVersion()
					if err != nil || current == saved {
						continue
					}
					if err := s.SaveToFile(s.checkpointPath()); err != nil {
						s.logger.Error("background checkpoint failed", "error", err)
						continue
					}
					saved = current
				case <-s.stopChan:
					return
				}
			}
		}()
	}

	if s.gcInterval > 0 {
		s.backgroundWg.Add(1)
		go func() {
			defer s.backgroundWg.Done()
			ticker := time.NewTicker(s.gcInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					s.CollectGarbage()
				case <-s.stopChan:
					return
				}
			}
		}()
	}
}

func (s *Store) stopBackgroundWorkers() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.backgroundWg.Wait()
}
