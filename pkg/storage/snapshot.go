package storage

import (
	"fmt"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// Snapshot is a stable read view of every table at one committed version.
//
// Snapshots are reference counted. While referenced, they keep the versions
// they observe from being garbage collected.
type Snapshot struct {
	store   *Store
	version uint64
	refs    int // guarded by store.mu
}

var _ domain.View = (*Snapshot)(nil)

// Version returns the committed version observed by the snapshot.
func (sn *Snapshot) Version() uint64 {
	return sn.version
}

// Retain adds a reference. Each Retain must be paired with a Release.
func (sn *Snapshot) Retain() error {
	sn.store.mu.Lock()
	defer sn.store.mu.Unlock()
	if sn.store.closed {
		return domain.ErrConnectionClosed
	}
	return sn.retainLocked()
}

func (sn *Snapshot) retainLocked() error {
	if sn.refs <= 0 {
		return fmt.Errorf("%w: snapshot %d already released", domain.ErrIllegalState, sn.version)
	}
	sn.refs++
	sn.store.pins[sn.version]++
	return nil
}

// Release drops a reference. Releasing more often than retained is a no-op.
func (sn *Snapshot) Release() {
	sn.store.mu.Lock()
	defer sn.store.mu.Unlock()
	if sn.refs <= 0 {
		return
	}
	sn.refs--
	if sn.refs == 0 {
		sn.store.unpinLocked(sn.version)
		return
	}
	sn.store.pins[sn.version]--
}

// Released reports whether every reference was dropped.
func (sn *Snapshot) Released() bool {
	sn.store.mu.RLock()
	defer sn.store.mu.RUnlock()
	return sn.refs <= 0
}

func (sn *Snapshot) checkLocked() error {
	if sn.store.closed {
		return domain.ErrConnectionClosed
	}
	if sn.refs <= 0 {
		return fmt.Errorf("%w: snapshot %d already released", domain.ErrIllegalState, sn.version)
	}
	return nil
}

// Scan visits live records of a table in insertion order. Records must not be modified.
func (sn *Snapshot) Scan(tableName string, fn func(id domain.RecordID, rec domain.Record) bool) error {
	sn.store.mu.RLock()
	defer sn.store.mu.RUnlock()
	if err := sn.checkLocked(); err != nil {
		return err
	}
	t, ok := sn.store.tables[tableName]
	if !ok {
		return nil
	}
	t.scan(sn.version, fn)
	return nil
}

// Get returns a live record by id, or false when absent at this version.
func (sn *Snapshot) Get(tableName string, id domain.RecordID) (domain.Record, bool) {
	sn.store.mu.RLock()
	defer sn.store.mu.RUnlock()
	if sn.checkLocked() != nil {
		return nil, false
	}
	t, ok := sn.store.tables[tableName]
	if !ok {
		return nil, false
	}
	return t.get(id, sn.version)
}

// Count returns the number of live records in a table.
func (sn *Snapshot) Count(tableName string) (int, error) {
	n := 0
	err := sn.Scan(tableName, func(domain.RecordID, domain.Record) bool {
		n++
		return true
	})
	return n, err
}

// Stable reports that the snapshot's contents never change, so derived
// structures such as indexes may be cached by version.
func (sn *Snapshot) Stable() bool {
	return true
}
