package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/metrics"
)

// stagedTable holds uncommitted writes to one table.
type stagedTable struct {
	writes  map[domain.RecordID]domain.Record // nil value stages a delete
	inserts []domain.RecordID                 // ids not live at base, in staging order
}

// WriteTxn is the single write scope of a store. Writes are invisible to
// snapshots until Commit.
type WriteTxn struct {
	store  *Store
	base   *Snapshot
	staged map[string]*stagedTable
	done   bool
}

// BeginWrite blocks until no other write transaction is active and starts a new one
// based on the latest committed version.
func (s *Store) BeginWrite() (*WriteTxn, error) {
	s.writeMu.Lock()

	base, err := s.OpenSnapshot()
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}

	return &WriteTxn{
		store:  s,
		base:   base,
		staged: make(map[string]*stagedTable),
	}, nil
}

// BaseVersion returns the committed version the transaction started from.
func (tx *WriteTxn) BaseVersion() uint64 {
	return tx.base.version
}

func (tx *WriteTxn) check() error {
	if tx.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrIllegalState)
	}
	if !tx.store.IsOpen() {
		return domain.ErrConnectionClosed
	}
	return nil
}

func (tx *WriteTxn) stagedFor(tableName string) *stagedTable {
	st, ok := tx.staged[tableName]
	if !ok {
		st = &stagedTable{writes: make(map[domain.RecordID]domain.Record)}
		tx.staged[tableName] = st
	}
	return st
}

// lookup returns the record as seen by this transaction.
func (tx *WriteTxn) lookup(tableName string, id domain.RecordID) (domain.Record, bool) {
	if st, ok := tx.staged[tableName]; ok {
		if rec, staged := st.writes[id]; staged {
			return rec, rec != nil
		}
	}
	return tx.base.Get(tableName, id)
}

// Insert stages a new record. An identifier is generated when the record has none.
func (tx *WriteTxn) Insert(tableName string, rec domain.Record) (domain.RecordID, error) {
	if err := tx.check(); err != nil {
		return "", err
	}
	if tableName == "" {
		return "", fmt.Errorf("%w: table name cannot be empty", domain.ErrIllegalArgument)
	}

	id := rec.ID()
	if id == "" {
		id = domain.RecordID(uuid.NewString())
	}
	if _, exists := tx.lookup(tableName, id); exists {
		return "", fmt.Errorf("%w: record %s already exists in table %s", domain.ErrIllegalArgument, id, tableName)
	}

	data := rec.Clone()
	if data == nil {
		data = domain.Record{}
	}
	data[domain.IDField] = string(id)

	st := tx.stagedFor(tableName)
	if _, liveAtBase := tx.base.Get(tableName, id); !liveAtBase {
		if _, restaged := st.writes[id]; !restaged {
			st.inserts = append(st.inserts, id)
		}
	}
	st.writes[id] = data
	return id, nil
}

// Update merges changes into an existing record. The identifier cannot change.
func (tx *WriteTxn) Update(tableName string, id domain.RecordID, changes domain.Record) error {
	if err := tx.check(); err != nil {
		return err
	}
	current, ok := tx.lookup(tableName, id)
	if !ok {
		return fmt.Errorf("%w: record %s in table %s", domain.ErrNotFound, id, tableName)
	}

	updated := current.Clone()
	for k, v := range changes {
		if k == domain.IDField {
			continue
		}
		updated[k] = v
	}
	tx.stagedFor(tableName).writes[id] = updated
	return nil
}

// Delete stages the removal of one record.
func (tx *WriteTxn) Delete(tableName string, id domain.RecordID) error {
	return tx.DeleteMany(tableName, []domain.RecordID{id})
}

// DeleteMany stages the removal of every listed record. Nothing is staged
// unless all of them exist.
func (tx *WriteTxn) DeleteMany(tableName string, ids []domain.RecordID) error {
	if err := tx.check(); err != nil {
		return err
	}
	seen := make(map[domain.RecordID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate record %s", domain.ErrIllegalArgument, id)
		}
		seen[id] = struct{}{}
		if _, ok := tx.lookup(tableName, id); !ok {
			return fmt.Errorf("%w: record %s in table %s", domain.ErrNotFound, id, tableName)
		}
	}

	st := tx.stagedFor(tableName)
	for _, id := range ids {
		st.writes[id] = nil
	}
	return nil
}

// Pending reports whether the transaction staged any write.
func (tx *WriteTxn) Pending() bool {
	for _, st := range tx.staged {
		if len(st.writes) > 0 {
			return true
		}
	}
	return false
}

// View returns a read view of the base version with this transaction's writes applied.
// It is only valid until Commit or Rollback.
func (tx *WriteTxn) View() domain.View {
	return &txnView{tx: tx}
}

// Commit publishes the staged writes as a new version and returns it.
// A transaction without writes commits nothing and returns the base version.
func (tx *WriteTxn) Commit() (uint64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	if !tx.Pending() {
		version := tx.base.version
		tx.finish()
		return version, nil
	}

	s := tx.store
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		tx.finish()
		return 0, domain.ErrConnectionClosed
	}
	version := s.current + 1
	for tableName, st := range tx.staged {
		t, ok := s.tables[tableName]
		if !ok {
			t = newTable(tableName)
			s.tables[tableName] = t
		}
		// Records already live at base first, then new inserts in staging order.
		inserted := make(map[domain.RecordID]struct{}, len(st.inserts))
		for _, id := range st.inserts {
			inserted[id] = struct{}{}
		}
		for id, data := range st.writes {
			if _, isInsert := inserted[id]; isInsert {
				continue
			}
			t.apply(id, data, version, s.nextSeqLocked)
		}
		for _, id := range st.inserts {
			if data, ok := st.writes[id]; ok && data != nil {
				t.apply(id, data, version, s.nextSeqLocked)
			}
		}
	}
	s.current = version
	s.mu.Unlock()

	// Subscribers run after the writer lock is released so they may open snapshots.
	tx.finish()

	metrics.CommitsTotal.Inc()
	metrics.CommittedVersion.Set(float64(version))
	s.logger.Debug("write transaction committed", "version", version)

	s.notify(version)
	return version, nil
}

// Rollback discards every staged write.
func (tx *WriteTxn) Rollback() {
	if tx.done {
		return
	}
	tx.finish()
}

func (tx *WriteTxn) finish() {
	tx.done = true
	tx.staged = nil
	tx.base.Release()
	tx.store.writeMu.Unlock()
}

// txnView overlays staged writes on the transaction's base snapshot.
type txnView struct {
	tx *WriteTxn
}

func (v *txnView) Version() uint64 {
	return v.tx.base.version + 1
}

func (v *txnView) Get(tableName string, id domain.RecordID) (domain.Record, bool) {
	if v.tx.done {
		return nil, false
	}
	return v.tx.lookup(tableName, id)
}

func (v *txnView) Scan(tableName string, fn func(id domain.RecordID, rec domain.Record) bool) error {
	if v.tx.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrIllegalState)
	}
	st := v.tx.staged[tableName]

	stopped := false
	err := v.tx.base.Scan(tableName, func(id domain.RecordID, rec domain.Record) bool {
		if st != nil {
			if staged, ok := st.writes[id]; ok {
				if staged == nil {
					return true
				}
				rec = staged
			}
		}
		if !fn(id, rec) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil || stopped || st == nil {
		return err
	}

	for _, id := range st.inserts {
		rec, ok := st.writes[id]
		if !ok || rec == nil {
			continue
		}
		if !fn(id, rec) {
			return nil
		}
	}
	return nil
}
