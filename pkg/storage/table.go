package storage

import "github.com/adfharrison1/livedb/pkg/domain"

// recordVersion is one historical state of a record. A nil data marks a deletion.
type recordVersion struct {
	version uint64
	seq     uint64
	data    domain.Record
	next    *recordVersion
}

// recordChain holds the versions of a record, newest first.
type recordChain struct {
	id   domain.RecordID
	head *recordVersion
}

// visible returns the newest version created at or before v.
func (c *recordChain) visible(v uint64) *recordVersion {
	for cur := c.head; cur != nil; cur = cur.next {
		if cur.version <= v {
			return cur
		}
	}
	return nil
}

// orderEntry positions one insertion of a record in table order. A record
// deleted and inserted again gets a second entry with a new seq.
type orderEntry struct {
	chain *recordChain
	seq   uint64
}

type table struct {
	name   string
	chains map[domain.RecordID]*recordChain
	order  []orderEntry
}

func newTable(name string) *table {
	return &table{
		name:   name,
		chains: make(map[domain.RecordID]*recordChain),
	}
}

// get returns the live record visible at v.
func (t *table) get(id domain.RecordID, v uint64) (domain.Record, bool) {
	chain, ok := t.chains[id]
	if !ok {
		return nil, false
	}
	rv := chain.visible(v)
	if rv == nil || rv.data == nil {
		return nil, false
	}
	return rv.data, true
}

// scan visits live records visible at v in insertion order.
func (t *table) scan(v uint64, fn func(id domain.RecordID, rec domain.Record) bool) {
	for _, e := range t.order {
		rv := e.chain.visible(v)
		if rv == nil || rv.data == nil || rv.seq != e.seq {
			continue
		}
		if !fn(e.chain.id, rv.data) {
			return
		}
	}
}

// apply pushes a new version onto the record's chain. Inserts of records that
// are not live at the previous version append a new order entry.
func (t *table) apply(id domain.RecordID, data domain.Record, version uint64, nextSeq func() uint64) {
	chain, ok := t.chains[id]
	if !ok {
		chain = &recordChain{id: id}
		t.chains[id] = chain
	}

	var seq uint64
	if prev := chain.head; prev != nil && prev.data != nil {
		seq = prev.seq
	} else if data != nil {
		seq = nextSeq()
		t.order = append(t.order, orderEntry{chain: chain, seq: seq})
	}

	chain.head = &recordVersion{
		version: version,
		seq:     seq,
		data:    data,
		next:    chain.head,
	}
}

// prune drops versions no reader at or after oldest can observe and returns how many were removed.
func (t *table) prune(oldest uint64) int {
	removed := 0
	for id, chain := range t.chains {
		keep := chain.visible(oldest)
		if keep == nil {
			continue
		}
		for cur := keep.next; cur != nil; cur = cur.next {
			removed++
		}
		keep.next = nil

		if chain.head == keep && keep.data == nil {
			delete(t.chains, id)
			removed++
		}
	}

	if removed == 0 {
		return 0
	}

	order := t.order[:0]
	for _, e := range t.order {
		if t.chains[e.chain.id] != e.chain {
			continue
		}
		if !e.chain.hasSeq(e.seq) {
			continue
		}
		order = append(order, e)
	}
	for i := len(order); i < len(t.order); i++ {
		t.order[i] = orderEntry{}
	}
	t.order = order
	return removed
}

func (c *recordChain) hasSeq(seq uint64) bool {
	for cur := c.head; cur != nil; cur = cur.next {
		if cur.data != nil && cur.seq == seq {
			return true
		}
	}
	return false
}
