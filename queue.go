package copydesk

import (
	"log"
	"sync"
)

// ChangeQueue is the ordered, deduplicated set of pending edits shared by
// every edit surface (post editor, theme editor, SEO optimizer, image
// uploader). Records are keyed by (kind, targetKey); enqueueing an existing
// key replaces the payload in place (last write wins) while keeping the
// record's original FIFO position and CreatedAt.
//
// The in-memory state is authoritative for the process. When backed by a
// Store, every mutation is written through while the queue lock is held, so
// the store applies mutations in the same order as memory and a reload never
// resurrects a removed record or an overwritten payload. A persistence
// failure is logged and does not fail the mutation.
type ChangeQueue struct {
	mu      sync.Mutex
	records map[string]ChangeRecord
	order   []string // ids in first-insertion order
	store   *Store   // nil for a purely in-memory queue
}

// NewChangeQueue creates an empty queue. store may be nil.
func NewChangeQueue(store *Store) *ChangeQueue {
	return &ChangeQueue{
		records: make(map[string]ChangeRecord),
		store:   store,
	}
}

// Load replaces the queue contents with the records persisted in the store,
// in stored insertion order. Called once at startup.
func (q *ChangeQueue) Load() error {
	if q.store == nil {
		return nil
	}
	records, err := q.store.ListChanges()
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = make(map[string]ChangeRecord, len(records))
	q.order = q.order[:0]
	for _, r := range records {
		q.records[r.ID] = r
		q.order = append(q.order, r.ID)
	}
	return nil
}

// Enqueue upserts a record. For an existing (kind, targetKey) the payload,
// label, and UpdatedAt are replaced; CreatedAt and queue position are kept.
// Same-key races resolve to whichever caller acquires the lock last.
func (q *ChangeQueue) Enqueue(record ChangeRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.records[record.ID]; ok {
		record.CreatedAt = prev.CreatedAt
	} else {
		q.order = append(q.order, record.ID)
	}
	q.records[record.ID] = record

	if q.store != nil {
		if err := q.store.SaveChange(record); err != nil {
			log.Printf("copydesk: persist change %s: %v", record.ID, err)
		}
	}
}

// List returns a snapshot of all pending records in insertion order. The
// returned slice is owned by the caller; repeated calls are side-effect
// free.
func (q *ChangeQueue) List() []ChangeRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ChangeRecord, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.records[id])
	}
	return out
}

// Get returns the record with the given id.
func (q *ChangeQueue) Get(id string) (ChangeRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.records[id]
	return r, ok
}

// Len returns the number of pending records.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Counts returns pending record counts per category. Display only; the
// ordered List snapshot is the authoritative view.
func (q *ChangeQueue) Counts() map[Category]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[Category]int)
	for _, r := range q.records {
		counts[r.Kind.Category()]++
	}
	return counts
}

// Remove deletes exactly the records with the given ids. Ids not present are
// ignored. The deploy coordinator uses this to clear only the snapshot it
// flushed, so records enqueued during a deploy survive.
func (q *ChangeQueue) Remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.order[:0]
	for _, id := range q.order {
		if _, gone := drop[id]; gone {
			delete(q.records, id)
		} else {
			kept = append(kept, id)
		}
	}
	q.order = kept

	if q.store != nil {
		if err := q.store.DeleteChanges(ids); err != nil {
			log.Printf("copydesk: delete persisted changes: %v", err)
		}
	}
}

// Clear removes every pending record. Used for explicit discard-all.
func (q *ChangeQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = make(map[string]ChangeRecord)
	q.order = nil

	if q.store != nil {
		if err := q.store.ClearChanges(); err != nil {
			log.Printf("copydesk: clear persisted changes: %v", err)
		}
	}
}
