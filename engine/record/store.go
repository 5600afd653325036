package record

import (
	"sync"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/user"
)

// -----------------------------------------------------------------------------
// Change events
// -----------------------------------------------------------------------------

// ChangeKind discriminates store change notifications.
type ChangeKind string

const (
	ChangeUpsert    ChangeKind = "upsert"
	ChangeRemove    ChangeKind = "remove"
	ChangeReplaceID ChangeKind = "replace_id"
)

// Change describes one store mutation. OldID is set only for ChangeReplaceID.
type Change struct {
	Kind  ChangeKind
	ID    core.ID
	OldID core.ID
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the normalized in-memory map of user records, keyed by id and kept
// in first-seen order. It is mutated by the pagination and mutation engines
// only; the rendering layer reads it through the session store.
type Store struct {
	mu      sync.RWMutex
	records map[core.ID]*user.User
	order   []core.ID
	subs    map[int64]func(Change)
	nextSub int64
}

func NewStore() *Store {
	return &Store{
		records: make(map[core.ID]*user.User),
		subs:    make(map[int64]func(Change)),
	}
}

// Upsert inserts u or merges it over the existing record with the same id.
// The merge follows the last-writer rule: an incoming record older than the
// stored one (by UpdatedAt) is dropped, so a slow page fetch can never clobber
// a newer optimistic or server-confirmed state. Reports whether the store
// changed.
func (s *Store) Upsert(u *user.User) bool {
	if u == nil || u.ID.IsZero() {
		return false
	}
	in := u.Clone()
	in.Normalize()
	s.mu.Lock()
	existing, ok := s.records[in.ID]
	if ok && in.UpdatedAt.Before(existing.UpdatedAt) {
		s.mu.Unlock()
		return false
	}
	if !ok {
		s.order = append(s.order, in.ID)
	}
	s.records[in.ID] = in
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, Change{Kind: ChangeUpsert, ID: in.ID})
	return true
}

// Restore writes u verbatim, bypassing the last-writer rule. It exists for
// rollback: the pre-mutation snapshot must be restored exactly even though
// its UpdatedAt predates the optimistic write. A record whose id is no longer
// present is re-appended as the newest entry.
func (s *Store) Restore(u *user.User) {
	if u == nil || u.ID.IsZero() {
		return
	}
	in := u.Clone()
	in.Normalize()
	s.mu.Lock()
	if _, ok := s.records[in.ID]; !ok {
		s.order = append(s.order, in.ID)
	}
	s.records[in.ID] = in
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, Change{Kind: ChangeUpsert, ID: in.ID})
}

// Remove deletes the record. Reports whether it was present.
func (s *Store) Remove(id core.ID) bool {
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.records, id)
	s.dropFromOrder(id)
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, Change{Kind: ChangeRemove, ID: id})
	return true
}

// ReplaceID rewrites a record's identity in place, preserving its position in
// first-seen order. Used when a server-issued id supersedes a temporary one.
// If newID is already present (the confirmed record arrived via a page fetch
// before the rewrite), the existing entry wins and the old one is dropped, so
// the order slice never holds an id twice.
func (s *Store) ReplaceID(oldID, newID core.ID) bool {
	if oldID == newID || newID.IsZero() {
		return false
	}
	s.mu.Lock()
	rec, ok := s.records[oldID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.records, oldID)
	if _, taken := s.records[newID]; taken {
		s.dropFromOrder(oldID)
	} else {
		rec.ID = newID
		s.records[newID] = rec
		for i, id := range s.order {
			if id == oldID {
				s.order[i] = newID
				break
			}
		}
	}
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, Change{Kind: ChangeReplaceID, ID: newID, OldID: oldID})
	return true
}

// Get returns a copy of the record, if present.
func (s *Store) Get(id core.ID) (*user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Has reports presence without copying.
func (s *Store) Has(id core.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// All returns copies of every record in first-seen order.
func (s *Store) All() []*user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*user.User, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Subscribe registers fn for change notifications and returns the matching
// unsubscribe. Callbacks run outside the store lock and may re-enter the
// store.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) dropFromOrder(id core.ID) {
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// subscribers snapshots the callback list; caller must hold the lock.
func (s *Store) subscribers() []func(Change) {
	out := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Change), ch Change) {
	for _, fn := range subs {
		fn(ch)
	}
}
