package session

import (
	"context"

	"github.com/userdesk/userdesk/engine/core"
)

// ToggleSelection flips membership of id in the selection set. Only currently
// loaded items are selectable; toggling anything else is a programming error
// and leaves the selection untouched.
func (s *Store) ToggleSelection(ctx context.Context, id core.ID) {
	if !s.isLoaded(id) {
		core.ReportInvariant(ctx, "selection toggled for unloaded user", "user_id", id)
		return
	}
	s.mu.Lock()
	if _, ok := s.selection[id]; ok {
		delete(s.selection, id)
	} else {
		s.selection[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

// SelectAll selects every currently loaded item. It deliberately covers only
// the loaded slice, never the full remote collection.
func (s *Store) SelectAll() {
	ids := s.feed.ItemIDs()
	s.mu.Lock()
	s.selection = make(map[core.ID]struct{}, len(ids))
	for _, id := range ids {
		s.selection[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

// ClearSelection empties the selection set.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	if len(s.selection) == 0 {
		s.mu.Unlock()
		return
	}
	s.selection = make(map[core.ID]struct{})
	s.mu.Unlock()
	s.notify()
}

// Selection returns the selected ids in stable order.
func (s *Store) Selection() []core.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

// IsSelected reports membership.
func (s *Store) IsSelected(id core.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selection[id]
	return ok
}

func (s *Store) isLoaded(id core.ID) bool {
	for _, cur := range s.feed.ItemIDs() {
		if cur == id {
			return true
		}
	}
	return false
}
