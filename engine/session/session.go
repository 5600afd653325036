package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/romdo/go-debounce"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/feed"
	"github.com/userdesk/userdesk/engine/mutation"
	"github.com/userdesk/userdesk/engine/record"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
)

// Tab identifies one dashboard tab.
type Tab string

const (
	TabUsers    Tab = "users"
	TabActivity Tab = "activity"
	TabSettings Tab = "settings"
)

// ViewMode selects the list presentation.
type ViewMode string

const (
	ViewModeGrid ViewMode = "grid"
	ViewModeList ViewMode = "list"
)

const (
	defaultTabDebounceWait    = 100 * time.Millisecond
	defaultTabDebounceMaxWait = time.Second
)

// Options tunes a session store.
type Options struct {
	// TabDebounceWait is the quiet window before the tab-transition flag
	// clears; TabDebounceMaxWait bounds how long rapid switching can keep the
	// flag up.
	TabDebounceWait    time.Duration
	TabDebounceMaxWait time.Duration
}

// Store is the session-scoped façade the rendering layer talks to. It owns
// the UI-mode state (tab, dialog, selection, criteria) and delegates data
// work to the feed and mutation engines, enforcing the single-open-dialog and
// selection-subset-of-loaded-items invariants. One Store exists per mounted
// screen; it is injected into the rendering layer, never a process global.
type Store struct {
	feed      *feed.Engine
	mutations *mutation.Engine
	records   *record.Store

	mu               sync.Mutex
	tab              Tab
	tabTransitioning bool
	dialog           Dialog
	selection        map[core.ID]struct{}
	search           string
	roleFilter       user.Role
	statusFilter     remote.StatusFilter
	viewMode         ViewMode

	settleTab   func()
	cancelTab   func()
	unsubRecord func()
	unsubFeed   func()

	subs    map[int64]func()
	nextSub int64
}

func NewStore(feedEng *feed.Engine, mutations *mutation.Engine, records *record.Store, opts Options) (*Store, error) {
	if feedEng == nil || mutations == nil || records == nil {
		return nil, errMissingDeps
	}
	wait := opts.TabDebounceWait
	if wait <= 0 {
		wait = defaultTabDebounceWait
	}
	maxWait := opts.TabDebounceMaxWait
	if maxWait <= 0 {
		maxWait = defaultTabDebounceMaxWait
	}
	s := &Store{
		feed:      feedEng,
		mutations: mutations,
		records:   records,
		tab:       TabUsers,
		dialog:    Dialog{Kind: DialogNone},
		selection: make(map[core.ID]struct{}),
		viewMode:  ViewModeList,
		subs:      make(map[int64]func()),
	}
	s.settleTab, s.cancelTab = debounce.NewWithMaxWait(wait, maxWait, func() {
		s.mu.Lock()
		s.tabTransitioning = false
		subs := s.subscribersLocked()
		s.mu.Unlock()
		fanout(subs)
	})
	s.unsubRecord = records.Subscribe(s.onRecordChange)
	s.unsubFeed = feedEng.Subscribe(s.notify)
	return s, nil
}

// Close releases the store's subscriptions and timers. The store must not be
// used afterwards.
func (s *Store) Close() {
	s.cancelTab()
	s.unsubRecord()
	s.unsubFeed()
}

// -----------------------------------------------------------------------------
// Tabs
// -----------------------------------------------------------------------------

// SetActiveTab switches the active tab. The transition flag goes up
// immediately and clears on a debounce, so rapid switching renders as one
// visual transition; no data is fetched.
func (s *Store) SetActiveTab(tab Tab) {
	s.mu.Lock()
	if s.tab == tab && !s.tabTransitioning {
		s.mu.Unlock()
		return
	}
	s.tab = tab
	s.tabTransitioning = true
	s.mu.Unlock()
	s.settleTab()
	s.notify()
}

// ActiveTab returns the selected tab.
func (s *Store) ActiveTab() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tab
}

// -----------------------------------------------------------------------------
// Search, filters, view mode
// -----------------------------------------------------------------------------

// SetSearch replaces the search term. A changed term resets the feed to its
// first page and clears the selection (the previous pages' cursors are not
// valid for the new criteria).
func (s *Store) SetSearch(ctx context.Context, term string) {
	s.mu.Lock()
	if s.search == term {
		s.mu.Unlock()
		return
	}
	s.search = term
	criteria := s.criteriaLocked()
	s.selection = make(map[core.ID]struct{})
	s.mu.Unlock()
	s.feed.SetQuery(ctx, criteria)
	s.notify()
}

// SetRoleFilter narrows the listing to one role; the zero value lifts the
// filter.
func (s *Store) SetRoleFilter(ctx context.Context, role user.Role) {
	s.mu.Lock()
	if s.roleFilter == role {
		s.mu.Unlock()
		return
	}
	s.roleFilter = role
	criteria := s.criteriaLocked()
	s.selection = make(map[core.ID]struct{})
	s.mu.Unlock()
	s.feed.SetQuery(ctx, criteria)
	s.notify()
}

// SetStatusFilter narrows the listing by ban status.
func (s *Store) SetStatusFilter(ctx context.Context, status remote.StatusFilter) {
	s.mu.Lock()
	if s.statusFilter == status {
		s.mu.Unlock()
		return
	}
	s.statusFilter = status
	criteria := s.criteriaLocked()
	s.selection = make(map[core.ID]struct{})
	s.mu.Unlock()
	s.feed.SetQuery(ctx, criteria)
	s.notify()
}

// SetViewMode switches between grid and list presentation.
func (s *Store) SetViewMode(mode ViewMode) {
	s.mu.Lock()
	if s.viewMode == mode {
		s.mu.Unlock()
		return
	}
	s.viewMode = mode
	s.mu.Unlock()
	s.notify()
}

func (s *Store) criteriaLocked() remote.Criteria {
	return remote.Criteria{
		Search: s.search,
		Role:   s.roleFilter,
		Status: s.statusFilter,
	}
}

// -----------------------------------------------------------------------------
// Feed passthrough
// -----------------------------------------------------------------------------

// LoadNextPage asks the feed for the next page.
func (s *Store) LoadNextPage(ctx context.Context) (*core.Handle, error) {
	return s.feed.LoadNextPage(ctx)
}

// PrefetchOnHover starts a speculative next-page fetch.
func (s *Store) PrefetchOnHover(ctx context.Context) {
	s.feed.PrefetchNextPage(ctx)
}

// RetryLoad retries a failed page load.
func (s *Store) RetryLoad(ctx context.Context) (*core.Handle, error) {
	return s.feed.Retry(ctx)
}

// -----------------------------------------------------------------------------
// Change propagation
// -----------------------------------------------------------------------------

// onRecordChange keeps the selection consistent with the record store:
// removed records leave the selection and temp-id rewrites follow the record.
func (s *Store) onRecordChange(ch record.Change) {
	s.mu.Lock()
	switch ch.Kind {
	case record.ChangeRemove:
		delete(s.selection, ch.ID)
		if s.dialog.Target == ch.ID {
			s.dialog = Dialog{Kind: DialogNone}
		}
	case record.ChangeReplaceID:
		if _, ok := s.selection[ch.OldID]; ok {
			delete(s.selection, ch.OldID)
			s.selection[ch.ID] = struct{}{}
		}
		if s.dialog.Target == ch.OldID {
			s.dialog.Target = ch.ID
		}
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()
	fanout(subs)
}

// Subscribe registers fn to run after every state change the rendering layer
// can observe. Callbacks run outside the store lock.
func (s *Store) Subscribe(fn func()) func() {
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

func (s *Store) notify() {
	s.mu.Lock()
	subs := s.subscribersLocked()
	s.mu.Unlock()
	fanout(subs)
}

func (s *Store) subscribersLocked() []func() {
	out := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func fanout(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}

// -----------------------------------------------------------------------------
// Read model
// -----------------------------------------------------------------------------

// Stats summarizes the loaded slice of the collection. Total prefers the
// server-side figure when the backend reports one.
type Stats struct {
	Total  int
	Loaded int
	Active int
	Banned int
	Admins int
}

// ReadModel is the snapshot the rendering layer consumes.
type ReadModel struct {
	ActiveTab          Tab
	TabTransitioning   bool
	Dialog             Dialog
	Items              []*user.User
	HasMore            bool
	IsLoading          bool
	IsFetchingNextPage bool
	FeedError          error
	Selection          []core.ID
	Search             string
	RoleFilter         user.Role
	StatusFilter       remote.StatusFilter
	ViewMode           ViewMode
	Stats              Stats
	PendingMutations   int
}

// ReadModel assembles a consistent snapshot of the session.
func (s *Store) ReadModel() *ReadModel {
	items := s.feed.Items()
	stats := Stats{Loaded: len(items), Total: s.feed.Total()}
	if stats.Total == 0 {
		stats.Total = stats.Loaded
	}
	for _, u := range items {
		if u.Banned {
			stats.Banned++
		} else {
			stats.Active++
		}
		if u.Role.IsAdmin() {
			stats.Admins++
		}
	}
	s.mu.Lock()
	rm := &ReadModel{
		ActiveTab:        s.tab,
		TabTransitioning: s.tabTransitioning,
		Dialog:           s.dialog,
		Search:           s.search,
		RoleFilter:       s.roleFilter,
		StatusFilter:     s.statusFilter,
		ViewMode:         s.viewMode,
		Selection:        s.selectionLocked(),
	}
	s.mu.Unlock()
	rm.Items = items
	rm.Stats = stats
	rm.HasMore = s.feed.HasMore()
	rm.IsLoading = s.feed.IsLoading()
	rm.IsFetchingNextPage = s.feed.IsFetchingNextPage()
	rm.FeedError = s.feed.LastError()
	rm.PendingMutations = len(s.mutations.PendingIntents())
	return rm
}

func (s *Store) selectionLocked() []core.ID {
	out := make([]core.ID, 0, len(s.selection))
	for id := range s.selection {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
