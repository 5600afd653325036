package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/infra/monitoring"
	"github.com/userdesk/userdesk/engine/record"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
	"github.com/userdesk/userdesk/pkg/logger"
)

// ErrNoMorePages is returned when a load is requested after the last page.
var ErrNoMorePages = errors.New("no more pages")

const defaultPrefetchCacheSize = 8

// Options tunes a feed engine.
type Options struct {
	// PageSize is the per-request item limit.
	PageSize int
	// Prefetch enables speculative next-page fetches.
	Prefetch bool
	// PrefetchCacheSize bounds the speculative result cache.
	PrefetchCacheSize int
	// Metrics is optional.
	Metrics *monitoring.Metrics
}

// speculative is one best-effort prefetch in flight. A normal load for the
// same epoch and cursor adopts it instead of issuing a duplicate request.
type speculative struct {
	done chan struct{}
	res  *remote.PageResult
	err  error
}

// Engine drives the cursor-paginated feed: it owns the page list for the
// current criteria epoch, merges fetched items into the record store and
// exposes the flattened de-duplicated view. At most one non-speculative fetch
// is in flight per epoch.
type Engine struct {
	api     remote.API
	records *record.Store
	metrics *monitoring.Metrics

	pageSize        int
	prefetchEnabled bool

	mu       sync.Mutex
	epoch    uint64
	criteria remote.Criteria
	pages    []*Page
	state    State
	lastErr  error
	hasMore  bool
	total    int
	inflight bool

	prefetchCache *lru.Cache[string, *remote.PageResult]
	specFetches   map[string]*speculative

	subs    map[int64]func()
	nextSub int64
}

func NewEngine(api remote.API, records *record.Store, opts Options) (*Engine, error) {
	if api == nil {
		return nil, fmt.Errorf("feed engine requires a remote API")
	}
	if records == nil {
		return nil, fmt.Errorf("feed engine requires a record store")
	}
	if opts.PageSize <= 0 {
		return nil, fmt.Errorf("invalid page size: %d", opts.PageSize)
	}
	cacheSize := opts.PrefetchCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultPrefetchCacheSize
	}
	cache, err := lru.New[string, *remote.PageResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create prefetch cache: %w", err)
	}
	return &Engine{
		api:             api,
		records:         records,
		metrics:         opts.Metrics,
		pageSize:        opts.PageSize,
		prefetchEnabled: opts.Prefetch,
		state:           StateIdle,
		hasMore:         true,
		prefetchCache:   cache,
		specFetches:     make(map[string]*speculative),
		subs:            make(map[int64]func()),
	}, nil
}

// SetQuery replaces the search and filter criteria, starting a new epoch:
// loaded pages are discarded, the prefetch cache is purged and any in-flight
// fetch for the old epoch is marked stale (its eventual result is dropped).
// Setting identical criteria is a no-op so keystroke-level callers don't
// thrash loaded pages.
func (e *Engine) SetQuery(ctx context.Context, criteria remote.Criteria) {
	e.mu.Lock()
	if criteria.Equal(e.criteria) && e.state != StateIdle {
		e.mu.Unlock()
		return
	}
	e.epoch++
	e.criteria = criteria
	e.pages = nil
	e.state = StateIdle
	e.lastErr = nil
	e.hasMore = true
	e.total = 0
	e.inflight = false
	e.prefetchCache.Purge()
	e.specFetches = make(map[string]*speculative)
	epoch := e.epoch
	subs := e.subscribers()
	e.mu.Unlock()
	logger.FromContext(ctx).Debug("feed criteria replaced", "epoch", epoch, "search", criteria.Search)
	fanout(subs)
}

// Criteria returns the active criteria.
func (e *Engine) Criteria() remote.Criteria {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.criteria
}

// LoadNextPage fetches the page after the last loaded one. It returns
// core.ErrAlreadyLoading while a fetch for the current criteria is in flight
// and ErrNoMorePages once the collection is exhausted. The returned handle
// settles when the fetch does; a cached or in-flight speculative fetch is
// adopted instead of issuing a duplicate request.
func (e *Engine) LoadNextPage(ctx context.Context) (*core.Handle, error) {
	log := logger.FromContext(ctx)
	e.mu.Lock()
	if e.inflight {
		e.mu.Unlock()
		return nil, core.ErrAlreadyLoading
	}
	if !e.hasMore {
		e.mu.Unlock()
		return nil, ErrNoMorePages
	}
	epoch := e.epoch
	cursor := e.nextCursorLocked()
	key := fetchKey(epoch, cursor)
	handle := core.NewHandle()

	if res, ok := e.prefetchCache.Get(key); ok {
		e.prefetchCache.Remove(key)
		e.appendPageLocked(cursor, res)
		e.state = StateLoaded
		items := res.Items
		subs := e.subscribers()
		e.mu.Unlock()
		e.metrics.ObservePrefetchHit()
		e.metrics.ObservePage(monitoring.OutcomeSuccess)
		log.Debug("page load served from prefetch", "cursor", cursor, "items", len(items))
		e.mergeItems(items)
		fanout(subs)
		handle.Settle(nil)
		return handle, nil
	}

	e.inflight = true
	e.state = StateLoading
	if sf, ok := e.specFetches[key]; ok {
		subs := e.subscribers()
		e.mu.Unlock()
		fanout(subs)
		go func() {
			<-sf.done
			e.settleLoad(ctx, epoch, cursor, sf.res, sf.err, handle)
		}()
		return handle, nil
	}
	req := remote.PageRequest{Criteria: e.criteria, Cursor: cursor, Limit: e.pageSize}
	subs := e.subscribers()
	e.mu.Unlock()
	fanout(subs)
	go func() {
		res, err := e.api.FetchPage(ctx, req)
		e.settleLoad(ctx, epoch, cursor, res, err, handle)
	}()
	return handle, nil
}

// Retry clears an errored state and re-issues the failed load.
func (e *Engine) Retry(ctx context.Context) (*core.Handle, error) {
	e.mu.Lock()
	if e.state == StateErrored {
		e.state = StateLoaded
		if len(e.pages) == 0 {
			e.state = StateIdle
		}
		e.lastErr = nil
	}
	e.mu.Unlock()
	return e.LoadNextPage(ctx)
}

// PrefetchNextPage starts a best-effort speculative fetch of the next page.
// It never blocks, never surfaces errors, and does not count against the
// at-most-one-fetch rule; a later LoadNextPage with unchanged criteria reuses
// its result.
func (e *Engine) PrefetchNextPage(ctx context.Context) {
	e.mu.Lock()
	if !e.prefetchEnabled || !e.hasMore || e.inflight {
		e.mu.Unlock()
		return
	}
	epoch := e.epoch
	cursor := e.nextCursorLocked()
	key := fetchKey(epoch, cursor)
	if _, ok := e.prefetchCache.Get(key); ok {
		e.mu.Unlock()
		return
	}
	if _, ok := e.specFetches[key]; ok {
		e.mu.Unlock()
		return
	}
	sf := &speculative{done: make(chan struct{})}
	e.specFetches[key] = sf
	req := remote.PageRequest{Criteria: e.criteria, Cursor: cursor, Limit: e.pageSize}
	e.mu.Unlock()

	go func() {
		res, err := e.api.FetchPage(ctx, req)
		e.mu.Lock()
		sf.res = res
		sf.err = err
		close(sf.done)
		delete(e.specFetches, key)
		if err == nil && epoch == e.epoch {
			e.prefetchCache.Add(key, res)
		}
		e.mu.Unlock()
		if err != nil {
			logger.FromContext(ctx).Debug("speculative fetch dropped", "cursor", cursor, "error", err)
		}
	}()
}

// settleLoad applies the outcome of a non-speculative fetch. Settlement is
// the epoch check: results from a superseded epoch are discarded without
// touching the record store.
func (e *Engine) settleLoad(
	ctx context.Context,
	epoch uint64,
	cursor string,
	res *remote.PageResult,
	err error,
	handle *core.Handle,
) {
	log := logger.FromContext(ctx)
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		e.metrics.ObservePage(monitoring.OutcomeStale)
		log.Warn("discarding fetch result from superseded epoch", "epoch", epoch, "cursor", cursor)
		// supersession is internal: the handle settles clean and the caller
		// sees whatever state the new epoch produces
		handle.Settle(nil)
		return
	}
	e.inflight = false
	if err != nil {
		ferr := &core.FetchError{Cursor: cursor, Err: err}
		e.state = StateErrored
		e.lastErr = ferr
		subs := e.subscribers()
		e.mu.Unlock()
		e.metrics.ObservePage(monitoring.OutcomeFailure)
		log.Error("page fetch failed", "cursor", cursor, "error", err)
		fanout(subs)
		handle.Settle(ferr)
		return
	}
	e.appendPageLocked(cursor, res)
	e.state = StateLoaded
	subs := e.subscribers()
	e.mu.Unlock()
	e.metrics.ObservePage(monitoring.OutcomeSuccess)
	log.Debug("page loaded", "cursor", cursor, "items", len(res.Items), "next_cursor", res.NextCursor)
	e.mergeItems(res.Items)
	fanout(subs)
	handle.Settle(nil)
}

func (e *Engine) appendPageLocked(cursor string, res *remote.PageResult) {
	page := &Page{
		Cursor:     cursor,
		NextCursor: res.NextCursor,
		FetchedAt:  res.FetchedAt,
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now().UTC()
	}
	for _, u := range res.Items {
		if u != nil && !u.ID.IsZero() {
			page.ItemIDs = append(page.ItemIDs, u.ID)
		}
	}
	e.pages = append(e.pages, page)
	e.hasMore = res.NextCursor != ""
	if res.Total > 0 {
		e.total = res.Total
	}
}

func (e *Engine) mergeItems(items []*user.User) {
	for _, u := range items {
		e.records.Upsert(u)
	}
}

// Items returns the flattened view: page item sequences concatenated in fetch
// order, de-duplicated by id at first position, resolved against the record
// store. Ids whose record has been removed are skipped.
func (e *Engine) Items() []*user.User {
	ids := e.ItemIDs()
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := e.records.Get(id); ok {
			out = append(out, u)
		}
	}
	return out
}

// ItemIDs returns the de-duplicated id sequence of the flattened view.
func (e *Engine) ItemIDs() []core.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[core.ID]struct{})
	var ids []core.ID
	for _, page := range e.pages {
		for _, id := range page.ItemIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// AppendLocal adds a locally created id to the end of the view, creating a
// synthetic page when nothing has been loaded yet.
func (e *Engine) AppendLocal(id core.ID) {
	if id.IsZero() {
		return
	}
	e.mu.Lock()
	if len(e.pages) == 0 {
		e.pages = append(e.pages, &Page{FetchedAt: time.Now().UTC()})
	}
	last := e.pages[len(e.pages)-1]
	last.ItemIDs = append(last.ItemIDs, id)
	subs := e.subscribers()
	e.mu.Unlock()
	fanout(subs)
}

// ReplaceID rewrites every page occurrence of oldID, preserving positions.
func (e *Engine) ReplaceID(oldID, newID core.ID) {
	e.mu.Lock()
	for _, page := range e.pages {
		for i, id := range page.ItemIDs {
			if id == oldID {
				page.ItemIDs[i] = newID
			}
		}
	}
	subs := e.subscribers()
	e.mu.Unlock()
	fanout(subs)
}

// RemoveID drops every page occurrence of id.
func (e *Engine) RemoveID(id core.ID) {
	e.mu.Lock()
	for _, page := range e.pages {
		kept := page.ItemIDs[:0]
		for _, cur := range page.ItemIDs {
			if cur != id {
				kept = append(kept, cur)
			}
		}
		page.ItemIDs = kept
	}
	subs := e.subscribers()
	e.mu.Unlock()
	fanout(subs)
}

// HasMore reports whether pages remain: true until a fetched page carries no
// next cursor.
func (e *Engine) HasMore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasMore
}

// State returns the lifecycle state for the current epoch.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the error of the most recent failed load, nil otherwise.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// IsLoading reports an in-flight initial load (no pages yet).
func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight && len(e.pages) == 0
}

// IsFetchingNextPage reports an in-flight load past the first page.
func (e *Engine) IsFetchingNextPage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight && len(e.pages) > 0
}

// Total returns the server-side count for the current criteria when known,
// zero otherwise.
func (e *Engine) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// Subscribe registers fn to run after every feed change. Callbacks run
// outside the engine lock.
func (e *Engine) Subscribe(fn func()) func() {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) nextCursorLocked() string {
	if len(e.pages) == 0 {
		return ""
	}
	return e.pages[len(e.pages)-1].NextCursor
}

func (e *Engine) subscribers() []func() {
	out := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func fanout(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}

func fetchKey(epoch uint64, cursor string) string {
	return fmt.Sprintf("%d:%s", epoch, cursor)
}
