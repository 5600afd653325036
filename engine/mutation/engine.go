package mutation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/infra/monitoring"
	"github.com/userdesk/userdesk/engine/notify"
	"github.com/userdesk/userdesk/engine/record"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
	"github.com/userdesk/userdesk/pkg/logger"
)

// View is the slice of the pagination engine the mutation engine needs: it
// keeps the flattened view consistent with optimistic inserts, removals and
// temp-id rewrites.
type View interface {
	AppendLocal(id core.ID)
	ReplaceID(oldID, newID core.ID)
	RemoveID(id core.ID)
}

// Options tunes a mutation engine.
type Options struct {
	// Sink receives one notification per settled mutation. Defaults to
	// notify.Discard.
	Sink notify.Sink
	// Metrics is optional.
	Metrics *monitoring.Metrics
}

// Engine applies mutations to the record store before server confirmation,
// tracks the in-flight intents and reconciles or rolls back on settlement.
// Serialized-class mutations (update, ban, unban) against one target run
// FIFO; create and delete bypass the queue.
type Engine struct {
	api     remote.API
	records *record.Store
	view    View
	sink    notify.Sink
	metrics *monitoring.Metrics

	mu      sync.Mutex
	intents map[core.ID]*Intent
	queues  map[core.ID]*targetQueue
	tempSeq int64
}

type targetQueue struct {
	running bool
	waiting []*serializedJob
}

type serializedJob struct {
	ctx    context.Context
	intent *Intent
	handle *Handle
	apply  func(u *user.User)
	call   func(ctx context.Context) (*user.User, error)
}

func NewEngine(api remote.API, records *record.Store, view View, opts Options) (*Engine, error) {
	if api == nil {
		return nil, fmt.Errorf("mutation engine requires a remote API")
	}
	if records == nil {
		return nil, fmt.Errorf("mutation engine requires a record store")
	}
	if view == nil {
		return nil, fmt.Errorf("mutation engine requires a feed view")
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard
	}
	return &Engine{
		api:     api,
		records: records,
		view:    view,
		sink:    sink,
		metrics: opts.Metrics,
		intents: make(map[core.ID]*Intent),
		queues:  make(map[core.ID]*targetQueue),
	}, nil
}

// -----------------------------------------------------------------------------
// Entry points
// -----------------------------------------------------------------------------

// Create validates the draft, inserts the user under a temporary id
// immediately and confirms against the server. On success every reference to
// the temporary id (record store, page item lists, selection) is rewritten to
// the server-issued id; on failure the synthesized user is removed.
func (e *Engine) Create(ctx context.Context, draft *user.Draft) (*Handle, error) {
	if draft == nil {
		return nil, fmt.Errorf("create requires a draft")
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.tempSeq++
	tmpID := core.ID(fmt.Sprintf("tmp-%d", e.tempSeq))
	intent := e.newIntentLocked(tmpID, KindCreate, nil)
	e.mu.Unlock()

	now := time.Now().UTC()
	e.records.Upsert(&user.User{
		ID:            tmpID,
		Name:          draft.Name,
		Email:         draft.Email,
		Role:          draft.Role,
		EmailVerified: draft.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	e.view.AppendLocal(tmpID)
	logger.FromContext(ctx).Debug("optimistic create applied", "temp_id", tmpID)

	handle := newHandle(KindCreate)
	go func() {
		created, err := e.api.CreateUser(ctx, draft)
		if err != nil {
			e.rollbackCreate(ctx, tmpID, intent, handle, err)
			return
		}
		e.commitCreate(ctx, tmpID, created, intent, handle)
	}()
	return handle, nil
}

// Update queues an edit for the target. When the target is free the patch is
// applied to the store before Update returns; a queued edit applies when its
// turn comes. The pre-edit snapshot is restored verbatim if the server call
// fails.
func (e *Engine) Update(ctx context.Context, id core.ID, patch *user.Patch) (*Handle, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("update requires a non-empty patch")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return e.enqueueSerialized(ctx, id, KindUpdate,
		func(u *user.User) { patch.Apply(u) },
		func(ctx context.Context) (*user.User, error) { return e.api.UpdateUser(ctx, id, patch) },
	)
}

// Ban marks the target banned with the given reason.
func (e *Engine) Ban(ctx context.Context, id core.ID, reason string) (*Handle, error) {
	return e.enqueueSerialized(ctx, id, KindBan,
		func(u *user.User) {
			u.Banned = true
			u.BanReason = reason
		},
		func(ctx context.Context) (*user.User, error) { return e.api.SetBan(ctx, id, &reason) },
	)
}

// Unban lifts the target's ban; the ban reason is cleared with it.
func (e *Engine) Unban(ctx context.Context, id core.ID) (*Handle, error) {
	return e.enqueueSerialized(ctx, id, KindUnban,
		func(u *user.User) {
			u.Banned = false
			u.BanReason = ""
		},
		func(ctx context.Context) (*user.User, error) { return e.api.SetBan(ctx, id, nil) },
	)
}

// Delete removes the target optimistically and confirms against the server.
// It bypasses the serialized queue: a delete may proceed while an edit is
// pending, and the edit then resolves against the post-delete state. A failed
// delete re-inserts the snapshot as the newest item.
func (e *Engine) Delete(ctx context.Context, id core.ID) (*Handle, error) {
	snap, ok := e.records.Get(id)
	if !ok {
		return nil, core.ErrNotFound
	}
	e.mu.Lock()
	intent := e.newIntentLocked(id, KindDelete, snap)
	e.mu.Unlock()

	e.records.Remove(id)
	e.view.RemoveID(id)
	logger.FromContext(ctx).Debug("optimistic delete applied", "user_id", id)

	handle := newHandle(KindDelete)
	go func() {
		err := e.api.DeleteUser(ctx, id)
		log := logger.FromContext(ctx)
		if err != nil {
			merr := classify(err)
			e.records.Restore(snap)
			e.view.AppendLocal(id)
			ic := e.finish(intent, StatusRolledBack)
			e.metrics.ObserveRollback()
			e.observeFailure(KindDelete, merr)
			log.Error("delete rolled back", "user_id", id, "error", err)
			handle.settle(nil, ic, merr)
			return
		}
		ic := e.finish(intent, StatusCommitted)
		e.metrics.ObserveMutation(KindDelete.String(), monitoring.OutcomeSuccess)
		e.sink.Notify(notify.Success("User deleted"))
		log.Info("delete committed", "user_id", id)
		handle.settle(nil, ic, nil)
	}()
	return handle, nil
}

// PendingIntents returns copies of the not-yet-settled intents, oldest first.
func (e *Engine) PendingIntents() []*Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Intent, 0, len(e.intents))
	for _, intent := range e.intents {
		out = append(out, intent.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// -----------------------------------------------------------------------------
// Create settlement
// -----------------------------------------------------------------------------

func (e *Engine) commitCreate(ctx context.Context, tmpID core.ID, created *user.User, intent *Intent, handle *Handle) {
	log := logger.FromContext(ctx)
	if created != nil && e.records.ReplaceID(tmpID, created.ID) {
		e.view.ReplaceID(tmpID, created.ID)
		e.records.Restore(created)
	}
	ic := e.finish(intent, StatusCommitted)
	e.metrics.ObserveMutation(KindCreate.String(), monitoring.OutcomeSuccess)
	e.sink.Notify(notify.Success("User created"))
	if created != nil {
		log.Info("create committed", "temp_id", tmpID, "user_id", created.ID)
	}
	handle.settle(created.Clone(), ic, nil)
}

func (e *Engine) rollbackCreate(ctx context.Context, tmpID core.ID, intent *Intent, handle *Handle, err error) {
	merr := classify(err)
	e.records.Remove(tmpID)
	e.view.RemoveID(tmpID)
	ic := e.finish(intent, StatusRolledBack)
	e.metrics.ObserveRollback()
	e.observeFailure(KindCreate, merr)
	logger.FromContext(ctx).Error("create rolled back", "temp_id", tmpID, "error", err)
	handle.settle(nil, ic, merr)
}

// -----------------------------------------------------------------------------
// Serialized class: update / ban / unban
// -----------------------------------------------------------------------------

func (e *Engine) enqueueSerialized(
	ctx context.Context,
	target core.ID,
	kind Kind,
	apply func(u *user.User),
	call func(ctx context.Context) (*user.User, error),
) (*Handle, error) {
	if !e.records.Has(target) {
		return nil, core.ErrNotFound
	}
	handle := newHandle(kind)
	e.mu.Lock()
	intent := e.newIntentLocked(target, kind, nil)
	job := &serializedJob{ctx: ctx, intent: intent, handle: handle, apply: apply, call: call}
	q := e.queues[target]
	if q == nil {
		q = &targetQueue{}
		e.queues[target] = q
	}
	if q.running {
		q.waiting = append(q.waiting, job)
		e.mu.Unlock()
		logger.FromContext(ctx).Debug("mutation queued behind pending intent", "user_id", target, "kind", kind)
		return handle, nil
	}
	q.running = true
	e.mu.Unlock()

	// queue is free: the optimistic change lands before the entry point
	// returns, so a caller reading the store right after sees it. Only the
	// server round-trip moves to the goroutine.
	snap, ok := e.records.Get(target)
	if !ok {
		ic := e.finish(intent, StatusCommitted)
		e.advance(target)
		handle.settle(nil, ic, nil)
		return handle, nil
	}
	e.applySerialized(job, snap)
	go e.settleSerialized(target, job, snap)
	return handle, nil
}

// runSerialized starts a dequeued job. The snapshot is taken at run time, not
// enqueue time, so a queued edit resolves against whatever its predecessors
// left behind.
func (e *Engine) runSerialized(target core.ID, job *serializedJob) {
	snap, ok := e.records.Get(target)
	if !ok {
		// target deleted while queued: resolve silently as a no-op
		ic := e.finish(job.intent, StatusCommitted)
		logger.FromContext(job.ctx).Debug("mutation target gone; resolved as no-op",
			"user_id", target, "kind", job.intent.Kind)
		e.advance(target)
		job.handle.settle(nil, ic, nil)
		return
	}
	e.applySerialized(job, snap)
	e.settleSerialized(target, job, snap)
}

func (e *Engine) applySerialized(job *serializedJob, snap *user.User) {
	e.mu.Lock()
	job.intent.Snapshot = snap
	e.mu.Unlock()

	optimistic := snap.Clone()
	job.apply(optimistic)
	optimistic.UpdatedAt = time.Now().UTC()
	optimistic.Normalize()
	e.records.Upsert(optimistic)
	logger.FromContext(job.ctx).Debug("optimistic mutation applied",
		"user_id", snap.ID, "kind", job.intent.Kind)
}

func (e *Engine) settleSerialized(target core.ID, job *serializedJob, snap *user.User) {
	log := logger.FromContext(job.ctx)
	kind := job.intent.Kind

	res, err := job.call(job.ctx)
	if err != nil {
		merr := classify(err)
		if e.records.Has(target) {
			e.records.Restore(snap)
		}
		ic := e.finish(job.intent, StatusRolledBack)
		e.metrics.ObserveRollback()
		e.observeFailure(kind, merr)
		log.Error("mutation rolled back", "user_id", target, "kind", kind, "error", err)
		e.advance(target)
		job.handle.settle(nil, ic, merr)
		return
	}
	if res != nil && e.records.Has(target) {
		e.records.Restore(res)
	}
	ic := e.finish(job.intent, StatusCommitted)
	e.metrics.ObserveMutation(kind.String(), monitoring.OutcomeSuccess)
	e.sink.Notify(notify.Success("User " + kind.verb()))
	log.Info("mutation committed", "user_id", target, "kind", kind)
	e.advance(target)
	job.handle.settle(res.Clone(), ic, nil)
}

// advance starts the next queued mutation for target, if any.
func (e *Engine) advance(target core.ID) {
	e.mu.Lock()
	q := e.queues[target]
	if q == nil {
		e.mu.Unlock()
		return
	}
	if len(q.waiting) == 0 {
		delete(e.queues, target)
		e.mu.Unlock()
		return
	}
	next := q.waiting[0]
	q.waiting = q.waiting[1:]
	e.mu.Unlock()
	go e.runSerialized(target, next)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (e *Engine) newIntentLocked(target core.ID, kind Kind, snapshot *user.User) *Intent {
	intent := &Intent{
		ID:        core.MustNewID(),
		Target:    target,
		Kind:      kind,
		Snapshot:  snapshot,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	e.intents[intent.ID] = intent
	return intent
}

// finish marks the intent settled, drops it from the pending set and returns
// a copy safe to hand out.
func (e *Engine) finish(intent *Intent, status Status) *Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	intent.Status = status
	delete(e.intents, intent.ID)
	return intent.clone()
}

func (e *Engine) observeFailure(kind Kind, merr *core.MutationError) {
	outcome := monitoring.OutcomeTransport
	message := fmt.Sprintf("Failed to %s user", kind)
	if merr.Reason == core.FailRejected {
		outcome = monitoring.OutcomeRejected
		// server rejections carry their message verbatim
		message = merr.Message
	}
	e.metrics.ObserveMutation(kind.String(), outcome)
	e.sink.Notify(notify.Error(message))
}

// classify maps an API error onto the mutation taxonomy: anything that is not
// an explicit server rejection counts as a transport failure.
func classify(err error) *core.MutationError {
	var merr *core.MutationError
	if errors.As(err, &merr) {
		return merr
	}
	return core.NewTransportFailure(err)
}
