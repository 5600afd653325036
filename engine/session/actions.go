package session

import (
	"context"
	"errors"
	"sync"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/mutation"
	"github.com/userdesk/userdesk/engine/user"
	"github.com/userdesk/userdesk/pkg/logger"
)

var errEmptySelection = errors.New("selection is empty")

// CreateUser starts an optimistic create.
func (s *Store) CreateUser(ctx context.Context, draft *user.Draft) (*mutation.Handle, error) {
	return s.mutations.Create(ctx, draft)
}

// UpdateUser starts an optimistic edit.
func (s *Store) UpdateUser(ctx context.Context, id core.ID, patch *user.Patch) (*mutation.Handle, error) {
	return s.mutations.Update(ctx, id, patch)
}

// DeleteUser starts an optimistic delete.
func (s *Store) DeleteUser(ctx context.Context, id core.ID) (*mutation.Handle, error) {
	return s.mutations.Delete(ctx, id)
}

// BanUser starts an optimistic ban.
func (s *Store) BanUser(ctx context.Context, id core.ID, reason string) (*mutation.Handle, error) {
	return s.mutations.Ban(ctx, id, reason)
}

// UnbanUser starts an optimistic unban.
func (s *Store) UnbanUser(ctx context.Context, id core.ID) (*mutation.Handle, error) {
	return s.mutations.Unban(ctx, id)
}

// -----------------------------------------------------------------------------
// Bulk actions
// -----------------------------------------------------------------------------

// BulkReport aggregates a fan-out over the selection: ids whose mutation
// committed and, per failed id, the settled error.
type BulkReport struct {
	Succeeded []core.ID
	Failed    map[core.ID]error
}

// BulkHandle settles once every per-id mutation in the fan-out has settled.
type BulkHandle struct {
	done   chan struct{}
	mu     sync.Mutex
	report *BulkReport
}

// Done is closed once the whole fan-out has settled.
func (b *BulkHandle) Done() <-chan struct{} {
	return b.done
}

// Report returns the aggregated outcome; only meaningful after Done.
func (b *BulkHandle) Report() *BulkReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.report
}

// Wait blocks until the fan-out settles or ctx is canceled.
func (b *BulkHandle) Wait(ctx context.Context) (*BulkReport, error) {
	select {
	case <-b.done:
		return b.Report(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BanSelected bans every selected user with one shared reason. Failures are
// reported per id; one failed ban does not stop the others.
func (s *Store) BanSelected(ctx context.Context, reason string) (*BulkHandle, error) {
	return s.bulk(ctx, func(id core.ID) (*mutation.Handle, error) {
		return s.mutations.Ban(ctx, id, reason)
	})
}

// DeleteSelected deletes every selected user.
func (s *Store) DeleteSelected(ctx context.Context) (*BulkHandle, error) {
	return s.bulk(ctx, func(id core.ID) (*mutation.Handle, error) {
		return s.mutations.Delete(ctx, id)
	})
}

func (s *Store) bulk(ctx context.Context, start func(id core.ID) (*mutation.Handle, error)) (*BulkHandle, error) {
	ids := s.Selection()
	if len(ids) == 0 {
		return nil, errEmptySelection
	}
	report := &BulkReport{Failed: make(map[core.ID]error)}
	handles := make(map[core.ID]*mutation.Handle, len(ids))
	for _, id := range ids {
		h, err := start(id)
		if err != nil {
			report.Failed[id] = err
			continue
		}
		handles[id] = h
	}
	bulk := &BulkHandle{done: make(chan struct{})}
	go func() {
		for id, h := range handles {
			<-h.Done()
			if err := h.Err(); err != nil {
				report.Failed[id] = err
			} else {
				report.Succeeded = append(report.Succeeded, id)
			}
		}
		bulk.mu.Lock()
		bulk.report = report
		bulk.mu.Unlock()
		close(bulk.done)
		if len(report.Failed) > 0 {
			logger.FromContext(ctx).Warn("bulk action partially failed",
				"succeeded", len(report.Succeeded), "failed", len(report.Failed))
		}
	}()
	return bulk, nil
}
