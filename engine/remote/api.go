package remote

import (
	"context"
	"time"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/user"
)

// StatusFilter narrows a listing to a ban status.
type StatusFilter string

const (
	StatusAny    StatusFilter = ""
	StatusActive StatusFilter = "active"
	StatusBanned StatusFilter = "banned"
)

// Criteria identifies one listing query. Cursors are scoped to the criteria
// that produced them and are not transferable across criteria changes.
type Criteria struct {
	Search string
	Role   user.Role
	Status StatusFilter
}

// Equal reports whether two criteria describe the same listing.
func (c Criteria) Equal(other Criteria) bool {
	return c == other
}

// PageRequest addresses one batch of a listing. An empty cursor requests the
// first page.
type PageRequest struct {
	Criteria Criteria
	Cursor   string
	Limit    int
}

// PageResult is one fetched batch. NextCursor is empty on the last page.
// Total carries the server-side count for the criteria when the backend
// provides one, zero otherwise.
type PageResult struct {
	Items      []*user.User
	NextCursor string
	Total      int
	FetchedAt  time.Time
}

// API is the remote collaborator behind the feed and mutation engines. All
// calls are plain request/response; implementations are responsible for
// per-request timeouts. Mutation failures must be discriminated via
// core.MutationError so the engine can distinguish server rejection from
// transport failure.
type API interface {
	FetchPage(ctx context.Context, req PageRequest) (*PageResult, error)
	CreateUser(ctx context.Context, draft *user.Draft) (*user.User, error)
	UpdateUser(ctx context.Context, id core.ID, patch *user.Patch) (*user.User, error)
	DeleteUser(ctx context.Context, id core.ID) error
	SetBan(ctx context.Context, id core.ID, reason *string) (*user.User, error)
}
