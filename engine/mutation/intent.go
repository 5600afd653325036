package mutation

import (
	"time"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/user"
)

// Kind discriminates mutation intents.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindBan    Kind = "ban"
	KindUnban  Kind = "unban"
)

// Serialized reports whether the kind belongs to the serialized class:
// update, ban and unban against the same target run FIFO, one at a time, so a
// second edit never races a pending one against a stale snapshot. Create and
// delete are exempt.
func (k Kind) Serialized() bool {
	return k == KindUpdate || k == KindBan || k == KindUnban
}

func (k Kind) String() string {
	return string(k)
}

// verb is the notification wording for the kind.
func (k Kind) verb() string {
	switch k {
	case KindCreate:
		return "created"
	case KindUpdate:
		return "updated"
	case KindDelete:
		return "deleted"
	case KindBan:
		return "banned"
	case KindUnban:
		return "unbanned"
	default:
		return string(k)
	}
}

// Status is an intent's settlement state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// Intent is the bookkeeping record of one in-flight optimistic mutation.
// Snapshot holds the pre-mutation user for rollback; it is nil for create and
// stays nil for a serialized mutation until the mutation actually starts
// running (queued mutations snapshot at start, not at enqueue, so rollback
// targets are never stale).
type Intent struct {
	ID        core.ID
	Target    core.ID
	Kind      Kind
	Snapshot  *user.User
	Status    Status
	CreatedAt time.Time
}

func (i *Intent) clone() *Intent {
	if i == nil {
		return nil
	}
	out := *i
	out.Snapshot = i.Snapshot.Clone()
	return &out
}
