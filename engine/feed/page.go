package feed

import (
	"time"

	"github.com/userdesk/userdesk/engine/core"
)

// State is the feed's position in its per-criteria lifecycle. Every SetQuery
// starts a fresh epoch back at StateIdle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateErrored State = "errored"
)

// Page is one cursor-addressed batch, stored in fetch order. ItemIDs
// reference the record store; the flattened view concatenates them with
// first-position-wins de-duplication.
type Page struct {
	Cursor     string
	ItemIDs    []core.ID
	NextCursor string
	FetchedAt  time.Time
}
