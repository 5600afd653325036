package session

import (
	"context"
	"errors"

	"github.com/userdesk/userdesk/engine/core"
)

var errMissingDeps = errors.New("session store requires feed, mutation engine and record store")

// DialogKind discriminates the dialog sum type.
type DialogKind string

const (
	DialogNone          DialogKind = "none"
	DialogCreate        DialogKind = "create"
	DialogEdit          DialogKind = "edit"
	DialogDeleteConfirm DialogKind = "delete_confirm"
	DialogBanConfirm    DialogKind = "ban_confirm"
	DialogBanReason     DialogKind = "ban_reason"
	DialogView          DialogKind = "view"
)

// Dialog is the single open dialog as a tagged value: exactly one kind at a
// time, with the target user id for the kinds that act on one. Target is zero
// for none and create.
type Dialog struct {
	Kind   DialogKind
	Target core.ID
}

// IsOpen reports whether any dialog is showing.
func (d Dialog) IsOpen() bool {
	return d.Kind != DialogNone
}

// OpenCreateDialog shows the create-user dialog.
func (s *Store) OpenCreateDialog(ctx context.Context) {
	s.openDialog(ctx, Dialog{Kind: DialogCreate})
}

// OpenEditDialog shows the edit dialog for id.
func (s *Store) OpenEditDialog(ctx context.Context, id core.ID) {
	s.openDialog(ctx, Dialog{Kind: DialogEdit, Target: id})
}

// OpenDeleteConfirmDialog shows the delete confirmation for id.
func (s *Store) OpenDeleteConfirmDialog(ctx context.Context, id core.ID) {
	s.openDialog(ctx, Dialog{Kind: DialogDeleteConfirm, Target: id})
}

// OpenBanConfirmDialog shows the ban confirmation for id.
func (s *Store) OpenBanConfirmDialog(ctx context.Context, id core.ID) {
	s.openDialog(ctx, Dialog{Kind: DialogBanConfirm, Target: id})
}

// OpenBanReasonDialog shows the ban-reason prompt for id.
func (s *Store) OpenBanReasonDialog(ctx context.Context, id core.ID) {
	s.openDialog(ctx, Dialog{Kind: DialogBanReason, Target: id})
}

// OpenViewDialog shows the read-only detail dialog for id.
func (s *Store) OpenViewDialog(ctx context.Context, id core.ID) {
	s.openDialog(ctx, Dialog{Kind: DialogView, Target: id})
}

// CloseDialog dismisses whichever dialog is open.
func (s *Store) CloseDialog() {
	s.mu.Lock()
	if !s.dialog.IsOpen() {
		s.mu.Unlock()
		return
	}
	s.dialog = Dialog{Kind: DialogNone}
	s.mu.Unlock()
	s.notify()
}

// Dialog returns the open dialog, DialogNone when closed.
func (s *Store) Dialog() Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialog
}

// openDialog enforces the single-open-dialog invariant: opening a dialog
// closes whatever was open as a side effect. A targeted dialog for a user
// that is not loaded is a programming error.
func (s *Store) openDialog(ctx context.Context, d Dialog) {
	if !d.Target.IsZero() && !s.records.Has(d.Target) {
		core.ReportInvariant(ctx, "dialog opened for unknown user", "kind", d.Kind, "user_id", d.Target)
		return
	}
	s.mu.Lock()
	s.dialog = d
	s.mu.Unlock()
	s.notify()
}
