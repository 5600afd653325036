package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/feed"
	"github.com/userdesk/userdesk/engine/mutation"
	"github.com/userdesk/userdesk/engine/notify"
	"github.com/userdesk/userdesk/engine/record"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/remote/remotetest"
	"github.com/userdesk/userdesk/engine/session"
	"github.com/userdesk/userdesk/engine/user"
)

type fixture struct {
	store   *session.Store
	feed    *feed.Engine
	records *record.Store
	api     *remotetest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := remotetest.NewFake()
	records := record.NewStore()
	feedEng, err := feed.NewEngine(api, records, feed.Options{PageSize: 10, Prefetch: true})
	require.NoError(t, err)
	mutEng, err := mutation.NewEngine(api, records, feedEng, mutation.Options{Sink: notify.Discard})
	require.NoError(t, err)
	store, err := session.NewStore(feedEng, mutEng, records, session.Options{
		TabDebounceWait:    10 * time.Millisecond,
		TabDebounceMaxWait: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return &fixture{store: store, feed: feedEng, records: records, api: api}
}

func newUser(id string) *user.User {
	now := time.Now().UTC()
	return &user.User{
		ID:        core.ID(id),
		Name:      "User " + id,
		Email:     id + "@example.com",
		Role:      user.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// loadPage drives one page of users through the feed.
func loadPage(t *testing.T, f *fixture, users ...*user.User) {
	t.Helper()
	ctx := context.Background()
	h, err := f.store.LoadNextPage(ctx)
	require.NoError(t, err)
	f.api.Expect(t).SucceedPage(&remote.PageResult{Items: users})
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(waitCtx))
}

func TestStore_Dialogs(t *testing.T) {
	ctx := context.Background()
	t.Run("Should keep at most one dialog open across any open sequence", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"), newUser("u2"))
		f.store.OpenCreateDialog(ctx)
		assert.Equal(t, session.DialogCreate, f.store.Dialog().Kind)

		f.store.OpenEditDialog(ctx, "u1")
		d := f.store.Dialog()
		assert.Equal(t, session.DialogEdit, d.Kind)
		assert.Equal(t, core.ID("u1"), d.Target)

		f.store.OpenBanConfirmDialog(ctx, "u2")
		d = f.store.Dialog()
		assert.Equal(t, session.DialogBanConfirm, d.Kind)
		assert.Equal(t, core.ID("u2"), d.Target)

		f.store.CloseDialog()
		assert.Equal(t, session.DialogNone, f.store.Dialog().Kind)
		assert.False(t, f.store.Dialog().IsOpen())
	})
	t.Run("Should ignore a dialog for an unloaded user", func(t *testing.T) {
		f := newFixture(t)
		f.store.OpenEditDialog(ctx, "ghost")
		assert.Equal(t, session.DialogNone, f.store.Dialog().Kind)
	})
	t.Run("Should close a dialog whose target record is removed", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"))
		f.store.OpenDeleteConfirmDialog(ctx, "u1")
		f.records.Remove("u1")
		assert.Equal(t, session.DialogNone, f.store.Dialog().Kind)
	})
}

func TestStore_Selection(t *testing.T) {
	ctx := context.Background()
	t.Run("Should toggle twice back to the original membership", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"))
		f.store.ToggleSelection(ctx, "u1")
		assert.True(t, f.store.IsSelected("u1"))
		f.store.ToggleSelection(ctx, "u1")
		assert.False(t, f.store.IsSelected("u1"))
		assert.Empty(t, f.store.Selection())
	})
	t.Run("Should select all loaded items and clear to empty", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"), newUser("u2"), newUser("u3"))
		f.store.SelectAll()
		assert.Len(t, f.store.Selection(), 3)
		f.store.ClearSelection()
		assert.Empty(t, f.store.Selection())
	})
	t.Run("Should refuse to select an unloaded id", func(t *testing.T) {
		f := newFixture(t)
		f.store.ToggleSelection(ctx, "ghost")
		assert.Empty(t, f.store.Selection())
	})
	t.Run("Should prune the selection when a record is removed", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"), newUser("u2"))
		f.store.SelectAll()
		f.records.Remove("u1")
		assert.Equal(t, []core.ID{"u2"}, f.store.Selection())
	})
	t.Run("Should follow a temp id through the create commit", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f)
		h, err := f.store.CreateUser(ctx, &user.Draft{Name: "Ana", Email: "ana@example.com", Role: user.RoleUser})
		require.NoError(t, err)
		f.store.ToggleSelection(ctx, "tmp-1")
		require.True(t, f.store.IsSelected("tmp-1"))

		now := time.Now().UTC()
		f.api.Expect(t).SucceedUser(&user.User{
			ID: "srv-42", Name: "Ana", Email: "ana@example.com", Role: user.RoleUser,
			CreatedAt: now, UpdatedAt: now,
		})
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_, err = h.Wait(waitCtx)
		require.NoError(t, err)

		assert.False(t, f.store.IsSelected("tmp-1"))
		assert.True(t, f.store.IsSelected("srv-42"))
	})
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	t.Run("Should reset the feed and selection on a new term", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"))
		f.store.SelectAll()
		require.NotEmpty(t, f.store.Selection())

		f.store.SetSearch(ctx, "ana")
		assert.Empty(t, f.store.Selection())

		h, err := f.store.LoadNextPage(ctx)
		require.NoError(t, err)
		call := f.api.Expect(t)
		assert.Equal(t, "ana", call.Page.Criteria.Search)
		assert.Empty(t, call.Page.Cursor)
		call.SucceedPage(&remote.PageResult{Items: []*user.User{newUser("u9")}})
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		require.NoError(t, h.Wait(waitCtx))
	})
	t.Run("Should not thrash the feed on an unchanged term", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"))
		f.store.SelectAll()
		f.store.SetSearch(ctx, "")
		assert.NotEmpty(t, f.store.Selection())
	})
	t.Run("Should combine role and status filters into the criteria", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetRoleFilter(ctx, user.RoleAdmin)
		f.store.SetStatusFilter(ctx, remote.StatusBanned)
		_, err := f.store.LoadNextPage(ctx)
		require.NoError(t, err)
		call := f.api.Expect(t)
		assert.Equal(t, user.RoleAdmin, call.Page.Criteria.Role)
		assert.Equal(t, remote.StatusBanned, call.Page.Criteria.Status)
		call.SucceedPage(&remote.PageResult{})
	})
}

func TestStore_Tabs(t *testing.T) {
	t.Run("Should clear the transition flag after the debounce window", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetActiveTab(session.TabSettings)
		assert.Equal(t, session.TabSettings, f.store.ActiveTab())
		assert.True(t, f.store.ReadModel().TabTransitioning)
		assert.Eventually(t, func() bool {
			return !f.store.ReadModel().TabTransitioning
		}, time.Second, 5*time.Millisecond)
	})
}

func TestStore_ReadModel(t *testing.T) {
	ctx := context.Background()
	t.Run("Should aggregate items, flags and stats", func(t *testing.T) {
		f := newFixture(t)
		banned := newUser("u2")
		banned.Banned = true
		banned.BanReason = "spam"
		admin := newUser("u3")
		admin.Role = user.RoleAdmin
		loadPage(t, f, newUser("u1"), banned, admin)

		rm := f.store.ReadModel()
		assert.Len(t, rm.Items, 3)
		assert.Equal(t, 3, rm.Stats.Loaded)
		assert.Equal(t, 3, rm.Stats.Total)
		assert.Equal(t, 2, rm.Stats.Active)
		assert.Equal(t, 1, rm.Stats.Banned)
		assert.Equal(t, 1, rm.Stats.Admins)
		assert.False(t, rm.HasMore)
		assert.False(t, rm.IsLoading)
		assert.Equal(t, session.ViewModeList, rm.ViewMode)
	})
	t.Run("Should prefer the server total when reported", func(t *testing.T) {
		f := newFixture(t)
		h, err := f.store.LoadNextPage(context.Background())
		require.NoError(t, err)
		f.api.Expect(t).SucceedPage(&remote.PageResult{Items: []*user.User{newUser("u1")}, Total: 40, NextCursor: "c2"})
		waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, h.Wait(waitCtx))
		rm := f.store.ReadModel()
		assert.Equal(t, 40, rm.Stats.Total)
		assert.Equal(t, 1, rm.Stats.Loaded)
		assert.True(t, rm.HasMore)
	})
	t.Run("Should surface a feed error with loaded pages intact", func(t *testing.T) {
		f := newFixture(t)
		loadPageWithCursor(t, f, "c2", newUser("u1"))
		h, err := f.store.LoadNextPage(ctx)
		require.NoError(t, err)
		f.api.Expect(t).Fail(errors.New("boom"))
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		require.Error(t, h.Wait(waitCtx))
		rm := f.store.ReadModel()
		assert.Error(t, rm.FeedError)
		assert.Len(t, rm.Items, 1)
	})
}

func loadPageWithCursor(t *testing.T, f *fixture, nextCursor string, users ...*user.User) {
	t.Helper()
	ctx := context.Background()
	h, err := f.store.LoadNextPage(ctx)
	require.NoError(t, err)
	f.api.Expect(t).SucceedPage(&remote.PageResult{Items: users, NextCursor: nextCursor})
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(waitCtx))
}

func TestStore_BulkActions(t *testing.T) {
	ctx := context.Background()
	t.Run("Should report partial failure per id", func(t *testing.T) {
		f := newFixture(t)
		loadPage(t, f, newUser("u1"), newUser("u2"))
		f.store.SelectAll()
		bulk, err := f.store.BanSelected(ctx, "spam")
		require.NoError(t, err)

		c1 := f.api.Expect(t)
		c2 := f.api.Expect(t)
		ok := c1
		fail := c2
		if c1.ID != "u1" {
			ok, fail = c2, c1
		}
		banned := newUser("u1")
		banned.Banned = true
		banned.BanReason = "spam"
		banned.UpdatedAt = banned.UpdatedAt.Add(time.Minute)
		ok.SucceedUser(banned)
		fail.Fail(errors.New("timeout"))

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		report, err := bulk.Wait(waitCtx)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{"u1"}, report.Succeeded)
		require.Contains(t, report.Failed, core.ID("u2"))
		// the failed ban rolled back
		got, _ := f.records.Get("u2")
		assert.False(t, got.Banned)
	})
	t.Run("Should refuse an empty selection", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.DeleteSelected(ctx)
		assert.Error(t, err)
	})
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	t.Run("Should notify on UI state changes", func(t *testing.T) {
		f := newFixture(t)
		events := make(chan struct{}, 32)
		unsub := f.store.Subscribe(func() { events <- struct{}{} })
		defer unsub()
		f.store.OpenCreateDialog(ctx)
		select {
		case <-events:
		case <-time.After(time.Second):
			t.Fatal("expected a notification for the dialog change")
		}
	})
}
