package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/user"
)

func newUser(id string, updated time.Time) *user.User {
	return &user.User{
		ID:        core.ID(id),
		Name:      "User " + id,
		Email:     id + "@example.com",
		Role:      user.RoleUser,
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestStore_Upsert(t *testing.T) {
	now := time.Now().UTC()
	t.Run("Should insert a new record", func(t *testing.T) {
		s := NewStore()
		require.True(t, s.Upsert(newUser("u1", now)))
		got, ok := s.Get("u1")
		require.True(t, ok)
		assert.Equal(t, core.ID("u1"), got.ID)
	})
	t.Run("Should overwrite when incoming record is not older", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		newer := newUser("u1", now.Add(time.Second))
		newer.Name = "renamed"
		require.True(t, s.Upsert(newer))
		got, _ := s.Get("u1")
		assert.Equal(t, "renamed", got.Name)
	})
	t.Run("Should drop an incoming record older than the stored one", func(t *testing.T) {
		s := NewStore()
		current := newUser("u1", now)
		current.Name = "current"
		s.Upsert(current)
		stale := newUser("u1", now.Add(-time.Minute))
		stale.Name = "stale"
		assert.False(t, s.Upsert(stale))
		got, _ := s.Get("u1")
		assert.Equal(t, "current", got.Name)
	})
	t.Run("Should accept a record with an equal timestamp", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		same := newUser("u1", now)
		same.Name = "server copy"
		require.True(t, s.Upsert(same))
		got, _ := s.Get("u1")
		assert.Equal(t, "server copy", got.Name)
	})
	t.Run("Should clear ban reason for unbanned records", func(t *testing.T) {
		s := NewStore()
		u := newUser("u1", now)
		u.BanReason = "left over"
		s.Upsert(u)
		got, _ := s.Get("u1")
		assert.Empty(t, got.BanReason)
	})
	t.Run("Should not alias caller memory", func(t *testing.T) {
		s := NewStore()
		u := newUser("u1", now)
		s.Upsert(u)
		u.Name = "mutated after upsert"
		got, _ := s.Get("u1")
		assert.Equal(t, "User u1", got.Name)
	})
	t.Run("Should ignore nil and zero-id records", func(t *testing.T) {
		s := NewStore()
		assert.False(t, s.Upsert(nil))
		assert.False(t, s.Upsert(&user.User{}))
		assert.Equal(t, 0, s.Len())
	})
}

func TestStore_Restore(t *testing.T) {
	now := time.Now().UTC()
	t.Run("Should bypass the last-writer rule", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		snapshot := newUser("u1", now.Add(-time.Hour))
		snapshot.Name = "snapshot"
		s.Restore(snapshot)
		got, _ := s.Get("u1")
		assert.Equal(t, "snapshot", got.Name)
		assert.Equal(t, snapshot.UpdatedAt.Unix(), got.UpdatedAt.Unix())
	})
	t.Run("Should re-append a removed record as the newest entry", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		s.Upsert(newUser("u2", now))
		snapshot, _ := s.Get("u1")
		s.Remove("u1")
		s.Restore(snapshot)
		all := s.All()
		require.Len(t, all, 2)
		assert.Equal(t, core.ID("u2"), all[0].ID)
		assert.Equal(t, core.ID("u1"), all[1].ID)
	})
}

func TestStore_Remove(t *testing.T) {
	now := time.Now().UTC()
	t.Run("Should remove an existing record", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		assert.True(t, s.Remove("u1"))
		_, ok := s.Get("u1")
		assert.False(t, ok)
	})
	t.Run("Should report absence", func(t *testing.T) {
		s := NewStore()
		assert.False(t, s.Remove("ghost"))
	})
}

func TestStore_ReplaceID(t *testing.T) {
	now := time.Now().UTC()
	t.Run("Should rewrite identity preserving order position", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("tmp-1", now))
		s.Upsert(newUser("u2", now))
		require.True(t, s.ReplaceID("tmp-1", "srv-42"))
		_, ok := s.Get("tmp-1")
		assert.False(t, ok)
		got, ok := s.Get("srv-42")
		require.True(t, ok)
		assert.Equal(t, core.ID("srv-42"), got.ID)
		all := s.All()
		assert.Equal(t, core.ID("srv-42"), all[0].ID)
	})
	t.Run("Should report unknown source id", func(t *testing.T) {
		s := NewStore()
		assert.False(t, s.ReplaceID("ghost", "real"))
	})
	t.Run("Should drop the temporary entry when the new id already exists", func(t *testing.T) {
		// the confirmed record arrived via a page fetch before the rewrite
		s := NewStore()
		s.Upsert(newUser("tmp-1", now))
		s.Upsert(newUser("srv-42", now.Add(time.Second)))
		require.True(t, s.ReplaceID("tmp-1", "srv-42"))

		_, ok := s.Get("tmp-1")
		assert.False(t, ok)
		all := s.All()
		require.Len(t, all, 1)
		assert.Equal(t, core.ID("srv-42"), all[0].ID)

		assert.True(t, s.Remove("srv-42"))
		assert.Empty(t, s.All())
	})
}

func TestStore_All(t *testing.T) {
	now := time.Now().UTC()
	t.Run("Should keep first-seen order across upserts", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		s.Upsert(newUser("u2", now))
		s.Upsert(newUser("u1", now.Add(time.Second)))
		all := s.All()
		require.Len(t, all, 2)
		assert.Equal(t, core.ID("u1"), all[0].ID)
		assert.Equal(t, core.ID("u2"), all[1].ID)
	})
}

func TestStore_Subscribe(t *testing.T) {
	now := time.Now().UTC()
	t.Run("Should notify on upsert, remove and id replacement", func(t *testing.T) {
		s := NewStore()
		var changes []Change
		unsub := s.Subscribe(func(ch Change) { changes = append(changes, ch) })
		defer unsub()
		s.Upsert(newUser("tmp-1", now))
		s.ReplaceID("tmp-1", "srv-1")
		s.Remove("srv-1")
		require.Len(t, changes, 3)
		assert.Equal(t, ChangeUpsert, changes[0].Kind)
		assert.Equal(t, ChangeReplaceID, changes[1].Kind)
		assert.Equal(t, core.ID("tmp-1"), changes[1].OldID)
		assert.Equal(t, ChangeRemove, changes[2].Kind)
	})
	t.Run("Should stop notifying after unsubscribe", func(t *testing.T) {
		s := NewStore()
		count := 0
		unsub := s.Subscribe(func(Change) { count++ })
		s.Upsert(newUser("u1", now))
		unsub()
		s.Upsert(newUser("u2", now))
		assert.Equal(t, 1, count)
	})
	t.Run("Should allow re-entrant reads from a callback", func(t *testing.T) {
		s := NewStore()
		var seen int
		s.Subscribe(func(Change) { seen = s.Len() })
		s.Upsert(newUser("u1", now))
		assert.Equal(t, 1, seen)
	})
	t.Run("Should not notify when a stale upsert is dropped", func(t *testing.T) {
		s := NewStore()
		s.Upsert(newUser("u1", now))
		count := 0
		s.Subscribe(func(Change) { count++ })
		s.Upsert(newUser("u1", now.Add(-time.Hour)))
		assert.Equal(t, 0, count)
	})
}
