package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		BaseURL:       srv.URL,
		Timeout:       2 * time.Second,
		PageRetries:   2,
		PageRetryBase: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestNewClient(t *testing.T) {
	t.Run("Should reject a relative base URL", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "/api/v1"})
		assert.Error(t, err)
	})
	t.Run("Should reject a non-http scheme", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "ftp://example.com"})
		assert.Error(t, err)
	})
}

func TestClient_FetchPage(t *testing.T) {
	ctx := context.Background()
	t.Run("Should send the criteria and cursor as query params", func(t *testing.T) {
		var gotQuery map[string][]string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			assert.Equal(t, "/users", r.URL.Path)
			assert.NotEmpty(t, r.Header.Get(requestIDHeader))
			writeJSON(t, w, http.StatusOK, pageEnvelope{
				Data:       []*user.User{{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: user.RoleUser}},
				NextCursor: "c2",
				Total:      37,
			})
		}))
		res, err := client.FetchPage(ctx, remote.PageRequest{
			Criteria: remote.Criteria{Search: "ana", Role: user.RoleAdmin, Status: remote.StatusBanned},
			Cursor:   "c1",
			Limit:    25,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"ana"}, gotQuery["search"])
		assert.Equal(t, []string{"admin"}, gotQuery["role"])
		assert.Equal(t, []string{"banned"}, gotQuery["status"])
		assert.Equal(t, []string{"c1"}, gotQuery["cursor"])
		assert.Equal(t, []string{"25"}, gotQuery["limit"])
		require.Len(t, res.Items, 1)
		assert.Equal(t, core.ID("u1"), res.Items[0].ID)
		assert.Equal(t, "c2", res.NextCursor)
		assert.Equal(t, 37, res.Total)
		assert.False(t, res.FetchedAt.IsZero())
	})
	t.Run("Should retry a transient failure and then succeed", func(t *testing.T) {
		var hits atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				writeJSON(t, w, http.StatusServiceUnavailable, apiError{Message: "overloaded"})
				return
			}
			writeJSON(t, w, http.StatusOK, pageEnvelope{Data: []*user.User{{ID: "u1"}}})
		}))
		res, err := client.FetchPage(ctx, remote.PageRequest{})
		require.NoError(t, err)
		assert.Len(t, res.Items, 1)
		assert.Equal(t, int32(2), hits.Load())
	})
	t.Run("Should not retry a client error", func(t *testing.T) {
		var hits atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			writeJSON(t, w, http.StatusBadRequest, apiError{Message: "bad cursor"})
		}))
		_, err := client.FetchPage(ctx, remote.PageRequest{Cursor: "junk"})
		require.Error(t, err)
		assert.ErrorContains(t, err, "bad cursor")
		assert.Equal(t, int32(1), hits.Load())
	})
	t.Run("Should give up after the retry budget", func(t *testing.T) {
		var hits atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			writeJSON(t, w, http.StatusInternalServerError, apiError{Message: "boom"})
		}))
		_, err := client.FetchPage(ctx, remote.PageRequest{})
		require.Error(t, err)
		assert.Equal(t, int32(3), hits.Load())
	})
}

func TestClient_Mutations(t *testing.T) {
	ctx := context.Background()
	t.Run("Should create a user from a draft", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/users", r.URL.Path)
			var draft user.Draft
			require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
			assert.Equal(t, "ana@example.com", draft.Email)
			writeJSON(t, w, http.StatusCreated, userEnvelope{Data: &user.User{ID: "srv-1", Name: draft.Name, Email: draft.Email, Role: draft.Role}})
		}))
		created, err := client.CreateUser(ctx, &user.Draft{Name: "Ana", Email: "ana@example.com", Role: user.RoleUser})
		require.NoError(t, err)
		assert.Equal(t, core.ID("srv-1"), created.ID)
	})
	t.Run("Should surface a validation rejection verbatim", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(t, w, http.StatusUnprocessableEntity, apiError{Message: "email already in use"})
		}))
		_, err := client.CreateUser(ctx, &user.Draft{Name: "Ana", Email: "ana@example.com", Role: user.RoleUser})
		require.Error(t, err)
		assert.True(t, core.IsRejected(err))
		assert.ErrorContains(t, err, "email already in use")
	})
	t.Run("Should classify a server error as transport failure", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(t, w, http.StatusBadGateway, apiError{Message: "upstream down"})
		}))
		name := "Ana"
		_, err := client.UpdateUser(ctx, "u1", &user.Patch{Name: &name})
		require.Error(t, err)
		assert.True(t, core.IsTransportFailure(err))
	})
	t.Run("Should classify a refused connection as transport failure", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
		require.NoError(t, err)
		_, err = client.CreateUser(ctx, &user.Draft{Name: "Ana", Email: "ana@example.com", Role: user.RoleUser})
		require.Error(t, err)
		assert.True(t, core.IsTransportFailure(err))
	})
	t.Run("Should patch one user", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/users/u1", r.URL.Path)
			var patch user.Patch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			require.NotNil(t, patch.Name)
			writeJSON(t, w, http.StatusOK, userEnvelope{Data: &user.User{ID: "u1", Name: *patch.Name}})
		}))
		name := "Renamed"
		updated, err := client.UpdateUser(ctx, "u1", &user.Patch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
	})
	t.Run("Should delete one user", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/users/u1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}))
		assert.NoError(t, client.DeleteUser(ctx, "u1"))
	})
	t.Run("Should reject deleting an unknown user", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(t, w, http.StatusNotFound, apiError{Message: "user not found"})
		}))
		err := client.DeleteUser(ctx, "ghost")
		require.Error(t, err)
		assert.True(t, core.IsRejected(err))
	})
	t.Run("Should send the ban flag and reason", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/users/u1/ban", r.URL.Path)
			var body banBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.True(t, body.Banned)
			require.NotNil(t, body.Reason)
			assert.Equal(t, "spam", *body.Reason)
			writeJSON(t, w, http.StatusOK, userEnvelope{Data: &user.User{ID: "u1", Banned: true, BanReason: "spam"}})
		}))
		reason := "spam"
		banned, err := client.SetBan(ctx, "u1", &reason)
		require.NoError(t, err)
		assert.True(t, banned.Banned)
	})
	t.Run("Should send banned false without a reason on unban", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body banBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.False(t, body.Banned)
			assert.Nil(t, body.Reason)
			writeJSON(t, w, http.StatusOK, userEnvelope{Data: &user.User{ID: "u1"}})
		}))
		unbanned, err := client.SetBan(ctx, "u1", nil)
		require.NoError(t, err)
		assert.False(t, unbanned.Banned)
	})
}
