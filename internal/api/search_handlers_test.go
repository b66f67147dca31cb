package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/desync"
	"github.com/inkwellapp/inkwell-server/internal/domain"
)

func TestSearchPosts(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")
	lisbon := ts.publish(t, alice, "Trams of Lisbon", "yellow **trams** climb the hills")
	ts.publish(t, alice, "Porto Wine", "cellars along the river")

	resp := ts.api.Get("/api/v1/search/posts?q=trams")
	require.Equal(t, http.StatusOK, resp.Code)

	posts := decode[struct {
		Posts []PostResponse `json:"posts"`
	}](t, resp).Posts
	require.Len(t, posts, 1)
	assert.Equal(t, lisbon.ID, posts[0].ID)
	assert.Equal(t, "yellow **trams** climb the hills", posts[0].Excerpt)
}

func TestSearchPosts_NoMatch(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")
	ts.publish(t, alice, "Trams of Lisbon", "yellow trams")

	resp := ts.api.Get("/api/v1/search/posts?q=submarine")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"posts":[]`)
}

func TestSearchUsers_HidesEmail(t *testing.T) {
	ts := setupTestServer(t)
	ts.registerUser(t, "alice")
	ts.registerUser(t, "bob")

	resp := ts.api.Get("/api/v1/search/users?q=alice")
	require.Equal(t, http.StatusOK, resp.Code)

	users := decode[struct {
		Users []UserResponse `json:"users"`
	}](t, resp).Users
	require.NotEmpty(t, users)
	assert.Equal(t, "alice", users[0].Username)
	assert.Empty(t, users[0].Email)
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")

	assert.Equal(t, http.StatusUnauthorized, ts.api.Post("/api/v1/admin/reindex").Code)
	assert.Equal(t, http.StatusForbidden, ts.api.Post("/api/v1/admin/reindex", asUser(alice)).Code)
	assert.Equal(t, http.StatusForbidden, ts.api.Post("/api/v1/admin/repair", asUser(alice)).Code)
	assert.Equal(t, http.StatusForbidden, ts.api.Get("/api/v1/admin/desync", asUser(alice)).Code)
}

func TestAdmin_Reindex(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")
	ts.publish(t, alice, "One", "a")
	ts.publish(t, alice, "Two", "b")

	resp := ts.api.Post("/api/v1/admin/reindex", asAdmin(alice)...)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	res := decode[ReindexResponse](t, resp)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Upserted[domain.KindPost])
	assert.Equal(t, 1, res.Upserted[domain.KindUser])
	assert.Equal(t, 0, res.Removed[domain.KindPost])
}

func TestAdmin_DesyncAndRepair(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")
	post := ts.publish(t, alice, "Flagged", "body")

	require.NoError(t, ts.ledger.Flag(context.Background(), desync.Entry{
		Kind:  domain.KindPost,
		ID:    post.ID,
		Op:    desync.OpUpsert,
		Rev:   post.Revision,
		Error: "index unavailable",
	}))

	resp := ts.api.Get("/api/v1/admin/desync", asAdmin(alice)...)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	entries := decode[struct {
		Entries []DesyncEntryResponse `json:"entries"`
	}](t, resp).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, post.ID, entries[0].ID)
	assert.Equal(t, "upsert", entries[0].Op)

	resp = ts.api.Get("/api/v1/admin/desync?kind=users", asAdmin(alice)...)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[struct {
		Entries []DesyncEntryResponse `json:"entries"`
	}](t, resp).Entries)

	resp = ts.api.Get("/api/v1/admin/desync?kind=comments", asAdmin(alice)...)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[errorBody](t, resp).Code)

	health := decode[HealthResponse](t, ts.api.Get("/health"))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "degraded", health.Components["search"].Status)

	resp = ts.api.Post("/api/v1/admin/repair", asAdmin(alice)...)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	repair := decode[RepairResponse](t, resp)
	assert.Equal(t, 1, repair.Repaired)
	assert.Equal(t, 0, repair.Failed)

	resp = ts.api.Get("/api/v1/admin/desync", asAdmin(alice)...)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[struct {
		Entries []DesyncEntryResponse `json:"entries"`
	}](t, resp).Entries)
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["database"].Status)
	assert.Equal(t, "healthy", health.Components["search"].Status)
}
