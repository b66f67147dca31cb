package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCategory_AdminOnly(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")

	resp := ts.api.Post("/api/v1/categories", map[string]any{"name": "Travel"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.api.Post("/api/v1/categories", asUser(alice), map[string]any{"name": "Travel"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	args := append(asAdmin(alice), map[string]any{"name": "  Travel "})
	resp = ts.api.Post("/api/v1/categories", args...)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "Travel", decode[NamedResponse](t, resp).Name)

	args = append(asAdmin(alice), map[string]any{"name": "travel"})
	resp = ts.api.Post("/api/v1/categories", args...)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestListCategories(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")

	for _, name := range []string{"Travel", "Food"} {
		args := append(asAdmin(alice), map[string]any{"name": name})
		require.Equal(t, http.StatusCreated, ts.api.Post("/api/v1/categories", args...).Code)
	}

	resp := ts.api.Get("/api/v1/categories")
	require.Equal(t, http.StatusOK, resp.Code)

	cats := decode[struct {
		Categories []NamedResponse `json:"categories"`
	}](t, resp).Categories
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[0].Name)
	assert.Equal(t, "Travel", cats[1].Name)
}

func TestPublishWithCategory(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")

	args := append(asAdmin(alice), map[string]any{"name": "Travel"})
	resp := ts.api.Post("/api/v1/categories", args...)
	require.Equal(t, http.StatusCreated, resp.Code)
	cat := decode[NamedResponse](t, resp)

	resp = ts.api.Post("/api/v1/posts", asUser(alice), map[string]any{
		"title":       "Lisbon",
		"body":        "trams",
		"category_id": cat.ID,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	post := decode[PostResponse](t, resp)
	require.NotNil(t, post.CategoryID)
	assert.Equal(t, cat.ID, *post.CategoryID)
}

func TestTags_ListAndPosts(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")

	resp := ts.api.Post("/api/v1/posts", asUser(alice), map[string]any{
		"title": "Tagged",
		"body":  "body",
		"tags":  []string{"sqlite", "Go"},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	post := decode[PostResponse](t, resp)
	ts.publish(t, alice, "Untagged", "body")

	resp = ts.api.Get("/api/v1/tags")
	require.Equal(t, http.StatusOK, resp.Code)
	tags := decode[struct {
		Tags []NamedResponse `json:"tags"`
	}](t, resp).Tags
	assert.Len(t, tags, 2)

	resp = ts.api.Get("/api/v1/tags/GO/posts")
	require.Equal(t, http.StatusOK, resp.Code)
	posts := decode[struct {
		Posts []PostResponse `json:"posts"`
	}](t, resp).Posts
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)
}
