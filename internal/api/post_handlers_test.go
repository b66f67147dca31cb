package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPost_Created(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")

	resp := ts.api.Post("/api/v1/posts", asUser(author), map[string]any{
		"title": "Hello World",
		"body":  "# Hi\n\n<script>alert(1)</script>\n\nsome *text*",
		"tags":  []string{"Go", " go ", "Testing"},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	post := decode[PostResponse](t, resp)
	assert.Equal(t, "hello-world", post.Slug)
	assert.Equal(t, author, post.AuthorID)
	assert.Contains(t, post.BodyHTML, "<h1>Hi</h1>")
	assert.Contains(t, post.BodyHTML, "<em>text</em>")
	assert.NotContains(t, post.BodyHTML, "<script")
	assert.ElementsMatch(t, []string{"Go", "Testing"}, post.Tags)
	assert.Empty(t, post.IndexWarning)
}

func TestPublishPost_SameTitleGetsSuffixes(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")

	var slugs []string
	for range 3 {
		slugs = append(slugs, ts.publish(t, author, "My First Post", "hello").Slug)
	}

	assert.Equal(t, []string{"my-first-post", "my-first-post-1", "my-first-post-2"}, slugs)
}

func TestPublishPost_RequiresPrincipal(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/posts", map[string]any{"title": "t", "body": "b"})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, resp).Code)
}

func TestPublishPost_MalformedPrincipalHeader(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/posts", HeaderPrincipalID+": abc", map[string]any{"title": "t", "body": "b"})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[errorBody](t, resp).Code)
}

func TestPublishPost_Validation(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")

	resp := ts.api.Post("/api/v1/posts", asUser(author), map[string]any{
		"title": "   ",
		"body":  "body",
	})

	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "VALIDATION", body.Code)
	assert.Contains(t, body.Details, "title")
}

func TestPublishPost_MissingFieldIsValidation(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")

	resp := ts.api.Post("/api/v1/posts", asUser(author), map[string]any{"title": "no body"})

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[errorBody](t, resp).Code)
}

func TestGetPost_BySlugAndID(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")
	post := ts.publish(t, author, "Hello World", "body")

	bySlug := ts.api.Get("/api/v1/posts/hello-world")
	require.Equal(t, http.StatusOK, bySlug.Code)
	assert.Equal(t, post.ID, decode[PostResponse](t, bySlug).ID)

	byID := ts.api.Get(fmt.Sprintf("/api/v1/posts/%d", post.ID))
	require.Equal(t, http.StatusOK, byID.Code)
	assert.Equal(t, "hello-world", decode[PostResponse](t, byID).Slug)

	missing := ts.api.Get("/api/v1/posts/nope")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, missing).Code)
}

func TestUpdatePost_SlugFollowsTitle(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")
	post := ts.publish(t, author, "Hello World", "body")
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	resp := ts.api.Put(path, asUser(author), map[string]any{"title": "Hello World", "body": "**new**"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	same := decode[PostResponse](t, resp)
	assert.Equal(t, "hello-world", same.Slug)
	assert.Contains(t, same.BodyHTML, "<strong>new</strong>")

	resp = ts.api.Put(path, asUser(author), map[string]any{"title": "Goodbye World", "body": "bye"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "goodbye-world", decode[PostResponse](t, resp).Slug)

	assert.Equal(t, http.StatusNotFound, ts.api.Get("/api/v1/posts/hello-world").Code)
}

func TestUpdatePost_OtherAuthorForbidden(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")
	bob := ts.registerUser(t, "bob")
	post := ts.publish(t, alice, "Mine", "body")
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	resp := ts.api.Put(path, asUser(bob), map[string]any{"title": "Stolen", "body": "body"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, resp).Code)

	args := append(asAdmin(bob), map[string]any{"title": "Moderated", "body": "body"})
	resp = ts.api.Put(path, args...)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestUpdatePost_NonNumericID(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")

	resp := ts.api.Put("/api/v1/posts/hello", asUser(author), map[string]any{"title": "t", "body": "b"})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[errorBody](t, resp).Code)
}

func TestDeletePost(t *testing.T) {
	ts := setupTestServer(t)
	author := ts.registerUser(t, "alice")
	post := ts.publish(t, author, "Short Lived", "body")
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	resp := ts.api.Delete(path, asUser(author))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, post.ID, decode[DeleteResponse](t, resp).ID)

	assert.Equal(t, http.StatusNotFound, ts.api.Get(path).Code)
	assert.Equal(t, http.StatusNotFound, ts.api.Delete(path, asUser(author)).Code)
}

func TestListUserPosts(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerUser(t, "alice")
	bob := ts.registerUser(t, "bob")
	ts.publish(t, alice, "First", "one")
	ts.publish(t, alice, "Second", "two")
	ts.publish(t, bob, "Other", "three")

	resp := ts.api.Get(fmt.Sprintf("/api/v1/users/%d/posts", alice))
	require.Equal(t, http.StatusOK, resp.Code)

	posts := decode[struct {
		Posts []PostResponse `json:"posts"`
	}](t, resp).Posts
	require.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, alice, p.AuthorID)
	}

	assert.Equal(t, http.StatusNotFound, ts.api.Get("/api/v1/users/999/posts").Code)
}
