package api

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/auth"
	"github.com/inkwellapp/inkwell-server/internal/desync"
	"github.com/inkwellapp/inkwell-server/internal/markup"
	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
	"github.com/inkwellapp/inkwell-server/internal/search"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/store/sqlite"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// testServer wraps the API server with a humatest client.
type testServer struct {
	*Server
	api    humatest.TestAPI
	ledger *desync.Ledger
}

// setupTestServer wires every service over a temp SQLite store, an
// in-memory index and an in-memory ledger. Rate limiting is off.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWithLimiter(t, nil, Options{CORSOrigins: []string{"*"}})
}

func setupTestServerWithLimiter(t *testing.T, limiter *ratelimit.KeyedRateLimiter, opts Options) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx, err := search.NewIndex(search.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ledger, err := desync.Open("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	pipeline := service.DefaultPipelineOptions()
	v := validation.New()
	hasher := auth.NewHasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	searchSvc := service.NewSearchService(idx, db, ledger, pipeline, logger)
	services := &Services{
		Posts:    service.NewPostService(db, markup.NewRenderer(), searchSvc, v, pipeline, logger),
		Users:    service.NewUserService(db, searchSvc, hasher, v, pipeline, logger),
		Comments: service.NewCommentService(db, v, pipeline, logger),
		Taxonomy: service.NewTaxonomyService(db, v, logger),
		Search:   searchSvc,
		Store:    db,
	}

	if limiter != nil {
		t.Cleanup(limiter.Stop)
	}

	s := NewServer(services, limiter, opts, logger)
	return &testServer{Server: s, api: humatest.Wrap(t, s.API()), ledger: ledger}
}

// asUser returns the gateway header for a regular principal.
func asUser(id int64) string {
	return fmt.Sprintf("%s: %d", HeaderPrincipalID, id)
}

// asAdmin returns the gateway headers for an admin principal.
func asAdmin(id int64) []any {
	return []any{asUser(id), HeaderPrincipalAdmin + ": true"}
}

// registerUser creates an account through the API and returns its ID.
func (ts *testServer) registerUser(t *testing.T, username string) int64 {
	t.Helper()
	resp := ts.api.Post("/api/v1/users", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[UserResponse](t, resp).ID
}

// publish creates a post through the API and returns it.
func (ts *testServer) publish(t *testing.T, authorID int64, title, body string) PostResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/posts", asUser(authorID), map[string]any{
		"title": title,
		"body":  body,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[PostResponse](t, resp)
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}
