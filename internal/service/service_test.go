package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/auth"
	"github.com/inkwellapp/inkwell-server/internal/desync"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/markup"
	"github.com/inkwellapp/inkwell-server/internal/search"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/store/sqlite"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

var errInjected = errors.New("injected failure")

// flakyIndex is a real in-memory index whose mutations can be switched off.
type flakyIndex struct {
	*search.Index
	fail atomic.Bool
}

func (f *flakyIndex) Upsert(ctx context.Context, kind domain.Kind, id, rev int64, fields map[string]string) error {
	if f.fail.Load() {
		return errInjected
	}
	return f.Index.Upsert(ctx, kind, id, rev, fields)
}

func (f *flakyIndex) UpsertAll(ctx context.Context, kind domain.Kind, entries ...search.Entry) error {
	if f.fail.Load() {
		return errInjected
	}
	return f.Index.UpsertAll(ctx, kind, entries...)
}

func (f *flakyIndex) Remove(ctx context.Context, kind domain.Kind, id, rev int64) error {
	if f.fail.Load() {
		return errInjected
	}
	return f.Index.Remove(ctx, kind, id, rev)
}

// testEnv wires every service over a temp SQLite store, an in-memory
// index and an in-memory ledger.
type testEnv struct {
	store    *sqlite.Store
	index    *flakyIndex
	ledger   *desync.Ledger
	renderer *markup.Renderer
	hasher   *auth.Hasher

	search   *SearchService
	posts    *PostService
	users    *UserService
	comments *CommentService
	taxonomy *TaxonomyService
}

// setupTestEnv creates services with default pipeline options.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return setupTestEnvWith(t, nil, PipelineOptions{})
}

// setupTestEnvWith lets a test wrap the store the services see and tune the pipeline.
func setupTestEnvWith(t *testing.T, wrap func(store.Store) store.Store, opts PipelineOptions) *testEnv {
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

	var st store.Store = db
	if wrap != nil {
		st = wrap(db)
	}

	env := &testEnv{
		store:    db,
		index:    &flakyIndex{Index: idx},
		ledger:   ledger,
		renderer: markup.NewRenderer(),
		hasher:   auth.NewHasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
	}
	v := validation.New()

	env.search = NewSearchService(env.index, st, ledger, opts, logger)
	env.posts = NewPostService(st, env.renderer, env.search, v, opts, logger)
	env.users = NewUserService(st, env.search, env.hasher, v, opts, logger)
	env.comments = NewCommentService(st, v, opts, logger)
	env.taxonomy = NewTaxonomyService(st, v, logger)
	return env
}

// createAuthor inserts a user straight into the store and returns its principal.
func (e *testEnv) createAuthor(t *testing.T, username string, isAdmin bool) domain.Principal {
	t.Helper()
	u := &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		IsAdmin:      isAdmin,
		MemberSince:  time.Now(),
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return domain.Principal{UserID: u.ID, IsAdmin: isAdmin}
}

// publish is a shortcut that requires success and a clean index step.
func (e *testEnv) publish(t *testing.T, p domain.Principal, title, body string) *domain.Post {
	t.Helper()
	res, err := e.posts.Publish(context.Background(), p, PostInput{Title: title, Body: body})
	require.NoError(t, err)
	require.NoError(t, res.IndexErr)
	return res.Post
}

func (e *testEnv) searchIDs(t *testing.T, kind domain.Kind, text string) []int64 {
	t.Helper()
	ids, err := e.search.Search(context.Background(), kind, text)
	require.NoError(t, err)
	return ids
}

func (e *testEnv) flaggedCount(t *testing.T) int {
	t.Helper()
	n, err := e.ledger.Count(context.Background())
	require.NoError(t, err)
	return n
}

// lyingStore reports every slug as free for the first `lies` probes, so
// the commit loses on the unique index as if another writer raced it.
type lyingStore struct {
	store.Store
	lies  atomic.Int64
	calls atomic.Int64
}

func (s *lyingStore) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	s.calls.Add(1)
	if s.lies.Add(-1) >= 0 {
		return false, nil
	}
	return s.Store.SlugExists(ctx, slug, excludeID)
}

// pausingStore blocks the first GetUser after arming until resume is
// closed, so a test can commit another write between a read and its update.
type pausingStore struct {
	store.Store
	armed  atomic.Bool
	read   chan struct{}
	resume chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{read: make(chan struct{}), resume: make(chan struct{})}
}

func (s *pausingStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.Store.GetUser(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.resume
	}
	return u, err
}

// contendedStore rejects every user update as if another writer always won.
type contendedStore struct {
	store.Store
	updates atomic.Int64
}

func (s *contendedStore) UpdateUser(context.Context, *domain.User) error {
	s.updates.Add(1)
	return store.ErrRevisionConflict
}

// brokenStore fails every post write.
type brokenStore struct {
	store.Store
}

func (brokenStore) CreatePost(context.Context, *domain.Post) error {
	return errors.New("disk I/O error")
}

func (brokenStore) UpdatePost(context.Context, *domain.Post) error {
	return errors.New("disk I/O error")
}
