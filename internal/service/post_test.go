package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

func TestPublish_SameTitleGetsSuffixes(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	var slugs []string
	for range 3 {
		slugs = append(slugs, env.publish(t, author, "My First Post", "hello").Slug)
	}

	assert.Equal(t, []string{"my-first-post", "my-first-post-1", "my-first-post-2"}, slugs)
}

func TestPublish_RendersSafeHTML(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	body := "# Hi\n\n<script>alert(1)</script>\n\nsome *text*"
	p := env.publish(t, author, "Hi", body)

	assert.Equal(t, body, p.Body)
	assert.Equal(t, env.renderer.Render(body), p.BodyHTML)
	assert.Contains(t, p.BodyHTML, "<h1>Hi</h1>")
	assert.Contains(t, p.BodyHTML, "<em>text</em>")
	assert.NotContains(t, p.BodyHTML, "<script")

	stored, err := env.posts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.BodyHTML, stored.BodyHTML)
}

func TestExcerpt(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	short := env.publish(t, author, "Short", "plain <script>x()</script>words")
	assert.Equal(t, "plain words", env.posts.Excerpt(short))

	long := env.publish(t, author, "Long", strings.Repeat("word ", 60))
	excerpt := env.posts.Excerpt(long)
	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.True(t, strings.HasPrefix(excerpt, "word word"))
	assert.LessOrEqual(t, len([]rune(excerpt)), ExcerptLength+1)
	assert.NotContains(t, excerpt, "wor…")
}

func TestPublish_IndexesTitleAndBody(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	p := env.publish(t, author, "Gardening Basics", "tomatoes need sun")

	assert.Equal(t, []int64{p.ID}, env.searchIDs(t, domain.KindPost, "gardening"))
	assert.Equal(t, []int64{p.ID}, env.searchIDs(t, domain.KindPost, "tomatoes"))
	assert.Zero(t, env.flaggedCount(t))
}

func TestPublish_NormalizesTags(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	res, err := env.posts.Publish(context.Background(), author, PostInput{
		Title: "Tagged",
		Body:  "body",
		Tags:  []string{"sqlite", "Go", "go", "  ", " sqlite "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "sqlite"}, res.Post.Tags)

	posts, err := env.taxonomy.PostsByTag(context.Background(), "GO")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, res.Post.ID, posts[0].ID)
}

func TestPublish_Validation(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	tests := []struct {
		name  string
		input PostInput
		field string
	}{
		{"empty title", PostInput{Title: "", Body: "b"}, "title"},
		{"blank title", PostInput{Title: "   ", Body: "b"}, "title"},
		{"long title", PostInput{Title: strings.Repeat("é", domain.MaxTitleLength+1), Body: "b"}, "title"},
		{"blank body", PostInput{Title: "t", Body: "\n\t "}, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.posts.Publish(context.Background(), author, tt.input)
			require.ErrorIs(t, err, domainerrors.ErrValidation)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Contains(t, domainErr.Details, tt.field)
		})
	}

	n, err := env.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "validation failures must not write")

	// Exactly at the limit is fine.
	env.publish(t, author, strings.Repeat("é", domain.MaxTitleLength), "b")
}

func TestPublish_RequiresPrincipal(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.posts.Publish(context.Background(), domain.Principal{}, PostInput{Title: "t", Body: "b"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestUpdate_SlugFollowsTitle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)

	p := env.publish(t, author, "Hello World", "first")

	// Body-only change keeps the slug and re-renders.
	res, err := env.posts.Update(ctx, author, p.ID, PostInput{Title: "Hello World", Body: "**second**"})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", res.Post.Slug)
	assert.Equal(t, env.renderer.Render("**second**"), res.Post.BodyHTML)
	assert.Greater(t, res.Post.Revision, p.Revision)

	// Forcing a reslug never collides with the post's own slug.
	res, err = env.posts.Update(ctx, author, p.ID, PostInput{Title: "Hello World", Body: "**second**", ForceReslug: true})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", res.Post.Slug)

	// A new title means a new slug.
	res, err = env.posts.Update(ctx, author, p.ID, PostInput{Title: "Goodbye World", Body: "**second**"})
	require.NoError(t, err)
	assert.Equal(t, "goodbye-world", res.Post.Slug)

	_, err = env.posts.GetBySlug(ctx, "hello-world")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	got, err := env.posts.GetBySlug(ctx, "goodbye-world")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestUpdate_SameSlugTitleVariantKeepsNewSource(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)

	p := env.publish(t, author, "Hello World", "x")

	// Different title text with the same slug base: re-allocated, same result.
	res, err := env.posts.Update(ctx, author, p.ID, PostInput{Title: "Hello, World!", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", res.Post.Slug)
	assert.Equal(t, "Hello, World!", res.Post.SlugSource)
}

func TestUpdate_ReindexesOnChange(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	p := env.publish(t, author, "Alpha", "first body")
	_, err := env.posts.Update(context.Background(), author, p.ID, PostInput{Title: "Omega", Body: "second body"})
	require.NoError(t, err)

	assert.Empty(t, env.searchIDs(t, domain.KindPost, "alpha"))
	assert.Equal(t, []int64{p.ID}, env.searchIDs(t, domain.KindPost, "omega"))
}

func TestUpdate_Permissions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)
	other := env.createAuthor(t, "bob", false)
	admin := env.createAuthor(t, "root", true)

	p := env.publish(t, author, "Mine", "body")

	_, err := env.posts.Update(ctx, other, p.ID, PostInput{Title: "Stolen", Body: "body"})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	_, err = env.posts.Delete(ctx, other, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	res, err := env.posts.Update(ctx, admin, p.ID, PostInput{Title: "Moderated", Body: "body"})
	require.NoError(t, err)
	assert.Equal(t, author.UserID, res.Post.AuthorID, "admin edits keep the author")

	_, err = env.posts.Update(ctx, author, 9999, PostInput{Title: "x", Body: "y"})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestPublish_UnknownCategoryIsValidationError(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	missing := int64(404)
	_, err := env.posts.Publish(context.Background(), author, PostInput{Title: "Uncategorized", Body: "b", CategoryID: &missing})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.Empty(t, env.searchIDs(t, domain.KindPost, "uncategorized"))
}

func TestPublish_ConcurrentSameTitle(t *testing.T) {
	const writers = 10
	env := setupTestEnvWith(t, nil, PipelineOptions{SlugMaxAttempts: writers + 1})
	author := env.createAuthor(t, "ann", false)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		slugs []string
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.posts.Publish(context.Background(), author, PostInput{Title: "Race", Body: "go"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			slugs = append(slugs, res.Post.Slug)
			mu.Unlock()
		}()
	}
	wg.Wait()

	want := []string{"race"}
	for n := 1; n < writers; n++ {
		want = append(want, fmt.Sprintf("race-%d", n))
	}
	slices.Sort(want)
	slices.Sort(slugs)
	assert.Equal(t, want, slugs)
	assert.Len(t, env.searchIDs(t, domain.KindPost, "race"), writers)
}

func TestPublish_SlugTakenAtCommitRetries(t *testing.T) {
	var lying *lyingStore
	env := setupTestEnvWith(t, func(s store.Store) store.Store {
		lying = &lyingStore{Store: s}
		return lying
	}, PipelineOptions{})
	author := env.createAuthor(t, "ann", false)

	env.publish(t, author, "Hello", "first")

	// The next probe lies, so the commit hits the unique index once.
	lying.lies.Store(1)
	p := env.publish(t, author, "Hello", "second")

	assert.Equal(t, "hello-1", p.Slug)
	assert.Equal(t, []int64{p.ID}, env.searchIDs(t, domain.KindPost, "second"))
}

func TestPublish_AllocationExhausted(t *testing.T) {
	var lying *lyingStore
	env := setupTestEnvWith(t, func(s store.Store) store.Store {
		lying = &lyingStore{Store: s}
		return lying
	}, PipelineOptions{SlugMaxAttempts: 3})
	author := env.createAuthor(t, "ann", false)

	env.publish(t, author, "Hello", "first")

	lying.lies.Store(1 << 40)
	lying.calls.Store(0)
	_, err := env.posts.Publish(context.Background(), author, PostInput{Title: "Hello", Body: "second"})
	require.ErrorIs(t, err, domainerrors.ErrAllocationExhausted)
	assert.Equal(t, int64(3), lying.calls.Load(), "one probe per attempt")

	n, err := env.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, env.searchIDs(t, domain.KindPost, "second"))
}

func TestPublish_ProbeLimit(t *testing.T) {
	env := setupTestEnvWith(t, nil, PipelineOptions{SlugMaxProbes: 2})
	author := env.createAuthor(t, "ann", false)

	env.publish(t, author, "Busy", "a")
	env.publish(t, author, "Busy", "b")

	_, err := env.posts.Publish(context.Background(), author, PostInput{Title: "Busy", Body: "c"})
	assert.ErrorIs(t, err, domainerrors.ErrAllocationExhausted)
}

func TestPublish_StoreUnavailableLeavesNoIndexEntry(t *testing.T) {
	env := setupTestEnvWith(t, func(s store.Store) store.Store {
		return brokenStore{Store: s}
	}, PipelineOptions{})
	author := env.createAuthor(t, "ann", false)

	_, err := env.posts.Publish(context.Background(), author, PostInput{Title: "Doomed", Body: "never saved"})
	require.ErrorIs(t, err, domainerrors.ErrStoreUnavailable)

	assert.Empty(t, env.searchIDs(t, domain.KindPost, "doomed"))
	assert.Zero(t, env.flaggedCount(t))
}

func TestUpdate_StoreFailureLeavesPostUntouched(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)
	p := env.publish(t, author, "Stable", "original")

	broken := NewPostService(brokenStore{Store: env.store}, env.renderer, env.search, env.posts.validate, PipelineOptions{}, env.posts.logger)

	_, err := broken.Update(ctx, author, p.ID, PostInput{Title: "Changed", Body: "changed"})
	require.ErrorIs(t, err, domainerrors.ErrStoreUnavailable)

	got, err := env.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stable", got.Title)
	assert.Equal(t, "stable", got.Slug)
	assert.Equal(t, p.Revision, got.Revision)
	assert.Equal(t, []int64{p.ID}, env.searchIDs(t, domain.KindPost, "original"))
}

func TestPublish_CanceledContextWritesNothing(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.posts.Publish(ctx, author, PostInput{Title: "Never", Body: "x"})
	require.Error(t, err)

	n, err := env.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublish_IndexFailureIsSoft(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)

	env.index.fail.Store(true)
	res, err := env.posts.Publish(ctx, author, PostInput{Title: "Orphaned", Body: "body"})
	require.NoError(t, err, "index failure must not fail the publish")
	require.ErrorIs(t, res.IndexErr, domainerrors.ErrIndexDesync)

	stored, err := env.posts.Get(ctx, res.Post.ID)
	require.NoError(t, err, "commit is never rolled back")
	assert.Equal(t, "orphaned", stored.Slug)

	entries, err := env.ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindPost, entries[0].Kind)
	assert.Equal(t, res.Post.ID, entries[0].ID)
	assert.Equal(t, res.Post.Revision, entries[0].Rev)

	env.index.fail.Store(false)
	repair, err := env.search.RepairFlagged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repair.Repaired)
	assert.Equal(t, []int64{res.Post.ID}, env.searchIDs(t, domain.KindPost, "orphaned"))
	assert.Zero(t, env.flaggedCount(t))
}

func TestPublish_IndexIgnoresCallerCancellation(t *testing.T) {
	env := setupTestEnv(t)
	author := env.createAuthor(t, "ann", false)

	// A context whose cancellation arrives right after the commit.
	ctx, cancel := context.WithCancel(context.Background())
	cancelAfterCommit := &cancelOnCreate{Store: env.store, cancel: cancel}
	posts := NewPostService(cancelAfterCommit, env.renderer, env.search, env.posts.validate, PipelineOptions{}, env.posts.logger)

	res, err := posts.Publish(ctx, author, PostInput{Title: "Late", Body: "body"})
	require.NoError(t, err)
	require.NoError(t, res.IndexErr)
	assert.Equal(t, []int64{res.Post.ID}, env.searchIDs(t, domain.KindPost, "late"))
}

type cancelOnCreate struct {
	store.Store
	cancel func()
}

func (s *cancelOnCreate) CreatePost(ctx context.Context, p *domain.Post) error {
	err := s.Store.CreatePost(ctx, p)
	s.cancel()
	return err
}

func TestDelete_RemovesPostEverywhere(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)

	p := env.publish(t, author, "Ephemeral", "body")
	_, err := env.comments.Add(ctx, author, p.ID, CommentInput{Body: "first!"})
	require.NoError(t, err)

	res, err := env.posts.Delete(ctx, author, p.ID)
	require.NoError(t, err)
	require.NoError(t, res.IndexErr)

	_, err = env.posts.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	assert.Empty(t, env.searchIDs(t, domain.KindPost, "ephemeral"))

	_, err = env.posts.Delete(ctx, author, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDelete_IndexFailureFlagsRemoval(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.createAuthor(t, "ann", false)

	p := env.publish(t, author, "Lingering", "body")

	env.index.fail.Store(true)
	res, err := env.posts.Delete(ctx, author, p.ID)
	require.NoError(t, err)
	require.ErrorIs(t, res.IndexErr, domainerrors.ErrIndexDesync)
	env.index.fail.Store(false)

	// Still indexed until repaired.
	assert.Equal(t, []int64{p.ID}, env.searchIDs(t, domain.KindPost, "lingering"))

	_, err = env.search.RepairFlagged(ctx)
	require.NoError(t, err)
	assert.Empty(t, env.searchIDs(t, domain.KindPost, "lingering"))
}
