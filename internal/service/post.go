package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/markup"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/util"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// PostInput carries the author-supplied fields of a post.
type PostInput struct {
	Title       string   `json:"title" validate:"notblank,max=140"`
	Body        string   `json:"body" validate:"notblank"`
	CategoryID  *int64   `json:"category_id" validate:"omitempty,gt=0"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=64"`
	ForceReslug bool     `json:"force_reslug"` // Allocate a fresh slug even if the title is unchanged
}

// PublishResult is the committed post plus any soft index failure.
// IndexErr is an IndexDesync error: the post is saved and will be
// re-indexed by the repair job.
type PublishResult struct {
	Post     *domain.Post
	IndexErr error
}

// DeleteResult reports a committed delete plus any soft index failure.
type DeleteResult struct {
	ID       int64
	IndexErr error
}

// PostService is the content pipeline: it renders, slugs, commits and indexes posts.
type PostService struct {
	store    store.Store
	slugs    *SlugAllocator
	renderer *markup.Renderer
	search   *SearchService
	validate *validation.Validator
	opts     PipelineOptions
	logger   *slog.Logger
}

// NewPostService creates a new post service.
func NewPostService(
	store store.Store,
	renderer *markup.Renderer,
	search *SearchService,
	validate *validation.Validator,
	opts PipelineOptions,
	logger *slog.Logger,
) *PostService {
	opts = opts.withDefaults()
	return &PostService{
		store:    store,
		slugs:    NewSlugAllocator(store, opts.SlugMaxProbes),
		renderer: renderer,
		search:   search,
		validate: validate,
		opts:     opts,
		logger:   logger,
	}
}

// Publish creates a new post authored by principal.
func (s *PostService) Publish(ctx context.Context, principal domain.Principal, in PostInput) (*PublishResult, error) {
	if principal.IsZero() {
		return nil, domainerrors.Unauthorized("publishing requires an author")
	}
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	post := &domain.Post{
		AuthorID:  principal.UserID,
		Timestamp: time.Now(),
	}
	return s.publishOrUpdate(ctx, post, in, true)
}

// Update changes an existing post. Only its author or an admin may do so.
func (s *PostService) Update(ctx context.Context, principal domain.Principal, postID int64, in PostInput) (*PublishResult, error) {
	if principal.IsZero() {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !principal.CanModify(existing.AuthorID) {
		return nil, domainerrors.Forbidden("only the author or an admin can edit this post")
	}

	return s.publishOrUpdate(ctx, existing, in, false)
}

// publishOrUpdate runs the pipeline on a copy of post. The copy is only
// returned once the store commit succeeded, so a failure leaves post as it was.
func (s *PostService) publishOrUpdate(ctx context.Context, post *domain.Post, in PostInput, isNew bool) (*PublishResult, error) {
	work := post.Clone()

	// 1. Render on every body change. Never reuse a stale body_html.
	if isNew || work.Body != in.Body {
		work.Body = in.Body
		work.BodyHTML = s.renderer.Render(in.Body)
	}

	// 2. Decide on the slug before the title is overwritten.
	reslug := in.ForceReslug || work.NeedsSlug(in.Title)

	work.Title = in.Title
	work.CategoryID = in.CategoryID
	work.Tags = domain.NormalizeTagNames(in.Tags)

	// 3. Commit, re-allocating when another writer won the slug.
	for attempt := 1; ; attempt++ {
		err := s.commit(ctx, work, isNew, reslug)
		if err == nil {
			break
		}
		if !reslug || !errors.Is(err, store.ErrSlugTaken) {
			return nil, mapStoreError(err, "post")
		}
		if attempt >= s.opts.SlugMaxAttempts {
			s.logger.Warn("slug allocation exhausted", "title", in.Title, "attempts", attempt)
			return nil, domainerrors.AllocationExhausted(util.Slugify(in.Title), attempt)
		}
		s.logger.Warn("slug taken at commit, retrying",
			"slug", work.Slug,
			"attempt", attempt,
		)
	}

	// 4. Index the committed state. Failures never undo the commit.
	indexErr := s.search.IndexPost(ctx, work)

	s.logger.Info("post published",
		"id", work.ID,
		"slug", work.Slug,
		"author_id", work.AuthorID,
		"revision", work.Revision,
		"created", isNew,
		"index_ok", indexErr == nil,
	)

	return &PublishResult{Post: work, IndexErr: indexErr}, nil
}

// commit allocates a slug if needed and writes work under StoreTimeout.
func (s *PostService) commit(ctx context.Context, work *domain.Post, isNew, reslug bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if reslug {
		slug, err := s.slugs.Allocate(ctx, work.ID, work.Title)
		if err != nil {
			return err
		}
		work.Slug = slug
		work.SlugSource = work.Title
	}

	if isNew {
		return s.store.CreatePost(ctx, work)
	}
	return s.store.UpdatePost(ctx, work)
}

// Delete removes a post and its comments, then drops it from the index.
func (s *PostService) Delete(ctx context.Context, principal domain.Principal, postID int64) (*DeleteResult, error) {
	if principal.IsZero() {
		return nil, domainerrors.Unauthorized("authentication required")
	}

	existing, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !principal.CanModify(existing.AuthorID) {
		return nil, domainerrors.Forbidden("only the author or an admin can delete this post")
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	rev, err := s.store.DeletePost(sctx, postID)
	cancel()
	if err != nil {
		return nil, mapStoreError(err, "post")
	}

	indexErr := s.search.RemovePost(ctx, postID, rev)
	s.logger.Info("post deleted", "id", postID, "slug", existing.Slug, "by", principal.UserID)

	return &DeleteResult{ID: postID, IndexErr: indexErr}, nil
}

// Get returns a post by id.
func (s *PostService) Get(ctx context.Context, postID int64) (*domain.Post, error) {
	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, mapStoreError(err, "post")
	}
	return p, nil
}

// GetBySlug returns a post by its slug.
func (s *PostService) GetBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	p, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, mapStoreError(err, "post")
	}
	return p, nil
}

// ListByAuthor returns the posts of one user.
func (s *PostService) ListByAuthor(ctx context.Context, userID int64) ([]*domain.Post, error) {
	posts, err := s.store.ListPostsByAuthor(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "post")
	}
	return posts, nil
}

// ExcerptLength is the rune limit of a post excerpt.
const ExcerptLength = 200

// Excerpt returns the post body as plain markdown text, cut to ExcerptLength
// runes on a word boundary.
func (s *PostService) Excerpt(p *domain.Post) string {
	text, err := s.renderer.ToText(p.BodyHTML)
	if err != nil {
		s.logger.Debug("excerpt conversion failed", "post_id", p.ID, "error", err)
		return ""
	}
	runes := []rune(text)
	if len(runes) <= ExcerptLength {
		return text
	}
	cut := string(runes[:ExcerptLength])
	if i := strings.LastIndexAny(cut, " \n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// validateInput trims the title and rejects input before any side effect.
func (s *PostService) validateInput(in *PostInput) error {
	in.Title = strings.TrimSpace(in.Title)
	return s.validate.Validate(in)
}
