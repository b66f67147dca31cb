package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// CommentInput carries a new comment or reply.
type CommentInput struct {
	Body     string `json:"body" validate:"notblank,max=10000"`
	ParentID *int64 `json:"parent_id" validate:"omitnil,gt=0"`
}

// CommentService manages comment trees. Comments are not indexed.
type CommentService struct {
	store    store.Store
	validate *validation.Validator
	opts     PipelineOptions
	logger   *slog.Logger
}

// NewCommentService creates a new comment service.
func NewCommentService(store store.Store, validate *validation.Validator, opts PipelineOptions, logger *slog.Logger) *CommentService {
	return &CommentService{
		store:    store,
		validate: validate,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Add posts a comment on postID, nested under ParentID when set.
// The parent must exist and belong to the same post.
func (s *CommentService) Add(ctx context.Context, principal domain.Principal, postID int64, in CommentInput) (*domain.Comment, error) {
	if principal.IsZero() {
		return nil, domainerrors.Unauthorized("commenting requires an author")
	}
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	c := &domain.Comment{
		Body:      in.Body,
		Timestamp: time.Now(),
		AuthorID:  principal.UserID,
		PostID:    postID,
		ParentID:  in.ParentID,
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.CreateComment(sctx, c); err != nil {
		return nil, mapStoreError(err, "comment")
	}

	s.logger.Info("comment added",
		"id", c.ID,
		"post_id", postID,
		"reply", c.IsReply(),
		"author_id", principal.UserID,
	)
	return c, nil
}

// Delete removes a comment and every reply beneath it.
// Only the comment's author or an admin may do so.
func (s *CommentService) Delete(ctx context.Context, principal domain.Principal, commentID int64) error {
	if principal.IsZero() {
		return domainerrors.Unauthorized("authentication required")
	}

	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return mapStoreError(err, "comment")
	}
	if !principal.CanModify(c.AuthorID) {
		return domainerrors.Forbidden("only the author or an admin can delete this comment")
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.DeleteComment(sctx, commentID); err != nil {
		return mapStoreError(err, "comment")
	}

	s.logger.Info("comment deleted", "id", commentID, "post_id", c.PostID, "by", principal.UserID)
	return nil
}

// List returns every comment of a post in creation order.
func (s *CommentService) List(ctx context.Context, postID int64) ([]*domain.Comment, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, mapStoreError(err, "post")
	}
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, mapStoreError(err, "comment")
	}
	return comments, nil
}
