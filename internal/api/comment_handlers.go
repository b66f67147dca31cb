package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

func (s *Server) registerCommentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "addComment",
		Method:        http.MethodPost,
		Path:          "/api/v1/posts/{post}/comments",
		Summary:       "Add comment",
		Description:   "Adds a comment, or a reply when parent_id names a comment on the same post",
		Tags:          []string{"Comments"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "listComments",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts/{post}/comments",
		Summary:     "List comments",
		Description: "Returns every comment of a post in creation order",
		Tags:        []string{"Comments"},
	}, s.handleListComments)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteComment",
		Method:        http.MethodDelete,
		Path:          "/api/v1/comments/{id}",
		Summary:       "Delete comment",
		Description:   "Deletes a comment and all replies beneath it",
		Tags:          []string{"Comments"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteComment)
}

// === DTOs ===

// CommentRequest is the request body for adding a comment.
type CommentRequest struct {
	Body     string `json:"body" doc:"Comment text"`
	ParentID *int64 `json:"parent_id,omitempty" doc:"Comment being replied to"`
}

// CommentResponse contains comment data in API responses.
type CommentResponse struct {
	ID        int64     `json:"id" doc:"Comment ID"`
	Body      string    `json:"body" doc:"Comment text"`
	Timestamp time.Time `json:"timestamp" doc:"Creation time"`
	AuthorID  int64     `json:"author_id" doc:"Author user ID"`
	PostID    int64     `json:"post_id" doc:"Post ID"`
	ParentID  *int64    `json:"parent_id,omitempty" doc:"Parent comment ID for replies"`
}

func newCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		Body:      c.Body,
		Timestamp: c.Timestamp,
		AuthorID:  c.AuthorID,
		PostID:    c.PostID,
		ParentID:  c.ParentID,
	}
}

// AddCommentInput wraps the comment request for Huma.
type AddCommentInput struct {
	PostID int64 `path:"post" doc:"Post ID"`
	Body   CommentRequest
}

// ListCommentsInput contains parameters for listing comments.
type ListCommentsInput struct {
	PostID int64 `path:"post" doc:"Post ID"`
}

// DeleteCommentInput contains parameters for deleting a comment.
type DeleteCommentInput struct {
	ID int64 `path:"id" doc:"Comment ID"`
}

// CommentOutput wraps the comment response for Huma.
type CommentOutput struct {
	Body CommentResponse
}

// CommentListOutput wraps a list of comments for Huma.
type CommentListOutput struct {
	Body struct {
		Comments []CommentResponse `json:"comments" doc:"Comments"`
	}
}

// === Handlers ===

func (s *Server) handleAddComment(ctx context.Context, input *AddCommentInput) (*CommentOutput, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Comments.Add(ctx, principal, input.PostID, service.CommentInput{
		Body:     input.Body.Body,
		ParentID: input.Body.ParentID,
	})
	if err != nil {
		return nil, err
	}

	return &CommentOutput{Body: newCommentResponse(c)}, nil
}

func (s *Server) handleListComments(ctx context.Context, input *ListCommentsInput) (*CommentListOutput, error) {
	comments, err := s.services.Comments.List(ctx, input.PostID)
	if err != nil {
		return nil, err
	}

	out := &CommentListOutput{}
	out.Body.Comments = make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		out.Body.Comments = append(out.Body.Comments, newCommentResponse(c))
	}
	return out, nil
}

func (s *Server) handleDeleteComment(ctx context.Context, input *DeleteCommentInput) (*struct{}, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Comments.Delete(ctx, principal, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}
