package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

func (s *Server) registerPostRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "publishPost",
		Method:        http.MethodPost,
		Path:          "/api/v1/posts",
		Summary:       "Publish post",
		Description:   "Renders the body to safe HTML, allocates a unique slug and indexes the post",
		Tags:          []string{"Posts"},
		DefaultStatus: http.StatusCreated,
	}, s.handlePublishPost)

	huma.Register(s.api, huma.Operation{
		OperationID: "updatePost",
		Method:      http.MethodPut,
		Path:        "/api/v1/posts/{post}",
		Summary:     "Update post",
		Description: "Replaces title, body, category and tags. The slug changes only when the title does or force_reslug is set",
		Tags:        []string{"Posts"},
	}, s.handleUpdatePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPost",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts/{post}",
		Summary:     "Get post",
		Description: "Returns a post by slug, or by numeric id when no post has that slug",
		Tags:        []string{"Posts"},
	}, s.handleGetPost)

	huma.Register(s.api, huma.Operation{
		OperationID: "deletePost",
		Method:      http.MethodDelete,
		Path:        "/api/v1/posts/{post}",
		Summary:     "Delete post",
		Description: "Deletes a post with its comments and removes it from the index",
		Tags:        []string{"Posts"},
	}, s.handleDeletePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "listUserPosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{user}/posts",
		Summary:     "List user posts",
		Description: "Returns the posts of a user, newest first",
		Tags:        []string{"Posts"},
	}, s.handleListUserPosts)
}

// === DTOs ===

// PostRequest is the request body for publishing or updating a post.
type PostRequest struct {
	Title       string   `json:"title" doc:"Post title, at most 140 characters"`
	Body        string   `json:"body" doc:"Raw markup source"`
	CategoryID  *int64   `json:"category_id,omitempty" doc:"Category ID; omitted clears the category"`
	Tags        []string `json:"tags,omitempty" doc:"Tag names; created on demand"`
	ForceReslug bool     `json:"force_reslug,omitempty" doc:"Allocate a fresh slug even if the title is unchanged"`
}

func (r PostRequest) toInput() service.PostInput {
	return service.PostInput{
		Title:       r.Title,
		Body:        r.Body,
		CategoryID:  r.CategoryID,
		Tags:        r.Tags,
		ForceReslug: r.ForceReslug,
	}
}

// PostResponse contains post data in API responses.
type PostResponse struct {
	ID           int64     `json:"id" doc:"Post ID"`
	Title        string    `json:"title" doc:"Post title"`
	Body         string    `json:"body" doc:"Raw markup source"`
	BodyHTML     string    `json:"body_html" doc:"Sanitized HTML rendering of body"`
	Slug         string    `json:"slug" doc:"Unique URL slug"`
	AuthorID     int64     `json:"author_id" doc:"Author user ID"`
	CategoryID   *int64    `json:"category_id,omitempty" doc:"Category ID"`
	Tags         []string  `json:"tags" doc:"Tag names"`
	Timestamp    time.Time `json:"timestamp" doc:"Publication time"`
	Revision     int64     `json:"revision" doc:"Committed revision"`
	Excerpt      string    `json:"excerpt,omitempty" doc:"Plain text excerpt, set on search results"`
	IndexWarning string    `json:"index_warning,omitempty" doc:"Set when the post was saved but search indexing is pending repair"`
}

func newPostResponse(p *domain.Post, indexErr error) PostResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PostResponse{
		ID:           p.ID,
		Title:        p.Title,
		Body:         p.Body,
		BodyHTML:     p.BodyHTML,
		Slug:         p.Slug,
		AuthorID:     p.AuthorID,
		CategoryID:   p.CategoryID,
		Tags:         tags,
		Timestamp:    p.Timestamp,
		Revision:     p.Revision,
		IndexWarning: indexWarning(indexErr),
	}
}

func newPostList(posts []*domain.Post) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, newPostResponse(p, nil))
	}
	return out
}

// indexWarning renders a soft IndexDesync for clients. The write itself succeeded.
func indexWarning(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "search index update pending"
}

// PublishPostInput wraps the publish request for Huma.
type PublishPostInput struct {
	Body PostRequest
}

// UpdatePostInput wraps the update request for Huma.
type UpdatePostInput struct {
	PostID int64 `path:"post" doc:"Post ID"`
	Body   PostRequest
}

// GetPostInput contains parameters for getting a post.
type GetPostInput struct {
	Ref string `path:"post" doc:"Post slug or ID"`
}

// DeletePostInput contains parameters for deleting a post.
type DeletePostInput struct {
	PostID int64 `path:"post" doc:"Post ID"`
}

// ListUserPostsInput contains parameters for listing a user's posts.
type ListUserPostsInput struct {
	UserID int64 `path:"user" doc:"User ID"`
}

// PostOutput wraps the post response for Huma.
type PostOutput struct {
	Body PostResponse
}

// PostListOutput wraps a list of posts for Huma.
type PostListOutput struct {
	Body struct {
		Posts []PostResponse `json:"posts" doc:"Posts"`
	}
}

// DeleteResponse reports a committed delete.
type DeleteResponse struct {
	ID           int64  `json:"id" doc:"Deleted ID"`
	IndexWarning string `json:"index_warning,omitempty" doc:"Set when the delete was saved but search removal is pending repair"`
}

// DeleteOutput wraps the delete response for Huma.
type DeleteOutput struct {
	Body DeleteResponse
}

// === Handlers ===

func (s *Server) handlePublishPost(ctx context.Context, input *PublishPostInput) (*PostOutput, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.services.Posts.Publish(ctx, principal, input.Body.toInput())
	if err != nil {
		return nil, err
	}

	return &PostOutput{Body: newPostResponse(res.Post, res.IndexErr)}, nil
}

func (s *Server) handleUpdatePost(ctx context.Context, input *UpdatePostInput) (*PostOutput, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.services.Posts.Update(ctx, principal, input.PostID, input.Body.toInput())
	if err != nil {
		return nil, err
	}

	return &PostOutput{Body: newPostResponse(res.Post, res.IndexErr)}, nil
}

func (s *Server) handleGetPost(ctx context.Context, input *GetPostInput) (*PostOutput, error) {
	post, err := s.services.Posts.GetBySlug(ctx, input.Ref)
	if errors.Is(err, domainerrors.ErrNotFound) {
		if id, perr := strconv.ParseInt(input.Ref, 10, 64); perr == nil {
			post, err = s.services.Posts.Get(ctx, id)
		}
	}
	if err != nil {
		return nil, err
	}

	return &PostOutput{Body: newPostResponse(post, nil)}, nil
}

func (s *Server) handleDeletePost(ctx context.Context, input *DeletePostInput) (*DeleteOutput, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.services.Posts.Delete(ctx, principal, input.PostID)
	if err != nil {
		return nil, err
	}

	return &DeleteOutput{Body: DeleteResponse{ID: res.ID, IndexWarning: indexWarning(res.IndexErr)}}, nil
}

func (s *Server) handleListUserPosts(ctx context.Context, input *ListUserPostsInput) (*PostListOutput, error) {
	if _, err := s.services.Users.Get(ctx, input.UserID); err != nil {
		return nil, err
	}

	posts, err := s.services.Posts.ListByAuthor(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	out := &PostListOutput{}
	out.Body.Posts = newPostList(posts)
	return out, nil
}
