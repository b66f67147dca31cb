package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/inkwellapp/inkwell-server/internal/service"
)

func (s *Server) registerTaxonomyRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createCategory",
		Method:        http.MethodPost,
		Path:          "/api/v1/categories",
		Summary:       "Create category",
		Description:   "Creates a category. Admin only; names are unique ignoring case",
		Tags:          []string{"Taxonomy"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateCategory)

	huma.Register(s.api, huma.Operation{
		OperationID: "listCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "List categories",
		Description: "Returns every category ordered by name",
		Tags:        []string{"Taxonomy"},
	}, s.handleListCategories)

	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns every tag ordered by name",
		Tags:        []string{"Taxonomy"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTagPosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{name}/posts",
		Summary:     "Get tag posts",
		Description: "Returns the posts carrying a tag",
		Tags:        []string{"Taxonomy"},
	}, s.handleGetTagPosts)
}

// === DTOs ===

// CategoryRequest is the request body for creating a category.
type CategoryRequest struct {
	Name string `json:"name" doc:"Category name"`
}

// NamedResponse is a category or tag in API responses.
type NamedResponse struct {
	ID   int64  `json:"id" doc:"ID"`
	Name string `json:"name" doc:"Name"`
}

// CreateCategoryInput wraps the create category request for Huma.
type CreateCategoryInput struct {
	Body CategoryRequest
}

// CategoryOutput wraps the category response for Huma.
type CategoryOutput struct {
	Body NamedResponse
}

// ListCategoriesOutput wraps a list of categories for Huma.
type ListCategoriesOutput struct {
	Body struct {
		Categories []NamedResponse `json:"categories" doc:"Categories"`
	}
}

// ListTagsOutput wraps a list of tags for Huma.
type ListTagsOutput struct {
	Body struct {
		Tags []NamedResponse `json:"tags" doc:"Tags"`
	}
}

// GetTagPostsInput contains parameters for listing a tag's posts.
type GetTagPostsInput struct {
	Name string `path:"name" doc:"Tag name"`
}

// === Handlers ===

func (s *Server) handleCreateCategory(ctx context.Context, input *CreateCategoryInput) (*CategoryOutput, error) {
	principal, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Taxonomy.CreateCategory(ctx, principal, service.CategoryInput{Name: input.Body.Name})
	if err != nil {
		return nil, err
	}

	return &CategoryOutput{Body: NamedResponse{ID: c.ID, Name: c.Name}}, nil
}

func (s *Server) handleListCategories(ctx context.Context, _ *struct{}) (*ListCategoriesOutput, error) {
	cats, err := s.services.Taxonomy.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	out := &ListCategoriesOutput{}
	out.Body.Categories = make([]NamedResponse, 0, len(cats))
	for _, c := range cats {
		out.Body.Categories = append(out.Body.Categories, NamedResponse{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

func (s *Server) handleListTags(ctx context.Context, _ *struct{}) (*ListTagsOutput, error) {
	tags, err := s.services.Taxonomy.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	out := &ListTagsOutput{}
	out.Body.Tags = make([]NamedResponse, 0, len(tags))
	for _, t := range tags {
		out.Body.Tags = append(out.Body.Tags, NamedResponse{ID: t.ID, Name: t.Name})
	}
	return out, nil
}

func (s *Server) handleGetTagPosts(ctx context.Context, input *GetTagPostsInput) (*PostListOutput, error) {
	posts, err := s.services.Taxonomy.PostsByTag(ctx, input.Name)
	if err != nil {
		return nil, err
	}

	out := &PostListOutput{}
	out.Body.Posts = newPostList(posts)
	return out, nil
}
