package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchPosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/search/posts",
		Summary:     "Search posts",
		Description: "Fuzzy full-text search over post titles and bodies. Every word must match; most relevant first",
		Tags:        []string{"Search"},
	}, s.handleSearchPosts)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchUsers",
		Method:      http.MethodGet,
		Path:        "/api/v1/search/users",
		Summary:     "Search users",
		Description: "Fuzzy full-text search over usernames and emails",
		Tags:        []string{"Search"},
	}, s.handleSearchUsers)
}

// SearchInput contains query parameters for search.
type SearchInput struct {
	Query string `query:"q" doc:"Search text"`
}

// SearchUsersOutput wraps user search results for Huma.
type SearchUsersOutput struct {
	Body struct {
		Users []UserResponse `json:"users" doc:"Matching users, most relevant first"`
	}
}

func (s *Server) handleSearchPosts(ctx context.Context, input *SearchInput) (*PostListOutput, error) {
	posts, err := s.services.Search.SearchPosts(ctx, input.Query)
	if err != nil {
		return nil, err
	}

	out := &PostListOutput{}
	out.Body.Posts = newPostList(posts)
	for i, p := range posts {
		out.Body.Posts[i].Excerpt = s.services.Posts.Excerpt(p)
	}
	return out, nil
}

func (s *Server) handleSearchUsers(ctx context.Context, input *SearchInput) (*SearchUsersOutput, error) {
	users, err := s.services.Search.SearchUsers(ctx, input.Query)
	if err != nil {
		return nil, err
	}

	viewer := principalFrom(ctx)
	out := &SearchUsersOutput{}
	out.Body.Users = make([]UserResponse, 0, len(users))
	for _, u := range users {
		out.Body.Users = append(out.Body.Users, newUserResponse(viewer, u, nil))
	}
	return out, nil
}
