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

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "registerUser",
		Method:        http.MethodPost,
		Path:          "/api/v1/users",
		Summary:       "Register user",
		Description:   "Creates an author account and indexes its username and email",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegisterUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{user}",
		Summary:     "Get user",
		Description: "Returns a user by username, or by numeric id when no user has that name",
		Tags:        []string{"Users"},
	}, s.handleGetUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateUser",
		Method:      http.MethodPatch,
		Path:        "/api/v1/users/{user}",
		Summary:     "Update profile",
		Description: "Partially updates username, email and about text",
		Tags:        []string{"Users"},
	}, s.handleUpdateUser)

	huma.Register(s.api, huma.Operation{
		OperationID:   "changePassword",
		Method:        http.MethodPut,
		Path:          "/api/v1/users/{user}/password",
		Summary:       "Change password",
		Description:   "Changes a password. Admins may reset other users' passwords without the current one",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleChangePassword)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteUser",
		Method:      http.MethodDelete,
		Path:        "/api/v1/users/{user}",
		Summary:     "Delete user",
		Description: "Deletes a user with their posts and comments",
		Tags:        []string{"Users"},
	}, s.handleDeleteUser)
}

// === DTOs ===

// RegisterRequest is the request body for creating a user.
type RegisterRequest struct {
	Username string `json:"username" doc:"Unique username"`
	Email    string `json:"email" doc:"Unique email address"`
	Password string `json:"password" doc:"Password, at least 8 characters"`
	AboutMe  string `json:"about_me,omitempty" doc:"Short bio"`
}

// ProfileRequest is the request body for a partial profile update.
type ProfileRequest struct {
	Username *string `json:"username,omitempty" doc:"New username"`
	Email    *string `json:"email,omitempty" doc:"New email address"`
	AboutMe  *string `json:"about_me,omitempty" doc:"New bio"`
}

// PasswordRequest is the request body for a password change.
type PasswordRequest struct {
	CurrentPassword string `json:"current_password,omitempty" doc:"Current password; not needed for an admin reset"`
	NewPassword     string `json:"new_password" doc:"New password, at least 8 characters"`
}

// UserResponse contains user data in API responses.
// Email is only shown to the user themself and to admins.
type UserResponse struct {
	ID           int64     `json:"id" doc:"User ID"`
	Username     string    `json:"username" doc:"Username"`
	Email        string    `json:"email,omitempty" doc:"Email address"`
	IsAdmin      bool      `json:"is_admin" doc:"Administrator flag"`
	AboutMe      string    `json:"about_me" doc:"Short bio"`
	MemberSince  time.Time `json:"member_since" doc:"Registration time"`
	IndexWarning string    `json:"index_warning,omitempty" doc:"Set when the change was saved but search indexing is pending repair"`
}

func newUserResponse(viewer domain.Principal, u *domain.User, indexErr error) UserResponse {
	resp := UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		IsAdmin:      u.IsAdmin,
		AboutMe:      u.AboutMe,
		MemberSince:  u.MemberSince,
		IndexWarning: indexWarning(indexErr),
	}
	if viewer.CanModify(u.ID) {
		resp.Email = u.Email
	}
	return resp
}

// RegisterUserInput wraps the register request for Huma.
type RegisterUserInput struct {
	Body RegisterRequest
}

// GetUserInput contains parameters for getting a user.
type GetUserInput struct {
	Ref string `path:"user" doc:"Username or user ID"`
}

// UpdateUserInput wraps the profile update for Huma.
type UpdateUserInput struct {
	UserID int64 `path:"user" doc:"User ID"`
	Body   ProfileRequest
}

// ChangePasswordInput wraps the password change for Huma.
type ChangePasswordInput struct {
	UserID int64 `path:"user" doc:"User ID"`
	Body   PasswordRequest
}

// DeleteUserInput contains parameters for deleting a user.
type DeleteUserInput struct {
	UserID int64 `path:"user" doc:"User ID"`
}

// UserOutput wraps the user response for Huma.
type UserOutput struct {
	Body UserResponse
}

// === Handlers ===

func (s *Server) handleRegisterUser(ctx context.Context, input *RegisterUserInput) (*UserOutput, error) {
	res, err := s.services.Users.Register(ctx, service.RegisterInput{
		Username: input.Body.Username,
		Email:    input.Body.Email,
		Password: input.Body.Password,
		AboutMe:  input.Body.AboutMe,
	})
	if err != nil {
		return nil, err
	}

	// The new account sees its own email even though the gateway has not
	// issued it a session yet.
	viewer := domain.Principal{UserID: res.User.ID}
	return &UserOutput{Body: newUserResponse(viewer, res.User, res.IndexErr)}, nil
}

func (s *Server) handleGetUser(ctx context.Context, input *GetUserInput) (*UserOutput, error) {
	user, err := s.services.Users.GetByUsername(ctx, input.Ref)
	if errors.Is(err, domainerrors.ErrNotFound) {
		if id, perr := strconv.ParseInt(input.Ref, 10, 64); perr == nil {
			user, err = s.services.Users.Get(ctx, id)
		}
	}
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: newUserResponse(principalFrom(ctx), user, nil)}, nil
}

func (s *Server) handleUpdateUser(ctx context.Context, input *UpdateUserInput) (*UserOutput, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.services.Users.UpdateProfile(ctx, principal, input.UserID, service.ProfileInput{
		Username: input.Body.Username,
		Email:    input.Body.Email,
		AboutMe:  input.Body.AboutMe,
	})
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: newUserResponse(principal, res.User, res.IndexErr)}, nil
}

func (s *Server) handleChangePassword(ctx context.Context, input *ChangePasswordInput) (*struct{}, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	err = s.services.Users.ChangePassword(ctx, principal, input.UserID, service.PasswordInput{
		Current: input.Body.CurrentPassword,
		New:     input.Body.NewPassword,
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleDeleteUser(ctx context.Context, input *DeleteUserInput) (*DeleteOutput, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.services.Users.Delete(ctx, principal, input.UserID)
	if err != nil {
		return nil, err
	}

	return &DeleteOutput{Body: DeleteResponse{ID: res.ID, IndexWarning: indexWarning(res.IndexErr)}}, nil
}
