package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/auth"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username string `json:"username" validate:"notblank,max=64"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
	AboutMe  string `json:"about_me" validate:"max=140"`
}

// ProfileInput carries a partial profile update. Nil fields are left unchanged.
type ProfileInput struct {
	Username *string `json:"username" validate:"omitnil,notblank,max=64"`
	Email    *string `json:"email" validate:"omitnil,email,max=120"`
	AboutMe  *string `json:"about_me" validate:"omitnil,max=140"`
}

// PasswordInput changes a password. Current is required unless an admin
// changes someone else's password.
type PasswordInput struct {
	Current string `json:"current_password" validate:"max=1024"`
	New     string `json:"new_password" validate:"required,min=8,max=1024"`
}

// maxUpdateAttempts bounds re-reads when an account update races another write.
const maxUpdateAttempts = 5

// UserResult is the committed user plus any soft index failure.
type UserResult struct {
	User     *domain.User
	IndexErr error
}

// UserService manages accounts. Username and email are indexed for search.
type UserService struct {
	store    store.Store
	search   *SearchService
	hasher   *auth.Hasher
	validate *validation.Validator
	opts     PipelineOptions
	logger   *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	store store.Store,
	search *SearchService,
	hasher *auth.Hasher,
	validate *validation.Validator,
	opts PipelineOptions,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		store:    store,
		search:   search,
		hasher:   hasher,
		validate: validate,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Register creates a regular account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*UserResult, error) {
	return s.create(ctx, in, false)
}

// EnsureAdmin creates an admin account unless the username already exists.
// Reports whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, in RegisterInput) (*domain.User, bool, error) {
	existing, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, mapStoreError(err, "user")
	}

	res, err := s.create(ctx, in, true)
	if err != nil {
		return nil, false, err
	}
	if res.IndexErr != nil {
		s.logger.Warn("admin created but not indexed", "id", res.User.ID, "error", res.IndexErr)
	}
	return res.User, true, nil
}

func (s *UserService) create(ctx context.Context, in RegisterInput, isAdmin bool) (*UserResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	if err := s.checkAvailable(ctx, 0, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "hash password")
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		AboutMe:      in.AboutMe,
		MemberSince:  time.Now(),
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err = s.store.CreateUser(sctx, user)
	cancel()
	if err != nil {
		return nil, mapUserStoreError(err)
	}

	indexErr := s.search.IndexUser(ctx, user)
	s.logger.Info("user registered", "id", user.ID, "username", user.Username, "is_admin", isAdmin)

	return &UserResult{User: user, IndexErr: indexErr}, nil
}

// UpdateProfile applies a partial update. Only the user or an admin may do so.
func (s *UserService) UpdateProfile(ctx context.Context, principal domain.Principal, userID int64, in ProfileInput) (*UserResult, error) {
	if principal.IsZero() {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	if !principal.CanModify(userID) {
		return nil, domainerrors.Forbidden("cannot edit another user's profile")
	}
	if in.Username != nil {
		*in.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		*in.Email = strings.TrimSpace(*in.Email)
	}
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	var (
		user    *domain.User
		reindex bool
	)
	for attempt := 1; ; attempt++ {
		var err error
		user, err = s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		before := user.IndexFields()
		if in.Username != nil {
			user.Username = *in.Username
		}
		if in.Email != nil {
			user.Email = *in.Email
		}
		if in.AboutMe != nil {
			user.AboutMe = *in.AboutMe
		}

		reindex = !maps.Equal(before, user.IndexFields())
		if reindex {
			if err := s.checkAvailable(ctx, userID, user.Username, user.Email); err != nil {
				return nil, err
			}
		}

		err = s.updateUser(ctx, user)
		if errors.Is(err, store.ErrRevisionConflict) && attempt < maxUpdateAttempts {
			s.logger.Debug("profile update raced another write, retrying", "id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, mapUserStoreError(err)
		}
		break
	}

	var indexErr error
	if reindex {
		indexErr = s.search.IndexUser(ctx, user)
	}
	s.logger.Info("user profile updated", "id", user.ID, "reindexed", reindex)

	return &UserResult{User: user, IndexErr: indexErr}, nil
}

// ChangePassword replaces the password hash after checking the current
// password. Admins may reset other users' passwords without it.
func (s *UserService) ChangePassword(ctx context.Context, principal domain.Principal, userID int64, in PasswordInput) error {
	if principal.IsZero() {
		return domainerrors.Unauthorized("authentication required")
	}
	if !principal.CanModify(userID) {
		return domainerrors.Forbidden("cannot change another user's password")
	}
	if err := s.validate.Validate(in); err != nil {
		return err
	}

	adminReset := principal.IsAdmin && principal.UserID != userID
	var hash string
	for attempt := 1; ; attempt++ {
		user, err := s.Get(ctx, userID)
		if err != nil {
			return err
		}
		if !adminReset && !s.hasher.Verify(user.PasswordHash, in.Current) {
			return domainerrors.Unauthorized("current password is incorrect")
		}

		if hash == "" {
			if hash, err = s.hasher.Hash(in.New); err != nil {
				return domainerrors.Wrap(err, domainerrors.CodeInternal, "hash password")
			}
		}
		user.PasswordHash = hash

		err = s.updateUser(ctx, user)
		if errors.Is(err, store.ErrRevisionConflict) && attempt < maxUpdateAttempts {
			s.logger.Debug("password change raced another write, retrying", "id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return mapUserStoreError(err)
		}
		break
	}

	s.logger.Info("password changed", "id", userID, "admin_reset", adminReset)
	return nil
}

// Delete removes a user along with their posts and comments, then drops
// all of them from the index.
func (s *UserService) Delete(ctx context.Context, principal domain.Principal, userID int64) (*DeleteResult, error) {
	if principal.IsZero() {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	if !principal.CanModify(userID) {
		return nil, domainerrors.Forbidden("cannot delete another user")
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	del, err := s.store.DeleteUser(sctx, userID)
	cancel()
	if err != nil {
		return nil, mapStoreError(err, "user")
	}

	var indexErrs []error
	if err := s.search.RemoveUser(ctx, userID, del.Revision); err != nil {
		indexErrs = append(indexErrs, err)
	}
	for postID, rev := range del.PostRevisions {
		if err := s.search.RemovePost(ctx, postID, rev); err != nil {
			indexErrs = append(indexErrs, err)
		}
	}

	s.logger.Info("user deleted", "id", userID, "posts", len(del.PostRevisions), "by", principal.UserID)
	return &DeleteResult{ID: userID, IndexErr: errors.Join(indexErrs...)}, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return u, nil
}

// GetByUsername returns a user by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return u, nil
}

// checkAvailable reports a friendly conflict before the unique index would.
func (s *UserService) checkAvailable(ctx context.Context, selfID int64, username, email string) error {
	if u, err := s.store.GetUserByUsername(ctx, username); err == nil && u.ID != selfID {
		return domainerrors.AlreadyExists("username is already taken")
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return mapStoreError(err, "user")
	}

	if u, err := s.store.GetUserByEmail(ctx, email); err == nil && u.ID != selfID {
		return domainerrors.AlreadyExists("email is already registered")
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return mapStoreError(err, "user")
	}
	return nil
}

// mapUserStoreError covers the race where another writer takes the
// username or email between checkAvailable and the commit.
// updateUser commits user if the row is still at user.Revision.
func (s *UserService) updateUser(ctx context.Context, user *domain.User) error {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.store.UpdateUser(sctx, user)
}

func mapUserStoreError(err error) error {
	if errors.Is(err, store.ErrAlreadyExists) {
		return domainerrors.AlreadyExists("username or email is already taken")
	}
	return mapStoreError(err, "user")
}
