package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// CategoryInput names a new category.
type CategoryInput struct {
	Name string `json:"name" validate:"notblank,max=64"`
}

// TaxonomyService manages categories and tags.
// Tags have no lifecycle of their own: they are created when a post names them.
type TaxonomyService struct {
	store    store.Store
	validate *validation.Validator
	logger   *slog.Logger
}

// NewTaxonomyService creates a new taxonomy service.
func NewTaxonomyService(store store.Store, validate *validation.Validator, logger *slog.Logger) *TaxonomyService {
	return &TaxonomyService{
		store:    store,
		validate: validate,
		logger:   logger,
	}
}

// CreateCategory adds a category. Admin only; names are unique ignoring case.
func (s *TaxonomyService) CreateCategory(ctx context.Context, principal domain.Principal, in CategoryInput) (*domain.Category, error) {
	if !principal.IsAdmin {
		return nil, domainerrors.Forbidden("admin access required")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	c := &domain.Category{Name: in.Name}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, mapStoreError(err, "category")
	}

	s.logger.Info("category created", "id", c.ID, "name", c.Name)
	return c, nil
}

// ListCategories returns every category ordered by name.
func (s *TaxonomyService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	cs, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, mapStoreError(err, "category")
	}
	return cs, nil
}

// ListTags returns every tag ordered by name.
func (s *TaxonomyService) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, mapStoreError(err, "tag")
	}
	return tags, nil
}

// PostsByTag returns the posts carrying a tag, matched ignoring case.
func (s *TaxonomyService) PostsByTag(ctx context.Context, name string) ([]*domain.Post, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainerrors.Validation("tag name is required")
	}
	posts, err := s.store.ListPostsByTag(ctx, name)
	if err != nil {
		return nil, mapStoreError(err, "tag")
	}
	return posts, nil
}
