package sqlite

import (
	"context"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// CreateCategory inserts a category and sets its ID.
// Returns store.ErrAlreadyExists on a duplicate name.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES (?) RETURNING id`, c.Name).Scan(&c.ID)
	return mapConstraintErr(err)
}

// GetCategory retrieves a category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []*domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cats, nil
}
