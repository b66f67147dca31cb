package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// commentColumns must match the scan order in scanComment.
const commentColumns = `id, body, timestamp, user_id, post_id, parent_id`

func scanComment(scanner interface{ Scan(dest ...any) error }) (*domain.Comment, error) {
	var (
		c         domain.Comment
		timestamp string
		parentID  sql.NullInt64
	)
	if err := scanner.Scan(&c.ID, &c.Body, &timestamp, &c.AuthorID, &c.PostID, &parentID); err != nil {
		return nil, err
	}
	c.ParentID = int64Ptr(parentID)

	var err error
	c.Timestamp, err = parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateComment inserts a comment and sets its ID. A reply's parent must
// exist and belong to the same post; the check runs in the insert
// transaction so a concurrent parent delete cannot slip between.
// Returns store.ErrInvalidReference otherwise.
func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if c.ParentID != nil {
			var parentPost int64
			err := tx.QueryRowContext(ctx,
				`SELECT post_id FROM comments WHERE id = ?`, *c.ParentID).Scan(&parentPost)
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrInvalidReference.WithMessage("parent comment does not exist")
			}
			if err != nil {
				return err
			}
			if parentPost != c.PostID {
				return store.ErrInvalidReference.WithMessage("parent comment belongs to another post")
			}
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO comments (body, timestamp, user_id, post_id, parent_id)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			c.Body,
			formatTime(c.Timestamp),
			c.AuthorID,
			c.PostID,
			nullInt64Ptr(c.ParentID),
		).Scan(&c.ID)
		return mapConstraintErr(err)
	})
}

// GetComment retrieves a comment by ID.
func (s *Store) GetComment(ctx context.Context, id int64) (*domain.Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// DeleteComment removes a comment and, through ON DELETE CASCADE, every reply beneath it.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListComments returns the comments of a post in creation order.
func (s *Store) ListComments(ctx context.Context, postID int64) ([]*domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE post_id = ? ORDER BY id ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}
