package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// setPostTags replaces the tag set of a post, creating missing tags on demand.
// Tag names are unique case-insensitively; an existing tag keeps its first
// spelling. Returns the canonical names ordered by name.
func setPostTags(ctx context.Context, tx *sql.Tx, postID int64, names []string) ([]string, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return nil, fmt.Errorf("clear post tags: %w", err)
	}

	for _, name := range domain.NormalizeTagNames(names) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO post_tags (post_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`, postID, name); err != nil {
			return nil, fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	return postTagNames(ctx, tx, postID)
}

// postTagNames returns the tag names of a post ordered by name.
func postTagNames(ctx context.Context, q queryer, postID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id
		WHERE pt.post_id = ?
		ORDER BY t.name ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tags, nil
}
