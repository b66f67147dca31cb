package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// postColumns is the ordered list of columns selected in post queries.
// Must match the scan order in scanPost.
const postColumns = `p.id, p.title, p.body, p.body_html, p.slug, p.slug_source,
	p.user_id, p.category_id, p.timestamp, p.revision`

// scanPost scans a sql.Row (or sql.Rows via its Scan method) into a domain.Post.
// Tags are loaded separately.
func scanPost(scanner interface{ Scan(dest ...any) error }) (*domain.Post, error) {
	var (
		p          domain.Post
		categoryID sql.NullInt64
		timestamp  string
	)

	err := scanner.Scan(
		&p.ID,
		&p.Title,
		&p.Body,
		&p.BodyHTML,
		&p.Slug,
		&p.SlugSource,
		&p.AuthorID,
		&categoryID,
		&timestamp,
		&p.Revision,
	)
	if err != nil {
		return nil, err
	}

	p.CategoryID = int64Ptr(categoryID)
	p.Timestamp, err = parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	p.Tags = []string{}
	return &p, nil
}

// CreatePost inserts a post with its tags and sets ID, Revision and the
// canonical tag names. Returns store.ErrSlugTaken when the slug is already
// committed by another post, store.ErrInvalidReference for a missing
// author or category.
func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO posts (title, body, body_html, slug, slug_source, user_id, category_id, timestamp, revision)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
			RETURNING id, revision`,
			post.Title,
			post.Body,
			post.BodyHTML,
			post.Slug,
			post.SlugSource,
			post.AuthorID,
			nullInt64Ptr(post.CategoryID),
			formatTime(post.Timestamp),
		)
		if err := row.Scan(&post.ID, &post.Revision); err != nil {
			return mapConstraintErr(err)
		}

		tags, err := setPostTags(ctx, tx, post.ID, post.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags
		return nil
	})
}

// UpdatePost rewrites every mutable column, replaces the tag set and bumps the revision.
func (s *Store) UpdatePost(ctx context.Context, post *domain.Post) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE posts SET
				title = ?,
				body = ?,
				body_html = ?,
				slug = ?,
				slug_source = ?,
				category_id = ?,
				revision = revision + 1
			WHERE id = ?
			RETURNING revision`,
			post.Title,
			post.Body,
			post.BodyHTML,
			post.Slug,
			post.SlugSource,
			nullInt64Ptr(post.CategoryID),
			post.ID,
		)
		if err := row.Scan(&post.Revision); err != nil {
			return mapConstraintErr(notFound(err))
		}

		tags, err := setPostTags(ctx, tx, post.ID, post.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags
		return nil
	})
}

// GetPost retrieves a post with its tags.
// Returns store.ErrNotFound if the post does not exist.
func (s *Store) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id)
	return s.loadPost(ctx, row)
}

// GetPostBySlug retrieves a post by its slug.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.slug = ?`, slug)
	return s.loadPost(ctx, row)
}

func (s *Store) loadPost(ctx context.Context, row *sql.Row) (*domain.Post, error) {
	p, err := scanPost(row)
	if err != nil {
		return nil, notFound(err)
	}
	tags, err := postTagNames(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}
	p.Tags = tags
	return p, nil
}

// DeletePost removes a post; its comments and tag links cascade.
// Returns the tombstone revision.
func (s *Store) DeletePost(ctx context.Context, id int64) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `DELETE FROM posts WHERE id = ? RETURNING revision`, id).Scan(&rev)
	if err != nil {
		return 0, notFound(err)
	}
	return rev + 1, nil
}

// ListPosts returns every post ordered by id, tags included.
func (s *Store) ListPosts(ctx context.Context) ([]*domain.Post, error) {
	return s.listPosts(ctx, `SELECT `+postColumns+` FROM posts p ORDER BY p.id ASC`)
}

// ListPostsByAuthor returns the posts written by userID, newest first.
func (s *Store) ListPostsByAuthor(ctx context.Context, userID int64) ([]*domain.Post, error) {
	return s.listPosts(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.user_id = ? ORDER BY p.timestamp DESC, p.id DESC`, userID)
}

// ListPostsByTag returns the posts carrying the named tag, newest first.
func (s *Store) ListPostsByTag(ctx context.Context, name string) ([]*domain.Post, error) {
	return s.listPosts(ctx, `
		SELECT `+postColumns+` FROM posts p
		JOIN post_tags pt ON pt.post_id = p.id
		JOIN tags t ON t.id = pt.tag_id
		WHERE t.name = ?
		ORDER BY p.timestamp DESC, p.id DESC`, name)
}

func (s *Store) listPosts(ctx context.Context, query string, args ...any) ([]*domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*domain.Post
	byID := make(map[int64]*domain.Post)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT pt.post_id, t.name FROM post_tags pt
		JOIN tags t ON t.id = pt.tag_id
		ORDER BY t.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("load post tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			postID int64
			name   string
		)
		if err := tagRows.Scan(&postID, &name); err != nil {
			return nil, err
		}
		if p, ok := byID[postID]; ok {
			p.Tags = append(p.Tags, name)
		}
	}
	return posts, tagRows.Err()
}

// CountPosts returns the number of posts.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	return s.count(ctx, "posts")
}

// SlugExists reports whether a post other than excludeID holds slug.
func (s *Store) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE slug = ? AND id != ?)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
