package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// userColumns is the ordered list of columns selected in user queries.
// Must match the scan order in scanUser.
const userColumns = `id, username, email, password_hash, is_admin, about_me, member_since, revision`

// scanUser scans a sql.Row (or sql.Rows via its Scan method) into a domain.User.
func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var (
		u           domain.User
		isAdmin     int
		memberSince string
	)

	err := scanner.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&isAdmin,
		&u.AboutMe,
		&memberSince,
		&u.Revision,
	)
	if err != nil {
		return nil, err
	}

	u.IsAdmin = isAdmin != 0
	u.MemberSince, err = parseTime(memberSince)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user and sets its ID and Revision.
// Returns store.ErrAlreadyExists if the username or email is taken.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, email_lower, password_hash, is_admin, about_me, member_since, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		RETURNING id, revision`,
		user.Username,
		user.Email,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.PasswordHash,
		boolToInt(user.IsAdmin),
		user.AboutMe,
		formatTime(user.MemberSince),
	)
	if err := row.Scan(&user.ID, &user.Revision); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

// GetUser retrieves a user by ID.
// Returns store.ErrNotFound if the user does not exist.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by exact username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, compared case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	lower := strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email_lower = ?`, lower)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// UpdateUser performs a full row update and bumps the revision. The write
// only lands if the row is still at user.Revision.
// Returns store.ErrNotFound if the user does not exist and
// store.ErrRevisionConflict if another write committed since user was read.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			username = ?,
			email = ?,
			email_lower = ?,
			password_hash = ?,
			is_admin = ?,
			about_me = ?,
			revision = revision + 1
		WHERE id = ? AND revision = ?
		RETURNING revision`,
		user.Username,
		user.Email,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.PasswordHash,
		boolToInt(user.IsAdmin),
		user.AboutMe,
		user.ID,
		user.Revision,
	)
	var rev int64
	err := row.Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, user.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if exists {
			return store.ErrRevisionConflict
		}
		return store.ErrNotFound
	}
	if err != nil {
		return mapConstraintErr(err)
	}
	user.Revision = rev
	return nil
}

// DeleteUser removes a user. Posts and comments go with it through
// ON DELETE CASCADE; their tombstone revisions are collected first
// in the same transaction.
func (s *Store) DeleteUser(ctx context.Context, id int64) (*store.UserDeletion, error) {
	del := &store.UserDeletion{PostRevisions: make(map[int64]int64)}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, revision FROM posts WHERE user_id = ?`, id)
		if err != nil {
			return fmt.Errorf("list posts of user: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var postID, rev int64
			if err := rows.Scan(&postID, &rev); err != nil {
				return err
			}
			del.PostRevisions[postID] = rev + 1
		}
		if err := rows.Err(); err != nil {
			return err
		}

		var rev int64
		err = tx.QueryRowContext(ctx, `DELETE FROM users WHERE id = ? RETURNING revision`, id).Scan(&rev)
		if err != nil {
			return notFound(err)
		}
		del.Revision = rev + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return del, nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, "users")
}
