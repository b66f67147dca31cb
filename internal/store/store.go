// Package store defines the persistence boundary of the Inkwell server.
package store

import (
	"context"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// Store defines the interface for all persistence operations.
//
// Every committed create or update bumps the row's Revision and writes it
// back into the passed entity. Deletes return the tombstone revision
// (last revision + 1) so index removals order after every earlier write.
type Store interface {
	// Lifecycle
	Close() error

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id int64) (*UserDeletion, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Posts
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPost(ctx context.Context, id int64) (*domain.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error)
	UpdatePost(ctx context.Context, post *domain.Post) error
	DeletePost(ctx context.Context, id int64) (int64, error)
	ListPosts(ctx context.Context) ([]*domain.Post, error)
	ListPostsByAuthor(ctx context.Context, userID int64) ([]*domain.Post, error)
	CountPosts(ctx context.Context) (int, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)

	// Categories
	CreateCategory(ctx context.Context, c *domain.Category) error
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)

	// Tags
	ListTags(ctx context.Context) ([]*domain.Tag, error)
	ListPostsByTag(ctx context.Context, name string) ([]*domain.Post, error)

	// Comments
	CreateComment(ctx context.Context, c *domain.Comment) error
	GetComment(ctx context.Context, id int64) (*domain.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
	ListComments(ctx context.Context, postID int64) ([]*domain.Comment, error)
}

// UserDeletion describes what a user delete removed, including the
// posts that went with it through the foreign key cascade.
type UserDeletion struct {
	Revision      int64           // Tombstone revision of the user
	PostRevisions map[int64]int64 // Tombstone revision per cascaded post
}

// SearchIndexer is the interface for updating the search index.
// Services call it after a commit; rev is the committed revision.
type SearchIndexer interface {
	Upsert(ctx context.Context, kind domain.Kind, id, rev int64, fields map[string]string) error
	Remove(ctx context.Context, kind domain.Kind, id, rev int64) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// Upsert is a no-op.
func (NoopSearchIndexer) Upsert(context.Context, domain.Kind, int64, int64, map[string]string) error {
	return nil
}

// Remove is a no-op.
func (NoopSearchIndexer) Remove(context.Context, domain.Kind, int64, int64) error { return nil }

// NewNoopSearchIndexer creates a new no-op search indexer for testing.
func NewNoopSearchIndexer() SearchIndexer { return NoopSearchIndexer{} }
