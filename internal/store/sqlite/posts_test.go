package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

func TestCreateAndGetPost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")

	cat := &domain.Category{Name: "Go"}
	if err := s.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	p := &domain.Post{
		Title:      "My First Post",
		Body:       "# Hi",
		BodyHTML:   "<h1>Hi</h1>",
		Slug:       "my-first-post",
		SlugSource: "My First Post",
		AuthorID:   u.ID,
		CategoryID: &cat.ID,
		Tags:       []string{"zeta", "Alpha", "alpha"},
		Timestamp:  time.Now(),
	}
	if err := s.CreatePost(ctx, p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.Revision != 1 {
		t.Errorf("Revision: got %d, want 1", p.Revision)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "Alpha" || p.Tags[1] != "zeta" {
		t.Errorf("Tags: got %v, want [Alpha zeta]", p.Tags)
	}

	got, err := s.GetPostBySlug(ctx, "my-first-post")
	if err != nil {
		t.Fatalf("GetPostBySlug: %v", err)
	}
	if got.ID != p.ID || got.SlugSource != "My First Post" || got.BodyHTML != "<h1>Hi</h1>" {
		t.Errorf("unexpected post: %+v", got)
	}
	if got.CategoryID == nil || *got.CategoryID != cat.ID {
		t.Errorf("CategoryID: got %v, want %d", got.CategoryID, cat.ID)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags: got %v", got.Tags)
	}
}

func TestCreatePost_SlugTaken(t *testing.T) {
	s := newTestStore(t)
	u := mustCreateUser(t, s, "alice")
	mustCreatePost(t, s, u.ID, "taken")

	p := &domain.Post{
		Title: "Other", Body: "b", BodyHTML: "<p>b</p>", Slug: "taken", SlugSource: "Other",
		AuthorID: u.ID, Timestamp: time.Now(),
	}
	err := s.CreatePost(context.Background(), p)
	if !errors.Is(err, store.ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestCreatePost_InvalidReference(t *testing.T) {
	s := newTestStore(t)

	p := &domain.Post{
		Title: "Orphan", Body: "b", BodyHTML: "<p>b</p>", Slug: "orphan", SlugSource: "Orphan",
		AuthorID: 12345, Timestamp: time.Now(),
	}
	err := s.CreatePost(context.Background(), p)
	if !errors.Is(err, store.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestUpdatePost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")
	p := mustCreatePost(t, s, u.ID, "draft")
	created := p.Timestamp

	p.Title = "Final"
	p.Slug = "final"
	p.SlugSource = "Final"
	p.Tags = []string{"done"}
	if err := s.UpdatePost(ctx, p); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if p.Revision != 2 {
		t.Errorf("Revision: got %d, want 2", p.Revision)
	}

	got, err := s.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Slug != "final" || got.Title != "Final" {
		t.Errorf("unexpected post: %+v", got)
	}
	if got.Timestamp.Sub(created).Abs() > time.Millisecond {
		t.Errorf("timestamp changed on update: %v vs %v", got.Timestamp, created)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "done" {
		t.Errorf("Tags: got %v", got.Tags)
	}

	if _, err := s.GetPostBySlug(ctx, "draft"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old slug should be free, got %v", err)
	}
}

func TestSlugExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")
	p := mustCreatePost(t, s, u.ID, "hello")

	exists, err := s.SlugExists(ctx, "hello", 0)
	if err != nil {
		t.Fatalf("SlugExists: %v", err)
	}
	if !exists {
		t.Error("expected slug to exist")
	}

	// A post never collides with its own slug.
	exists, err = s.SlugExists(ctx, "hello", p.ID)
	if err != nil {
		t.Fatalf("SlugExists: %v", err)
	}
	if exists {
		t.Error("expected own slug to be excluded")
	}

	exists, _ = s.SlugExists(ctx, "hello-1", 0)
	if exists {
		t.Error("expected hello-1 to be free")
	}
}

func TestDeletePost_TombstoneAndCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")
	p := mustCreatePost(t, s, u.ID, "bye")

	c := &domain.Comment{Body: "nice", AuthorID: u.ID, PostID: p.ID, Timestamp: time.Now()}
	if err := s.CreateComment(ctx, c); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	rev, err := s.DeletePost(ctx, p.ID)
	if err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if rev != 2 {
		t.Errorf("tombstone: got %d, want 2", rev)
	}

	if _, err := s.GetComment(ctx, c.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected comment to cascade, got %v", err)
	}
	if _, err := s.DeletePost(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListPosts_WithTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")

	a := mustCreatePost(t, s, u.ID, "a")
	a.Tags = []string{"go", "db"}
	if err := s.UpdatePost(ctx, a); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	mustCreatePost(t, s, u.ID, "b")

	posts, err := s.ListPosts(ctx)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if len(posts[0].Tags) != 2 || posts[0].Tags[0] != "db" {
		t.Errorf("first post tags: got %v", posts[0].Tags)
	}
	if len(posts[1].Tags) != 0 {
		t.Errorf("second post tags: got %v", posts[1].Tags)
	}

	tagged, err := s.ListPostsByTag(ctx, "GO")
	if err != nil {
		t.Fatalf("ListPostsByTag: %v", err)
	}
	if len(tagged) != 1 || tagged[0].ID != a.ID {
		t.Errorf("ListPostsByTag: got %d posts", len(tagged))
	}

	tags, err := s.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("expected 2 tags, got %d", len(tags))
	}
}

func TestCategoryDelete_SetsNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")

	cat := &domain.Category{Name: "Temp"}
	if err := s.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if err := s.CreateCategory(ctx, &domain.Category{Name: "temp"}); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected case-insensitive duplicate to fail, got %v", err)
	}

	p := mustCreatePost(t, s, u.ID, "p")
	p.CategoryID = &cat.ID
	if err := s.UpdatePost(ctx, p); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, cat.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	got, err := s.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.CategoryID != nil {
		t.Errorf("expected category to be cleared, got %d", *got.CategoryID)
	}
}
