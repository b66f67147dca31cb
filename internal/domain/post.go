package domain

import (
	"slices"
	"time"
)

// Post limits enforced before any side effect.
const (
	MaxTitleLength = 140
	MaxSlugLength  = 200
)

// Post is an authored article. BodyHTML and Slug are derived by the publish
// pipeline and never set by callers.
type Post struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	BodyHTML   string    `json:"body_html"`
	Slug       string    `json:"slug"`
	SlugSource string    `json:"-"` // Title text the current slug was derived from
	AuthorID   int64     `json:"author_id"`
	CategoryID *int64    `json:"category_id,omitempty"`
	Tags       []string  `json:"tags"`
	Timestamp  time.Time `json:"timestamp"`
	Revision   int64     `json:"revision"` // Bumped on every committed write
}

// Clone returns a deep copy so pipeline steps can mutate freely and discard on failure.
func (p *Post) Clone() *Post {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	if p.CategoryID != nil {
		id := *p.CategoryID
		c.CategoryID = &id
	}
	return &c
}

// NeedsSlug reports whether a slug must be (re)allocated for newTitle.
func (p *Post) NeedsSlug(newTitle string) bool {
	return p.Slug == "" || p.SlugSource != newTitle
}

// IndexFields returns the searchable fields for the post.
func (p *Post) IndexFields() map[string]string {
	return map[string]string{
		"title": p.Title,
		"body":  p.Body,
	}
}
