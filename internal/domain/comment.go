package domain

import "time"

// Comment is a reply on a post, optionally nested under another comment
// of the same post. ParentID never changes after creation.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	AuthorID  int64     `json:"author_id"`
	PostID    int64     `json:"post_id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
}

// IsReply reports whether the comment is nested under another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}
