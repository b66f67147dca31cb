// Package search keeps one Bleve full-text index per entity kind in step with
// the store. Each index has a single writer goroutine that applies mutations
// in arrival order and drops ones older than the last revision it applied for
// the same id; searches read concurrently.
package search

import (
	"fmt"
	"strconv"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// Entry is one (id, revision, fields) tuple destined for an index.
type Entry struct {
	ID     int64
	Rev    int64 // Committed revision; 0 means unversioned and always applies
	Fields map[string]string
}

// docID is the Bleve document id for an entity id.
func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseDocID converts a Bleve document id back to an entity id.
func parseDocID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed document id %q: %w", s, err)
	}
	return id, nil
}

// toDocument keeps only the fields declared for kind, so an upsert always
// replaces the whole document and never carries stray fields.
func toDocument(kind domain.Kind, e Entry) map[string]any {
	doc := map[string]any{
		numericIDField: float64(e.ID),
	}
	for _, field := range kind.Fields() {
		if v, ok := e.Fields[field]; ok && v != "" {
			doc[field] = v
		}
	}
	return doc
}
