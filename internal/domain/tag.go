package domain

import "strings"

// Category groups posts. Names are unique and created by admins.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a free-form label created on demand from post tag names.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NormalizeTagNames trims, drops empties and deduplicates names
// case-insensitively, keeping first-seen order and spelling.
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
