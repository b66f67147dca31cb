// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// FallbackSlug is returned when a title has no sluggable characters.
const FallbackSlug = "post"

// MaxSlugBaseLength bounds the rune length of a slug base so that numeric
// suffixes still fit the 200 character slug column.
const MaxSlugBaseLength = 180

// Matches runs of whitespace, underscores and dashes (for replacement with a single dash).
var separatorRunRe = regexp.MustCompile(`[\s_-]+`)

// Slugify converts a post title to a URL-safe token.
//
// Normalization rules:
//  1. NFC-normalize and lowercase
//  2. Remove everything that is not a letter, number, whitespace, underscore or dash
//  3. Collapse separator runs (whitespace, underscore, dash) into one dash
//  4. Trim leading/trailing dashes
//  5. Truncate to MaxSlugBaseLength runes
//  6. Fall back to "post" when nothing is left
//
// Examples:
//
//	"My First Post!"   → "my-first-post"
//	"Hello_World"      → "hello-world"
//	"  Café   au lait" → "café-au-lait"
//	"!!!"              → "post"
//
// Slugify is deterministic and Slugify(Slugify(x)) == Slugify(x).
func Slugify(input string) string {
	// 1. Normalize and lowercase
	s := strings.ToLower(norm.NFC.String(input))

	// 2. Drop disallowed characters
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsSpace(r):
			return r
		case r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, s)

	// 3. Collapse separators
	s = separatorRunRe.ReplaceAllString(s, "-")

	// 4. Trim dashes
	s = strings.Trim(s, "-")

	// 5. Truncate on a rune boundary, never leaving a trailing dash
	if runes := []rune(s); len(runes) > MaxSlugBaseLength {
		s = strings.TrimRight(string(runes[:MaxSlugBaseLength]), "-")
	}

	if s == "" {
		return FallbackSlug
	}
	return s
}
