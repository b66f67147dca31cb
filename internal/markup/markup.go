// Package markup turns author-supplied markdown into HTML that is safe to serve.
//
// Rendering happens in three passes: goldmark converts the markdown (CommonMark
// plus fenced code, tables, attribute lists and bare-URL linkification) into
// HTML with raw HTML passed through, a bluemonday allow-list policy strips
// every element and attribute outside the configured set, and a final pass
// links bare URLs the markdown step could not see (those inside raw HTML) and
// marks links rel="nofollow". The renderer holds no mutable state after
// construction and is safe for concurrent use.
package markup

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown into sanitized HTML.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer creates a renderer with the post body allow-list.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Linkify,
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(
			// Raw HTML must reach the sanitizer so disallowed tags are
			// stripped rather than replaced by an "omitted" comment.
			html.WithUnsafe(),
		),
	)

	return &Renderer{
		md:     md,
		policy: newPolicy(),
	}
}

// Render converts raw markdown into safe HTML.
// Conversion never fails for in-memory input; if goldmark reports an error
// the sanitized, escaped source text is returned instead.
func (r *Renderer) Render(raw string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(raw), &buf); err != nil {
		return r.Sanitize(stdhtml.EscapeString(raw))
	}
	return r.Sanitize(buf.String())
}

// Sanitize applies the allow-list to an HTML fragment and links bare URLs.
// Sanitize(Sanitize(x)) == Sanitize(x).
func (r *Renderer) Sanitize(fragment string) string {
	return linkify(r.policy.Sanitize(fragment))
}

// ToText converts rendered HTML back into markdown text.
// Re-rendering the result yields the same safe HTML for content the
// allow-list keeps intact.
func (r *Renderer) ToText(safeHTML string) (string, error) {
	if strings.TrimSpace(safeHTML) == "" {
		return "", nil
	}
	text, err := htmltomarkdown.ConvertString(safeHTML)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return strings.TrimSpace(text), nil
}
