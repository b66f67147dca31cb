package markup

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// bareURLRe finds URLs in text that is not already inside a link.
var bareURLRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)

// linkify wraps bare URLs in sanitized HTML with anchors and marks every
// non-mailto link rel="nofollow". Text inside a, pre and code is left alone.
// The output is a fixed point: linkify(linkify(x)) == linkify(x).
func linkify(safeHTML string) string {
	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(safeHTML))
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return out.String()
			}
			return safeHTML

		case html.StartTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			if isSkipElement(tok.Data) {
				skip++
			}
			if tok.Data == "a" && needsNofollow(tok) {
				tok.Attr = append(tok.Attr, html.Attribute{Key: "rel", Val: "nofollow"})
				out.WriteString(tok.String())
				continue
			}
			out.Write(raw)

		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkipElement(string(name)) && skip > 0 {
				skip--
			}
			out.Write(z.Raw())

		case html.TextToken:
			if skip > 0 {
				out.Write(z.Raw())
				continue
			}
			raw := append([]byte(nil), z.Raw()...)
			text := html.UnescapeString(string(raw))
			if !bareURLRe.MatchString(text) {
				out.Write(raw)
				continue
			}
			writeLinkedText(&out, text)

		default:
			out.Write(z.Raw())
		}
	}
}

func isSkipElement(name string) bool {
	return name == "a" || name == "pre" || name == "code"
}

func needsNofollow(tok html.Token) bool {
	href := ""
	for _, a := range tok.Attr {
		switch a.Key {
		case "rel":
			return false
		case "href":
			href = a.Val
		}
	}
	return href != "" && !strings.HasPrefix(strings.ToLower(href), "mailto:")
}

// writeLinkedText escapes text and wraps each URL in an anchor.
func writeLinkedText(out *bytes.Buffer, text string) {
	last := 0
	for _, m := range bareURLRe.FindAllStringIndex(text, -1) {
		url := trimURL(text[m[0]:m[1]])
		if bareURLRe.FindString(url) != url {
			continue
		}
		end := m[0] + len(url)

		out.WriteString(html.EscapeString(text[last:m[0]]))

		href := url
		if strings.HasPrefix(strings.ToLower(href), "www.") {
			href = "http://" + href
		}
		out.WriteString(`<a href="`)
		out.WriteString(html.EscapeString(href))
		out.WriteString(`" rel="nofollow">`)
		out.WriteString(html.EscapeString(url))
		out.WriteString("</a>")

		last = end
	}
	out.WriteString(html.EscapeString(text[last:]))
}

// trimURL drops trailing sentence punctuation and an unbalanced closing paren.
func trimURL(url string) string {
	for url != "" {
		last := url[len(url)-1]
		switch {
		case strings.IndexByte(".,;:!?'", last) >= 0:
			url = url[:len(url)-1]
		case last == ')' && strings.Count(url, ")") > strings.Count(url, "("):
			url = url[:len(url)-1]
		default:
			return url
		}
	}
	return url
}
