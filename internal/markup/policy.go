package markup

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// AllowedTags is the element allow-list for rendered post bodies.
var AllowedTags = []string{
	"a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "li", "ol", "pre", "strong", "ul",
	"h1", "h2", "h3", "p", "img", "video", "source", "audio", "br", "hr",
}

// GlobalAttributes are allowed on every allow-listed element.
var GlobalAttributes = []string{"class"}

// AllowedAttributes maps an element to the attributes it may carry
// in addition to GlobalAttributes. The policy is built from this map.
var AllowedAttributes = map[string][]string{
	"a":      {"href", "title", "rel"},
	"img":    {"src", "alt", "title", "width", "height", "style"},
	"video":  {"src", "controls", "width", "height", "poster", "style"},
	"source": {"src", "type"},
	"audio":  {"src", "controls"},
}

// Inline style properties kept inside an allowed style attribute.
var allowedStyleProperties = []string{"width", "height", "max-width", "max-height", "float", "text-align"}

var (
	dimensionRe = regexp.MustCompile(`^[0-9]{1,5}(px|%|em|rem)?$`)
	mimeTypeRe  = regexp.MustCompile(`^[a-z]+/[a-z0-9.+-]+$`)
	relRe       = regexp.MustCompile(`^nofollow$`)

	// safeURLRe accepts http(s) URLs and relative references with no scheme.
	// bluemonday only checks schemes on attributes it knows carry links, so
	// URL attributes outside that set are matched against this instead.
	safeURLRe = regexp.MustCompile(`^(?:https?://[^\s]+|/[^\s]*|\./[^\s]*|[^:\s]+)$`)
)

// attrPatterns restricts attribute values beyond bluemonday's defaults.
var attrPatterns = map[string]*regexp.Regexp{
	"width":  dimensionRe,
	"height": dimensionRe,
	"type":   mimeTypeRe,
	"rel":    relRe,
	"poster": safeURLRe,
}

// newPolicy builds the bluemonday policy from the allow-lists above.
// Elements outside the list are unwrapped (their text is kept); bluemonday
// drops the content of script, style and similar elements entirely.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(AllowedTags...)
	p.AllowAttrs(GlobalAttributes...).Globally()

	for element, attrs := range AllowedAttributes {
		for _, attr := range attrs {
			if re, ok := attrPatterns[attr]; ok {
				p.AllowAttrs(attr).Matching(re).OnElements(element)
				continue
			}
			p.AllowAttrs(attr).OnElements(element)
			if attr == "style" {
				p.AllowStyles(allowedStyleProperties...).OnElements(element)
			}
		}
	}

	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)

	return p
}
