package cardmaker

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Placeholder token patterns. Field tokens never match {{image:...}}
// because ':' is outside \w.
var (
	fieldTokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)
	imageTokenPattern = regexp.MustCompile(`\{\{image:(\w+)\}\}`)
	iconTokenPattern  = regexp.MustCompile(`\{icon:(\w+)\}`)
)

// Inline emphasis patterns. Bold must run before italic so **bold** is not
// partially consumed by the single-asterisk rule; nested or adjacent
// emphasis is a known sharp edge of this ordering and is kept for
// compatibility with existing templates.
var (
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.+?)\*`)
	strikePattern = regexp.MustCompile(`~~(.+?)~~`)
)

// HydrateTemplate substitutes row data into a template's placeholder
// tokens.
//
// {{field}} tokens resolve through mapping to a source column and emit the
// HTML-escaped row value with inline emphasis applied; unmapped or missing
// fields emit an empty string. {{image:slot}} tokens resolve the same way
// but emit an artwork URL (path segments percent-encoded, never
// HTML-escaped). {icon:name} tokens always emit a static icon <img> tag
// regardless of row data.
//
// The transform is pure: identical inputs yield byte-identical output.
func HydrateTemplate(templateHTML string, card CardData, mapping FieldMapping, artworkBaseURL string) string {
	result := fieldTokenPattern.ReplaceAllStringFunc(templateHTML, func(token string) string {
		name := fieldTokenPattern.FindStringSubmatch(token)[1]
		column := mapping[name]
		if column == "" {
			return ""
		}
		value, ok := card[column]
		if !ok {
			return ""
		}
		return applyEmphasis(html.EscapeString(value))
	})

	result = imageTokenPattern.ReplaceAllStringFunc(result, func(token string) string {
		slot := imageTokenPattern.FindStringSubmatch(token)[1]
		column := mapping[slot]
		if column == "" || card[column] == "" {
			return ""
		}
		return artworkBaseURL + "/" + encodePathSegments(card[column])
	})

	result = iconTokenPattern.ReplaceAllStringFunc(result, func(token string) string {
		name := iconTokenPattern.FindStringSubmatch(token)[1]
		return fmt.Sprintf(`<img src="%s/icons/%s.png" class="inline-icon" />`,
			artworkBaseURL, url.PathEscape(name))
	})

	return result
}

// applyEmphasis converts markdown-like inline emphasis in already-escaped
// text: **bold**, *italic*, ~~strikethrough~~, in that precedence.
func applyEmphasis(s string) string {
	s = boldPattern.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicPattern.ReplaceAllString(s, "<em>$1</em>")
	s = strikePattern.ReplaceAllString(s, "<s>$1</s>")
	return s
}

// encodePathSegments percent-encodes each segment of a relative path while
// preserving the separators, producing an <img>-ready URL path.
func encodePathSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// documentSkeleton wraps a hydrated card body in a standalone page. The
// reset rules and the card size custom properties come first so template
// CSS can override them.
const documentSkeleton = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
:root { --card-width: %dpx; --card-height: %dpx; }
* { margin: 0; padding: 0; box-sizing: border-box; }
.inline-icon { height: 1em; width: auto; vertical-align: middle; display: inline; }
%s
</style>
</head>
<body>
%s
</body>
</html>`

// BuildCardDocument hydrates a template and wraps it in a complete HTML
// document sized to the resolved CSS dimensions, ready for a render
// surface.
func BuildCardDocument(templateHTML, templateCSS string, card CardData, mapping FieldMapping, artworkBaseURL string, dims ResolvedCardDimensions) string {
	body := HydrateTemplate(templateHTML, card, mapping, artworkBaseURL)
	return fmt.Sprintf(documentSkeleton, dims.WidthCSS, dims.HeightCSS, templateCSS, body)
}
