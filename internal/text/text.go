// Package text holds the small sanitation helpers applied to generated
// content before it is published or fed back into generation prompts.
package text

import (
	"strings"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

var (
	mentionRe  = re2.MustCompile(`@(\S+)`)
	spacesRe   = re2.MustCompile(`\s+`)
	htmlTagRe  = re2.MustCompile(`<[^>]+>`)
	snapshotRe = re2.MustCompile(`https://www\.tradingview\.com/x/([a-zA-Z0-9]+)/`)
)

// RemoveQuotes strips one pair of surrounding double quotes, if present.
// Generation models habitually wrap short outputs in quotes.
func RemoveQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// RemoveMentions removes @handle tokens and collapses the leftover spacing.
func RemoveMentions(s string) string {
	s = mentionRe.ReplaceAllString(s, "")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripTags removes HTML tags and unescapes nothing; callers unescape first.
func StripTags(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

// Normalize applies NFC normalization so provider character limits count
// the same way we do.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// Shorten truncates s to length runes with a trailing ellipsis.
func Shorten(s string, length int) string {
	if length <= 3 {
		length = 3
	}
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length-3]) + "..."
}

// RewriteSnapshotLinks converts tradingview chart share links into their
// direct s3 snapshot image URLs so they can be attached as media.
func RewriteSnapshotLinks(s string) string {
	return snapshotRe.ReplaceAllStringFunc(s, func(link string) string {
		groups := snapshotRe.FindStringSubmatch(link)
		if len(groups) < 2 {
			return link
		}
		id := groups[1]
		return "https://s3.tradingview.com/snapshots/" + strings.ToLower(id[:1]) + "/" + id + ".png"
	})
}
