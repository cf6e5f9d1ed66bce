// Package extract produces stabilized visible-text snapshots from legal
// document pages. Extraction walks the HTML node tree and keeps only
// text a reader would actually see; stabilization waits for dynamic
// pages to settle, bounded by a hard timeout.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// MaxContentLength caps a snapshot; everything past it is cut.
	// Bounds downstream payload size and analysis cost.
	MaxContentLength = 12000

	// minNodeLength filters out short text nodes (menu items, buttons,
	// stray labels) that only add noise to a legal document scan.
	minNodeLength = 30
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0(\D|$)`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
		if a.Key == "hidden" {
			return true
		}
	}
	return false
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// VisibleText walks the document tree and concatenates the visible text
// nodes, newline delimited, truncated to MaxContentLength. Script,
// style and hidden subtrees are rejected, as are nodes shorter than the
// per-node noise threshold.
func VisibleText(doc *html.Node) (text string, truncated bool) {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if sb.Len() > MaxContentLength {
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Iframe:
				return
			}
			if hasHiddenStyle(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			value := strings.TrimSpace(whitespaceRun.ReplaceAllString(n.Data, " "))
			if len(value) > minNodeLength {
				sb.WriteString(value)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text = sb.String()
	if len(text) > MaxContentLength {
		return truncate(text, MaxContentLength), true
	}
	return text, false
}

// truncate cuts s to at most n bytes without splitting a multi-byte
// rune at the boundary. The caller guarantees len(s) > n.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// VisibleTextFromHTML parses raw HTML and extracts its visible text.
// Parse errors yield an empty snapshot, not a failure: callers treat
// short or empty text as degraded-but-valid input.
func VisibleTextFromHTML(raw string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", false
	}
	return VisibleText(doc)
}
