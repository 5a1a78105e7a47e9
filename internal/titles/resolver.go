// Package titles resolves main/episode titles from page DOM snapshots.
//
// Selector lists are per-service data, not logic: the only policy here is
// "first candidate with non-empty trimmed text wins", independently for
// the main and the episode title. Resolution is a pure read of the
// snapshot and is safe to run on every poll tick and DOM mutation.
package titles

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/example/viewtrack/internal/record"
)

// Selector matches an element either by CSS class or by attribute
// presence (with an optional required value).
type Selector struct {
	Class     string
	Attr      string
	AttrValue string
}

type serviceSelectors struct {
	main    []Selector
	episode []Selector
}

var selectorTable = map[record.Service]serviceSelectors{
	record.ServiceUNext: {
		main: []Selector{
			{Class: "front_contents_title"},
			{Class: "card__heading"},
			{Attr: "data-content-id"},
		},
		episode: []Selector{
			{Class: "series-title-content"},
			{Class: "card__subheading"},
			{Attr: "data-episode-id"},
		},
	},
	record.ServiceNetflix: {
		main: []Selector{
			{Attr: "data-uia", AttrValue: "video-title"},
			{Class: "video-title"},
			{Class: "title-content"},
		},
		episode: []Selector{
			{Attr: "data-uia", AttrValue: "episode-title"},
			{Class: "episode-title"},
			{Class: "episodeTitleValue"},
		},
	},
	record.ServiceAmazonPrime: {
		main: []Selector{
			{Class: "dv-pack-title"},
			{Class: "atvwebplayersdk-title-text"},
		},
		episode: []Selector{
			{Class: "dv-episode-title"},
			{Class: "atvwebplayersdk-subtitle-text"},
		},
	},
	record.ServiceDisneyPlus: {
		main: []Selector{
			{Class: "title-field"},
			{Class: "content-title"},
		},
		episode: []Selector{
			{Class: "subtitle-field"},
			{Class: "content-subtitle"},
		},
	},
}

// Resolve returns the best-effort (mainTitle, episodeTitle) pair for the
// given service from a DOM snapshot. Absence of a match yields empty
// strings, never an error.
func Resolve(svc record.Service, root *html.Node) (mainTitle, episodeTitle string) {
	sel, ok := selectorTable[svc]
	if !ok || root == nil {
		return "", ""
	}
	return firstMatch(root, sel.main), firstMatch(root, sel.episode)
}

// firstMatch walks the subtree in document order and returns the trimmed
// text of the first element matching any candidate, earlier candidates
// taking precedence over later ones.
func firstMatch(root *html.Node, candidates []Selector) string {
	for _, c := range candidates {
		if text := findText(root, c); text != "" {
			return text
		}
	}
	return ""
}

func findText(n *html.Node, sel Selector) string {
	if n.Type == html.ElementNode && matches(n, sel) {
		if text := strings.TrimSpace(nodeText(n)); text != "" {
			return text
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := findText(c, sel); text != "" {
			return text
		}
	}
	return ""
}

func matches(n *html.Node, sel Selector) bool {
	if sel.Class != "" {
		return hasClass(n, sel.Class)
	}
	if sel.Attr == "" {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == sel.Attr {
			return sel.AttrValue == "" || a.Val == sel.AttrValue
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
