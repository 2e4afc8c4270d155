package htmlclean

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const TruncationMarker = "\n<!-- truncated -->"

type CleanConfig struct {
	TagsToRemove     []string
	AttrsToRemove    []string
	MaxOutputSize    int
	CustomAttrFilter func(attr html.Attribute) bool
}

// DefaultCleanConfig: дефолтная конфигурация для DOM-выдержки
var DefaultCleanConfig = CleanConfig{
	TagsToRemove: []string{
		"script", "style", "noscript", "svg", "iframe", "template",
		"link", "meta", "head", "title",
	},
	AttrsToRemove: []string{
		"style", "srcset", "sizes", "loading", "decoding", "fetchpriority", "tabindex",
	},
	MaxOutputSize: 20_000,
}

// Clean strips scripts, styles, comments and noisy attributes from the
// body of rawHTML and bounds the result to cfg.MaxOutputSize bytes.
func Clean(rawHTML string, cfg *CleanConfig) string {
	if cfg == nil {
		cfg = &DefaultCleanConfig
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Truncate(rawHTML, cfg.MaxOutputSize)
	}

	root := findNode(doc, "body")
	if root == nil {
		root = doc
	}

	cleanNode(root, cfg)

	return Truncate(renderNode(root), cfg.MaxOutputSize)
}

// VisibleText returns the whitespace-collapsed text of the body.
func VisibleText(rawHTML string, maxSize int) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	root := findNode(doc, "body")
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isOneOf(n.Data, DefaultCleanConfig.TagsToRemove...) {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if maxSize > 0 && len(text) > maxSize {
		return cutRunes(text, maxSize)
	}
	return text
}

// Truncate bounds s to maxSize bytes, marker included, cutting on a rune
// boundary. The marker is dropped when maxSize cannot hold it.
func Truncate(s string, maxSize int) string {
	if maxSize <= 0 || len(s) <= maxSize {
		return s
	}
	if maxSize <= len(TruncationMarker) {
		return cutRunes(s, maxSize)
	}
	return cutRunes(s, maxSize-len(TruncationMarker)) + TruncationMarker
}

func cutRunes(s string, maxSize int) string {
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func findNode(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findNode(c, tag); b != nil {
			return b
		}
	}
	return nil
}

// cleanNode рекурсивно удаляет комментарии, мусорные теги и фильтрует атрибуты
func cleanNode(n *html.Node, cfg *CleanConfig) {
	if n.Type == html.CommentNode {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}
	if n.Type == html.ElementNode {
		if isOneOf(n.Data, cfg.TagsToRemove...) {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			return
		}
		n.Attr = filterAttributes(n.Attr, cfg)
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c, cfg)
		c = next
	}
}

func filterAttributes(attrs []html.Attribute, cfg *CleanConfig) []html.Attribute {
	var kept []html.Attribute
	for _, attr := range attrs {
		if shouldRemoveAttr(attr, cfg) {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

// data-company* survives: listing markup often carries the record name there.
func shouldRemoveAttr(attr html.Attribute, cfg *CleanConfig) bool {
	key := attr.Key
	if isOneOf(key, cfg.AttrsToRemove...) {
		return true
	}
	if strings.HasPrefix(key, "data-company") {
		return false
	}
	if strings.HasPrefix(key, "data-") || strings.HasPrefix(key, "aria-") || strings.HasPrefix(key, "on") {
		return true
	}
	if cfg.CustomAttrFilter != nil && cfg.CustomAttrFilter(attr) {
		return true
	}
	return false
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
