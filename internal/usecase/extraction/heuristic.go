package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"listing-agent/internal/domain/entity"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
)

var DefaultSelectors = []string{
	"[data-company]",
	"[data-company-name]",
	".company",
	".company-name",
	".CompanyName",
	"li",
	"tbody tr",
	"[role='listitem']",
	"table tr",
}

var delimiters = []string{"—", " - ", " -", "- ", "|", "·"}

var stoplist = []string{
	"http", "www.", "@", "copyright", "©", "privacy", "login", "log in",
	"sign in", "sign up", "cookie", "terms of", "all rights reserved",
	"points by", "comments",
}

var navWords = map[string]struct{}{
	"next": {}, "previous": {}, "prev": {}, "home": {}, "menu": {}, "more": {},
	"load more": {}, "show more": {}, "back": {}, "top": {}, "skip to content": {},
	"first": {}, "last": {}, "search": {}, "about": {}, "contact": {},
}

// navVocabulary covers the words pagination and site chrome labels are
// built from; a short name made only of these is not a record.
var navVocabulary = map[string]struct{}{
	"next": {}, "previous": {}, "prev": {}, "page": {}, "pages": {}, "go": {}, "to": {},
	"home": {}, "menu": {}, "more": {}, "load": {}, "show": {}, "view": {}, "results": {},
	"back": {}, "top": {}, "skip": {}, "content": {}, "first": {}, "last": {}, "older": {},
	"newer": {}, "posts": {}, "search": {}, "about": {}, "contact": {}, "us": {}, "continue": {},
	"forward": {}, "of": {}, "all": {},
	"siguiente": {}, "anterior": {}, "suivant": {}, "précédent": {}, "weiter": {}, "zurück": {},
	"далее": {}, "назад": {}, "следующая": {}, "предыдущая": {},
}

const maxNavTokens = 3

var letterRun = regexp.MustCompile(`\p{L}+`)

type HeuristicConfig struct {
	Selectors        []string
	PerSelectorLimit int
	MaxTextLen       int
}

func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		Selectors:        DefaultSelectors,
		PerSelectorLimit: 120,
		MaxTextLen:       320,
	}
}

// HeuristicCandidates walks the configured selectors over rawHTML and
// returns name/context pairs that look like listing records, in selector
// order, deduplicated case-insensitively by name.
func HeuristicCandidates(rawHTML string, cfg HeuristicConfig) ([]entity.ExtractionRecord, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var collected []entity.ExtractionRecord
	seenText := make(map[string]struct{})

	for _, selector := range cfg.Selectors {
		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if cfg.PerSelectorLimit > 0 && i >= cfg.PerSelectorLimit {
				return false
			}

			text := selectionText(s)
			if text == "" {
				return true
			}
			if cfg.MaxTextLen > 0 && len(text) > cfg.MaxTextLen {
				text = strings.TrimRight(truncateRunes(text, cfg.MaxTextLen), ",;: ")
			}
			if _, ok := seenText[text]; ok {
				return true
			}
			seenText[text] = struct{}{}

			name, context := splitNameContext(text)
			if looksLikeRecord(name) {
				collected = append(collected, newRecord(name, context))
			}
			return true
		})
	}

	return dedupe(collected), nil
}

// selectionText joins table cells with " | " and block-level text runs
// with a double space so that splitNameContext can separate name from context.
func selectionText(s *goquery.Selection) string {
	if attr, ok := s.Attr("data-company"); ok && strings.TrimSpace(attr) != "" {
		return normalize(attr)
	}
	if attr, ok := s.Attr("data-company-name"); ok && strings.TrimSpace(attr) != "" {
		return normalize(attr)
	}

	if goquery.NodeName(s) == "tr" {
		var cells []string
		s.Children().Each(func(_ int, c *goquery.Selection) {
			if t := runsText(c.Nodes...); t != "" {
				cells = append(cells, t)
			}
		})
		return strings.Join(cells, " | ")
	}

	return runsText(s.Nodes...)
}

var blockTags = map[string]struct{}{
	"div": {}, "p": {}, "br": {}, "li": {}, "ul": {}, "ol": {}, "td": {}, "th": {},
	"tr": {}, "table": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"section": {}, "article": {}, "header": {}, "footer": {}, "dl": {}, "dt": {}, "dd": {},
}

func runsText(nodes ...*html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "svg", "template":
				return
			}
		}
		_, block := blockTags[n.Data]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	var runs []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if t := normalize(line); t != "" {
			runs = append(runs, t)
		}
	}
	return strings.Join(runs, "  ")
}

func splitNameContext(text string) (string, *string) {
	for _, d := range delimiters {
		if name, context, ok := strings.Cut(text, d); ok {
			return strings.TrimSpace(name), nonEmpty(strings.TrimSpace(context))
		}
	}
	if name, context, ok := strings.Cut(text, "  "); ok {
		return strings.TrimSpace(name), nonEmpty(normalize(context))
	}
	return text, nil
}

func looksLikeRecord(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 180 {
		return false
	}

	lower := strings.ToLower(name)
	for _, token := range stoplist {
		if strings.Contains(lower, token) {
			return false
		}
	}
	if _, ok := navWords[lower]; ok {
		return false
	}
	if isNavLabel(lower) {
		return false
	}

	for _, token := range letterRun.FindAllString(name, -1) {
		r, _ := utf8.DecodeRuneInString(token)
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// isNavLabel reports whether lower, ignoring arrows, digits and
// punctuation, is a short label made only of navigation words.
func isNavLabel(lower string) bool {
	tokens := letterRun.FindAllString(lower, -1)
	if len(tokens) == 0 || len(tokens) > maxNavTokens {
		return false
	}
	if _, ok := navWords[strings.Join(tokens, " ")]; ok {
		return true
	}
	for _, token := range tokens {
		if _, ok := navVocabulary[token]; !ok {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newRecord(name string, context *string) entity.ExtractionRecord {
	return entity.ExtractionRecord{Name: name, Context: context}
}

func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func dedupe(records []entity.ExtractionRecord) []entity.ExtractionRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]entity.ExtractionRecord, 0, len(records))
	for _, r := range records {
		key := NameKey(r.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Dedupe removes records whose name repeats an earlier one, ignoring case.
func Dedupe(records []entity.ExtractionRecord) []entity.ExtractionRecord {
	return dedupe(records)
}

// NameKey is the identity of a record name: Unicode case-folded, so that
// names differing only by case (including final sigma) collide.
func NameKey(name string) string {
	return cases.Fold().String(name)
}
