package pagination

import (
	"regexp"
	"strings"

	"listing-agent/internal/domain/entity"
)

const TableVersion = "v3"

var shortNumber = regexp.MustCompile(`\b\d{1,3}\b`)

// ScoringTable holds every keyword list and weight used to rank
// pagination controls. Fields left empty in an override keep the default.
type ScoringTable struct {
	Version          string   `yaml:"version"`
	NextKeywords     []string `yaml:"next_keywords"`
	LoadMoreKeywords []string `yaml:"load_more_keywords"`
	PageHrefPatterns []string `yaml:"page_href_patterns"`
	ClassKeywords    []string `yaml:"class_keywords"`
	ClickKeywords    []string `yaml:"click_keywords"`
	CurrentMarkers   []string `yaml:"current_markers"`

	NextWeight   int `yaml:"next_weight"`
	NumberWeight int `yaml:"number_weight"`
	ClassWeight  int `yaml:"class_weight"`
	ClickWeight  int `yaml:"click_weight"`

	NextThreshold int `yaml:"next_threshold"`
	PageThreshold int `yaml:"page_threshold"`
}

func DefaultScoringTable() ScoringTable {
	return ScoringTable{
		Version: TableVersion,
		NextKeywords: []string{
			"next", ">", "→", "»", "›", "forward", "continue", "more", "load more", "show more",
			"siguiente", "suivant", "weiter", "próximo", "avanti", "volgende",
			"далее", "следующая", "次へ", "下一页",
		},
		LoadMoreKeywords: []string{"load more", "show more", "view more", "see more", "more results"},
		PageHrefPatterns: []string{"page=", "/page/", "p="},
		ClassKeywords:    []string{"pag", "next", "page", "nav", "btn", "link"},
		ClickKeywords:    []string{"click", "button", "link"},
		CurrentMarkers:   []string{"current", "active", "selected"},
		NextWeight:       3,
		NumberWeight:     2,
		ClassWeight:      1,
		ClickWeight:      1,
		NextThreshold:    3,
		PageThreshold:    2,
	}
}

// Merge returns t with every non-zero field of override applied.
func (t ScoringTable) Merge(override ScoringTable) ScoringTable {
	if override.Version != "" {
		t.Version = override.Version
	}
	if len(override.NextKeywords) > 0 {
		t.NextKeywords = override.NextKeywords
	}
	if len(override.LoadMoreKeywords) > 0 {
		t.LoadMoreKeywords = override.LoadMoreKeywords
	}
	if len(override.PageHrefPatterns) > 0 {
		t.PageHrefPatterns = override.PageHrefPatterns
	}
	if len(override.ClassKeywords) > 0 {
		t.ClassKeywords = override.ClassKeywords
	}
	if len(override.ClickKeywords) > 0 {
		t.ClickKeywords = override.ClickKeywords
	}
	if len(override.CurrentMarkers) > 0 {
		t.CurrentMarkers = override.CurrentMarkers
	}
	if override.NextWeight != 0 {
		t.NextWeight = override.NextWeight
	}
	if override.NumberWeight != 0 {
		t.NumberWeight = override.NumberWeight
	}
	if override.ClassWeight != 0 {
		t.ClassWeight = override.ClassWeight
	}
	if override.ClickWeight != 0 {
		t.ClickWeight = override.ClickWeight
	}
	if override.NextThreshold != 0 {
		t.NextThreshold = override.NextThreshold
	}
	if override.PageThreshold != 0 {
		t.PageThreshold = override.PageThreshold
	}
	return t
}

// Score fills Score, Classification and LoadMore for c.
func (t ScoringTable) Score(c entity.ElementCandidate) entity.ElementCandidate {
	text := strings.ToLower(strings.TrimSpace(c.Text + " " + c.Label))
	classID := strings.ToLower(c.ClassID)
	href := strings.ToLower(c.Href)
	haystack := strings.Join([]string{text, classID, href}, " ")

	score := 0
	isNext := containsAny(haystack, t.NextKeywords)
	if isNext {
		score += t.NextWeight
	}

	pageHref := containsAny(href, t.PageHrefPatterns)
	hasNumber := shortNumber.MatchString(text)
	if hasNumber || pageHref {
		score += t.NumberWeight
	}

	if containsAny(classID, t.ClassKeywords) {
		score += t.ClassWeight
	}
	if containsAny(text, t.ClickKeywords) {
		score += t.ClickWeight
	}

	c.Score = score
	c.LoadMore = false
	switch {
	case isNext:
		c.Classification = entity.ClassNextButton
		c.LoadMore = containsAny(haystack, t.LoadMoreKeywords)
	case pageHref:
		c.Classification = entity.ClassPageLink
	case hasNumber:
		c.Classification = entity.ClassPageNumber
	default:
		c.Classification = entity.ClassUnknown
	}
	return c
}

// Relevant reports whether c matches any pagination vocabulary at all.
func (t ScoringTable) Relevant(c entity.ElementCandidate) bool {
	return t.Score(c).Score > 0
}

func (t ScoringTable) isCurrent(c entity.ElementCandidate) bool {
	return containsAny(strings.ToLower(c.ClassID+" "+c.Label), t.CurrentMarkers)
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
