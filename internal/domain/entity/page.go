package entity

import (
	"regexp"
	"strconv"
	"time"
)

const atBottomTolerance = 4

type ScrollMetrics struct {
	ScrollHeight   int `json:"scroll_height"`
	ViewportHeight int `json:"viewport_height"`
	ScrollY        int `json:"scroll_y"`
}

func (m ScrollMetrics) AtBottom() bool {
	return m.ScrollY+m.ViewportHeight >= m.ScrollHeight-atBottomTolerance
}

// PageSnapshot is an immutable capture of the current page state.
type PageSnapshot struct {
	URL        string
	Title      string
	HTML       string
	DOMExcerpt string
	Text       string
	Metrics    ScrollMetrics
	IsAtBottom bool
	Candidates []ElementCandidate
	CapturedAt time.Time
}

type Classification string

const (
	ClassUnknown    Classification = "unknown"
	ClassNextButton Classification = "next_button"
	ClassPageNumber Classification = "page_number"
	ClassPageLink   Classification = "page_link"
)

// ElementCandidate is a potentially clickable pagination control.
// ID is an opaque driver handle, Index the position in document order.
type ElementCandidate struct {
	ID             string         `json:"id"`
	Index          int            `json:"index"`
	Text           string         `json:"text"`
	Href           string         `json:"href"`
	Tag            string         `json:"tag"`
	ClassID        string         `json:"class_id"`
	Label          string         `json:"label"`
	Score          int            `json:"score"`
	Classification Classification `json:"classification"`
	LoadMore       bool           `json:"load_more,omitempty"`
}

var pageNumberPattern = regexp.MustCompile(`\b(\d{1,3})\b`)

// PageNumber returns the standalone page number shown by the control, or 0.
func (c ElementCandidate) PageNumber() int {
	for _, src := range []string{c.Text, c.Label} {
		if m := pageNumberPattern.FindStringSubmatch(src); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n
			}
		}
	}
	return 0
}

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

func (s Screenshot) MimeType() string {
	switch s.Format {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
