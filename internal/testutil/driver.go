package testutil

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
)

var _ output.BrowserPort = (*FakeDriver)(nil)

var ErrScripted = errors.New("scripted failure")

type FakePage struct {
	URL        string
	Title      string
	HTML       string
	Candidates []entity.ElementCandidate
	Metrics    entity.ScrollMetrics
}

// FakeDriver replays a fixed sequence of pages. A click on a candidate
// follows Links when present, otherwise advances to the next page; on the
// last page the click succeeds and the page stays the same.
type FakeDriver struct {
	mu sync.Mutex

	Pages   []FakePage
	Current int
	Links   map[string]int

	ClickFailures map[string]int
	DOMFailures   int
	NavigateErr   error
	GrowOnScroll  int

	Navigations []string
	Clicks      []string
	Scrolls     int
	Closed      bool
}

func NewFakeDriver(pages ...FakePage) *FakeDriver {
	return &FakeDriver{
		Pages:         pages,
		Links:         make(map[string]int),
		ClickFailures: make(map[string]int),
	}
}

func (d *FakeDriver) page() *FakePage {
	return &d.Pages[d.Current]
}

func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Navigations = append(d.Navigations, url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	for i, p := range d.Pages {
		if p.URL == url {
			d.Current = i
			return nil
		}
	}
	d.Current = 0
	return nil
}

func (d *FakeDriver) DOMSnapshot(ctx context.Context, maxChars int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.DOMFailures > 0 {
		d.DOMFailures--
		return "", fmt.Errorf("dom read: %w", ErrScripted)
	}
	h := d.page().HTML
	if maxChars > 0 && len(h) > maxChars {
		h = h[:maxChars]
	}
	return h, nil
}

func (d *FakeDriver) QueryCandidates(ctx context.Context) ([]entity.ElementCandidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]entity.ElementCandidate(nil), d.page().Candidates...), nil
}

func (d *FakeDriver) Click(ctx context.Context, candidateID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Clicks = append(d.Clicks, candidateID)
	if n := d.ClickFailures[candidateID]; n > 0 {
		d.ClickFailures[candidateID] = n - 1
		return false, fmt.Errorf("click %s: %w", candidateID, ErrScripted)
	}

	found := false
	for _, c := range d.page().Candidates {
		if c.ID == candidateID {
			found = true
			break
		}
	}
	if !found {
		return false, fmt.Errorf("candidate %s not on page", candidateID)
	}

	if target, ok := d.Links[candidateID]; ok {
		d.Current = target
		return true, nil
	}
	if d.Current+1 < len(d.Pages) {
		d.Current++
	}
	return true, nil
}

func (d *FakeDriver) ScrollBy(ctx context.Context, dx, dy int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := &d.page().Metrics
	m.ScrollY += dy
	if m.ScrollY < 0 {
		m.ScrollY = 0
	}
	return nil
}

func (d *FakeDriver) ScrollToBottom(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Scrolls++
	m := &d.page().Metrics
	m.ScrollY = m.ScrollHeight - m.ViewportHeight
	if d.GrowOnScroll > 0 {
		m.ScrollHeight += d.GrowOnScroll
	}
	return nil
}

func (d *FakeDriver) ScrollMetrics(ctx context.Context) (entity.ScrollMetrics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.page().Metrics, nil
}

func (d *FakeDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.page().URL, nil
}

func (d *FakeDriver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.page().Title, nil
}

func (d *FakeDriver) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	return &entity.Screenshot{Data: []byte{0xff, 0xd8, 0xff}, Format: "jpeg", Width: 1, Height: 1}, nil
}

func (d *FakeDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Closed = true
}

// ListingPage builds a page whose list items are "name — context" rows.
// When next is set the page carries a single "Next" control.
func ListingPage(url string, names []string, next bool) FakePage {
	var sb strings.Builder
	sb.WriteString("<html><body><h1>Directory</h1><ul class=\"companies\">")
	for _, n := range names {
		sb.WriteString("<li>")
		sb.WriteString(html.EscapeString(n))
		sb.WriteString(" — listed company</li>")
	}
	sb.WriteString("</ul>")
	if next {
		sb.WriteString(`<a class="pager" href="#">Next</a>`)
	}
	sb.WriteString("</body></html>")

	p := FakePage{
		URL:     url,
		Title:   "Directory",
		HTML:    sb.String(),
		Metrics: entity.ScrollMetrics{ScrollHeight: 2000, ViewportHeight: 800},
	}
	if next {
		p.Candidates = []entity.ElementCandidate{{ID: "next", Index: 0, Text: "Next", Tag: "a", ClassID: "pager"}}
	}
	return p
}
