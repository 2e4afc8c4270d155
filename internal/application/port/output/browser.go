package output

import (
	"context"

	"listing-agent/internal/domain/entity"
)

// BrowserPort is the automation driver used by one extraction run.
// Implementations bound every call with their own timeout.
type BrowserPort interface {
	Navigate(ctx context.Context, url string) error
	DOMSnapshot(ctx context.Context, maxChars int) (string, error)
	QueryCandidates(ctx context.Context) ([]entity.ElementCandidate, error)
	Click(ctx context.Context, candidateID string) (bool, error)

	ScrollBy(ctx context.Context, dx, dy int) error
	ScrollToBottom(ctx context.Context) error
	ScrollMetrics(ctx context.Context) (entity.ScrollMetrics, error)

	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshotter

	Close()
}

type Screenshotter interface {
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
}
