package observer

import (
	"context"
	"fmt"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/htmlclean"

	"github.com/cenkalti/backoff/v5"
)

type Config struct {
	SettleDelay    time.Duration
	DOMTimeout     time.Duration
	Retries        uint
	InitialBackoff time.Duration
	MaxHTMLChars   int
	MaxDOMChars    int
	MaxTextChars   int
	// RevealFooter scrolls to the bottom before scanning controls so that
	// lazily rendered pagination is present, then returns to the top.
	RevealFooter bool
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:    750 * time.Millisecond,
		DOMTimeout:     5 * time.Second,
		Retries:        3,
		InitialBackoff: 300 * time.Millisecond,
		MaxHTMLChars:   300_000,
		MaxDOMChars:    20_000,
		MaxTextChars:   20_000,
		RevealFooter:   true,
	}
}

// Relevance filters scanned controls down to pagination-like ones.
type Relevance func(entity.ElementCandidate) bool

type Observer struct {
	driver   output.BrowserPort
	relevant Relevance
	logger   output.LoggerPort
	cfg      Config
}

func New(driver output.BrowserPort, relevant Relevance, logger output.LoggerPort, cfg Config) *Observer {
	return &Observer{
		driver:   driver,
		relevant: relevant,
		logger:   logger.WithField("component", "page_observer"),
		cfg:      cfg,
	}
}

// Observe captures the current page. The only side effect is scrolling
// when RevealFooter is set.
func (o *Observer) Observe(ctx context.Context) (*entity.PageSnapshot, error) {
	if err := sleep(ctx, o.cfg.SettleDelay); err != nil {
		return nil, err
	}

	raw, err := retry(ctx, o.cfg, func(ctx context.Context) (string, error) {
		return o.driver.DOMSnapshot(ctx, o.cfg.MaxHTMLChars)
	})
	if err != nil {
		return nil, o.wrap(ctx, "dom_snapshot", err)
	}

	metrics, err := retry(ctx, o.cfg, o.driver.ScrollMetrics)
	if err != nil {
		return nil, o.wrap(ctx, "scroll_metrics", err)
	}

	candidates, err := o.scanCandidates(ctx)
	if err != nil {
		return nil, o.wrap(ctx, "query_candidates", err)
	}

	url, err := o.driver.CurrentURL(ctx)
	if err != nil {
		return nil, o.wrap(ctx, "current_url", err)
	}
	title, err := o.driver.Title(ctx)
	if err != nil {
		o.logger.Debug("Title unavailable", "error", err)
	}

	cleanCfg := htmlclean.DefaultCleanConfig
	cleanCfg.MaxOutputSize = o.cfg.MaxDOMChars

	snap := &entity.PageSnapshot{
		URL:        url,
		Title:      title,
		HTML:       raw,
		DOMExcerpt: htmlclean.Clean(raw, &cleanCfg),
		Text:       htmlclean.VisibleText(raw, o.cfg.MaxTextChars),
		Metrics:    metrics,
		IsAtBottom: metrics.AtBottom(),
		Candidates: candidates,
		CapturedAt: time.Now(),
	}

	o.logger.Info("Snapshot captured",
		"url", snap.URL,
		"html_len", len(snap.HTML),
		"excerpt_len", len(snap.DOMExcerpt),
		"candidates", len(snap.Candidates),
		"at_bottom", snap.IsAtBottom,
	)

	return snap, nil
}

func (o *Observer) scanCandidates(ctx context.Context) ([]entity.ElementCandidate, error) {
	if o.cfg.RevealFooter {
		if err := o.driver.ScrollToBottom(ctx); err != nil {
			o.logger.Debug("Scroll to bottom failed", "error", err)
		}
	}

	all, err := retry(ctx, o.cfg, o.driver.QueryCandidates)
	if err != nil {
		return nil, err
	}

	if o.cfg.RevealFooter {
		if m, err := o.driver.ScrollMetrics(ctx); err == nil && m.ScrollY > 0 {
			_ = o.driver.ScrollBy(ctx, 0, -m.ScrollY)
		}
	}

	if o.relevant == nil {
		return all, nil
	}
	kept := make([]entity.ElementCandidate, 0, len(all))
	for _, c := range all {
		if o.relevant(c) {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

func (o *Observer) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	o.logger.Warn("Observation failed", "op", op, "error", err)
	return &entity.ObservationError{Op: op, Err: err}
}

// retry runs op with a per-attempt timeout and exponential backoff.
func retry[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = 4 * cfg.InitialBackoff

	tries := cfg.Retries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.DOMTimeout)
		defer cancel()

		v, err := op(attemptCtx)
		if err != nil {
			if ctx.Err() != nil {
				return v, backoff.Permanent(ctx.Err())
			}
			return v, fmt.Errorf("attempt failed: %w", err)
		}
		return v, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
