package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
)

type Strategy string

const (
	StrategyNextButton     Strategy = "next_button"
	StrategyPageLink       Strategy = "page_link"
	StrategyInfiniteScroll Strategy = "infinite_scroll"
)

type Config struct {
	SettleDelay   time.Duration
	ProbeAttempts int
	ProbeDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:   2 * time.Second,
		ProbeAttempts: 3,
		ProbeDelay:    1500 * time.Millisecond,
	}
}

// Classifier re-ranks a fresh candidate list after a failed click.
type Classifier interface {
	Classify(candidates []entity.ElementCandidate) entity.PaginationAssessment
}

type Navigator struct {
	driver     output.BrowserPort
	classifier Classifier
	metrics    output.MetricsPort
	logger     output.LoggerPort
	cfg        Config
}

func New(driver output.BrowserPort, classifier Classifier, metrics output.MetricsPort, logger output.LoggerPort, cfg Config) *Navigator {
	if metrics == nil {
		metrics = output.NopMetrics{}
	}
	return &Navigator{
		driver:     driver,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger.WithField("component", "pagination_navigator"),
		cfg:        cfg,
	}
}

// Advance tries, in order: the chosen next control, the numbered link for
// the following page, and an infinite-scroll probe. currentPage is the
// 1-based page the browser is on. It returns *entity.NavigationError when
// nothing moved the listing forward.
func (n *Navigator) Advance(ctx context.Context, assessment entity.PaginationAssessment, currentPage int) (Strategy, error) {
	var errs []error

	if c := assessment.Chosen; c != nil && c.Classification == entity.ClassNextButton {
		err := n.clickWithRetry(ctx, *c, func(a entity.PaginationAssessment) (entity.ElementCandidate, bool) {
			if a.Chosen != nil && a.Chosen.Classification == entity.ClassNextButton {
				return *a.Chosen, true
			}
			return entity.ElementCandidate{}, false
		})
		if done, ret := n.result(ctx, StrategyNextButton, err); done {
			return StrategyNextButton, ret
		}
		errs = append(errs, err)
	}

	if assessment.CurrentPage > currentPage {
		currentPage = assessment.CurrentPage
	}
	target := currentPage + 1
	if c, ok := assessment.PageCandidate(target); ok {
		err := n.clickWithRetry(ctx, c, func(a entity.PaginationAssessment) (entity.ElementCandidate, bool) {
			return a.PageCandidate(target)
		})
		if done, ret := n.result(ctx, StrategyPageLink, err); done {
			return StrategyPageLink, ret
		}
		errs = append(errs, err)
	}

	grew, err := n.probeInfiniteScroll(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err == nil && grew {
		n.metrics.Navigation(string(StrategyInfiniteScroll), true)
		n.logger.Info("Page advanced", "strategy", StrategyInfiniteScroll)
		return StrategyInfiniteScroll, nil
	}
	n.metrics.Navigation(string(StrategyInfiniteScroll), false)
	if err != nil {
		errs = append(errs, err)
	}

	navErr := &entity.NavigationError{Strategy: "all", Err: errors.Join(errs...)}
	n.logger.Warn("No pagination strategy advanced the page", "error", navErr)
	return "", navErr
}

func (n *Navigator) result(ctx context.Context, s Strategy, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return true, ctxErr
	}
	n.metrics.Navigation(string(s), err == nil)
	if err != nil {
		n.logger.Warn("Pagination strategy failed", "strategy", s, "error", err)
		return false, nil
	}
	n.logger.Info("Page advanced", "strategy", s)
	return true, nil
}

// clickWithRetry clicks c; on failure it re-queries the page, re-classifies
// and clicks the freshly picked candidate once more.
func (n *Navigator) clickWithRetry(ctx context.Context, c entity.ElementCandidate, pick func(entity.PaginationAssessment) (entity.ElementCandidate, bool)) error {
	err := n.click(ctx, c)
	if err == nil {
		return n.settle(ctx)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	n.logger.Debug("Click failed, re-observing candidates", "candidate", c.ID, "error", err)

	fresh, qerr := n.driver.QueryCandidates(ctx)
	if qerr != nil {
		return fmt.Errorf("requery candidates: %w", errors.Join(err, qerr))
	}
	retryCandidate, ok := pick(n.classifier.Classify(fresh))
	if !ok {
		return fmt.Errorf("candidate vanished after failed click: %w", err)
	}

	if err := n.click(ctx, retryCandidate); err != nil {
		return err
	}
	return n.settle(ctx)
}

func (n *Navigator) click(ctx context.Context, c entity.ElementCandidate) error {
	ok, err := n.driver.Click(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("click %q: %w", c.Text, err)
	}
	if !ok {
		return fmt.Errorf("click %q had no effect", c.Text)
	}
	return nil
}

func (n *Navigator) probeInfiniteScroll(ctx context.Context) (bool, error) {
	before, err := n.driver.ScrollMetrics(ctx)
	if err != nil {
		return false, fmt.Errorf("scroll metrics: %w", err)
	}

	for i := 0; i < n.cfg.ProbeAttempts; i++ {
		if err := n.driver.ScrollToBottom(ctx); err != nil {
			return false, fmt.Errorf("scroll to bottom: %w", err)
		}
		if err := sleep(ctx, n.cfg.ProbeDelay); err != nil {
			return false, err
		}
		after, err := n.driver.ScrollMetrics(ctx)
		if err != nil {
			return false, fmt.Errorf("scroll metrics: %w", err)
		}
		if after.ScrollHeight > before.ScrollHeight {
			n.logger.Debug("Infinite scroll grew page", "attempt", i+1, "before", before.ScrollHeight, "after", after.ScrollHeight)
			return true, nil
		}
	}
	return false, nil
}

func (n *Navigator) settle(ctx context.Context) error {
	return sleep(ctx, n.cfg.SettleDelay)
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
