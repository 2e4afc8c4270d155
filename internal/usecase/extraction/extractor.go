package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/htmlclean"
	"listing-agent/internal/infrastructure/prompts"

	"github.com/cenkalti/backoff/v5"
)

const (
	stageHeuristic = "dom_heuristic"
	stageRefine    = "llm_refine"
	stageDOM       = "llm_dom"
	stageVision    = "vision"
	stageReformat  = "vision_reformat"
)

type Config struct {
	MaxResults          int
	PromptExcerptChars  int
	MaxTokens           int
	VisionMaxTokens     int
	Temperature         float32
	CollaboratorTimeout time.Duration
	// CollaboratorTries bounds the attempts per text or vision call.
	CollaboratorTries uint
	RetryBackoff      time.Duration
	Heuristic         HeuristicConfig
}

func DefaultConfig() Config {
	return Config{
		MaxResults:          100,
		PromptExcerptChars:  6000,
		MaxTokens:           768,
		VisionMaxTokens:     1024,
		Temperature:         0,
		CollaboratorTimeout: 60 * time.Second,
		CollaboratorTries:   3,
		RetryBackoff:        500 * time.Millisecond,
		Heuristic:           DefaultHeuristicConfig(),
	}
}

// Extractor turns a page snapshot into records. Text, vision and
// screenshots are optional; without them only the DOM heuristic runs.
type Extractor struct {
	text     output.TextGenerator
	vision   output.VisionGenerator
	screens  output.Screenshotter
	markdown *htmlclean.MarkdownRenderer
	metrics  output.MetricsPort
	logger   output.LoggerPort
	cfg      Config
}

func New(
	text output.TextGenerator,
	vision output.VisionGenerator,
	screens output.Screenshotter,
	metrics output.MetricsPort,
	logger output.LoggerPort,
	cfg Config,
) *Extractor {
	if metrics == nil {
		metrics = output.NopMetrics{}
	}
	return &Extractor{
		text:     text,
		vision:   vision,
		screens:  screens,
		markdown: htmlclean.NewMarkdownRenderer(),
		metrics:  metrics,
		logger:   logger.WithField("component", "content_extractor"),
		cfg:      cfg,
	}
}

// Extract never fails because of a collaborator; only cancellation of ctx
// is returned as an error, together with whatever was extracted so far.
func (e *Extractor) Extract(ctx context.Context, snap *entity.PageSnapshot, goal string, maxResults int) (*entity.Extraction, error) {
	if maxResults <= 0 {
		maxResults = e.cfg.MaxResults
	}

	res := &entity.Extraction{Source: entity.SourceNone}

	heuristic, err := HeuristicCandidates(snap.HTML, e.cfg.Heuristic)
	if err != nil {
		e.trace(res, stageHeuristic, "error", err.Error())
	} else {
		e.trace(res, stageHeuristic, "ok", fmt.Sprintf("%d candidates", len(heuristic)))
	}

	if len(heuristic) > 0 {
		res.Records = heuristic
		res.Source = entity.SourceDomHeuristic

		if e.text != nil {
			refined, err := e.refine(ctx, snap, goal, heuristic, maxResults)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.finish(res, maxResults), ctxErr
			}
			switch {
			case err != nil:
				e.fail(res, stageRefine, err)
			case len(refined) == 0:
				e.trace(res, stageRefine, "empty", "keeping heuristic candidates")
			default:
				e.trace(res, stageRefine, "ok", fmt.Sprintf("%d records", len(refined)))
				res.Records = refined
				res.Source = entity.SourceLlmRefine
			}
		}
		return e.finish(res, maxResults), nil
	}

	if e.text != nil && snap.DOMExcerpt != "" {
		records, err := e.fromDOM(ctx, snap, goal, maxResults)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.finish(res, maxResults), ctxErr
		}
		switch {
		case err != nil:
			e.fail(res, stageDOM, err)
		case len(records) == 0:
			e.trace(res, stageDOM, "empty", "")
		default:
			e.trace(res, stageDOM, "ok", fmt.Sprintf("%d records", len(records)))
			res.Records = records
			res.Source = entity.SourceLlmDom
			return e.finish(res, maxResults), nil
		}
	}

	if e.vision != nil && e.screens != nil {
		records, err := e.fromVision(ctx, res, goal, maxResults)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.finish(res, maxResults), ctxErr
		}
		switch {
		case err != nil:
			e.fail(res, stageVision, err)
		case len(records) > 0:
			e.trace(res, stageVision, "ok", fmt.Sprintf("%d records", len(records)))
			res.Records = records
			res.Source = entity.SourceVisionFallback
		default:
			e.trace(res, stageVision, "empty", "")
		}
	}

	return e.finish(res, maxResults), nil
}

func (e *Extractor) refine(ctx context.Context, snap *entity.PageSnapshot, goal string, candidates []entity.ExtractionRecord, maxResults int) ([]entity.ExtractionRecord, error) {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Context != nil {
			lines = append(lines, c.Name+" — "+*c.Context)
		} else {
			lines = append(lines, c.Name)
		}
	}

	prompt, err := prompts.Render(stageRefine, prompts.RefinePrompt, prompts.ExtractionPromptData{
		Goal:       goal,
		URL:        snap.URL,
		Candidates: lines,
		Excerpt:    e.excerpt(snap),
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	reply, err := e.complete(ctx, stageRefine, prompt)
	if err != nil {
		return nil, err
	}

	records, err := ParseRecords(reply)
	if err != nil {
		return nil, err
	}
	return cleanRecords(records), nil
}

func (e *Extractor) fromDOM(ctx context.Context, snap *entity.PageSnapshot, goal string, maxResults int) ([]entity.ExtractionRecord, error) {
	prompt, err := prompts.Render(stageDOM, prompts.DOMPrompt, prompts.ExtractionPromptData{
		Goal:       goal,
		URL:        snap.URL,
		Excerpt:    e.excerpt(snap),
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	reply, err := e.complete(ctx, stageDOM, prompt)
	if err != nil {
		return nil, err
	}

	records, err := ParseRecords(reply)
	if err != nil {
		return nil, err
	}
	return cleanRecords(records), nil
}

func (e *Extractor) fromVision(ctx context.Context, res *entity.Extraction, goal string, maxResults int) ([]entity.ExtractionRecord, error) {
	shotCtx, cancel := context.WithTimeout(ctx, e.cfg.CollaboratorTimeout)
	shot, err := e.screens.Screenshot(shotCtx)
	cancel()
	if err != nil {
		return nil, &entity.CollaboratorError{Collaborator: "screenshot", Err: err}
	}

	prompt, err := prompts.Render(stageVision, prompts.VisionPrompt, prompts.ExtractionPromptData{
		Goal:       goal,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	resp, err := withRetry(ctx, e, "vision", func(callCtx context.Context) (*output.Completion, error) {
		return e.vision.Describe(callCtx, output.VisionRequest{
			Image:     shot.Data,
			MimeType:  shot.MimeType(),
			Prompt:    prompt,
			MaxTokens: e.cfg.VisionMaxTokens,
		})
	})
	if err != nil {
		return nil, &entity.CollaboratorError{Collaborator: "vision", Err: err}
	}

	records, err := ParseRecords(resp.Text)
	var perr *entity.ParseError
	if errors.As(err, &perr) && e.text != nil {
		e.trace(res, stageVision, "unstructured", perr.Reason)
		records, err = e.reformat(ctx, resp.Text, maxResults)
	}
	if err != nil {
		return nil, err
	}
	return cleanRecords(records), nil
}

func (e *Extractor) reformat(ctx context.Context, description string, maxResults int) ([]entity.ExtractionRecord, error) {
	prompt, err := prompts.Render(stageReformat, prompts.ReformatPrompt, prompts.ExtractionPromptData{
		Excerpt:    htmlclean.Truncate(description, e.cfg.PromptExcerptChars),
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	reply, err := e.complete(ctx, stageReformat, prompt)
	if err != nil {
		return nil, err
	}
	return ParseRecords(reply)
}

func (e *Extractor) complete(ctx context.Context, stage, prompt string) (string, error) {
	req := output.CompletionRequest{
		Messages: []entity.Message{
			{Role: entity.RoleSystem, Content: prompts.ExtractionSystemPrompt},
			{Role: entity.RoleUser, Content: prompt},
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}

	resp, err := withRetry(ctx, e, "text", func(callCtx context.Context) (*output.Completion, error) {
		return e.text.Complete(callCtx, req)
	})
	if err != nil {
		return "", &entity.CollaboratorError{Collaborator: "text:" + stage, Err: err}
	}

	e.logger.Debug("Collaborator replied", "stage", stage, "len", len(resp.Text), "model", resp.Model)
	return resp.Text, nil
}

// withRetry runs a collaborator call up to CollaboratorTries times with
// exponential backoff. Every attempt has its own timeout and is counted in
// metrics; cancellation of ctx stops retrying at once.
func withRetry[T any](ctx context.Context, e *Extractor, name string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBackoff
	b.MaxInterval = 4 * e.cfg.RetryBackoff

	tries := e.cfg.CollaboratorTries
	if tries == 0 {
		tries = 1
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CollaboratorTimeout)
		defer cancel()

		start := time.Now()
		v, err := op(callCtx)
		e.metrics.CollaboratorCall(name, err, time.Since(start))
		if err != nil {
			if ctx.Err() != nil {
				return v, backoff.Permanent(ctx.Err())
			}
			e.logger.Debug("Collaborator call failed", "collaborator", name, "attempt", attempt, "error", err)
			return v, err
		}
		return v, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}

func (e *Extractor) excerpt(snap *entity.PageSnapshot) string {
	if snap.DOMExcerpt == "" {
		return ""
	}
	md, err := e.markdown.Render(snap.DOMExcerpt, snap.URL, e.cfg.PromptExcerptChars)
	if err != nil {
		e.logger.Warn("Markdown conversion failed, using raw excerpt", "error", err)
		return htmlclean.Truncate(snap.DOMExcerpt, e.cfg.PromptExcerptChars)
	}
	return md
}

func (e *Extractor) fail(res *entity.Extraction, stage string, err error) {
	var collab *entity.CollaboratorError
	if errors.As(err, &collab) {
		res.CollaboratorErrors++
	}
	e.logger.Warn("Extraction stage failed", "stage", stage, "error", err)
	e.trace(res, stage, "error", err.Error())
}

func (e *Extractor) trace(res *entity.Extraction, stage, outcome, detail string) {
	res.Trace = append(res.Trace, entity.TraceEntry{Stage: stage, Outcome: outcome, Detail: detail})
}

func (e *Extractor) finish(res *entity.Extraction, maxResults int) *entity.Extraction {
	res.Records = dedupe(res.Records)
	if len(res.Records) > maxResults {
		res.Records = res.Records[:maxResults]
	}
	if len(res.Records) == 0 {
		res.Source = entity.SourceNone
	}
	e.logger.Info("Extraction finished", "source", res.Source, "records", len(res.Records))
	return res
}
