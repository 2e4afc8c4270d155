package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/htmlclean"
	"listing-agent/internal/infrastructure/prompts"
)

type Config struct {
	ExcerptChars int
	MaxTokens    int
	Temperature  float32
	Timeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		ExcerptChars: 6000,
		MaxTokens:    400,
		Temperature:  0.2,
		Timeout:      60 * time.Second,
	}
}

// Planner asks the text collaborator once, before the first extraction,
// to describe how the listing is laid out and paginated.
type Planner struct {
	text     output.TextGenerator
	markdown *htmlclean.MarkdownRenderer
	logger   output.LoggerPort
	cfg      Config
}

func New(text output.TextGenerator, logger output.LoggerPort, cfg Config) *Planner {
	return &Planner{
		text:     text,
		markdown: htmlclean.NewMarkdownRenderer(),
		logger:   logger.WithField("component", "recon_planner"),
		cfg:      cfg,
	}
}

func (p *Planner) Plan(ctx context.Context, snap *entity.PageSnapshot, assessment entity.PaginationAssessment, goal string) (string, error) {
	excerpt, err := p.markdown.Render(snap.DOMExcerpt, snap.URL, p.cfg.ExcerptChars)
	if err != nil {
		excerpt = htmlclean.Truncate(snap.DOMExcerpt, p.cfg.ExcerptChars)
	}

	pagination := string(assessment.Type)
	if assessment.Chosen != nil {
		pagination = fmt.Sprintf("%s (control %q)", assessment.Type, assessment.Chosen.Text)
	}

	prompt, err := prompts.Render("recon", prompts.ReconPrompt, prompts.ReconPromptData{
		Goal:       goal,
		URL:        snap.URL,
		Pagination: pagination,
		Excerpt:    excerpt,
	})
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.text.Complete(callCtx, output.CompletionRequest{
		Messages:    []entity.Message{{Role: entity.RoleUser, Content: prompt}},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", &entity.CollaboratorError{Collaborator: "text:recon", Err: err}
	}

	plan := strings.TrimSpace(resp.Text)
	p.logger.Info("Reconnaissance plan ready", "len", len(plan))
	return plan, nil
}
