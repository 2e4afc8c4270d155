// Package langchain serves the text and vision collaborators through any
// langchaingo model.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

var (
	_ output.TextGenerator   = (*Adapter)(nil)
	_ output.VisionGenerator = (*Adapter)(nil)
)

var ErrEmptyResponse = errors.New("model returned no choices")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Adapter struct {
	model  llms.Model
	name   string
	logger output.LoggerPort
}

func New(model llms.Model, name string, logger output.LoggerPort) *Adapter {
	return &Adapter{
		model:  model,
		name:   name,
		logger: logger.WithField("component", "langchain_llm"),
	}
}

// NewOpenAICompatible talks to any OpenAI-compatible endpoint.
func NewOpenAICompatible(cfg Config, logger output.LoggerPort) (*Adapter, error) {
	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}

	model, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain openai client: %w", err)
	}
	return New(model, cfg.Model, logger), nil
}

func (a *Adapter) Complete(ctx context.Context, req output.CompletionRequest) (*output.Completion, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, llms.TextParts(chatRole(m.Role), m.Content))
	}

	return a.generate(ctx, messages, req.MaxTokens, float64(req.Temperature))
}

func (a *Adapter) Describe(ctx context.Context, req output.VisionRequest) (*output.Completion, error) {
	if len(req.Image) == 0 {
		return nil, errors.New("vision request without image")
	}
	mime := req.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}

	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextContent{Text: req.Prompt},
			llms.BinaryPart(mime, req.Image),
		},
	}}

	return a.generate(ctx, messages, req.MaxTokens, 0)
}

func (a *Adapter) generate(ctx context.Context, messages []llms.MessageContent, maxTokens int, temperature float64) (*output.Completion, error) {
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	resp, err := a.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	a.logger.Debug("Completion received", "model", a.name, "stop_reason", resp.Choices[0].StopReason, "length", len(text))

	return &output.Completion{Text: text, Model: a.name}, nil
}

func chatRole(r entity.MessageRole) llms.ChatMessageType {
	switch r {
	case entity.RoleSystem:
		return llms.ChatMessageTypeSystem
	case entity.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
