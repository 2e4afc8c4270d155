package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

var (
	_ output.TextGenerator   = (*OpenRouterAdapter)(nil)
	_ output.VisionGenerator = (*OpenRouterAdapter)(nil)
)

var ErrEmptyResponse = errors.New("no choices in response")

type OpenRouterAdapter struct {
	client      *openai.Client
	model       string
	visionModel string
	limiter     *rate.Limiter
	logger      output.LoggerPort
}

type Config struct {
	APIKey            string
	Model             string
	VisionModel       string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	HTTPTimeout       time.Duration
	Logger            output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:            apiKey,
		Model:             model,
		BaseURL:           "https://openrouter.ai/api/v1",
		RequestsPerSecond: 1,
		Burst:             2,
		HTTPTimeout:       90 * time.Second,
	}
}

type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.logger != nil {
		var size int
		if req.Body != nil {
			bodyBytes, _ := io.ReadAll(req.Body)
			size = len(bodyBytes)
			req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}
		t.logger.Debug("HTTP Request",
			"method", req.Method,
			"url", req.URL.String(),
			"body_bytes", size,
		)
	}

	started := time.Now()
	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP Response",
			"status", resp.Status,
			"statusCode", resp.StatusCode,
			"duration", time.Since(started),
		)
	}

	return resp, err
}

func NewOpenRouterAdapter(cfg Config) *OpenRouterAdapter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Logger != nil {
		transport = &loggingTransport{
			base:   http.DefaultTransport,
			logger: cfg.Logger,
		}
	}
	config.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.HTTPTimeout,
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}

	return &OpenRouterAdapter{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		visionModel: visionModel,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      cfg.Logger,
	}
}

func (a *OpenRouterAdapter) Complete(ctx context.Context, req output.CompletionRequest) (*output.Completion, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: temperature(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return a.completion(resp)
}

func (a *OpenRouterAdapter) Describe(ctx context.Context, req output.VisionRequest) (*output.Completion, error) {
	if len(req.Image) == 0 {
		return nil, errors.New("vision request without image")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	mime := req.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.visionModel,
		MaxTokens: req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("vision completion failed: %w", err)
	}

	return a.completion(resp)
}

// temperature keeps an explicit zero on the wire; go-openai omits a zero
// value and the provider would apply its own default.
func temperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func (a *OpenRouterAdapter) completion(resp openai.ChatCompletionResponse) (*output.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if a.logger != nil {
		a.logger.Debug("Completion received",
			"model", resp.Model,
			"finish_reason", resp.Choices[0].FinishReason,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
			"length", len(text),
		)
	}

	return &output.Completion{Text: text, Model: resp.Model}, nil
}

func convertMessages(messages []entity.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		result = append(result, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}
