package output

import (
	"context"

	"listing-agent/internal/domain/entity"
)

type TextGenerator interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

type VisionGenerator interface {
	Describe(ctx context.Context, req VisionRequest) (*Completion, error)
}

type CompletionRequest struct {
	Messages    []entity.Message
	MaxTokens   int
	Temperature float32
}

type VisionRequest struct {
	Image     []byte
	MimeType  string
	Prompt    string
	MaxTokens int
}

type Completion struct {
	Text  string
	Model string
}
