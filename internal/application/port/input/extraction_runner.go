package input

import (
	"context"

	"listing-agent/internal/domain/entity"
)

type RunRequest struct {
	URL             string `json:"url" yaml:"url"`
	Goal            string `json:"goal" yaml:"goal"`
	MaxPages        int    `json:"max_pages" yaml:"max_pages"`
	ForcePagination bool   `json:"force_pagination" yaml:"force_pagination"`
	Reconnaissance  bool   `json:"reconnaissance" yaml:"reconnaissance"`
}

// ExtractionRunner drives one paginated extraction run. The returned
// report is non-nil even when err is set and holds the partial results.
type ExtractionRunner interface {
	Run(ctx context.Context, req RunRequest) (*entity.RunReport, error)
}

type BatchResult struct {
	Request RunRequest
	Report  *entity.RunReport
	Err     error
}

type BatchRunner interface {
	RunAll(ctx context.Context, reqs []RunRequest) []BatchResult
}
