package output

import (
	"context"
	"errors"

	"listing-agent/internal/domain/entity"
)

var ErrRunNotFound = errors.New("run not found")

type RunStore interface {
	SaveRun(ctx context.Context, report *entity.RunReport) error
	// GetRun returns ErrRunNotFound for unknown ids.
	GetRun(ctx context.Context, runID string) (*entity.RunReport, error)
	Close() error
}
