package output

import (
	"time"

	"listing-agent/internal/domain/entity"
)

type MetricsPort interface {
	PageProcessed(source entity.ExtractionSource, records int)
	RunFinished(reason entity.StopReason, duration time.Duration)
	CollaboratorCall(collaborator string, err error, duration time.Duration)
	Navigation(strategy string, ok bool)
}

type NopMetrics struct{}

func (NopMetrics) PageProcessed(entity.ExtractionSource, int) {}
func (NopMetrics) RunFinished(entity.StopReason, time.Duration) {}
func (NopMetrics) CollaboratorCall(string, error, time.Duration) {}
func (NopMetrics) Navigation(string, bool) {}
