package entity

import "time"

type StopReason string

const (
	StopCompleted        StopReason = "completed"
	StopNoMorePagination StopReason = "no_more_pagination"
	StopLoopDetected     StopReason = "loop_detected"
	StopMaxPagesReached  StopReason = "max_pages_reached"
	StopAborted          StopReason = "aborted"
)

// RunState is owned by a single orchestrator run and passed explicitly
// to the components that read or update it.
type RunState struct {
	VisitedURLs               map[string]struct{}
	ContentHashes             map[string]struct{}
	LastHash                  string
	ConsecutiveDuplicateCount int
	ConsecutiveFailureCount   int
	PageResults               []PageResult
}

func NewRunState() *RunState {
	return &RunState{
		VisitedURLs:   make(map[string]struct{}),
		ContentHashes: make(map[string]struct{}),
	}
}

func (s *RunState) NextPageIndex() int {
	return len(s.PageResults) + 1
}

type RunReport struct {
	RunID          string             `json:"run_id"`
	URL            string             `json:"url"`
	Goal           string             `json:"goal"`
	PagesProcessed int                `json:"pages_processed"`
	Records        []ExtractionRecord `json:"records"`
	Pages          []PageResult       `json:"pages"`
	StoppedReason  StopReason         `json:"stopped_reason"`
	Plan           string             `json:"plan,omitempty"`
	Error          string             `json:"error,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}
