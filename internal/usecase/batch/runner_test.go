package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	active  *int32
	peak    *int32
	release func()
}

func (s stubRunner) Run(ctx context.Context, req input.RunRequest) (*entity.RunReport, error) {
	n := atomic.AddInt32(s.active, 1)
	defer atomic.AddInt32(s.active, -1)
	for {
		p := atomic.LoadInt32(s.peak)
		if n <= p || atomic.CompareAndSwapInt32(s.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	report := &entity.RunReport{URL: req.URL, StoppedReason: entity.StopCompleted}
	if strings.Contains(req.URL, "broken") {
		report.StoppedReason = entity.StopAborted
		return report, entity.ErrAborted
	}
	if strings.Contains(req.URL, "panic") {
		panic("driver crashed")
	}
	return report, nil
}

func TestRunAll_IsolatesFailures(t *testing.T) {
	var active, peak int32
	var mu sync.Mutex
	released := 0

	factory := func(ctx context.Context) (*Session, error) {
		return &Session{
			Runner: stubRunner{active: &active, peak: &peak},
			Release: func() {
				mu.Lock()
				released++
				mu.Unlock()
			},
		}, nil
	}

	reqs := []input.RunRequest{
		{URL: "https://a.example"},
		{URL: "https://broken.example"},
		{URL: "https://panic.example"},
		{URL: "https://b.example"},
	}

	results := New(factory, 2, logger.NewNopLogger()).RunAll(context.Background(), reqs)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, entity.StopCompleted, results[0].Report.StoppedReason)

	assert.ErrorIs(t, results[1].Err, entity.ErrAborted)
	assert.Equal(t, entity.StopAborted, results[1].Report.StoppedReason)

	assert.ErrorContains(t, results[2].Err, "panicked")

	assert.NoError(t, results[3].Err)
	assert.Equal(t, "https://b.example", results[3].Request.URL)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 4, released)
}

func TestRunAll_SessionFailure(t *testing.T) {
	boom := errors.New("chrome not found")
	factory := func(ctx context.Context) (*Session, error) { return nil, boom }

	results := New(factory, 0, logger.NewNopLogger()).RunAll(context.Background(), []input.RunRequest{{URL: "https://a.example"}})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Nil(t, results[0].Report)
}

func TestRunAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opened := 0
	factory := func(ctx context.Context) (*Session, error) {
		opened++
		return nil, errors.New("unexpected")
	}

	results := New(factory, 1, logger.NewNopLogger()).RunAll(ctx, []input.RunRequest{{URL: "https://a.example"}})

	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Zero(t, opened)
}
