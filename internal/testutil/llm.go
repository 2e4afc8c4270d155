package testutil

import (
	"context"
	"sync"

	"listing-agent/internal/application/port/output"
)

var (
	_ output.TextGenerator   = (*FakeText)(nil)
	_ output.VisionGenerator = (*FakeVision)(nil)
)

// FakeText answers with Respond when set, otherwise with Replies in order
// and Default once they run out.
type FakeText struct {
	mu       sync.Mutex
	Replies  []string
	Default  string
	Err      error
	Respond  func(req output.CompletionRequest) (string, error)
	Requests []output.CompletionRequest
}

func (f *FakeText) Complete(ctx context.Context, req output.CompletionRequest) (*output.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.Requests)
	f.Requests = append(f.Requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Respond != nil {
		text, err := f.Respond(req)
		if err != nil {
			return nil, err
		}
		return &output.Completion{Text: text, Model: "fake"}, nil
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if idx < len(f.Replies) {
		return &output.Completion{Text: f.Replies[idx], Model: "fake"}, nil
	}
	return &output.Completion{Text: f.Default, Model: "fake"}, nil
}

func (f *FakeText) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.Requests)
}

// FakeVision fails the first Failures calls with Err, then answers Reply.
// With Failures zero a non-nil Err fails every call.
type FakeVision struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Failures int
	Requests []output.VisionRequest
}

func (f *FakeVision) Describe(ctx context.Context, req output.VisionRequest) (*output.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)
	if f.Err != nil && (f.Failures == 0 || len(f.Requests) <= f.Failures) {
		return nil, f.Err
	}
	return &output.Completion{Text: f.Reply, Model: "fake-vision"}, nil
}
