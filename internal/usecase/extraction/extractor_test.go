package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/logger"
	"listing-agent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeListing = `<html><body><ul><li>Acme Corp — robots</li></ul></body></html>`

func newExtractor(text output.TextGenerator, vision output.VisionGenerator, screens output.Screenshotter) *Extractor {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	return New(text, vision, screens, nil, logger.NewNopLogger(), cfg)
}

func snapshot(html, excerpt string) *entity.PageSnapshot {
	return &entity.PageSnapshot{URL: "https://example.com/companies", HTML: html, DOMExcerpt: excerpt}
}

func TestExtract_HeuristicOnly(t *testing.T) {
	ex := newExtractor(nil, nil, nil)

	got, err := ex.Extract(context.Background(), snapshot(acmeListing, ""), "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceDomHeuristic, got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Acme Corp", got.Records[0].Name)
}

func TestExtract_RefineWins(t *testing.T) {
	text := &testutil.FakeText{Replies: []string{`[{"name":"Acme Corp","context":null}]`}}
	ex := newExtractor(text, nil, nil)

	got, err := ex.Extract(context.Background(), snapshot(acmeListing, "<ul><li>Acme Corp — robots</li></ul>"), "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceLlmRefine, got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Acme Corp", got.Records[0].Name)
	assert.Nil(t, got.Records[0].Context)

	require.Equal(t, 1, text.Calls())
	req := text.Requests[0]
	assert.Equal(t, 768, req.MaxTokens)
	assert.Zero(t, req.Temperature)
	assert.Contains(t, req.Messages[1].Content, "1. Acme Corp — robots")
}

func TestExtract_MalformedRefineKeepsHeuristic(t *testing.T) {
	text := &testutil.FakeText{Replies: []string{"Sure! The companies are Acme and more."}}
	ex := newExtractor(text, nil, nil)

	got, err := ex.Extract(context.Background(), snapshot(acmeListing, ""), "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceDomHeuristic, got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Acme Corp", got.Records[0].Name)
	assert.Equal(t, "robots", got.Records[0].ContextText())
	assert.Zero(t, got.CollaboratorErrors)
}

func TestExtract_CollaboratorErrorKeepsHeuristic(t *testing.T) {
	text := &testutil.FakeText{Err: errors.New("503 upstream")}
	ex := newExtractor(text, nil, nil)

	got, err := ex.Extract(context.Background(), snapshot(acmeListing, ""), "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceDomHeuristic, got.Source)
	assert.Equal(t, 1, got.CollaboratorErrors)
	assert.Equal(t, "error", got.Trace[len(got.Trace)-1].Outcome)
	assert.Equal(t, 3, text.Calls())
}

func TestExtract_TransientTextFailureRetried(t *testing.T) {
	calls := 0
	text := &testutil.FakeText{Respond: func(output.CompletionRequest) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503 upstream")
		}
		return `[{"name":"Acme Corp"}]`, nil
	}}
	ex := newExtractor(text, nil, nil)

	snap := snapshot(`<html><body><p>Acme Corp is listed here.</p></body></html>`, "<p>Acme Corp is listed here.</p>")
	got, err := ex.Extract(context.Background(), snap, "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceLlmDom, got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Acme Corp", got.Records[0].Name)
	assert.Zero(t, got.CollaboratorErrors)
	assert.Equal(t, 2, text.Calls())
}

func TestExtract_TransientVisionFailureRetried(t *testing.T) {
	vision := &testutil.FakeVision{
		Reply:    `[{"name":"Umbrella Corp"}]`,
		Err:      errors.New("timeout"),
		Failures: 2,
	}
	driver := testutil.NewFakeDriver(testutil.FakePage{URL: "https://example.com"})
	ex := newExtractor(nil, vision, driver)

	got, err := ex.Extract(context.Background(), snapshot(`<html><body><canvas></canvas></body></html>`, ""), "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceVisionFallback, got.Source)
	require.Len(t, got.Records, 1)
	assert.Len(t, vision.Requests, 3)
	assert.Zero(t, got.CollaboratorErrors)
}

func TestExtract_LlmFromDOM(t *testing.T) {
	text := &testutil.FakeText{Replies: []string{`[{"name":"Globex","context":"energy"},{"name":"Initech"}]`}}
	ex := newExtractor(text, nil, nil)

	snap := snapshot(`<html><body><p>Globex and Initech are listed.</p></body></html>`, "<p>Globex and Initech are listed.</p>")
	got, err := ex.Extract(context.Background(), snap, "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceLlmDom, got.Source)
	assert.Len(t, got.Records, 2)
	assert.Contains(t, text.Requests[0].Messages[1].Content, "Globex and Initech are listed.")
}

func TestExtract_VisionFallbackWithReformat(t *testing.T) {
	text := &testutil.FakeText{Replies: []string{
		`[]`,
		`[{"name":"Umbrella Corp","context":"pharma"}]`,
	}}
	vision := &testutil.FakeVision{Reply: "I can see one company: Umbrella Corp (pharma)."}
	driver := testutil.NewFakeDriver(testutil.FakePage{URL: "https://example.com"})
	ex := newExtractor(text, vision, driver)

	snap := snapshot(`<html><body><canvas></canvas></body></html>`, "<canvas></canvas>")
	got, err := ex.Extract(context.Background(), snap, "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceVisionFallback, got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Umbrella Corp", got.Records[0].Name)
	require.Len(t, vision.Requests, 1)
	assert.Equal(t, "image/jpeg", vision.Requests[0].MimeType)
	assert.Equal(t, 2, text.Calls())
}

func TestExtract_NothingFound(t *testing.T) {
	ex := newExtractor(nil, nil, nil)

	got, err := ex.Extract(context.Background(), snapshot(`<body><p>empty</p></body>`, ""), "companies", 10)
	require.NoError(t, err)

	assert.Equal(t, entity.SourceNone, got.Source)
	assert.Empty(t, got.Records)
}

func TestExtract_TruncatesToMaxResults(t *testing.T) {
	html := `<body><ul><li>Acme Corp</li><li>Globex</li><li>Initech</li><li>Hooli</li></ul></body>`
	ex := newExtractor(nil, nil, nil)

	got, err := ex.Extract(context.Background(), snapshot(html, ""), "companies", 2)
	require.NoError(t, err)

	require.Len(t, got.Records, 2)
	assert.Equal(t, "Acme Corp", got.Records[0].Name)
	assert.Equal(t, "Globex", got.Records[1].Name)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	text := &testutil.FakeText{Respond: func(output.CompletionRequest) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	ex := newExtractor(text, nil, nil)

	got, err := ex.Extract(ctx, snapshot(acmeListing, ""), "companies", 10)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, got)
	assert.Equal(t, entity.SourceDomHeuristic, got.Source)
}
