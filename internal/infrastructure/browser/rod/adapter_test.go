package rod

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Headless)
	assert.Equal(t, time.Duration(defaultSlowMotion), cfg.SlowMotion)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.False(t, cfg.NoSandbox, "Should be secure by default")
	assert.False(t, cfg.DisableSecurityFeatures, "Should be secure by default")
	assert.True(t, cfg.Stealth)
}

func TestEncodeScreenshot_Resize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2048, 512))
	for x := 0; x < 2048; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	shot, err := encodeScreenshot(buf.Bytes(), 1024)
	require.NoError(t, err)

	assert.Equal(t, 1024, shot.Width)
	assert.Equal(t, 256, shot.Height)
	assert.Equal(t, "jpeg", shot.Format)
	assert.Equal(t, "image/jpeg", shot.MimeType())
}

func TestEncodeScreenshot_Invalid(t *testing.T) {
	_, err := encodeScreenshot([]byte("not an image"), 1024)
	assert.ErrorContains(t, err, "image decode failed")
}

// newTestAdapter starts headless Chrome, skipping when none is available.
func newTestAdapter(t *testing.T) *BrowserAdapter {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser test in short mode")
	}

	cfg := DefaultConfig()
	cfg.NoSandbox = true
	cfg.Timeout = 3 * time.Second
	cfg.NavigationTimeout = 10 * time.Second

	adapter, err := NewBrowserAdapter(context.Background(), cfg)
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	t.Cleanup(adapter.Close)
	return adapter
}

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBrowserAdapter_NavigateAndSnapshot(t *testing.T) {
	adapter := newTestAdapter(t)
	server := serve(t, ListingHTML)
	ctx := context.Background()

	require.NoError(t, adapter.Navigate(ctx, server.URL))

	url, err := adapter.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/", url)

	title, err := adapter.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Companies", title)

	html, err := adapter.DOMSnapshot(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, html, "Acme Corp")

	short, err := adapter.DOMSnapshot(ctx, 40)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(short, "<body"))
	assert.Contains(t, short, "truncated")
}

func TestBrowserAdapter_QueryCandidatesAndClick(t *testing.T) {
	adapter := newTestAdapter(t)
	server := serve(t, ListingHTML)
	ctx := context.Background()

	require.NoError(t, adapter.Navigate(ctx, server.URL))

	candidates, err := adapter.QueryCandidates(ctx)
	require.NoError(t, err)

	var texts []string
	nextID := ""
	for i, c := range candidates {
		texts = append(texts, c.Text)
		assert.NotEmpty(t, c.ID)
		if i > 0 {
			assert.Greater(t, c.Index, candidates[i-1].Index)
		}
		if c.Text == "Next" {
			nextID = c.ID
			assert.Equal(t, "button", c.Tag)
			assert.Contains(t, c.ClassID, "next")
		}
	}
	assert.Contains(t, texts, "1")
	assert.Contains(t, texts, "2")
	assert.NotContains(t, texts, "Hidden")
	require.NotEmpty(t, nextID)

	again, err := adapter.QueryCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, again, len(candidates))
	assert.Equal(t, candidates[0].ID, again[0].ID, "ids stay stable across scans")

	ok, err := adapter.Click(ctx, nextID)
	require.NoError(t, err)
	assert.True(t, ok)

	html, err := adapter.DOMSnapshot(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, html, "Initech")

	ok, err = adapter.Click(ctx, "pgx-does-not-exist")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBrowserAdapter_ScrollGrowsPage(t *testing.T) {
	adapter := newTestAdapter(t)
	server := serve(t, ScrollableHTML)
	ctx := context.Background()

	require.NoError(t, adapter.Navigate(ctx, server.URL))

	before, err := adapter.ScrollMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, before.ScrollY)
	assert.Positive(t, before.ViewportHeight)

	require.NoError(t, adapter.ScrollBy(ctx, 0, 200))
	mid, err := adapter.ScrollMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, mid.ScrollY)

	require.NoError(t, adapter.ScrollToBottom(ctx))
	time.Sleep(200 * time.Millisecond)

	after, err := adapter.ScrollMetrics(ctx)
	require.NoError(t, err)
	assert.Greater(t, after.ScrollHeight, before.ScrollHeight)
}

func TestBrowserAdapter_Screenshot(t *testing.T) {
	adapter := newTestAdapter(t)
	server := serve(t, ListingHTML)
	ctx := context.Background()

	require.NoError(t, adapter.Navigate(ctx, server.URL))

	shot, err := adapter.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot.Data)
	assert.LessOrEqual(t, shot.Width, 1024)
}

func TestBrowserAdapter_ClosedState(t *testing.T) {
	adapter := newTestAdapter(t)

	assert.True(t, adapter.IsReady())
	adapter.Close()
	assert.False(t, adapter.IsReady())
	adapter.Close()

	err := adapter.Navigate(context.Background(), "about:blank")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = adapter.Click(context.Background(), "pgx-1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBrowserAdapter_CancelledContext(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.DOMSnapshot(ctx, 0)
	assert.Error(t, err)
}
