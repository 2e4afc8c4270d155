package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/config"
	"listing-agent/internal/infrastructure/logger"
	"listing-agent/internal/testutil"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	color.NoColor = true

	settings := config.Defaults()
	settings.SettleDelay = 0
	settings.NavigationSettle = 0

	return Config{
		LLMBackend: BackendNone,
		Settings:   settings,
		DBPath:     filepath.Join(t.TempDir(), "runs.db"),
		Log:        logger.Config{Dir: t.TempDir(), Level: "info"},
	}
}

func TestNewContainer_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMBackend = "carrier-pigeon"

	_, err := NewContainer(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewContainer_Backends(t *testing.T) {
	for _, backend := range []string{BackendOpenRouter, BackendLangchain} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.LLMBackend = backend
			cfg.APIKey = "test-key"
			cfg.Model = "test-model"
			cfg.Vision = true

			c, err := NewContainer(context.Background(), cfg)
			require.NoError(t, err)
			defer c.Close()

			assert.NotNil(t, c.Text)
			assert.NotNil(t, c.Vision)
		})
	}
}

func TestPipeline_RunsAndPersists(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Text)
	assert.Nil(t, c.Vision)

	driver := testutil.NewFakeDriver(
		testutil.ListingPage("https://example.com/?page=1", []string{"Acme Corp", "Globex"}, true),
		testutil.ListingPage("https://example.com/?page=2", []string{"Initech", "Umbrella"}, false),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := c.pipeline(driver, driver).Run(ctx, input.RunRequest{
		URL:      "https://example.com/?page=1",
		Goal:     "list companies",
		MaxPages: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, entity.StopCompleted, report.StoppedReason)
	assert.Equal(t, 2, report.PagesProcessed)
	assert.Len(t, report.Records, 4)

	stored, err := c.Store.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.PagesProcessed, stored.PagesProcessed)

	mfs, err := c.Metrics.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
