package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerAdapter_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()

	log, err := NewLoggerAdapter("https://example.com/list?page=1", Config{Dir: dir, Level: "info"})
	require.NoError(t, err)

	log.WithField("component", "observer").Info("Snapshot captured", "candidates", 4)
	log.Debug("dropped by level")
	require.NoError(t, log.Close())

	files, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, filepath.Base(files[0]), "https___example_com_list_page_1")

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}

	require.Len(t, lines, 1)
	assert.Equal(t, "Snapshot captured", lines[0]["message"])
	assert.Equal(t, "observer", lines[0]["component"])
	assert.EqualValues(t, 4, lines[0]["candidates"])
}

func TestLoggerAdapter_WithFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewFromZap(zap.New(core))

	log.WithFields(map[string]any{"run_id": "r1", "page": 2}).Warn("Navigation failed")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Navigation failed", entry.Message)
	assert.Equal(t, "r1", entry.ContextMap()["run_id"])
	assert.EqualValues(t, 2, entry.ContextMap()["page"])
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "run", sanitize(""))
	assert.Equal(t, "a_b-c", sanitize("a b-c"))
	assert.Len(t, sanitize(string(make([]byte, 100))), 60)
}
