// ABOUTME: Tests for telemetry bootstrap
// ABOUTME: Verifies rotating logger output and metric exporter lifecycle

package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingLogger_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatd.log")

	logger, closer, err := NewRotatingLogger(path, slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("server started", "addr", ":8080")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "server started", record["msg"])
	assert.Equal(t, ":8080", record["addr"])
}

func TestNewRotatingLogger_RespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.log")

	logger, closer, err := NewRotatingLogger(path, slog.LevelWarn)
	require.NoError(t, err)

	logger.Info("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	if err == nil {
		assert.Empty(t, data)
	}
}

func TestInitMetrics_ShutdownFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "chatd_metrics.log")

	shutdown, err := InitMetrics(context.Background(), path, "test")
	require.NoError(t, err)

	require.NoError(t, shutdown(context.Background()))

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}
