package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json with component", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer := NewWithWriter(&buf, Options{Level: slog.LevelInfo, Format: "json", Component: "rabbitrpc"})
		defer closer.Close()

		logger.Debug("hidden")
		logger.Info("rpc server consuming", "queue", "rpc.echo")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "rpc server consuming", entry["msg"])
		assert.Equal(t, "rabbitrpc", entry["component"])
		assert.Equal(t, "rpc.echo", entry["queue"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := NewWithWriter(&buf, Options{Level: slog.LevelDebug, Format: "text"})

		logger.Debug("visible")
		assert.Contains(t, buf.String(), "level=DEBUG msg=visible")
	})

	t.Run("copies to rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rabbitrpc.log")
		var buf bytes.Buffer
		logger, closer := NewWithWriter(&buf, Options{Format: "json", File: path})

		logger.Info("to both")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to both")
		assert.Contains(t, buf.String(), "to both")
	})
}
