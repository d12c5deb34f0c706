package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/plus3/deltasync/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "warn", "text")
	require.NoError(t, err)

	adapter := logging.NewSlog(logger)
	adapter.Info("hidden")
	adapter.Warn("entity is missing", "entity", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "entity is missing")
	assert.Contains(t, out, "entity=42")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := logging.New(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)

	_, err = logging.New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecorder(t *testing.T) {
	rec := logging.NewRecorder()
	rec.Warn("entity is missing", "entity", 7)
	rec.Debug("sync component has been destroyed")
	rec.Warn("unknown component", "component", 99)

	assert.Equal(t, 2, rec.Count("warn", ""))
	assert.Equal(t, 1, rec.Count("", "destroyed"))
	assert.Equal(t, "warn: entity is missing entity=7", rec.Entries()[0].String())

	rec.Reset()
	assert.Empty(t, rec.Entries())
}
