package trisum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	l.WithStrategy(StrategyFiltered).WithPhase(PhaseProbe).WithWorker(3).Info("hello")
	l.LogPhase(ctx, PhaseBuild, 4, 16, time.Millisecond, nil)
	l.LogPhase(ctx, PhaseBuild, 4, 16, time.Millisecond, errors.New("boom"))
	l.LogCheckpoint(ctx, "index-x.tsck", 42, nil)
	l.LogCheckpoint(ctx, "", 0, errors.New("disk full"))
	l.LogResume(ctx, "latest", true)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 6)

	assert.Equal(t, "filtered", lines[0]["strategy"])
	assert.Equal(t, "probe", lines[0]["phase"])
	assert.EqualValues(t, 3, lines[0]["worker"])

	assert.Equal(t, "phase completed", lines[1]["msg"])
	assert.EqualValues(t, 16, lines[1]["items"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, "boom", lines[2]["error"])

	assert.Equal(t, "checkpoint saved", lines[3]["msg"])
	assert.Equal(t, "WARN", lines[4]["level"])
	assert.Equal(t, "latest", lines[5]["checkpoint"])
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
