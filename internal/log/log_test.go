package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, LevelInfo, "console")
	t.Cleanup(func() { Setup(nil, LevelInfo, "console") })

	Debug("hidden", "k", 1)
	Info("shown", "k", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "k=2")
}

func TestErrorAddsErrKey(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, LevelDebug, "json")
	t.Cleanup(func() { Setup(nil, LevelInfo, "console") })

	Error("fetch failed", errors.New("boom"), "dataset", "citas", "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetch failed", line["msg"])
	assert.Equal(t, "boom", line["err"])
	assert.Equal(t, "citas", line["dataset"])
	assert.Equal(t, "ERROR", line["level"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" Warn ":  LevelWarn,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
