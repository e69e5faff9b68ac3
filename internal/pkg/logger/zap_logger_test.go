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

func TestZapLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l := NewZapLogger(path, true)

	l.Info("router", "decision", map[string]interface{}{"decision": "HIT", "score": 0.82})
	l.Debug("router", "debug is below file level", nil)
	_ = l.Sync()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}

	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "decision", lines[0]["message"])
	assert.Equal(t, "router", lines[0]["module"])
	details := lines[0]["details"].(map[string]interface{})
	assert.Equal(t, "HIT", details["decision"])
}

func TestZapLogger_ErrorRef(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core))

	l.Error("fallback", "generate failed", map[string]interface{}{"error": "boom"})
	l.Warn("fallback", "nil details", nil)

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "generate failed", first.Message)
	assert.Equal(t, "boom", first.ContextMap()["error_ref"])
	assert.Equal(t, "fallback", first.ContextMap()["module"])
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("x", "y", nil)
		_ = l.Sync()
	})
}
