package sensor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptReader_Success(t *testing.T) {
	reader := newScriptReader(slog.Default())

	v, ok := reader(context.Background(), Params{"script": "echo hello"})
	require.True(t, ok)
	assert.Equal(t, "hello", v, "stdout must be trimmed")
}

func TestScriptReader_TrimsWhitespace(t *testing.T) {
	reader := newScriptReader(slog.Default())

	v, ok := reader(context.Background(), Params{"script": "printf '  spaced out \\n'"})
	require.True(t, ok)
	assert.Equal(t, "spaced out", v)
}

func TestScriptReader_LegacyScriptPathParam(t *testing.T) {
	reader := newScriptReader(slog.Default())

	v, ok := reader(context.Background(), Params{"script_path": "echo legacy"})
	require.True(t, ok)
	assert.Equal(t, "legacy", v)
}

func TestScriptReader_NonzeroExit(t *testing.T) {
	reader := newScriptReader(slog.Default())

	_, ok := reader(context.Background(), Params{"script": "exit 3"})
	assert.False(t, ok)
}

func TestScriptReader_NonexistentCommand(t *testing.T) {
	reader := newScriptReader(slog.Default())

	_, ok := reader(context.Background(), Params{"script": "/no/such/binary-at-all"})
	assert.False(t, ok)
}

func TestScriptReader_Timeout(t *testing.T) {
	reader := newScriptReader(slog.Default())

	start := time.Now()
	_, ok := reader(context.Background(), Params{
		"script":  "sleep 10",
		"timeout": float64(1),
	})
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptReader_MissingScript(t *testing.T) {
	reader := newScriptReader(slog.Default())

	_, ok := reader(context.Background(), Params{})
	assert.False(t, ok)
}
