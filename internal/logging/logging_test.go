package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.log")
	l, err := New(Options{Level: "info", Encoding: "json", File: path})
	require.NoError(t, err)

	l.Info("ledger loaded", zap.Int("accounts", 3))
	l.Debug("not written at info level")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"ledger loaded"`)
	assert.Contains(t, string(data), `"accounts":3`)
	assert.NotContains(t, string(data), "not written")
}

func TestMustFallsBack(t *testing.T) {
	l := Must(Options{Encoding: "no-such-encoding"})
	require.NotNil(t, l)
}
