package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"tcpbank/internal/config"
)

func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	app := newApp()
	var (
		got  config.Config
		perr error
	)
	app.Action = func(c *cli.Context) error {
		got, perr = configFrom(c, config.FromEnv())
		return nil
	}
	require.NoError(t, app.Run(append([]string{"server"}, args...)))
	return got, perr
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, config.DefaultDataFile, cfg.DataFile)
	assert.Equal(t, config.DefaultShutdownGrace, cfg.ShutdownGrace)
}

func TestConfigPositionalPort(t *testing.T) {
	cfg, err := parse(t, "9000")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
}

func TestConfigFlags(t *testing.T) {
	cfg, err := parse(t, "-p", "7000", "--data-file", "/tmp/b.json", "--strict-persist", "--shutdown-grace", "2s", "--conn-queue", "0")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "/tmp/b.json", cfg.DataFile)
	assert.True(t, cfg.StrictPersist)
	assert.Equal(t, 2*time.Second, cfg.ShutdownGrace)
	assert.Zero(t, cfg.ConnQueue)
}

func TestConfigRejectsBadInput(t *testing.T) {
	for name, args := range map[string][]string{
		"not a number":   {"eighty"},
		"out of range":   {"70000"},
		"zero port flag": {"--port", "0"},
		"extra args":     {"9000", "9001"},
		"no accounts":    {"--max-accounts", "0"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parse(t, args...)
			assert.Error(t, err)
		})
	}
}
