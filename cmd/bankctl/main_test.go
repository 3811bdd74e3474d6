package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"tcpbank/internal/bank"
	"tcpbank/internal/config"
	"tcpbank/internal/server"
)

func init() {
	// ExitCoder 錯誤預設會呼叫 os.Exit
	cli.OsExiter = func(int) {}
}

func startServer(t *testing.T) string {
	t.Helper()
	b := bank.New(bank.WithPINSource(func() int { return 1357 }))
	srv, err := server.New(config.Config{Host: "127.0.0.1", MaxConns: 4, ConnQueue: 4, ShutdownGrace: time.Second}, b, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String()
}

func run(t *testing.T, addr string, args ...string) error {
	t.Helper()
	return newApp().Run(append([]string{"bankctl", "--addr", addr, "--timeout", "3s"}, args...))
}

func TestCommandsAgainstServer(t *testing.T) {
	addr := startServer(t)
	acct := []string{"--account", "100001", "--pin", "1357"}

	require.NoError(t, run(t, addr, "open", "--name", "Ann", "--nat-id", "A1", "--type", "2"))
	require.NoError(t, run(t, addr, append([]string{"deposit", "--amount", "500"}, acct...)...))
	require.NoError(t, run(t, addr, append([]string{"withdraw", "--amount", "500"}, acct...)...))
	require.NoError(t, run(t, addr, append([]string{"balance"}, acct...)...))

	out := filepath.Join(t.TempDir(), "st.xlsx")
	require.NoError(t, run(t, addr, append([]string{"statement", "--export", out}, acct...)...))
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())

	// 提款會跌破最低餘額：exit code 2
	err = run(t, addr, append([]string{"withdraw", "--amount", "500"}, acct...)...)
	require.Error(t, err)
	coder, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	assert.Equal(t, 2, coder.ExitCode())
	assert.Contains(t, err.Error(), "MIN_AMT")

	require.NoError(t, run(t, addr, append([]string{"close"}, acct...)...))
	err = run(t, addr, append([]string{"balance"}, acct...)...)
	assert.Error(t, err)
}
