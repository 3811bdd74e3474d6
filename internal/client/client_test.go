package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpbank/internal/bank"
	"tcpbank/internal/config"
	"tcpbank/internal/retry"
	"tcpbank/internal/server"
	"tcpbank/internal/wire"
)

func quickRetry() retry.Config {
	return retry.Config{Attempts: 3, InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2}
}

func startServer(t *testing.T) string {
	t.Helper()
	b := bank.New(bank.WithPINSource(func() int { return 2468 }))
	srv, err := server.New(config.Config{
		Host: "127.0.0.1", MaxConns: 8, ConnQueue: 8, ShutdownGrace: time.Second,
	}, b, nil)
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

func TestClientOperations(t *testing.T) {
	addr := startServer(t)
	c, err := Dial(context.Background(), addr, quickRetry(), nil)
	require.NoError(t, err)
	defer c.Close()

	acct, err := c.Open("Ann", "A123", wire.TypeChecking)
	require.NoError(t, err)
	assert.Equal(t, int32(2468), acct.PIN)
	assert.Equal(t, int32(1000), acct.Balance)
	assert.Contains(t, acct.Message, "Account created")

	bal, err := c.Deposit(acct.Number, acct.PIN, 1500)
	require.NoError(t, err)
	assert.Equal(t, int32(2500), bal)

	bal, err = c.Withdraw(acct.Number, acct.PIN, 1000)
	require.NoError(t, err)
	assert.Equal(t, int32(1500), bal)

	bal, err = c.Balance(acct.Number, acct.PIN)
	require.NoError(t, err)
	assert.Equal(t, int32(1500), bal)

	st, err := c.Statement(acct.Number, acct.PIN)
	require.NoError(t, err)
	require.Len(t, st, 3)
	assert.Equal(t, wire.TxWithdraw, st[2].Type)

	_, err = c.Withdraw(acct.Number, acct.PIN, 1000)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, wire.StatusMinAmt, se.Status)
	assert.Equal(t, wire.CmdWithdraw, se.Command)
	assert.Contains(t, se.Error(), "MIN_AMT")

	require.NoError(t, c.CloseAccount(acct.Number, acct.PIN))
	_, err = c.Balance(acct.Number, acct.PIN)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, wire.StatusError, se.Status)

	require.NoError(t, c.Quit())
	_, err = c.Balance(acct.Number, acct.PIN)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, c.Quit())
	assert.NoError(t, c.Close())
}

func TestDoReturnsRawStatus(t *testing.T) {
	addr := startServer(t)
	c, err := Dial(context.Background(), addr, quickRetry(), nil)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Do(wire.Request{Command: wire.Command(99)})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusError, resp.Status)
	assert.Equal(t, "Unknown command", resp.MessageString())
}

func TestDialRetriesThenFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, quickRetry(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestServerGoneMidSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// 讀完請求即斷線，不回覆
		_, _ = wire.ReadRequest(conn)
		_ = conn.Close()
	}()

	c, err := Dial(context.Background(), ln.Addr().String(), quickRetry(), nil)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Balance(1, 1)
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}
