// internal/client/client.go
//
// Package client 為二進位協定的同步 client：一條連線、一次一筆請求。
// 非 OK 的狀態碼轉成 *StatusError，呼叫端可用 errors.As 取出狀態與訊息。
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tcpbank/internal/retry"
	"tcpbank/internal/wire"
)

// ErrClosed 表示連線已被 Close 或 Quit 結束。
var ErrClosed = errors.New("client: connection closed")

// StatusError 為 server 回覆的非 OK 狀態。
type StatusError struct {
	Command wire.Command
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Command, e.Message, e.Status)
}

// Account 為開戶結果。
type Account struct {
	Number  int32
	PIN     int32
	Balance int32
	Message string
}

type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	closed  bool
	log     *zap.Logger
}

// Dial 以退避重試建立連線，直到成功或 ctx 取消。
func Dial(ctx context.Context, addr string, cfg retry.Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var conn net.Conn
	var d net.Dialer
	err := retry.Do(ctx, cfg, log, "dial "+addr, func() error {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, timeout: 10 * time.Second, log: log}, nil
}

// SetTimeout 設定每筆請求的讀寫期限，0 代表不限。
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Do 送出一筆請求並等待回應。只有傳輸錯誤會回傳 error，狀態碼交由呼叫端判斷。
func (c *Client) Do(req wire.Request) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return wire.Response{}, ErrClosed
	}
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return wire.Response{}, err
		}
	}
	if err := wire.WriteRequest(c.conn, req); err != nil {
		return wire.Response{}, errors.Wrapf(err, "send %s", req.Command)
	}
	resp, err := wire.ReadResponse(c.conn)
	if err != nil {
		return wire.Response{}, errors.Wrapf(err, "receive %s", req.Command)
	}
	c.log.Debug("response received",
		zap.Stringer("command", req.Command),
		zap.Stringer("status", resp.Status))
	return resp, nil
}

// call 為 Do 加上狀態碼檢查。
func (c *Client) call(req wire.Request) (wire.Response, error) {
	resp, err := c.Do(req)
	if err != nil {
		return resp, err
	}
	if resp.Status != wire.StatusOK {
		return resp, &StatusError{Command: req.Command, Status: resp.Status, Message: resp.MessageString()}
	}
	return resp, nil
}

// Open 開立新帳戶；accountType 為 wire.TypeSavings 或 wire.TypeChecking。
func (c *Client) Open(name, nationalID string, accountType int32) (Account, error) {
	req := wire.Request{Command: wire.CmdOpen, AccountType: accountType}
	req.SetName(name)
	req.SetNationalID(nationalID)
	resp, err := c.call(req)
	if err != nil {
		return Account{}, err
	}
	return Account{
		Number:  resp.AccountNumber,
		PIN:     resp.PIN,
		Balance: resp.Balance,
		Message: resp.MessageString(),
	}, nil
}

// CloseAccount 銷戶。
func (c *Client) CloseAccount(number, pin int32) error {
	_, err := c.call(wire.Request{Command: wire.CmdClose, AccountNumber: number, PIN: pin})
	return err
}

// Deposit 回傳存款後餘額。
func (c *Client) Deposit(number, pin, amount int32) (int32, error) {
	resp, err := c.call(wire.Request{Command: wire.CmdDeposit, AccountNumber: number, PIN: pin, Amount: amount})
	return resp.Balance, err
}

// Withdraw 回傳提款後餘額。
func (c *Client) Withdraw(number, pin, amount int32) (int32, error) {
	resp, err := c.call(wire.Request{Command: wire.CmdWithdraw, AccountNumber: number, PIN: pin, Amount: amount})
	return resp.Balance, err
}

func (c *Client) Balance(number, pin int32) (int32, error) {
	resp, err := c.call(wire.Request{Command: wire.CmdBalance, AccountNumber: number, PIN: pin})
	return resp.Balance, err
}

// Statement 依時間由舊到新回傳最近的交易。
func (c *Client) Statement(number, pin int32) ([]wire.Transaction, error) {
	resp, err := c.call(wire.Request{Command: wire.CmdStatement, AccountNumber: number, PIN: pin})
	if err != nil {
		return nil, err
	}
	return resp.Statement(), nil
}

// Quit 通知 server 結束連線並關閉本端；已關閉時不做事。
func (c *Client) Quit() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	_, err := c.call(wire.Request{Command: wire.CmdQuit})
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close 關閉連線；可重複呼叫。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
