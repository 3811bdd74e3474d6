// internal/server/dispatcher.go
//
// 將一筆 wire.Request 轉成帳本操作，再把結果與錯誤對應成 wire.Response。
// 每個命令一個 handler，登錄在 command table；未登錄的命令一律回覆 ERROR。
package server

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tcpbank/internal/bank"
	"tcpbank/internal/wire"
)

// Ledger 為 dispatcher 需要的帳本操作；*bank.Bank 即為實作。
type Ledger interface {
	Open(name, nationalID string, t bank.AccountType) (bank.Account, error)
	Close(number int64, pin int) error
	Deposit(number int64, pin int, amount int64) (bank.Account, error)
	Withdraw(number int64, pin int, amount int64) (bank.Account, error)
	Balance(number int64, pin int) (int64, error)
	Statement(number int64, pin int) ([]bank.Transaction, error)
}

type handlerFunc func(req wire.Request) wire.Response

// Dispatcher 本身無狀態，可由所有 worker 共用。
type Dispatcher struct {
	ledger   Ledger
	log      *zap.Logger
	handlers map[wire.Command]handlerFunc
}

func NewDispatcher(l Ledger, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{ledger: l, log: log}
	d.handlers = map[wire.Command]handlerFunc{
		wire.CmdOpen:      d.open,
		wire.CmdClose:     d.close,
		wire.CmdDeposit:   d.deposit,
		wire.CmdWithdraw:  d.withdraw,
		wire.CmdBalance:   d.balance,
		wire.CmdStatement: d.statement,
	}
	return d
}

// Handle 處理一筆請求。quit 為 true 時，呼叫端送出回應後應關閉連線。
func (d *Dispatcher) Handle(req wire.Request) (resp wire.Response, quit bool) {
	if req.Command == wire.CmdQuit {
		resp.Status = wire.StatusOK
		resp.SetMessage("Shutting Down...")
		return resp, true
	}
	h, ok := d.handlers[req.Command]
	if !ok {
		d.log.Warn("unknown command", zap.Stringer("command", req.Command))
		resp.Status = wire.StatusError
		resp.SetMessage("Unknown command")
		return resp, false
	}
	return h(req), false
}

// StatusFor 將帳本錯誤對應到狀態碼。
func StatusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusOK
	case errors.Is(err, bank.ErrMinBalance):
		return wire.StatusMinAmt
	case errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidType),
		errors.Is(err, bank.ErrInvalidName):
		return wire.StatusInvalid
	default:
		return wire.StatusError
	}
}

func (d *Dispatcher) open(req wire.Request) wire.Response {
	var resp wire.Response
	a, err := d.ledger.Open(req.NameString(), req.NationalIDString(), bank.AccountType(req.AccountType))
	resp.Status = StatusFor(err)
	switch {
	case err == nil:
		resp.AccountNumber = int32(a.Number)
		resp.PIN = int32(a.PIN)
		resp.Balance = int32(a.Balance)
		resp.SetMessage(fmt.Sprintf("Account created. Number=%d Pin=%04d Balance=%d", a.Number, a.PIN, a.Balance))
	case errors.Is(err, bank.ErrCapacity):
		resp.SetMessage("Failed to create account: Bank full")
	case errors.Is(err, bank.ErrInvalidType):
		resp.SetMessage("Failed to create account: Account type must be 1 (savings) or 2 (checking)")
	case errors.Is(err, bank.ErrInvalidName):
		resp.SetMessage("Failed to create account: Name is required")
	default:
		resp.SetMessage("Failed to create account: Bank full or error")
	}
	return resp
}

func (d *Dispatcher) close(req wire.Request) wire.Response {
	var resp wire.Response
	err := d.ledger.Close(int64(req.AccountNumber), int(req.PIN))
	resp.Status = StatusFor(err)
	resp.AccountNumber = req.AccountNumber
	switch {
	case err == nil:
		resp.SetMessage("Account closed successfully")
	case errors.Is(err, bank.ErrNotFound):
		resp.SetMessage("Failed to close account: Account not found or wrong PIN")
	default:
		resp.SetMessage("Failed to close account: " + err.Error())
	}
	return resp
}

func (d *Dispatcher) deposit(req wire.Request) wire.Response {
	var resp wire.Response
	a, err := d.ledger.Deposit(int64(req.AccountNumber), int(req.PIN), int64(req.Amount))
	resp.Status = StatusFor(err)
	resp.AccountNumber = req.AccountNumber
	switch {
	case err == nil:
		resp.Balance = int32(a.Balance)
		resp.SetMessage(fmt.Sprintf("Deposit successful. New balance: %d", a.Balance))
	case errors.Is(err, bank.ErrInvalidAmount):
		resp.SetMessage(fmt.Sprintf("Deposit rejected: Amount must be at least %d", bank.MinDeposit))
	case errors.Is(err, bank.ErrNotFound):
		resp.SetMessage("Deposit failed: Account not found or wrong PIN")
	default:
		resp.SetMessage("Deposit failed: " + err.Error())
	}
	return resp
}

func (d *Dispatcher) withdraw(req wire.Request) wire.Response {
	var resp wire.Response
	a, err := d.ledger.Withdraw(int64(req.AccountNumber), int(req.PIN), int64(req.Amount))
	resp.Status = StatusFor(err)
	resp.AccountNumber = req.AccountNumber
	switch {
	case err == nil:
		resp.Balance = int32(a.Balance)
		resp.SetMessage(fmt.Sprintf("Withdrawal successful. New balance: %d", a.Balance))
	case errors.Is(err, bank.ErrMinBalance):
		resp.SetMessage("Withdrawal rejected: Would break minimum balance")
	case errors.Is(err, bank.ErrInvalidAmount):
		resp.SetMessage(fmt.Sprintf("Withdrawal rejected: Must be >= %d and multiple of %d",
			bank.MinWithdraw, bank.MinWithdraw))
	case errors.Is(err, bank.ErrNotFound):
		resp.SetMessage("Withdrawal failed: Account not found or wrong PIN")
	default:
		resp.SetMessage("Withdrawal failed: " + err.Error())
	}
	return resp
}

func (d *Dispatcher) balance(req wire.Request) wire.Response {
	var resp wire.Response
	bal, err := d.ledger.Balance(int64(req.AccountNumber), int(req.PIN))
	resp.Status = StatusFor(err)
	resp.AccountNumber = req.AccountNumber
	if err != nil {
		resp.SetMessage("Balance inquiry failed: Account not found or wrong PIN")
		return resp
	}
	resp.Balance = int32(bal)
	resp.SetMessage(fmt.Sprintf("Balance: %d", bal))
	return resp
}

func (d *Dispatcher) statement(req wire.Request) wire.Response {
	var resp wire.Response
	txs, err := d.ledger.Statement(int64(req.AccountNumber), int(req.PIN))
	resp.Status = StatusFor(err)
	resp.AccountNumber = req.AccountNumber
	if err != nil {
		resp.SetMessage("Statement request failed: Account not found or wrong PIN")
		return resp
	}
	if len(txs) > wire.TransactionSlots {
		txs = txs[len(txs)-wire.TransactionSlots:]
	}
	for i, t := range txs {
		resp.Transactions[i] = wire.Transaction{
			Type:         byte(t.Kind),
			Amount:       int32(t.Amount),
			When:         t.Time.Unix(),
			BalanceAfter: int32(t.BalanceAfter),
		}
	}
	resp.TransactionCount = int32(len(txs))
	if n := len(txs); n > 0 {
		resp.Balance = int32(txs[n-1].BalanceAfter)
	}
	resp.SetMessage("Statement retrieved successfully")
	return resp
}
