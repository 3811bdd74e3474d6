// Package wire 定義 client 與 server 之間的固定長度二進位紀錄。
// 沒有長度前綴或分隔符：紀錄本身的大小就是 framing，兩端必須使用相同佈局。
// 佈局等同 amd64 上的 C struct（little-endian，含對齊 padding）。
package wire

import "fmt"

// Command 為請求命令代碼。
type Command int32

const (
	CmdQuit      Command = 0
	CmdOpen      Command = 1
	CmdClose     Command = 2
	CmdDeposit   Command = 3
	CmdWithdraw  Command = 4
	CmdBalance   Command = 5
	CmdStatement Command = 6
)

func (c Command) String() string {
	switch c {
	case CmdQuit:
		return "QUIT"
	case CmdOpen:
		return "OPEN"
	case CmdClose:
		return "CLOSE"
	case CmdDeposit:
		return "DEPOSIT"
	case CmdWithdraw:
		return "WITHDRAW"
	case CmdBalance:
		return "BALANCE"
	case CmdStatement:
		return "STATEMENT"
	default:
		return fmt.Sprintf("Command(%d)", int32(c))
	}
}

// Status 為回應狀態碼。
type Status int32

const (
	StatusOK      Status = 0
	StatusError   Status = -1 // 帳戶不存在、PIN 錯誤、帳本已滿、未知命令
	StatusMinAmt  Status = -2 // 會跌破最低餘額
	StatusInvalid Status = -3 // 金額或參數不符規則
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusMinAmt:
		return "MIN_AMT"
	case StatusInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// 帳戶類型代碼
const (
	TypeSavings  int32 = 1
	TypeChecking int32 = 2
)

// 交易類型代碼
const (
	TxDeposit  byte = 'D'
	TxWithdraw byte = 'W'
)

const (
	NameSize         = 40
	NationalIDSize   = 20
	MessageSize      = 256
	TransactionSlots = 5

	RequestSize  = 80
	ResponseSize = 400
)
