// Package bank 定義核心領域模型與業務規則。
// 本檔定義 Account、Transaction 與固定容量的交易環狀緩衝區，不含任何傳輸或儲存細節。

package bank

import (
	"time"
	"unicode/utf8"
)

const (
	MinBalance   int64 = 1000 // 最低餘額
	MinDeposit   int64 = 500  // 單筆最低存款
	MinWithdraw  int64 = 500  // 提款最小單位（須為其倍數）
	HistoryDepth       = 5    // 每個帳戶保留的交易筆數

	// MaxBalance 受限於線路格式的 int32 欄位。
	MaxBalance int64 = 1<<31 - 1

	FirstAccountNumber int64 = 100001
	DefaultCapacity          = 1000

	MaxNameLen       = 39
	MaxNationalIDLen = 19
)

// AccountType 為帳戶類型。
type AccountType int

const (
	Savings  AccountType = 1
	Checking AccountType = 2
)

func (t AccountType) Valid() bool { return t == Savings || t == Checking }

func (t AccountType) String() string {
	switch t {
	case Savings:
		return "SAVINGS"
	case Checking:
		return "CHECKING"
	default:
		return "UNKNOWN"
	}
}

// TxKind 為交易類型，值與快照中的代碼相同。
type TxKind byte

const (
	TxDeposit  TxKind = 'D'
	TxWithdraw TxKind = 'W'
)

func (k TxKind) String() string {
	switch k {
	case TxDeposit:
		return "DEPOSIT"
	case TxWithdraw:
		return "WITHDRAW"
	default:
		return "UNKNOWN"
	}
}

// Transaction 為一筆不可變的入帳紀錄。
type Transaction struct {
	Kind         TxKind    `json:"kind"`
	Amount       int64     `json:"amount"`
	Time         time.Time `json:"time"`
	BalanceAfter int64     `json:"balance_after"`
}

// History 保存最近 HistoryDepth 筆交易；total 為歷來總筆數，最舊者先被覆寫。
// 陣列為值型別，複製 Account 時一併深拷貝。
type History struct {
	last  [HistoryDepth]Transaction
	total int64
}

func (h *History) Append(t Transaction) {
	h.last[h.total%HistoryDepth] = t
	h.total++
}

// Total 回傳歷來交易總數 (ntran)。
func (h History) Total() int64 { return h.total }

// Len 回傳目前保存的筆數 = min(total, HistoryDepth)。
func (h History) Len() int {
	if h.total < HistoryDepth {
		return int(h.total)
	}
	return HistoryDepth
}

// Recent 依時間由舊到新回傳保存中的交易。
func (h History) Recent() []Transaction {
	out := make([]Transaction, 0, h.Len())
	for j := h.total - int64(h.Len()); j < h.total; j++ {
		out = append(out, h.last[j%HistoryDepth])
	}
	return out
}

// restoreHistory 由舊到新放回 recent，並設定總筆數 total。
// recent 不足 min(total, HistoryDepth) 筆時 total 以 len(recent) 為準，環中不留空位。
func restoreHistory(total int64, recent []Transaction) History {
	if len(recent) > HistoryDepth {
		recent = recent[len(recent)-HistoryDepth:]
	}
	if n := int64(len(recent)); n < min(total, HistoryDepth) {
		total = n
	}
	var h History
	h.total = total - int64(len(recent))
	for _, t := range recent {
		h.Append(t)
	}
	return h
}

// Account represents a bank account.
type Account struct {
	Number     int64       `json:"number"`
	PIN        int         `json:"-"`
	Name       string      `json:"name"`
	NationalID string      `json:"national_id"`
	Type       AccountType `json:"type"`
	Balance    int64       `json:"balance"`
	History    History     `json:"-"`
}

// truncate 於 UTF-8 字元邊界截斷至 n 位元組。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
