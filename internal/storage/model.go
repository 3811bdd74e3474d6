// internal/storage/model.go
//
// 定義快照檔 (snapshot) 的序列化格式。
// 欄位名稱與既有 bank.json 相容：version → accounts_in_use → next_number → accounts，
// 舊版讀取器依此順序解析，因此 struct 欄位順序不可任意調整。
package storage

import "time"

const (
	// CurrentVersion 為本實作寫出的格式版本；讀到更新的版本僅警告。
	CurrentVersion = 1

	// MaxHistory 為每個帳戶保存的交易筆數上限。
	MaxHistory = 5

	// 交易類型代碼
	TxDeposit  = "D"
	TxWithdraw = "W"
)

// Snapshot 為整個帳本的完整快照。
type Snapshot struct {
	Version       int              `json:"version"`
	AccountsInUse int              `json:"accounts_in_use"`
	NextNumber    int64            `json:"next_number"`
	Accounts      []PersistAccount `json:"accounts"`
	SavedAt       time.Time        `json:"saved_at"`
}

// PersistAccount 為帳戶在儲存層的序列化格式。
// Last 依時間由舊到新排列，最多 MaxHistory 筆；NTran 為歷來交易總數。
type PersistAccount struct {
	Number     int64                `json:"number"`
	PIN        int                  `json:"pin"`
	Name       string               `json:"name"`
	NationalID string               `json:"nat_id"`
	Type       int                  `json:"type"`
	Balance    int64                `json:"balance"`
	NTran      int64                `json:"ntran"`
	Last       []PersistTransaction `json:"last"`
}

// PersistTransaction 為單筆交易；When 為 Unix 秒。
type PersistTransaction struct {
	Type         string `json:"type"`
	Amount       int64  `json:"amount"`
	When         int64  `json:"when"`
	BalanceAfter int64  `json:"balance_after"`
}

// LoadResult 為 Load 的結果。
//   - Found=false：檔案不存在（首次啟動），Snapshot 為空。
//   - Truncated!=nil：帳戶清單解析到一半失敗，Snapshot 只含成功解析的帳戶。
type LoadResult struct {
	Snapshot  Snapshot
	Found     bool
	Declared  int
	Recovered int
	Truncated error
	Warnings  []string
}
