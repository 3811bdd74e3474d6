// internal/bank/errors.go
//
// 集中定義領域錯誤。server 層的 dispatcher 依此轉換為回應狀態碼。

package bank

import "errors"

var (
	// ErrNotFound 代表帳號不存在或 PIN 不符；兩者刻意不加區分。
	// 對應狀態碼 ERROR (-1)。
	ErrNotFound = errors.New("account not found or wrong pin")

	// ErrCapacity 代表帳本已滿，無法再開戶。
	// 對應狀態碼 ERROR (-1)，訊息與 ErrNotFound 不同。
	ErrCapacity = errors.New("bank full: maximum number of accounts reached")

	// ErrInvalidAmount 代表金額不符最低金額或倍數規則。
	// 對應狀態碼 INVALID (-3)。
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMinBalance 代表提款後會低於最低餘額。
	// 對應狀態碼 MIN_AMT (-2)。
	ErrMinBalance = errors.New("withdrawal would break minimum balance")

	// ErrInvalidType 代表帳戶類型不是 SAVINGS 或 CHECKING。
	ErrInvalidType = errors.New("invalid account type")

	// ErrInvalidName 代表戶名為空白。
	ErrInvalidName = errors.New("account name must not be empty")

	// ErrPersist 僅在 strict 模式下出現：快照寫入失敗，變更已回滾。
	ErrPersist = errors.New("ledger could not be persisted")
)
