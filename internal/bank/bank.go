// internal/bank/bank.go

// Package bank 定義核心商業邏輯：開戶、銷戶、存款、提款、餘額與對帳單查詢。
// 所有操作在同一把 sync.Mutex 下完成「驗證 → 變更 → 寫入快照」，
// 因此任兩個並發操作（同帳戶或不同帳戶）都不會交錯。
// 金額以 int64 的最小貨幣單位儲存。
package bank

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tcpbank/internal/storage"
)

// Bank 為聚合根：管理全部開立中的帳戶。
//   - mu：序列化所有讀寫與快照寫入。
//   - accts：帳號 → 帳戶，指標只在臨界區內修改，對外一律回傳值拷貝。
type Bank struct {
	mu         sync.Mutex
	capacity   int
	nextNumber int64
	seq        uint64
	accts      map[int64]*Account

	persister Persister
	strict    bool
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
	pin       func() int

	saves        atomic.Int64
	saveFailures atomic.Int64
	dirty        atomic.Bool
}

// Stats 為帳本狀態摘要，不含任何帳戶資料。
type Stats struct {
	Open         int   `json:"open_accounts"`
	Capacity     int   `json:"capacity"`
	NextNumber   int64 `json:"next_number"`
	Saves        int64 `json:"saves"`
	SaveFailures int64 `json:"save_failures"`
	Dirty        bool  `json:"dirty"`
}

// New 建立空白帳本。
func New(opts ...Option) *Bank {
	b := &Bank{
		capacity:   DefaultCapacity,
		nextNumber: FirstAccountNumber,
		accts:      make(map[int64]*Account),
		log:        zap.NewNop(),
		now:        time.Now,
		pin:        randomPIN,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Open 開立新帳戶：配發下一個帳號與隨機 PIN，初始餘額為最低餘額，
// 並記錄一筆等額的開戶存款。回傳的 Account 含 PIN，僅此一次。
func (b *Bank) Open(name, nationalID string, t AccountType) (Account, error) {
	a, ev, err := b.open(name, nationalID, t)
	if err != nil {
		return Account{}, err
	}
	b.notify(ev)
	return a, nil
}

func (b *Bank) open(name, nationalID string, t AccountType) (Account, Event, error) {
	if !t.Valid() {
		b.log.Warn("open rejected: invalid account type", zap.Int("type", int(t)))
		return Account{}, Event{}, ErrInvalidType
	}
	name = truncate(strings.TrimSpace(name), MaxNameLen)
	if name == "" {
		b.log.Warn("open rejected: empty name")
		return Account{}, Event{}, ErrInvalidName
	}
	nationalID = truncate(strings.TrimSpace(nationalID), MaxNationalIDLen)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.accts) >= b.capacity {
		b.log.Error("open rejected: ledger at capacity", zap.Int("capacity", b.capacity))
		return Account{}, Event{}, ErrCapacity
	}

	a := &Account{
		Number:     b.nextNumber,
		PIN:        b.pin(),
		Name:       name,
		NationalID: nationalID,
		Type:       t,
		Balance:    MinBalance,
	}
	a.History.Append(b.tx(TxDeposit, MinBalance, a.Balance))
	b.accts[a.Number] = a
	b.nextNumber++

	err := b.commit(func() {
		delete(b.accts, a.Number)
		b.nextNumber--
	})
	if err != nil {
		return Account{}, Event{}, err
	}

	b.log.Info("account opened",
		zap.Int64("account", a.Number),
		zap.String("type", t.String()),
		zap.Int64("balance", a.Balance))
	return *a, b.event(EventOpen, a.Number, MinBalance, a.Balance), nil
}

// Close 銷戶：帳號與 PIN 必須完全相符。
func (b *Bank) Close(number int64, pin int) error {
	ev, err := b.close(number, pin)
	if err != nil {
		return err
	}
	b.notify(ev)
	return nil
}

func (b *Bank) close(number int64, pin int) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.lookup("close", number, pin)
	if err != nil {
		return Event{}, err
	}
	delete(b.accts, number)
	if err := b.commit(func() { b.accts[number] = a }); err != nil {
		return Event{}, err
	}

	b.log.Info("account closed", zap.Int64("account", number), zap.Int64("balance", a.Balance))
	return b.event(EventClose, number, 0, a.Balance), nil
}

// Deposit 存款：金額須 >= MinDeposit；回傳變更後的帳戶。
func (b *Bank) Deposit(number int64, pin int, amount int64) (Account, error) {
	a, ev, err := b.deposit(number, pin, amount)
	if err != nil {
		return Account{}, err
	}
	b.notify(ev)
	return a, nil
}

func (b *Bank) deposit(number int64, pin int, amount int64) (Account, Event, error) {
	if amount < MinDeposit {
		b.log.Warn("deposit rejected: below minimum deposit",
			zap.Int64("amount", amount), zap.Int64("min", MinDeposit))
		return Account{}, Event{}, ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.lookup("deposit", number, pin)
	if err != nil {
		return Account{}, Event{}, err
	}
	if a.Balance > MaxBalance-amount {
		b.log.Warn("deposit rejected: balance would overflow",
			zap.Int64("account", number), zap.Int64("amount", amount))
		return Account{}, Event{}, ErrInvalidAmount
	}
	prev := *a
	a.Balance += amount
	a.History.Append(b.tx(TxDeposit, amount, a.Balance))
	if err := b.commit(func() { *a = prev }); err != nil {
		return Account{}, Event{}, err
	}

	b.log.Info("deposit posted",
		zap.Int64("account", number), zap.Int64("amount", amount), zap.Int64("balance", a.Balance))
	return *a, b.event(EventDeposit, number, amount, a.Balance), nil
}

// Withdraw 提款：金額須 >= MinWithdraw 且為其倍數（先於帳戶查詢檢核），
// 提款後餘額不得低於 MinBalance。
func (b *Bank) Withdraw(number int64, pin int, amount int64) (Account, error) {
	a, ev, err := b.withdraw(number, pin, amount)
	if err != nil {
		return Account{}, err
	}
	b.notify(ev)
	return a, nil
}

func (b *Bank) withdraw(number int64, pin int, amount int64) (Account, Event, error) {
	if amount < MinWithdraw || amount%MinWithdraw != 0 {
		b.log.Warn("withdrawal rejected: invalid amount",
			zap.Int64("amount", amount), zap.Int64("unit", MinWithdraw))
		return Account{}, Event{}, ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.lookup("withdraw", number, pin)
	if err != nil {
		return Account{}, Event{}, err
	}
	if a.Balance-amount < MinBalance {
		b.log.Warn("withdrawal rejected: would break minimum balance",
			zap.Int64("account", number),
			zap.Int64("balance", a.Balance),
			zap.Int64("amount", amount))
		return Account{}, Event{}, ErrMinBalance
	}
	prev := *a
	a.Balance -= amount
	a.History.Append(b.tx(TxWithdraw, amount, a.Balance))
	if err := b.commit(func() { *a = prev }); err != nil {
		return Account{}, Event{}, err
	}

	b.log.Info("withdrawal posted",
		zap.Int64("account", number), zap.Int64("amount", amount), zap.Int64("balance", a.Balance))
	return *a, b.event(EventWithdraw, number, amount, a.Balance), nil
}

// Balance 回傳目前餘額。
func (b *Bank) Balance(number int64, pin int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.lookup("balance", number, pin)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// Statement 依時間由舊到新回傳最近至多 HistoryDepth 筆交易。
func (b *Bank) Statement(number int64, pin int) ([]Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.lookup("statement", number, pin)
	if err != nil {
		return nil, err
	}
	return a.History.Recent(), nil
}

// Len 回傳開立中的帳戶數。
func (b *Bank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.accts)
}

// NextNumber 回傳下一個將配發的帳號。
func (b *Bank) NextNumber() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextNumber
}

func (b *Bank) Stats() Stats {
	b.mu.Lock()
	open, next := len(b.accts), b.nextNumber
	b.mu.Unlock()
	return Stats{
		Open:         open,
		Capacity:     b.capacity,
		NextNumber:   next,
		Saves:        b.saves.Load(),
		SaveFailures: b.saveFailures.Load(),
		Dirty:        b.dirty.Load(),
	}
}

// Flush 無條件寫出完整快照（關機前最後一次寫入使用）。
func (b *Bank) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save()
}

// Checkpoint 僅在先前寫入失敗（dirty）時重寫快照。
func (b *Bank) Checkpoint() (bool, error) {
	if !b.dirty.Load() {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty.Load() {
		return false, nil
	}
	return true, b.save()
}

// lookup 須在持有 mu 時呼叫。
func (b *Bank) lookup(op string, number int64, pin int) (*Account, error) {
	a, ok := b.accts[number]
	if !ok || a.PIN != pin {
		b.log.Warn(op+" rejected: account not found or wrong pin", zap.Int64("account", number))
		return nil, ErrNotFound
	}
	return a, nil
}

func (b *Bank) tx(kind TxKind, amount, balanceAfter int64) Transaction {
	return Transaction{Kind: kind, Amount: amount, Time: b.now(), BalanceAfter: balanceAfter}
}

// event 須在持有 mu 時呼叫，以取得單調遞增的 Seq。
func (b *Bank) event(kind EventKind, number, amount, balance int64) Event {
	b.seq++
	return Event{Seq: b.seq, Kind: kind, Account: number, Amount: amount, Balance: balance, At: b.now()}
}

func (b *Bank) notify(ev Event) {
	if b.notifier != nil {
		b.notifier.Notify(ev)
	}
}

// commit 將剛完成的變更寫入快照（write-through）。須在持有 mu 時呼叫。
// 預設為 best effort：寫入失敗只記錄並標記 dirty，記憶體帳本仍為準；
// strict 模式下執行 rollback 並回報 ErrPersist。
func (b *Bank) commit(rollback func()) error {
	if b.persister == nil {
		return nil
	}
	err := b.save()
	if err == nil || !b.strict {
		return nil
	}
	rollback()
	return errors.Wrap(ErrPersist, err.Error())
}

// save 須在持有 mu 時呼叫。
func (b *Bank) save() error {
	if b.persister == nil {
		return nil
	}
	if err := b.persister.Save(b.snapshotLocked()); err != nil {
		b.saveFailures.Inc()
		if !b.strict {
			b.dirty.Store(true)
		}
		b.log.Error("snapshot save failed",
			zap.Bool("strict", b.strict),
			zap.Int("accounts", len(b.accts)),
			zap.Error(err))
		return err
	}
	b.saves.Inc()
	b.dirty.Store(false)
	return nil
}

// Snapshot 匯出帳本狀態；帳戶依帳號遞增排序以得到穩定輸出。
func (b *Bank) Snapshot() storage.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bank) snapshotLocked() storage.Snapshot {
	s := storage.Snapshot{
		Version:       storage.CurrentVersion,
		AccountsInUse: len(b.accts),
		NextNumber:    b.nextNumber,
		Accounts:      make([]storage.PersistAccount, 0, len(b.accts)),
	}
	for _, a := range b.accts {
		pa := storage.PersistAccount{
			Number:     a.Number,
			PIN:        a.PIN,
			Name:       a.Name,
			NationalID: a.NationalID,
			Type:       int(a.Type),
			Balance:    a.Balance,
			NTran:      a.History.Total(),
		}
		for _, t := range a.History.Recent() {
			pa.Last = append(pa.Last, storage.PersistTransaction{
				Type:         string(rune(t.Kind)),
				Amount:       t.Amount,
				When:         t.Time.Unix(),
				BalanceAfter: t.BalanceAfter,
			})
		}
		s.Accounts = append(s.Accounts, pa)
	}
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].Number < s.Accounts[j].Number })
	return s
}

// Restore 由快照重建帳本，取代目前內容；超過容量的帳戶會被捨棄。
// 回傳實際還原的帳戶數。
func (b *Bank) Restore(s storage.Snapshot) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.accts = make(map[int64]*Account, len(s.Accounts))
	b.nextNumber = FirstAccountNumber
	if s.NextNumber > b.nextNumber {
		b.nextNumber = s.NextNumber
	}

	for i, pa := range s.Accounts {
		if len(b.accts) >= b.capacity {
			b.log.Warn("snapshot exceeds capacity, remaining accounts dropped",
				zap.Int("capacity", b.capacity),
				zap.Int("dropped", len(s.Accounts)-i))
			break
		}
		recent := make([]Transaction, 0, len(pa.Last))
		for _, pt := range pa.Last {
			kind := TxDeposit
			if pt.Type == storage.TxWithdraw {
				kind = TxWithdraw
			}
			recent = append(recent, Transaction{
				Kind:         kind,
				Amount:       pt.Amount,
				Time:         time.Unix(pt.When, 0).UTC(),
				BalanceAfter: pt.BalanceAfter,
			})
		}
		b.accts[pa.Number] = &Account{
			Number:     pa.Number,
			PIN:        pa.PIN,
			Name:       pa.Name,
			NationalID: pa.NationalID,
			Type:       AccountType(pa.Type),
			Balance:    pa.Balance,
			History:    restoreHistory(pa.NTran, recent),
		}
		if pa.Number >= b.nextNumber {
			b.nextNumber = pa.Number + 1
		}
	}
	return len(b.accts)
}
