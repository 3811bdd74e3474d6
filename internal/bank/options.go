package bank

import (
	"crypto/rand"
	"math/big"
	"time"

	"go.uber.org/zap"

	"tcpbank/internal/storage"
)

// Persister 寫出完整快照；storage.JSONStore 為預設實作。
type Persister interface {
	Save(storage.Snapshot) error
}

// EventKind 為帳本事件類型。
type EventKind string

const (
	EventOpen     EventKind = "open"
	EventClose    EventKind = "close"
	EventDeposit  EventKind = "deposit"
	EventWithdraw EventKind = "withdraw"
)

// Event 於變更成功後送出；Seq 在臨界區內遞增，可供消費端排序。
type Event struct {
	Seq     uint64
	Kind    EventKind
	Account int64
	Amount  int64
	Balance int64
	At      time.Time
}

// Notifier 接收帳本事件，呼叫時不持有帳本鎖。
type Notifier interface {
	Notify(Event)
}

type Option func(*Bank)

// WithCapacity 設定可同時開立的帳戶數上限。
func WithCapacity(n int) Option {
	return func(b *Bank) {
		if n > 0 {
			b.capacity = n
		}
	}
}

func WithPersister(p Persister) Option {
	return func(b *Bank) { b.persister = p }
}

// WithStrictPersist 啟用時，快照寫入失敗會回滾變更並回報 ErrPersist。
func WithStrictPersist(strict bool) Option {
	return func(b *Bank) { b.strict = strict }
}

func WithNotifier(n Notifier) Option {
	return func(b *Bank) { b.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.now = now }
}

// WithPINSource 替換 PIN 產生器（測試用）。
func WithPINSource(gen func() int) Option {
	return func(b *Bank) { b.pin = gen }
}

var pinRange = big.NewInt(9000)

// randomPIN 回傳 1000–9999 的均勻亂數。
func randomPIN() int {
	n, err := rand.Int(rand.Reader, pinRange)
	if err != nil {
		panic("bank: crypto/rand unavailable: " + err.Error())
	}
	return 1000 + int(n.Int64())
}
