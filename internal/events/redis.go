// internal/events/redis.go
//
// Package events 將帳本事件發佈到 Redis stream，供外部稽核或通知服務消費。
// 發佈為 best effort：Notify 不會阻塞帳本操作，佇列滿或 Redis 失敗時只記錄並計數。
package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tcpbank/internal/bank"
	"tcpbank/internal/config"
)

const (
	DefaultStreamMaxLen = 10000
	queueSize           = 1024
	publishTimeout      = 3 * time.Second
)

// streamAdder 為 *redis.Client 的子集。
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher 實作 bank.Notifier。
type Publisher struct {
	rdb    streamAdder
	closer func() error
	stream string
	maxLen int64
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan bank.Event
	done   chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewRedis 連線並 ping Redis，成功後開始背景發佈。
func NewRedis(ctx context.Context, cfg config.Config, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  publishTimeout,
		WriteTimeout: publishTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.RedisAddr)
	}

	stream := cfg.RedisStream
	if stream == "" {
		stream = config.DefaultRedisStream
	}
	log = log.Named("events")
	log.Info("connected to redis",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB),
		zap.String("stream", stream))
	return newPublisher(rdb, rdb.Close, stream, DefaultStreamMaxLen, log), nil
}

func newPublisher(rdb streamAdder, closer func() error, stream string, maxLen int64, log *zap.Logger) *Publisher {
	p := &Publisher{
		rdb:    rdb,
		closer: closer,
		stream: stream,
		maxLen: maxLen,
		log:    log,
		queue:  make(chan bank.Event, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Notify 將事件放入佇列；佇列已滿或已關閉時丟棄。
func (p *Publisher) Notify(ev bank.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		if n := p.dropped.Inc(); n == 1 || n%100 == 0 {
			p.log.Warn("event queue full, dropping events", zap.Int64("dropped", n))
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		p.publish(ev)
	}
}

func (p *Publisher) publish(ev bank.Event) {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: Values(ev),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		p.failed.Inc()
		p.log.Warn("failed to add event to stream",
			zap.String("stream", p.stream),
			zap.Uint64("seq", ev.Seq),
			zap.Error(err))
		return
	}
	p.published.Inc()
}

// Values 為寫入 stream 的欄位。
func Values(ev bank.Event) map[string]interface{} {
	return map[string]interface{}{
		"seq":     strconv.FormatUint(ev.Seq, 10),
		"kind":    string(ev.Kind),
		"account": strconv.FormatInt(ev.Account, 10),
		"amount":  strconv.FormatInt(ev.Amount, 10),
		"balance": strconv.FormatInt(ev.Balance, 10),
		"at":      ev.At.UTC().Format(time.RFC3339),
	}
}

// Stats 回傳已發佈、丟棄與失敗的事件數。
func (p *Publisher) Stats() (published, dropped, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}

// Close 停止接收新事件，送完佇列中剩餘事件後關閉連線。
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	pub, dropped, failed := p.Stats()
	p.log.Info("event publisher closed",
		zap.Int64("published", pub),
		zap.Int64("dropped", dropped),
		zap.Int64("failed", failed))
	if p.closer != nil {
		return p.closer()
	}
	return nil
}
