// internal/retry/backoff.go
//
// Package retry 以指數退避重試一個操作，用於 client 連線建立。
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config 為重試參數；Attempts 含第一次嘗試。
type Config struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig 適用於互動式 CLI：約 3 秒內放棄。
func DefaultConfig() Config {
	return Config{
		Attempts:     5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// permanent 包裝不應重試的錯誤。
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent 標記 err 為不可重試；Do 會立即回傳原始錯誤。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do 執行 fn 直到成功、嘗試次數用盡、遇到 Permanent 錯誤或 ctx 取消。
func Do(ctx context.Context, cfg Config, log *zap.Logger, op string, fn func() error) error {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "%s cancelled", op)
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("operation succeeded after retries",
					zap.String("operation", op), zap.Int("attempts", attempt))
			}
			return nil
		}
		var p permanent
		if errors.As(lastErr, &p) {
			return p.err
		}
		if attempt == cfg.Attempts {
			break
		}

		delay := Backoff(cfg, attempt)
		log.Warn("operation failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("attempts", cfg.Attempts),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrapf(ctx.Err(), "%s cancelled", op)
		case <-t.C:
		}
	}
	return errors.Wrapf(lastErr, "%s failed after %d attempts", op, cfg.Attempts)
}

// Backoff 回傳第 attempt 次失敗後的等待時間（attempt 由 1 起算）。
// 開啟 Jitter 時在 ±15% 內浮動。
func Backoff(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay += (rand.Float64()*0.3 - 0.15) * delay
	}
	return time.Duration(delay)
}
