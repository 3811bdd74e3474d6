// internal/config/config.go
//
// 集中管理伺服器設定。預設值取自環境變數（BANK_* / LOG_* / REDIS_*），
// 命令列旗標再覆寫之；Validate 於 Supervisor 啟動前檢核。
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPort            = 8888
	DefaultDataFile        = "bank.json"
	DefaultMaxAccounts     = 1000
	DefaultMaxConns        = 256
	DefaultConnQueue       = 64
	DefaultShutdownGrace   = 5 * time.Second
	DefaultReportEvery     = "@every 1m"
	DefaultCheckpointEvery = "@every 30s"
	DefaultRedisStream     = "tcpbank:events"
)

// Config 為 server 端全部可調參數。
type Config struct {
	// Listener
	Host string
	Port int

	// Ledger
	DataFile      string
	MaxAccounts   int
	StrictPersist bool

	// Supervisor
	MaxConns  int
	ConnQueue int // 等待 worker 的連線上限，0 代表不限
	// ShutdownGrace 為關機時等待既有連線自行結束的時間
	ShutdownGrace time.Duration

	// Maintenance（cron 表達式，空字串代表停用）
	ReportEvery     string
	CheckpointEvery string

	// Admin HTTP，空字串代表停用
	AdminAddr string

	// Redis 事件串流，RedisAddr 為空代表停用
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	// Logging
	LogLevel    string
	LogEncoding string
	LogFile     string
}

// FromEnv 以環境變數建立設定；未設定者使用預設值。
func FromEnv() Config {
	return Config{
		Host:            Env("BANK_HOST", ""),
		Port:            EnvInt("BANK_PORT", DefaultPort),
		DataFile:        Env("BANK_DATA_FILE", DefaultDataFile),
		MaxAccounts:     EnvInt("BANK_MAX_ACCOUNTS", DefaultMaxAccounts),
		StrictPersist:   EnvBool("BANK_STRICT_PERSIST", false),
		MaxConns:        EnvInt("BANK_MAX_CONNS", DefaultMaxConns),
		ConnQueue:       EnvInt("BANK_CONN_QUEUE", DefaultConnQueue),
		ShutdownGrace:   EnvDuration("BANK_SHUTDOWN_GRACE", DefaultShutdownGrace),
		ReportEvery:     Env("BANK_REPORT_EVERY", DefaultReportEvery),
		CheckpointEvery: Env("BANK_CHECKPOINT_EVERY", DefaultCheckpointEvery),
		AdminAddr:       Env("BANK_ADMIN_ADDR", ""),
		RedisAddr:       Env("REDIS_ADDR", ""),
		RedisPassword:   Env("REDIS_PASSWORD", ""),
		RedisDB:         EnvInt("REDIS_DB", 0),
		RedisStream:     Env("REDIS_STREAM", DefaultRedisStream),
		LogLevel:        Env("LOG_LEVEL", "info"),
		LogEncoding:     Env("LOG_ENCODING", "json"),
		LogFile:         Env("LOG_FILE", ""),
	}
}

// ListenAddr 回傳 host:port。
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate 檢核設定；任何錯誤皆應在 Supervisor 啟動前回報。
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("invalid port %d: must be in range 1-65535", c.Port)
	}
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("data file path must not be empty")
	}
	if c.MaxAccounts <= 0 {
		return errors.Errorf("max accounts must be > 0, got %d", c.MaxAccounts)
	}
	if c.MaxConns <= 0 {
		return errors.Errorf("max connections must be > 0, got %d", c.MaxConns)
	}
	if c.ConnQueue < 0 {
		return errors.Errorf("connection queue must be >= 0, got %d", c.ConnQueue)
	}
	if c.ShutdownGrace < 0 {
		return errors.Errorf("shutdown grace must be >= 0, got %s", c.ShutdownGrace)
	}
	return nil
}

// ParsePort 解析命令列上的位置參數埠號。
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", s)
	}
	if p < 1 || p > 65535 {
		return 0, errors.Errorf("invalid port %d: must be in range 1-65535", p)
	}
	return p, nil
}

func Env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func EnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func EnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
