// internal/logging/logging.go
//
// 建立全域 zap.Logger：stdout 輸出，另可選擇以 lumberjack 旋轉寫入日誌檔
// （例如 bank.log）。
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 決定日誌等級、編碼與檔案輸出。
type Options struct {
	Level    string // debug | info | warn | error
	Encoding string // json | console
	File     string // 空字串代表只輸出到 stdout
}

func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Encoding != "" {
		cfg.Encoding = opts.Encoding
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))
	if opts.Level == "debug" {
		cfg.Development = true
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.File == "" {
		return l, nil
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(rotatingFile(opts.File)),
		cfg.Level,
	)
	return l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// NewNop 供測試使用。
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// Must 於啟動期使用，建立失敗時退回 stderr 的開發 logger。
func Must(opts Options) *zap.Logger {
	l, err := New(opts)
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Warn("logger config rejected, using development logger", zap.Error(err))
		return fallback
	}
	return l
}

func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 14,
		MaxAge:     14,
		Compress:   true,
		LocalTime:  true,
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Sync 忽略 stdout/stderr 不支援 fsync 的錯誤。
func Sync(l *zap.Logger) {
	if err := l.Sync(); err != nil && !isStdSyncErr(err) {
		_, _ = os.Stderr.WriteString("logger sync: " + err.Error() + "\n")
	}
}

func isStdSyncErr(err error) bool {
	// /dev/stdout 在多數平台回傳 EINVAL 或 ENOTTY
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
