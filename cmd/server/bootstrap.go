// cmd/server/bootstrap.go
//
// 啟動時載入快照並建立帳本。
package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tcpbank/internal/bank"
	"tcpbank/internal/config"
	"tcpbank/internal/storage"
)

// loadLedger 讀取 DataFile 並還原帳本：
//   - 檔案不存在：空帳本。
//   - 檔頭損毀：原檔改名為 <file>.corrupt 保留，以空帳本啟動。
//   - 帳戶清單中途損毀：保留已解析的帳戶並記錄警告。
//   - 其他 I/O 錯誤：中止啟動。
func loadLedger(cfg config.Config, notifier bank.Notifier, log *zap.Logger) (*bank.Bank, error) {
	slog := log.Named("storage")
	store := storage.NewJSONStore(cfg.DataFile)

	res, err := store.Load()
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		quarantine := cfg.DataFile + ".corrupt"
		if rerr := os.Rename(cfg.DataFile, quarantine); rerr != nil {
			return nil, errors.Wrapf(rerr, "preserve corrupt snapshot %s", cfg.DataFile)
		}
		slog.Error("snapshot unreadable, starting with an empty ledger",
			zap.String("file", cfg.DataFile),
			zap.String("preserved_as", quarantine),
			zap.Error(err))
		res = storage.LoadResult{}
	case err != nil:
		return nil, errors.Wrapf(err, "load snapshot %s", cfg.DataFile)
	}
	for _, w := range res.Warnings {
		slog.Warn(w, zap.String("file", cfg.DataFile))
	}

	opts := []bank.Option{
		bank.WithCapacity(cfg.MaxAccounts),
		bank.WithPersister(store),
		bank.WithStrictPersist(cfg.StrictPersist),
		bank.WithLogger(log.Named("bank")),
	}
	if notifier != nil {
		opts = append(opts, bank.WithNotifier(notifier))
	}
	b := bank.New(opts...)

	if !res.Found {
		slog.Info("no snapshot found, starting with an empty ledger", zap.String("file", cfg.DataFile))
		return b, nil
	}
	n := b.Restore(res.Snapshot)
	slog.Info("ledger restored",
		zap.String("file", cfg.DataFile),
		zap.Int("declared", res.Declared),
		zap.Int("recovered", res.Recovered),
		zap.Int("restored", n),
		zap.Int64("next_number", b.NextNumber()),
		zap.Bool("partial", res.Truncated != nil))
	return b, nil
}
