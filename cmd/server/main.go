// cmd/server/main.go

// 銀行 TCP 伺服器：以固定長度二進位協定提供開戶、銷戶、存提款、餘額與對帳單查詢。
// 啟動時載入 JSON 快照，每次變更即寫回（write-through），收到 SIGINT/SIGTERM 時
// 停止接受連線、等待既有連線結束，最後寫出一次完整快照。
//
//	server [port]
//	server --port 9000 --data-file /var/lib/bank/bank.json --admin-addr :8081
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"tcpbank/internal/admin"
	"tcpbank/internal/bank"
	"tcpbank/internal/config"
	"tcpbank/internal/events"
	"tcpbank/internal/logging"
	"tcpbank/internal/server"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	def := config.FromEnv()

	app := cli.NewApp()
	app.Name = "server"
	app.Usage = "banking server speaking the fixed-size binary protocol"
	app.ArgsUsage = "[port]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "host", Value: def.Host, Usage: "interface to bind (empty = all)"},
		cli.IntFlag{Name: "port, p", Value: def.Port, Usage: "TCP port"},
		cli.StringFlag{Name: "data-file", Value: def.DataFile, Usage: "JSON snapshot path"},
		cli.IntFlag{Name: "max-accounts", Value: def.MaxAccounts, Usage: "ledger capacity"},
		cli.BoolFlag{Name: "strict-persist", Usage: "fail and roll back operations whose snapshot cannot be written"},
		cli.IntFlag{Name: "max-conns", Value: def.MaxConns, Usage: "connections served concurrently"},
		cli.IntFlag{Name: "conn-queue", Value: def.ConnQueue, Usage: "accepted connections allowed to wait for a worker (0 = unbounded)"},
		cli.DurationFlag{Name: "shutdown-grace", Value: def.ShutdownGrace, Usage: "time given to open connections at shutdown"},
		cli.StringFlag{Name: "report-every", Value: def.ReportEvery, Usage: "cron spec for the live connection report (empty = off)"},
		cli.StringFlag{Name: "checkpoint-every", Value: def.CheckpointEvery, Usage: "cron spec for retrying failed snapshot writes (empty = off)"},
		cli.StringFlag{Name: "admin-addr", Value: def.AdminAddr, Usage: "admin HTTP address (empty = off)"},
		cli.StringFlag{Name: "redis-addr", Value: def.RedisAddr, Usage: "redis address for the event stream (empty = off)"},
		cli.StringFlag{Name: "redis-stream", Value: def.RedisStream, Usage: "redis stream key"},
		cli.StringFlag{Name: "log-level", Value: def.LogLevel, Usage: "debug|info|warn|error"},
		cli.StringFlag{Name: "log-encoding", Value: def.LogEncoding, Usage: "json|console"},
		cli.StringFlag{Name: "log-file", Value: def.LogFile, Usage: "also write logs to this rotating file"},
	}
	app.Action = func(c *cli.Context) error {
		cfg, err := configFrom(c, def)
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		if err := run(cfg); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}
	return app
}

// configFrom 以旗標與位置參數覆寫環境變數設定並檢核。
func configFrom(c *cli.Context, cfg config.Config) (config.Config, error) {
	cfg.Host = c.String("host")
	cfg.Port = c.Int("port")
	cfg.DataFile = c.String("data-file")
	cfg.MaxAccounts = c.Int("max-accounts")
	if c.IsSet("strict-persist") {
		cfg.StrictPersist = c.Bool("strict-persist")
	}
	cfg.MaxConns = c.Int("max-conns")
	cfg.ConnQueue = c.Int("conn-queue")
	cfg.ShutdownGrace = c.Duration("shutdown-grace")
	cfg.ReportEvery = c.String("report-every")
	cfg.CheckpointEvery = c.String("checkpoint-every")
	cfg.AdminAddr = c.String("admin-addr")
	cfg.RedisAddr = c.String("redis-addr")
	cfg.RedisStream = c.String("redis-stream")
	cfg.LogLevel = c.String("log-level")
	cfg.LogEncoding = c.String("log-encoding")
	cfg.LogFile = c.String("log-file")

	if c.NArg() > 1 {
		return cfg, errors.Errorf("usage: %s [port]", c.App.Name)
	}
	if arg := c.Args().First(); arg != "" {
		p, err := config.ParsePort(arg)
		if err != nil {
			return cfg, err
		}
		cfg.Port = p
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	log := logging.Must(logging.Options{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, File: cfg.LogFile})
	defer logging.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var notifier bank.Notifier
	if cfg.RedisAddr != "" {
		pub, err := events.NewRedis(ctx, cfg, log)
		if err != nil {
			log.Error("event stream disabled", zap.Error(err))
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	b, err := loadLedger(cfg, notifier, log)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, b, log)
	if err != nil {
		return errors.Wrap(err, "configure server")
	}
	if err := srv.Listen(); err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.ListenAddr())
	}

	if cfg.AdminAddr != "" {
		api := admin.New(b, srv, log)
		go func() {
			if err := api.ListenAndServe(ctx, cfg.AdminAddr); err != nil {
				log.Error("admin api stopped", zap.Error(err))
			}
		}()
	}

	log.Info("bank server started",
		zap.String("addr", srv.Addr().String()),
		zap.String("data_file", cfg.DataFile),
		zap.Int("accounts", b.Len()),
		zap.Int("max_conns", cfg.MaxConns),
		zap.Bool("strict_persist", cfg.StrictPersist))

	if err := srv.Serve(ctx); err != nil {
		return errors.Wrap(err, "serve")
	}
	log.Info("bank server stopped")
	return nil
}
