// cmd/bankctl/main.go

// bankctl 為命令列 client：每次執行送出一個操作後結束。
//
//	bankctl open --name "Ann Lee" --nat-id A123456789 --type 1
//	bankctl deposit --account 100001 --pin 4821 --amount 500
//	bankctl statement --account 100001 --pin 4821 --export statement.pdf
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"tcpbank/internal/client"
	"tcpbank/internal/config"
	"tcpbank/internal/export"
	"tcpbank/internal/logging"
	"tcpbank/internal/retry"
	"tcpbank/internal/wire"
)

var (
	accountFlag = cli.IntFlag{Name: "account, a", Usage: "account number"}
	pinFlag     = cli.IntFlag{Name: "pin", Usage: "4-digit PIN"}
	amountFlag  = cli.IntFlag{Name: "amount", Usage: "amount in whole currency units"}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "bankctl"
	app.Usage = "talk to the banking server"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "addr",
			Value:  fmt.Sprintf("127.0.0.1:%d", config.DefaultPort),
			Usage:  "server address",
			EnvVar: "BANK_ADDR",
		},
		cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "per-request timeout"},
		cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug|info|warn|error", EnvVar: "LOG_LEVEL"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "open",
			Usage: "open a new account",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name", Usage: "account holder name"},
				cli.StringFlag{Name: "nat-id", Usage: "national id"},
				cli.IntFlag{Name: "type", Value: int(wire.TypeSavings), Usage: "1 = savings, 2 = checking"},
			},
			Action: withClient(func(c *cli.Context, cl *client.Client) error {
				a, err := cl.Open(c.String("name"), c.String("nat-id"), int32(c.Int("type")))
				if err != nil {
					return err
				}
				fmt.Println(a.Message)
				fmt.Printf("Account number: %d\nPIN: %04d\nBalance: %d\n", a.Number, a.PIN, a.Balance)
				return nil
			}),
		},
		{
			Name:  "close",
			Usage: "close an account",
			Flags: []cli.Flag{accountFlag, pinFlag},
			Action: withClient(func(c *cli.Context, cl *client.Client) error {
				if err := cl.CloseAccount(account(c)); err != nil {
					return err
				}
				fmt.Println("Account closed successfully")
				return nil
			}),
		},
		{
			Name:  "deposit",
			Usage: "deposit money",
			Flags: []cli.Flag{accountFlag, pinFlag, amountFlag},
			Action: withClient(func(c *cli.Context, cl *client.Client) error {
				n, p := account(c)
				bal, err := cl.Deposit(n, p, int32(c.Int("amount")))
				if err != nil {
					return err
				}
				fmt.Printf("Deposit successful. New balance: %d\n", bal)
				return nil
			}),
		},
		{
			Name:  "withdraw",
			Usage: "withdraw money",
			Flags: []cli.Flag{accountFlag, pinFlag, amountFlag},
			Action: withClient(func(c *cli.Context, cl *client.Client) error {
				n, p := account(c)
				bal, err := cl.Withdraw(n, p, int32(c.Int("amount")))
				if err != nil {
					return err
				}
				fmt.Printf("Withdrawal successful. New balance: %d\n", bal)
				return nil
			}),
		},
		{
			Name:  "balance",
			Usage: "show the current balance",
			Flags: []cli.Flag{accountFlag, pinFlag},
			Action: withClient(func(c *cli.Context, cl *client.Client) error {
				bal, err := cl.Balance(account(c))
				if err != nil {
					return err
				}
				fmt.Printf("Balance: %d\n", bal)
				return nil
			}),
		},
		{
			Name:  "statement",
			Usage: "show the last transactions",
			Flags: []cli.Flag{
				accountFlag, pinFlag,
				cli.StringFlag{Name: "export", Usage: "also write the statement to a .pdf or .xlsx file"},
			},
			Action: withClient(statement),
		},
	}
	return app
}

func account(c *cli.Context) (number, pin int32) {
	return int32(c.Int("account")), int32(c.Int("pin"))
}

// withClient 建立連線、執行 fn 後送出 QUIT；server 的非 OK 狀態以 exit code 2 回報。
func withClient(fn func(*cli.Context, *client.Client) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		log := logging.Must(logging.Options{Level: c.GlobalString("log-level"), Encoding: "console"})
		defer logging.Sync(log)

		ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
		defer cancel()
		cl, err := client.Dial(ctx, c.GlobalString("addr"), retry.DefaultConfig(), log)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		cl.SetTimeout(c.GlobalDuration("timeout"))
		defer cl.Close()

		err = fn(c, cl)
		if qerr := cl.Quit(); qerr != nil {
			log.Debug("quit failed", zap.Error(qerr))
		}
		var se *client.StatusError
		switch {
		case errors.As(err, &se):
			return cli.NewExitError(fmt.Sprintf("%s [%s]", se.Message, se.Status), 2)
		case err != nil:
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}
}

func statement(c *cli.Context, cl *client.Client) error {
	n, p := account(c)
	txs, err := cl.Statement(n, p)
	if err != nil {
		return err
	}
	fmt.Printf("Statement for account %d\n", n)
	fmt.Printf("%-3s %-4s %10s %14s  %s\n", "#", "Type", "Amount", "Balance After", "Date")
	for i, tx := range txs {
		fmt.Printf("%-3d %-4c %10d %14d  %s\n", i+1, tx.Type, tx.Amount, tx.BalanceAfter,
			tx.Time().Format("2006-01-02 15:04:05"))
	}

	path := c.String("export")
	if path == "" {
		return nil
	}
	var bal int32
	if len(txs) > 0 {
		bal = txs[len(txs)-1].BalanceAfter
	}
	if err := export.WriteFile(path, export.Statement{
		Account:      n,
		Balance:      bal,
		Generated:    time.Now(),
		Transactions: txs,
	}); err != nil {
		return err
	}
	fmt.Printf("Statement written to %s\n", path)
	return nil
}
