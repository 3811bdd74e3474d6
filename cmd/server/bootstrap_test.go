package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tcpbank/internal/bank"
	"tcpbank/internal/config"
)

func cfgFor(path string) config.Config {
	cfg := config.FromEnv()
	cfg.DataFile = path
	cfg.MaxAccounts = 10
	return cfg
}

func TestLoadLedgerFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	b, err := loadLedger(cfgFor(path), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, b.Len())

	// write-through 建立快照檔
	_, err = b.Open("Ann", "A1", bank.Savings)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	again, err := loadLedger(cfgFor(path), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
	assert.Equal(t, bank.FirstAccountNumber+1, again.NextNumber())
}

func TestLoadLedgerQuarantinesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o644))

	b, err := loadLedger(cfgFor(path), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, b.Len())

	kept, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "not a snapshot", string(kept))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadLedgerKeepsPartialRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	body := `{"version":1,"accounts_in_use":2,"next_number":100003,"accounts":[
{"number":100001,"pin":1234,"name":"Ann","nat_id":"A1","type":1,"balance":1000,"ntran":1,
 "last":[{"type":"D","amount":1000,"when":1700000000,"balance_after":1000}]},
{"number":100002,"pin":`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	b, err := loadLedger(cfgFor(path), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
	bal, err := b.Balance(100001, 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
	assert.Equal(t, int64(100003), b.NextNumber())
}

func TestLoadLedgerAbortsOnIOError(t *testing.T) {
	dir := t.TempDir()
	_, err := loadLedger(cfgFor(dir), nil, zap.NewNop())
	assert.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr, "directory must not be renamed")
}
