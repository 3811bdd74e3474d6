// internal/storage/jsonstore_test.go
//
// 驗證 JSON 快照的 round-trip、首次啟動（檔案不存在）、版本差異與部分還原。
package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Snapshot {
	return Snapshot{
		NextNumber: 100003,
		Accounts: []PersistAccount{
			{
				Number: 100001, PIN: 1234, Name: "Alice", NationalID: "A1", Type: 1,
				Balance: 1500, NTran: 2,
				Last: []PersistTransaction{
					{Type: TxDeposit, Amount: 1000, When: 1700000000, BalanceAfter: 1000},
					{Type: TxDeposit, Amount: 500, When: 1700000100, BalanceAfter: 1500},
				},
			},
			{
				Number: 100002, PIN: 9876, Name: "Bob \"B\"", NationalID: "B2", Type: 2,
				Balance: 1000, NTran: 1,
				Last: []PersistTransaction{
					{Type: TxDeposit, Amount: 1000, When: 1700000200, BalanceAfter: 1000},
				},
			},
		},
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestJSONSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	s := NewJSONStore(path)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	orig := sample()
	require.NoError(t, s.Save(orig))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "tmp file must be renamed away")

	res, err := s.Load()
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Nil(t, res.Truncated)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, res.Declared)
	assert.Equal(t, 2, res.Recovered)

	got := res.Snapshot
	assert.Equal(t, CurrentVersion, got.Version)
	assert.Equal(t, orig.NextNumber, got.NextNumber)
	assert.Equal(t, orig.Accounts, got.Accounts)
	assert.True(t, fixed.Equal(got.SavedAt))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "absent.json"))
	res, err := s.Load()
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Snapshot.Accounts)
}

func TestSaveEmptyLedgerWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, NewJSONStore(path).Save(Snapshot{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"accounts": []`)
}

func TestSaveFailureKeepsPreviousFile(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "missing-dir", "bank.json"))
	err := s.Save(sample())
	require.Error(t, err)
}

// 既有資料檔格式（逐行手寫 JSON）必須可直接讀入。
func TestLoadLegacyFormat(t *testing.T) {
	path := writeFile(t, `{
  "version": 1,
  "accounts_in_use": 1,
  "next_number": 100002,
  "accounts": [
    {"number":100001,"pin":4321,"name":"Carol","nat_id":"C3","type":1,"balance":1500,"ntran":2,"last":[{"type":"D","amount":1000,"when":1700000000,"balance_after":1000},{"type":"D","amount":500,"when":1700000001,"balance_after":1500}]}
  ]
}
`)
	res, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Accounts, 1)
	a := res.Snapshot.Accounts[0]
	assert.Equal(t, int64(100001), a.Number)
	assert.Equal(t, 4321, a.PIN)
	assert.Equal(t, "C3", a.NationalID)
	assert.Len(t, a.Last, 2)
	assert.Empty(t, res.Warnings)
}

func TestLoadNewerVersionWarnsAndSkipsUnknownFields(t *testing.T) {
	path := writeFile(t, `{
  "version": 7,
  "accounts_in_use": 1,
  "next_number": 100002,
  "branch": {"code": "NBO", "tags": [1,2,3]},
  "accounts": [
    {"number":100001,"pin":1111,"name":"D","nat_id":"D4","type":2,"balance":1000,"ntran":1,"currency":"KES",
     "last":[{"type":"D","amount":1000,"when":1,"balance_after":1000,"teller":"x"}]}
  ]
}`)
	res, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, res.Snapshot.Version)
	assert.Equal(t, 1, res.Recovered)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "newer than supported")
}

func TestLoadPartialRecoveryKeepsParsedAccounts(t *testing.T) {
	path := writeFile(t, `{
  "version": 1,
  "accounts_in_use": 3,
  "next_number": 100004,
  "accounts": [
    {"number":100001,"pin":1111,"name":"A","nat_id":"1","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]},
    {"number":100002,"pin":2222,"name":"B","nat_id":"2","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]},
    {"number":100003,"pin":3333,"name":"C","nat_id":"3","type":1,"bal`)

	res, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.Error(t, res.Truncated)
	assert.Equal(t, 3, res.Declared)
	assert.Equal(t, 2, res.Recovered)
	assert.Len(t, res.Snapshot.Accounts, 2)
	assert.Equal(t, int64(100004), res.Snapshot.NextNumber)
	assert.NotEmpty(t, res.Warnings)
}

func TestLoadInvalidRecordStopsParsing(t *testing.T) {
	path := writeFile(t, `{
  "version": 1,
  "accounts_in_use": 3,
  "next_number": 100004,
  "accounts": [
    {"number":100001,"pin":1111,"name":"A","nat_id":"1","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]},
    {"number":100002,"pin":12,"name":"B","nat_id":"2","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]},
    {"number":100003,"pin":3333,"name":"C","nat_id":"3","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]}
  ]
}`)
	res, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.Error(t, res.Truncated)
	assert.Contains(t, res.Truncated.Error(), "invalid pin")
	assert.Equal(t, 1, res.Recovered)
}

func TestLoadHistoryMustMatchTransactionCount(t *testing.T) {
	good := `{"number":100001,"pin":1111,"name":"A","nat_id":"1","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]}`
	for name, bad := range map[string]string{
		"ntran without postings":   `{"number":100002,"pin":2222,"name":"B","nat_id":"2","type":1,"balance":1000,"ntran":10,"last":[]}`,
		"ring not full":            `{"number":100002,"pin":2222,"name":"B","nat_id":"2","type":1,"balance":1000,"ntran":7,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]}`,
		"more postings than ntran": `{"number":100002,"pin":2222,"name":"B","nat_id":"2","type":1,"balance":1500,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000},{"type":"D","amount":500,"when":2,"balance_after":1500}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, `{"version":1,"accounts_in_use":2,"next_number":100003,"accounts":[`+good+`,`+bad+`]}`)
			res, err := NewJSONStore(path).Load()
			require.NoError(t, err)
			require.Error(t, res.Truncated)
			assert.Contains(t, res.Truncated.Error(), "ntran")
			assert.Equal(t, 1, res.Recovered)
		})
	}
}

func TestLoadRejectsNumbersOutsideWireRange(t *testing.T) {
	huge := `{"number":4294967297,"pin":1111,"name":"A","nat_id":"1","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]}`
	res, err := NewJSONStore(writeFile(t, `{"version":1,"accounts_in_use":1,"next_number":100002,"accounts":[`+huge+`]}`)).Load()
	require.NoError(t, err)
	require.Error(t, res.Truncated)
	assert.Contains(t, res.Truncated.Error(), "invalid number")
	assert.Zero(t, res.Recovered)

	_, err = NewJSONStore(writeFile(t, `{"version":1,"accounts_in_use":0,"next_number":2147483648,"accounts":[]}`)).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewJSONStore(filepath.Join(dir, "bank.json")).Save(sample()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bank.json", entries[0].Name())
}

func TestLoadDuplicateNumberStopsParsing(t *testing.T) {
	rec := `{"number":100001,"pin":1111,"name":"A","nat_id":"1","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]}`
	path := writeFile(t, `{"version":1,"accounts_in_use":2,"next_number":100002,"accounts":[`+rec+`,`+rec+`]}`)

	res, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.Error(t, res.Truncated)
	assert.Equal(t, 1, res.Recovered)
}

func TestLoadAdjustsStaleNextNumber(t *testing.T) {
	path := writeFile(t, `{"version":1,"accounts_in_use":1,"next_number":5,"accounts":[
    {"number":100010,"pin":1111,"name":"A","nat_id":"1","type":1,"balance":1000,"ntran":1,"last":[{"type":"D","amount":1000,"when":1,"balance_after":1000}]}]}`)

	res, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, int64(100011), res.Snapshot.NextNumber)
	assert.NotEmpty(t, res.Warnings)
}

func TestLoadCorruptHeader(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     "hello",
		"array":        "[1,2,3]",
		"bad version":  `{"version":"one","accounts":[]}`,
		"empty file":   "",
		"broken count": `{"version":1,"accounts_in_use":`,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := NewJSONStore(writeFile(t, body)).Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
			assert.True(t, res.Found)
			assert.Empty(t, res.Snapshot.Accounts)
		})
	}
}

func TestLoadDirectoryIsIOError(t *testing.T) {
	_, err := NewJSONStore(t.TempDir()).Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCorrupt), "got %v", err)
}
