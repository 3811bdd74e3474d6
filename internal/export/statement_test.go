package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"tcpbank/internal/wire"
)

func sample() Statement {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return Statement{
		Account:   100001,
		Balance:   1000,
		Generated: at.Add(time.Hour),
		Transactions: []wire.Transaction{
			{Type: wire.TxDeposit, Amount: 1000, When: at.Unix(), BalanceAfter: 1000},
			{Type: wire.TxDeposit, Amount: 500, When: at.Add(time.Minute).Unix(), BalanceAfter: 1500},
			{Type: wire.TxWithdraw, Amount: 500, When: at.Add(2 * time.Minute).Unix(), BalanceAfter: 1000},
		},
	}
}

func TestPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PDF(&buf, sample()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "%%EOF")

	buf.Reset()
	require.NoError(t, PDF(&buf, Statement{Account: 1}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XLSX(&buf, sample()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sh := f.Sheets[0]
	assert.Equal(t, "Account 100001", sh.Name)
	require.Len(t, sh.Rows, 4)

	var header []string
	for _, c := range sh.Rows[0].Cells {
		header = append(header, c.Value)
	}
	assert.Equal(t, []string{"#", "Type", "Amount", "Balance After", "Date"}, header)

	last := sh.Rows[3].Cells
	assert.Equal(t, "3", last[0].Value)
	assert.Equal(t, "Withdrawal", last[1].Value)
	assert.Equal(t, "500", last[2].Value)
	assert.Equal(t, "1000", last[3].Value)
}

func TestForPath(t *testing.T) {
	_, err := ForPath("out.PDF")
	assert.NoError(t, err)
	_, err = ForPath("out.xlsx")
	assert.NoError(t, err)
	_, err = ForPath("out.csv")
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"s.pdf", "s.xlsx"} {
		p := filepath.Join(dir, name)
		require.NoError(t, WriteFile(p, sample()))
		fi, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, fi.Size())
	}
	assert.Error(t, WriteFile(filepath.Join(dir, "s.txt"), sample()))
}
