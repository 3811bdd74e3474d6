// internal/export/statement.go
//
// Package export 將對帳單輸出為 PDF 或 XLSX 文件。
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"github.com/tealeg/xlsx"

	"tcpbank/internal/wire"
)

const dateLayout = "2006-01-02 15:04:05"

var columns = []string{"#", "Type", "Amount", "Balance After", "Date"}

// Statement 為一份對帳單的內容。
type Statement struct {
	Account      int32
	Balance      int32
	Generated    time.Time
	Transactions []wire.Transaction
}

// Writer 將對帳單寫入 w。
type Writer func(w io.Writer, s Statement) error

func typeName(t byte) string {
	switch t {
	case wire.TxDeposit:
		return "Deposit"
	case wire.TxWithdraw:
		return "Withdrawal"
	default:
		return string(rune(t))
	}
}

func row(i int, tx wire.Transaction) []string {
	return []string{
		strconv.Itoa(i + 1),
		typeName(tx.Type),
		strconv.Itoa(int(tx.Amount)),
		strconv.Itoa(int(tx.BalanceAfter)),
		tx.Time().Format(dateLayout),
	}
}

// PDF 以 A4 直式輸出表格。
func PDF(w io.Writer, s Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(s.Generated)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, fmt.Sprintf("Statement for account %d", s.Account))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(40, 7, fmt.Sprintf("Balance: %d    Generated: %s", s.Balance, s.Generated.Format(dateLayout)))
	pdf.Ln(10)

	widths := []float64{12, 30, 35, 35, 50}
	pdf.SetFont("Arial", "B", 12)
	for i, c := range columns {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Arial", "", 12)
	for i, tx := range s.Transactions {
		for j, v := range row(i, tx) {
			align := "L"
			if j == 2 || j == 3 {
				align = "R"
			}
			pdf.CellFormat(widths[j], 7, v, "1", 0, align, false, 0, "")
		}
		pdf.Ln(7)
	}
	if len(s.Transactions) == 0 {
		pdf.Cell(40, 7, "No transactions")
	}
	return pdf.Output(w)
}

// XLSX 輸出單一工作表，首列為欄位名稱。
func XLSX(w io.Writer, s Statement) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(fmt.Sprintf("Account %d", s.Account))
	if err != nil {
		return err
	}
	header := sheet.AddRow()
	for _, c := range columns {
		header.AddCell().SetValue(c)
	}
	for i, tx := range s.Transactions {
		r := sheet.AddRow()
		r.AddCell().SetInt(i + 1)
		r.AddCell().SetValue(typeName(tx.Type))
		r.AddCell().SetInt(int(tx.Amount))
		r.AddCell().SetInt(int(tx.BalanceAfter))
		r.AddCell().SetValue(tx.Time().Format(dateLayout))
	}
	return file.Write(w)
}

// ForPath 依副檔名（.pdf / .xlsx）選擇輸出格式。
func ForPath(path string) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDF, nil
	case ".xlsx":
		return XLSX, nil
	default:
		return nil, errors.Errorf("unsupported export format %q: use .pdf or .xlsx", filepath.Ext(path))
	}
}

// WriteFile 依副檔名將對帳單寫入 path。
func WriteFile(path string, s Statement) (err error) {
	write, err := ForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f, s)
}
