package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"
)

var order = binary.LittleEndian

// Request 每次請求送出一筆；與命令無關的欄位為零值。
type Request struct {
	Command       Command
	AccountNumber int32
	PIN           int32
	Amount        int32
	AccountType   int32
	Name          [NameSize]byte
	NationalID    [NationalIDSize]byte
}

// Transaction 為對帳單中的單筆交易。
type Transaction struct {
	Type         byte
	_            [3]byte
	Amount       int32
	When         int64
	BalanceAfter int32
	_            [4]byte
}

// Response 每次回覆送出一筆；Transactions 只在 STATEMENT 時有內容。
type Response struct {
	Status           Status
	AccountNumber    int32
	PIN              int32
	Balance          int32
	Message          [MessageSize]byte
	TransactionCount int32
	_                [4]byte
	Transactions     [TransactionSlots]Transaction
}

// ReadRequest 讀取一筆完整請求。
// 連線在第一個位元組前關閉時回傳 io.EOF，中途斷線回傳 io.ErrUnexpectedEOF。
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	err := binary.Read(r, order, &req)
	return req, err
}

// WriteRequest 以單次 Write 送出一筆請求。
func WriteRequest(w io.Writer, req Request) error {
	return writeRecord(w, &req)
}

func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := binary.Read(r, order, &resp)
	return resp, err
}

func WriteResponse(w io.Writer, resp Response) error {
	return writeRecord(w, &resp)
}

func writeRecord(w io.Writer, v any) error {
	var buf bytes.Buffer
	buf.Grow(ResponseSize)
	if err := binary.Write(&buf, order, v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// NameString 回傳以 NUL 結尾的戶名。
func (r Request) NameString() string { return cstring(r.Name[:]) }

func (r Request) NationalIDString() string { return cstring(r.NationalID[:]) }

// SetName 寫入戶名，必要時截斷並保留結尾 NUL。
func (r *Request) SetName(s string) { putCString(r.Name[:], s) }

func (r *Request) SetNationalID(s string) { putCString(r.NationalID[:], s) }

func (r Response) MessageString() string { return cstring(r.Message[:]) }

func (r *Response) SetMessage(s string) { putCString(r.Message[:], s) }

// Statement 回傳有效的交易筆數（最多 TransactionSlots）。
func (r Response) Statement() []Transaction {
	n := int(r.TransactionCount)
	if n < 0 {
		n = 0
	}
	if n > TransactionSlots {
		n = TransactionSlots
	}
	out := make([]Transaction, n)
	copy(out, r.Transactions[:n])
	return out
}

// Time 回傳交易時間。
func (t Transaction) Time() time.Time { return time.Unix(t.When, 0) }

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	clear(dst)
	copy(dst[:len(dst)-1], s)
}
