// internal/storage/jsonstore.go
//
// JSON 快照的讀寫實作。
//   - Save：先寫入 path+".tmp" 並 fsync，再以 rename() 取代原檔，最後 fsync 所在目錄。
//   - Load：以串流方式逐筆解碼帳戶；某筆帳戶格式錯誤時停止並保留已解析者，
//     不會因單筆損壞而丟棄整份帳本。
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// MaxAccountNumber 為帳號上限；協定以 int32 傳送帳號。
const MaxAccountNumber = math.MaxInt32

// ErrCorrupt 代表檔頭（帳戶清單之前的欄位）無法解析。
var ErrCorrupt = errors.New("snapshot header is corrupt")

// JSONStore 以單一 JSON 檔保存帳本。
type JSONStore struct {
	path string
	now  func() time.Time
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, now: time.Now}
}

// Path 回傳快照檔路徑。
func (s *JSONStore) Path() string { return s.path }

// Save 將 Snapshot 完整覆寫到檔案；失敗時原檔保持不變。
func (s *JSONStore) Save(snap Snapshot) error {
	if snap.Version == 0 {
		snap.Version = CurrentVersion
	}
	snap.AccountsInUse = len(snap.Accounts)
	snap.SavedAt = s.now().UTC()
	if snap.Accounts == nil {
		snap.Accounts = []PersistAccount{}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "encode snapshot")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "close %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "replace %s", s.path)
	}
	return syncDir(filepath.Dir(s.path))
}

// syncDir 讓 rename 本身落盤。
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "open dir %s", dir)
	}
	defer d.Close()
	return errors.Wrapf(d.Sync(), "sync dir %s", dir)
}

// Load 讀取快照。檔案不存在不是錯誤（Found=false）。
// 回傳錯誤僅限 I/O 失敗或 ErrCorrupt；部分還原與版本差異記錄於 LoadResult。
func (s *JSONStore) Load() (LoadResult, error) {
	var res LoadResult

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, errors.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()
	res.Found = true

	// 讀取本身失敗（例如路徑是目錄）屬 I/O 錯誤，不視為損毀
	rr := &ioErrReader{r: f}
	corrupt := func(msg string) error {
		if rr.err != nil {
			return errors.Wrapf(rr.err, "read %s", s.path)
		}
		return errors.Wrap(ErrCorrupt, msg)
	}

	dec := json.NewDecoder(bufio.NewReader(rr))
	if err := expectDelim(dec, '{'); err != nil {
		return res, corrupt(err.Error())
	}

	inAccounts := false
	seen := make(map[int64]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			if !inAccounts {
				return res, corrupt(err.Error())
			}
			res.warn("trailing data unreadable: %v", err)
			break
		}
		key, _ := tok.(string)

		switch key {
		case "version":
			err = dec.Decode(&res.Snapshot.Version)
		case "accounts_in_use":
			err = dec.Decode(&res.Declared)
		case "next_number":
			err = dec.Decode(&res.Snapshot.NextNumber)
			if err == nil && (res.Snapshot.NextNumber < 0 || res.Snapshot.NextNumber > MaxAccountNumber) {
				err = errors.Errorf("out of range: %d", res.Snapshot.NextNumber)
			}
		case "accounts":
			inAccounts = true
			res.Truncated = decodeAccounts(dec, &res, seen)
		case "saved_at":
			err = dec.Decode(&res.Snapshot.SavedAt)
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}

		if err != nil {
			if !inAccounts {
				return res, corrupt(fmt.Sprintf("field %q: %v", key, err))
			}
			res.warn("field %q unreadable: %v", key, err)
			break
		}
		if res.Truncated != nil {
			break
		}
	}

	res.Recovered = len(res.Snapshot.Accounts)
	res.Snapshot.AccountsInUse = res.Recovered
	res.finish()
	return res, nil
}

// decodeAccounts 逐筆解碼 accounts 陣列；回傳非 nil 代表在該處截斷。
func decodeAccounts(dec *json.Decoder, res *LoadResult, seen map[int64]struct{}) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for i := 0; dec.More(); i++ {
		var pa PersistAccount
		if err := dec.Decode(&pa); err != nil {
			return errors.Wrapf(err, "account #%d", i)
		}
		if err := validateAccount(pa); err != nil {
			return errors.Wrapf(err, "account #%d", i)
		}
		if _, dup := seen[pa.Number]; dup {
			return errors.Errorf("account #%d: duplicate number %d", i, pa.Number)
		}
		seen[pa.Number] = struct{}{}
		res.Snapshot.Accounts = append(res.Snapshot.Accounts, pa)
	}
	return expectDelim(dec, ']')
}

func validateAccount(pa PersistAccount) error {
	switch {
	case pa.Number <= 0 || pa.Number >= MaxAccountNumber:
		return errors.Errorf("invalid number %d", pa.Number)
	case pa.PIN < 1000 || pa.PIN > 9999:
		return errors.Errorf("account %d: invalid pin", pa.Number)
	case pa.Type != 1 && pa.Type != 2:
		return errors.Errorf("account %d: invalid type %d", pa.Number, pa.Type)
	case len(pa.Last) > MaxHistory:
		return errors.Errorf("account %d: %d transactions exceed history depth %d", pa.Number, len(pa.Last), MaxHistory)
	case int64(len(pa.Last)) != min(pa.NTran, MaxHistory):
		return errors.Errorf("account %d: ntran %d does not match %d stored transactions", pa.Number, pa.NTran, len(pa.Last))
	}
	for _, t := range pa.Last {
		if t.Type != TxDeposit && t.Type != TxWithdraw {
			return errors.Errorf("account %d: invalid transaction type %q", pa.Number, t.Type)
		}
		if t.Amount <= 0 {
			return errors.Errorf("account %d: invalid transaction amount %d", pa.Number, t.Amount)
		}
	}
	if n := len(pa.Last); n > 0 && pa.Last[n-1].BalanceAfter != pa.Balance {
		return errors.Errorf("account %d: balance %d disagrees with last posting %d",
			pa.Number, pa.Balance, pa.Last[n-1].BalanceAfter)
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func (r *LoadResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// finish 補上版本、筆數與帳號序號的一致性檢查。
func (r *LoadResult) finish() {
	if r.Snapshot.Version > CurrentVersion {
		r.warn("snapshot version %d is newer than supported version %d", r.Snapshot.Version, CurrentVersion)
	}
	if r.Truncated != nil {
		r.warn("snapshot truncated after %d accounts: %v", r.Recovered, r.Truncated)
	}
	if r.Declared != r.Recovered {
		r.warn("snapshot declares %d accounts, recovered %d", r.Declared, r.Recovered)
	}
	var max int64
	for _, a := range r.Snapshot.Accounts {
		if a.Number > max {
			max = a.Number
		}
	}
	if max > 0 && r.Snapshot.NextNumber <= max {
		r.warn("next_number %d not above highest account %d, adjusted", r.Snapshot.NextNumber, max)
		r.Snapshot.NextNumber = max + 1
	}
}

// ioErrReader 記住第一個非 EOF 的讀取錯誤。
type ioErrReader struct {
	r   io.Reader
	err error
}

func (e *ioErrReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF && e.err == nil {
		e.err = err
	}
	return n, err
}
