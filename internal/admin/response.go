// internal/admin/response.go
//
// 統一 JSON 回應格式：成功走 writeJSON，錯誤走 writeErr（{"error": "..."}）。
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error, code int) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
