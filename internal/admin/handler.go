// internal/admin/handler.go
//
// Package admin 提供唯讀的 HTTP 管理介面：健康檢查、帳本與 Supervisor 計數器、
// 存活連線清單。不暴露任何帳戶資料或 PIN；所有帳務操作只走 TCP 協定。
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tcpbank/internal/bank"
	"tcpbank/internal/server"
)

// LedgerStats 由 *bank.Bank 實作。
type LedgerStats interface {
	Stats() bank.Stats
}

// Supervisor 由 *server.Server 實作。
type Supervisor interface {
	Stats() server.Stats
	Workers() []server.WorkerInfo
	Worker(id string) (server.WorkerInfo, bool)
}

type Server struct {
	ledger  LedgerStats
	sup     Supervisor
	log     *zap.Logger
	started time.Time
}

func New(ledger LedgerStats, sup Supervisor, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{ledger: ledger, sup: sup, log: log.Named("admin"), started: time.Now()}
}

// health 回報存活與啟動時間，可作為 liveness 檢查。
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Ledger     bank.Stats   `json:"ledger"`
		Supervisor server.Stats `json:"supervisor"`
	}{s.ledger.Stats(), s.sup.Stats()})
}

func (s *Server) workers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Workers())
}

func (s *Server) worker(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, ok := s.sup.Worker(id)
	if !ok {
		writeErr(w, errors.New("worker not found"), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ListenAndServe 啟動管理介面直到 ctx 取消。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	s.log.Info("admin api listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
