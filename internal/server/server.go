// internal/server/server.go
//
// Package server 為 TCP 傳輸層：接受連線、為每條連線指派一個 worker，
// worker 依序讀取固定長度請求、交給 Dispatcher、寫回回應，直到對方斷線或送出 QUIT。
//
// worker 跑在 pond pool 上，同時服務的連線數上限為 MaxConns，
// 超出者排隊（上限 ConnQueue），佇列也滿時回覆一筆 "server busy" 後關閉。
// 每條連線從 accept 起即登錄於 registry，直到 worker 的 defer 清理完成（含 panic）。
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tcpbank/internal/config"
	"tcpbank/internal/wire"
)

// ErrAlreadyServing 表示 Serve 被呼叫第二次。
var ErrAlreadyServing = errors.New("server: already serving")

// busyWriteTimeout 限制回覆 "server busy" 的時間，避免 accept 迴圈被慢速 client 卡住。
const busyWriteTimeout = time.Second

// Store 為 Supervisor 需要的帳本能力；*bank.Bank 即為實作。
type Store interface {
	Ledger
	Flush() error
	Checkpoint() (bool, error)
}

// Stats 為 Supervisor 計數器快照。
// 靜止時恆等式 Accepted == Live + Finished + Rejected 成立；Panicked 計入 Finished。
type Stats struct {
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Finished int64  `json:"finished"`
	Panicked int64  `json:"panicked"`
	Live     int    `json:"live"`
	Running  int64  `json:"running"`
	Waiting  uint64 `json:"waiting"`
}

type Server struct {
	cfg    config.Config
	ledger Store
	disp   *Dispatcher
	log    *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	ln   net.Listener
	pool pond.Pool

	reg   *registry
	maint *maintenance

	serving  atomic.Bool
	closing  atomic.Bool
	accepted atomic.Int64
	rejected atomic.Int64
	finished atomic.Int64
	panicked atomic.Int64
}

// New 建立 Supervisor；排程表達式錯誤時回傳錯誤。
func New(cfg config.Config, ledger Store, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("server")
	s := &Server{
		cfg:    cfg,
		ledger: ledger,
		disp:   NewDispatcher(ledger, log),
		log:    log,
		now:    time.Now,
		reg:    newRegistry(),
	}
	m, err := newMaintenance(s, cfg.ReportEvery, cfg.CheckpointEvery)
	if err != nil {
		return nil, err
	}
	s.maint = m
	return s, nil
}

// Listen 綁定 TCP 位址；Serve 前可先呼叫以提早回報綁定錯誤或取得實際埠號。
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 回傳實際綁定位址；尚未 Listen 時為 nil。
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve 持續接受連線直到 ctx 取消，之後依序：
// 關閉 listener → 等待 ShutdownGrace → 強制關閉剩餘連線 → 等待所有 worker →
// 寫出一次最終快照。回傳最終快照的寫入錯誤。
func (s *Server) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln
	s.pool = pond.NewPool(s.cfg.MaxConns,
		pond.WithQueueSize(s.cfg.ConnQueue),
		pond.WithNonBlocking(true))
	s.mu.Unlock()

	s.maint.start()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ln)
	}()

	select {
	case <-ctx.Done():
	case <-acceptDone:
		s.log.Error("accept loop stopped unexpectedly")
	}
	return s.shutdown(ln, acceptDone)
}

func (s *Server) acceptLoop(ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// 例如 EMFILE：退避後重試
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			s.log.Warn("accept failed, retrying", zap.Duration("delay", delay), zap.Error(err))
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.dispatch(conn)
	}
}

// dispatch 登錄連線並交給 pool；pool 佇列已滿時直接拒絕。
func (s *Server) dispatch(conn net.Conn) {
	w := newWorker(conn, s.now())
	s.reg.add(w)
	s.accepted.Inc()

	if err := s.pool.Go(func() { s.serveConn(w) }); err != nil {
		s.reject(w, err)
	}
}

func (s *Server) reject(w *worker, cause error) {
	defer func() {
		_ = w.conn.Close()
		s.reg.remove(w.id)
		s.rejected.Inc()
	}()
	s.log.Warn("connection rejected",
		zap.String("worker", w.id),
		zap.String("remote", w.remote),
		zap.Error(cause))

	var resp wire.Response
	resp.Status = wire.StatusError
	resp.SetMessage("server busy")
	_ = w.conn.SetWriteDeadline(time.Now().Add(busyWriteTimeout))
	_ = wire.WriteResponse(w.conn, resp)
}

// serveConn 為單一連線的請求迴圈。
func (s *Server) serveConn(w *worker) {
	log := s.log.With(zap.String("worker", w.id), zap.String("remote", w.remote))
	defer func() {
		if r := recover(); r != nil {
			s.panicked.Inc()
			log.Error("worker panic recovered", zap.Any("panic", r), zap.Stack("stack"))
		}
		w.state.Store(stateClosing)
		_ = w.conn.Close()
		s.reg.remove(w.id)
		s.finished.Inc()
		log.Info("connection closed", zap.Int64("requests", w.requests.Load()))
	}()

	w.state.Store(stateServing)
	log.Info("connection accepted")

	for {
		req, err := wire.ReadRequest(w.conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("client disconnected")
			case s.closing.Load() || errors.Is(err, net.ErrClosed):
				log.Debug("connection closed by shutdown")
			default:
				log.Warn("read request failed", zap.Error(err))
			}
			return
		}
		w.requests.Inc()

		resp, quit := s.disp.Handle(req)
		log.Debug("request handled",
			zap.Stringer("command", req.Command),
			zap.Stringer("status", resp.Status))
		if err := wire.WriteResponse(w.conn, resp); err != nil {
			log.Warn("write response failed", zap.Error(err))
			return
		}
		if quit {
			log.Info("client requested quit")
			return
		}
	}
}

func (s *Server) shutdown(ln net.Listener, acceptDone <-chan struct{}) error {
	s.closing.Store(true)
	_ = ln.Close()
	<-acceptDone
	s.log.Info("listener closed, draining connections", zap.Int("live", s.reg.len()))

	graceCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	s.maint.stop(graceCtx)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.pool.StopAndWait()
	}()

	select {
	case <-drained:
	case <-graceCtx.Done():
		n := s.reg.closeAll()
		s.log.Warn("shutdown grace elapsed, closing connections", zap.Int("closed", n))
		<-drained
	}

	st := s.Stats()
	s.log.Info("all workers finished",
		zap.Int64("accepted", st.Accepted),
		zap.Int64("finished", st.Finished),
		zap.Int64("rejected", st.Rejected),
		zap.Int64("panicked", st.Panicked))

	if err := s.ledger.Flush(); err != nil {
		s.log.Error("final snapshot failed", zap.Error(err))
		return err
	}
	s.log.Info("final snapshot written")
	return nil
}

func (s *Server) Stats() Stats {
	st := Stats{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Finished: s.finished.Load(),
		Panicked: s.panicked.Load(),
		Live:     s.reg.len(),
	}
	s.mu.Lock()
	p := s.pool
	s.mu.Unlock()
	if p != nil {
		st.Running = p.RunningWorkers()
		st.Waiting = p.WaitingTasks()
	}
	return st
}

// Workers 回傳目前存活的連線，依 accept 時間排序。
func (s *Server) Workers() []WorkerInfo { return s.reg.list() }

// Worker 依 id 查詢存活中的連線。
func (s *Server) Worker(id string) (WorkerInfo, bool) { return s.reg.get(id) }
