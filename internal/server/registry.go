// internal/server/registry.go
package server

import (
	"net"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/atomic"
)

// worker 狀態
const (
	stateQueued  = "queued"  // 已 accept，等待 pool 空位
	stateServing = "serving" // 正在讀寫請求
	stateClosing = "closing" // 已送出最後回應或連線失敗
)

// worker 代表一條已 accept 的連線，從 accept 起到清理完成前都在 registry 中。
type worker struct {
	id       string
	conn     net.Conn
	remote   string
	started  time.Time
	state    atomic.String
	requests atomic.Int64
}

func newWorker(conn net.Conn, now time.Time) *worker {
	w := &worker{
		id:      uuid.NewString(),
		conn:    conn,
		remote:  conn.RemoteAddr().String(),
		started: now,
	}
	w.state.Store(stateQueued)
	return w
}

// WorkerInfo 為 worker 的唯讀快照，供 admin API 與定期報告使用。
type WorkerInfo struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Requests  int64     `json:"requests"`
}

func (w *worker) info() WorkerInfo {
	return WorkerInfo{
		ID:        w.id,
		Remote:    w.remote,
		State:     w.state.Load(),
		StartedAt: w.started,
		Requests:  w.requests.Load(),
	}
}

type registry struct {
	m *xsync.Map[string, *worker]
}

func newRegistry() *registry {
	return &registry{m: xsync.NewMap[string, *worker]()}
}

func (r *registry) add(w *worker) { r.m.Store(w.id, w) }

func (r *registry) remove(id string) { r.m.Delete(id) }

func (r *registry) get(id string) (WorkerInfo, bool) {
	w, ok := r.m.Load(id)
	if !ok {
		return WorkerInfo{}, false
	}
	return w.info(), true
}

func (r *registry) len() int { return r.m.Size() }

// closeAll 強制關閉所有仍存活的連線；worker 會因讀取失敗而自行清理。
func (r *registry) closeAll() int {
	n := 0
	r.m.Range(func(_ string, w *worker) bool {
		w.state.Store(stateClosing)
		_ = w.conn.Close()
		n++
		return true
	})
	return n
}

// list 依 accept 時間排序。
func (r *registry) list() []WorkerInfo {
	out := make([]WorkerInfo, 0, r.m.Size())
	r.m.Range(func(_ string, w *worker) bool {
		out = append(out, w.info())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
