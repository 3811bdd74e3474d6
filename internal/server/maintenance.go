// internal/server/maintenance.go
//
// 伺服器存活期間的定期工作：
//   - 回報目前存活的 worker（連線數與狀態）
//   - 先前快照寫入失敗時重試（Checkpoint）
package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// 秒欄位可省略，"@every 30s" 這類描述式亦可。
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// cronLogger 讓 cron 的內部訊息（含 panic recover）走 zap。
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

type maintenance struct {
	cron *cron.Cron
	log  *zap.Logger
}

// newMaintenance 登錄排程；排程字串為空的工作不排程。
func newMaintenance(s *Server, reportSpec, checkpointSpec string) (*maintenance, error) {
	log := s.log.Named("maintenance")
	clog := cronLogger{s: log.Sugar()}
	m := &maintenance{
		cron: cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(clog)), cron.WithLogger(clog)),
		log:  log,
	}
	if reportSpec != "" {
		if _, err := m.cron.AddFunc(reportSpec, func() { m.report(s) }); err != nil {
			return nil, err
		}
	}
	if checkpointSpec != "" {
		if _, err := m.cron.AddFunc(checkpointSpec, func() { m.checkpoint(s.ledger) }); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *maintenance) start() {
	m.cron.Start()
	m.log.Debug("maintenance scheduler started", zap.Int("jobs", len(m.cron.Entries())))
}

// stop 等待執行中的工作結束，避免與關機時的 Flush 重疊。
func (m *maintenance) stop(ctx context.Context) {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
		m.log.Warn("maintenance job still running at shutdown")
	}
}

func (m *maintenance) report(s *Server) {
	st := s.Stats()
	fields := []zap.Field{
		zap.Int("live", st.Live),
		zap.Int64("accepted", st.Accepted),
		zap.Int64("finished", st.Finished),
		zap.Int64("rejected", st.Rejected),
		zap.Int64("panicked", st.Panicked),
	}
	if st.Live == 0 {
		m.log.Info("no active connections", fields...)
		return
	}
	m.log.Info("active connections", fields...)
	for _, w := range s.Workers() {
		m.log.Info("worker",
			zap.String("worker", w.ID),
			zap.String("remote", w.Remote),
			zap.String("state", w.State),
			zap.Duration("age", time.Since(w.StartedAt).Round(time.Second)),
			zap.Int64("requests", w.Requests))
	}
}

func (m *maintenance) checkpoint(l Store) {
	wrote, err := l.Checkpoint()
	switch {
	case err != nil:
		m.log.Error("checkpoint failed", zap.Error(err))
	case wrote:
		m.log.Info("checkpoint written after earlier save failure")
	}
}
