// internal/admin/router.go
//
// 路由註冊與 handler 分開：handler.go 定義「如何處理」，這裡定義「如何導向」。
package admin

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Router 建立完整的處理鏈。端點同時掛在 /api/v1/ 與根路徑下。
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	s.routes(r.PathPrefix("/api/v1").Subrouter())
	s.routes(r)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, errNotFound, http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, errMethodNotAllowed, http.StatusMethodNotAllowed)
	})
	return r
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/workers", s.workers).Methods(http.MethodGet)
	r.HandleFunc("/workers/{id}", s.worker).Methods(http.MethodGet)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("admin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(began)))
	})
}
