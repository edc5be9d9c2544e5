// Package monitor 可选的本机观察口：/ws 推日志流，/state 给当前进度与最近几次运行。
// 只在命令行指定了监听地址时才启动。
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"signup_engine/internal/logbus"
	"signup_engine/internal/store/sqlite"
	"signup_engine/internal/ws"
)

type Options struct {
	Bus   *logbus.Bus
	Store *sqlite.Store
	// State 由调度器提供，返回当前运行进度的快照。
	State func() any
}

type Server struct {
	bus   *logbus.Bus
	store *sqlite.Store
	state func() any
	ws    *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		bus:   opts.Bus,
		store: opts.Store,
		state: opts.State,
		ws:    ws.NewHandler(opts.Bus, []string{"*"}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/runs", s.handleRuns)
	return mux
}

// Serve 阻塞直到 ctx 取消，随后限时优雅收尾。
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var state any
	if s.state != nil {
		state = s.state()
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": state})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
		return
	}
	runs, err := s.store.RecentRuns(r.Context(), 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
