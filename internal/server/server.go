package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/digest"
)

// ReportInfo describes a report file on disk.
type ReportInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Server exposes health, metrics and generated reports over HTTP.
type Server struct {
	cfg    *internal.Config
	runner *digest.Runner
	router *chi.Mux
	now    func() time.Time
}

// NewServer builds the router. runner may be nil, which disables on-demand runs.
func NewServer(cfg *internal.Config, runner *digest.Runner) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(Metrics)

	s := &Server{
		cfg:    cfg,
		runner: runner,
		router: router,
		now:    time.Now,
	}

	router.Get("/healthz", s.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/reports", func(r chi.Router) {
		r.Get("/", s.listReports)
		r.Get("/{name}", s.getReport)
		r.Post("/run", s.runReports)
	})

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		internal.LogInfo("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		internal.LogInfo("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chats":  len(s.cfg.Chats),
		"ai":     s.cfg.EnableAISummary && s.cfg.AIConfigProblem() == "",
	})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.ReportDir)
	if err != nil && !os.IsNotExist(err) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reports := []ReportInfo{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportInfo{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name > reports[j].Name })

	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, "invalid report name")
		return
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.ReportDir, name))
	if os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// runReports generates reports on demand. Query: date=YYYY-MM-DD, chat=<id>.
func (s *Server) runReports(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "report generation is not available")
		return
	}

	day := s.now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, s.cfg.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	chats := s.cfg.Chats
	if v := r.URL.Query().Get("chat"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "chat must be a numeric id")
			return
		}
		chat, ok := s.cfg.FindChat(id)
		if !ok {
			writeError(w, http.StatusNotFound, "chat is not configured")
			return
		}
		chats = []internal.ChatConfig{chat}
	}

	outputs, err := s.runner.RunAll(r.Context(), chats, day)
	written := make([]string, 0, len(outputs))
	for _, out := range outputs {
		written = append(written, filepath.Base(out.Path))
	}
	resp := map[string]any{"reports": written}
	status := http.StatusOK
	if err != nil {
		resp["error"] = err.Error()
		status = http.StatusInternalServerError
		if len(written) > 0 {
			status = http.StatusMultiStatus
		}
	}
	writeJSON(w, status, resp)
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".yaml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
