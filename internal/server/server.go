// Package server exposes the engine over a JSON HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/engine"
	"github.com/rcliao/engram/internal/metrics"
	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/store"
)

const maxBody = 32 << 20

// Server serves one engine.
type Server struct {
	eng     *engine.Engine
	log     *zap.Logger
	metrics *metrics.Metrics
	md      goldmark.Markdown
}

// New creates a server. m may be nil, in which case /metrics is not served.
func New(eng *engine.Engine, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{eng: eng, log: log, metrics: m, md: goldmark.New()}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/memories", func(r chi.Router) {
		r.Get("/", s.listMemories)
		r.Get("/{id}", s.getMemory)
		r.Delete("/{id}", s.removeMemory)
		r.Post("/{id}/reinforce", s.reinforceMemory)
	})

	r.Post("/ingest", s.ingest)
	r.Post("/consolidate", s.consolidate)
	r.Get("/briefing", s.getBriefing)
	r.Post("/briefing", s.regenerateBriefing)
	r.Get("/stats", s.stats)
	r.Get("/export", s.export)
	r.Post("/import", s.importBackup)
	r.Post("/reset", s.reset)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Run serves on addr until ctx is done. When checkEvery is positive the
// automatic consolidation trigger is re-evaluated on that interval.
func (s *Server) Run(ctx context.Context, addr string, checkEvery time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	if checkEvery > 0 {
		go s.autoLoop(ctx, checkEvery)
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) autoLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rep, err := s.eng.Boot(ctx)
			switch {
			case errors.Is(err, engine.ErrBusy):
				s.log.Debug("auto-consolidation check skipped, pipeline busy")
			case err != nil:
				s.log.Error("auto-consolidation failed", zap.Error(err))
			case rep.Triggered:
				s.log.Info("auto-consolidation ran", zap.Int("remaining", s.eng.Store().Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := store.ListParams{Query: q.Get("q"), Sort: q.Get("sort")}
	switch p.Sort {
	case "", store.SortStrength, store.SortRecent, store.SortAccess:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown sort %q", p.Sort))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		p.Limit = n
	}

	st := s.eng.Store()
	out := st.List(p, st.Now())
	if out == nil {
		out = []store.Scored{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.Store().Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) removeMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Store().Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reinforceMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.Store().Reinforce(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type ingestRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var in ingestRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := engine.ParseMode(in.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.eng.Ingest(r.Context(), in.Text, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) consolidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.eng.Consolidate(r.Context(), engine.TriggerManual)
	if err != nil && res != nil {
		s.failWith(w, r, err, res)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getBriefing(w http.ResponseWriter, r *http.Request) {
	text := s.eng.Store().Briefing()
	if r.URL.Query().Get("format") != "html" {
		writeJSON(w, http.StatusOK, map[string]string{"briefing": text})
		return
	}

	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) regenerateBriefing(w http.ResponseWriter, r *http.Request) {
	res, err := s.eng.RegenerateBriefing(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	st := s.eng.Store()
	writeJSON(w, http.StatusOK, st.Stats(st.Now()))
}

func (s *Server) export(w http.ResponseWriter, _ *http.Request) {
	st := s.eng.Store()
	w.Header().Set("Content-Disposition", `attachment; filename="engram-export.json"`)
	writeJSON(w, http.StatusOK, st.Export(st.Now()))
}

func (s *Server) importBackup(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		writeError(w, http.StatusBadRequest, errors.New("import replaces everything; pass confirm=true"))
		return
	}
	var b model.Backup
	if err := decode(w, r, &b); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.eng.Import(r.Context(), &b)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		writeError(w, http.StatusBadRequest, errors.New("reset wipes everything; pass confirm=true"))
		return
	}
	if err := s.eng.Reset(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.failWith(w, r, err, nil)
}

// failWith writes err with its mapped status. A non-nil partial result is
// included so callers can see what was still committed.
func (s *Server) failWith(w http.ResponseWriter, r *http.Request, err error, partial any) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
	}
	body := map[string]any{"error": err.Error()}
	if partial != nil {
		body["result"] = partial
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrEmptyInput), errors.Is(err, store.ErrInvalidBackup):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrTooFew):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrServiceUnavailable),
		errors.Is(err, engine.ErrUnparsable),
		errors.Is(err, engine.ErrSchema):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
