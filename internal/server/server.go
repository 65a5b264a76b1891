// Package server exposes the memory engine over HTTP as a JSON API.
//
// Every command is a POST with a JSON body; request bodies are decoded
// strictly so a misspelled field fails loudly instead of being silently
// ignored. Failures are returned as {"error_type", "message", "details"}
// with the status code derived from the error kind.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"go.uber.org/zap"
)

// Server routes HTTP requests to the engine.
type Server struct {
	engine *engine.Engine
	audit  *audit.Logger
	logger *zap.Logger
}

// New creates a Server. audit and logger may not be nil; use audit.NewNop()
// and zap.NewNop() to discard.
func New(eng *engine.Engine, auditLog *audit.Logger, logger *zap.Logger) *Server {
	return &Server{engine: eng, audit: auditLog, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /init", s.handleInit)
	mux.HandleFunc("POST /branch", s.handleBranch)
	mux.HandleFunc("POST /commit", s.handleCommit)
	mux.HandleFunc("POST /log", s.handleLog)
	mux.HandleFunc("POST /merge", s.handleMerge)
	mux.HandleFunc("POST /context", s.handleContext)
	mux.HandleFunc("POST /history", s.handleHistory)
	mux.HandleFunc("POST /diff", s.handleDiff)
	mux.HandleFunc("POST /show", s.handleShow)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var p engine.InitParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Init(r.Context(), p)
	s.finish(w, "init", p.SessionID, p, res, err)
}

func (s *Server) handleBranch(w http.ResponseWriter, r *http.Request) {
	var p engine.BranchParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Branch(r.Context(), p)
	s.finish(w, "branch", p.SessionID, p, res, err)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var p engine.CommitParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Commit(r.Context(), p)
	s.finish(w, "commit", p.SessionID, p, res, err)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var p engine.LogParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Log(r.Context(), p)
	s.finish(w, "log", p.SessionID, p, res, err)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var p engine.MergeParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Merge(r.Context(), p)
	s.finish(w, "merge", p.SessionID, p, res, err)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var p engine.ContextParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Context(r.Context(), p)
	s.finish(w, "context", p.SessionID, p, res, err)
}

type historyRequest struct {
	SessionID string `json:"session_id"`
	Branch    string `json:"branch"`
	Limit     int    `json:"limit"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var p historyRequest
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.History(r.Context(), p.SessionID, p.Branch, p.Limit)
	s.finish(w, "history", p.SessionID, p, res, err)
}

type diffRequest struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var p diffRequest
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Diff(r.Context(), p.SessionID, p.From, p.To)
	s.finish(w, "diff", p.SessionID, p, res, err)
}

type showRequest struct {
	SessionID string `json:"session_id"`
	Ref       string `json:"ref"`
	Path      string `json:"path"`
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	var p showRequest
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Show(r.Context(), p.SessionID, p.Ref, p.Path)
	s.finish(w, "show", p.SessionID, p, res, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var p engine.ResetParams
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.engine.Reset(r.Context(), p)
	s.finish(w, "reset", p.SessionID, p, res, err)
}

// decode strictly parses the request body into dst. On failure it writes a
// validation error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, memerr.Validation("body", "invalid request body: "+err.Error()))
		return false
	}
	return true
}

// finish audits the call and writes either the result or the error.
func (s *Server) finish(w http.ResponseWriter, action, sessionID string, params, result any, err error) {
	s.audit.Record(action, sessionID, params, err)
	if err != nil {
		s.logger.Warn("command failed",
			zap.String("action", action),
			zap.String("session", sessionID),
			zap.String("error_type", string(memerr.KindOf(err))),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// errorBody is the wire form of a failure.
type errorBody struct {
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := memerr.KindOf(err)
	body := errorBody{
		ErrorType: string(kind),
		Message:   safeMessage(err),
		Details:   memerr.DetailsOf(err),
	}
	writeJSON(w, statusFor(kind), body)
}

// safeMessage surfaces the engine's message but never an unclassified
// error's text, which could carry paths or subprocess output.
func safeMessage(err error) string {
	var e *memerr.Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}

func statusFor(kind memerr.Kind) int {
	switch kind {
	case memerr.KindValidation:
		return http.StatusBadRequest
	case memerr.KindSessionNotFound, memerr.KindBranchNotFound:
		return http.StatusNotFound
	case memerr.KindConflict:
		return http.StatusConflict
	case memerr.KindLockTimeout:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
