// Package httpapi exposes the query and administration endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tabletalk/internal/config"
	"tabletalk/internal/controller"
	"tabletalk/internal/telemetry"
)

// Server is the HTTP front end.
type Server struct {
	cfg        *config.Config
	ctrl       *controller.Controller
	dispatcher *controller.Dispatcher
	httpServer *http.Server
}

// New creates the HTTP server with all routes registered.
func New(cfg *config.Config, ctrl *controller.Controller, dispatcher *controller.Dispatcher) *Server {
	s := &Server{
		cfg:        cfg,
		ctrl:       ctrl,
		dispatcher: dispatcher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /v1/stats", s.requireAdmin(s.handleStats))
	mux.HandleFunc("POST /v1/admin/benchmark", s.requireAdmin(s.handleBenchmark))
	mux.HandleFunc("POST /v1/admin/cache/clear", s.requireAdmin(s.handleCacheClear))
	mux.Handle("GET /metrics", telemetry.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

type queryRequest struct {
	Query  string `json:"query"`
	UserID int64  `json:"user_id"`
}

type queryResponse struct {
	RequestID    string  `json:"request_id"`
	Content      string  `json:"content"`
	ModelName    string  `json:"model_name"`
	Success      bool    `json:"success"`
	Cached       bool    `json:"cached"`
	TokensUsed   int64   `json:"tokens_used,omitempty"`
	ResponseTime float64 `json:"response_time_seconds"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	result, err := s.dispatcher.Submit(r.Context(), req.Query, req.UserID)
	if err != nil {
		var verr *controller.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:  verr.Result.Message,
				Reason: string(verr.Result.Reason),
			})
		case errors.Is(err, controller.ErrQueueFull):
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
		case errors.Is(err, controller.ErrQueueTimeout):
			writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
		case errors.Is(err, controller.ErrShuttingDown):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			slog.Error("Query handling failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	// A degraded result (every provider failed) is still a well-formed
	// answer for the client, not a transport error.
	writeJSON(w, http.StatusOK, queryResponse{
		RequestID:    result.RequestID,
		Content:      result.Content,
		ModelName:    result.ModelName,
		Success:      result.Success,
		Cached:       result.Cached,
		TokensUsed:   result.TokensUsed,
		ResponseTime: result.ResponseSeconds(),
		ErrorMessage: result.ErrorMessage,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type benchmarkRequest struct {
	Queries []string `json:"queries"`
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req benchmarkRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
	}

	results := s.ctrl.Benchmark(r.Context(), req.Queries)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	removed := s.ctrl.ClearCache()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAdmin guards administrative endpoints with the configured
// bearer token. An empty configured token disables the admin surface.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !s.cfg.IsAdmin(token) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
