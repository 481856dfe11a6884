package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/fpt/llmbench/pkg/logger"
)

// RequestIDHeader carries the per-request id back to the caller
const RequestIDHeader = "X-Request-Id"

type ctxKey struct{}

// withRequestID tags every request with a fresh uuid
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		log := s.logger.WithRequest(id)
		log.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, log)))
	})
}

// withRecover turns handler panics into a 500 JSON answer
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.requestLogger(r).ErrorWithIcon("💥", "Handler panicked", "panic", p, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger returns the logger tagged with the request id
func (s *Server) requestLogger(r *http.Request) *logger.Logger {
	if log, ok := r.Context().Value(ctxKey{}).(*logger.Logger); ok {
		return log
	}
	return s.logger
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
