package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/config"
	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

const channelBaseURL = "https://www.youtube.com/"

// Server wires HTTP handlers to the reporting store.
type Server struct {
	router   chi.Router
	rankings store.RankingReader
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(rankings store.RankingReader, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{rankings: rankings, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if auth.Enabled {
			r.Use(apiKeyMiddleware(auth.APIKey))
		}
		r.Get("/rankings", s.listRankings)
		r.Get("/channels/{channel}", s.getChannel)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.rankings.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type rankingsResponse struct {
	Count    int                    `json:"count"`
	Rankings []ranker.RankedChannel `json:"rankings"`
}

func (s *Server) listRankings(w http.ResponseWriter, r *http.Request) {
	query, err := parseRankingQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.rankings.ListRankings(r.Context(), query)
	if err != nil {
		s.logger.Error("list rankings failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list rankings")
		return
	}
	if rows == nil {
		rows = []ranker.RankedChannel{}
	}
	s.writeJSON(w, http.StatusOK, rankingsResponse{Count: len(rows), Rankings: rows})
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	channelURL, err := channelFromParam(chi.URLParam(r, "channel"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := s.rankings.GetChannel(r.Context(), channelURL)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		s.logger.Error("get channel failed", zap.String("channel_url", channelURL), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load channel")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func parseRankingQuery(values url.Values) (store.RankingQuery, error) {
	var q store.RankingQuery
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, fmt.Errorf("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	if raw := values.Get("qualified_only"); raw != "" {
		only, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("qualified_only must be a boolean")
		}
		q.QualifiedOnly = only
	}
	return q, nil
}

// channelFromParam accepts a path-escaped channel URL or a bare @handle.
func channelFromParam(param string) (string, error) {
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("malformed channel parameter")
	}
	decoded = strings.TrimSpace(decoded)
	switch {
	case decoded == "":
		return "", fmt.Errorf("channel is required")
	case strings.HasPrefix(decoded, "@"):
		return channelBaseURL + decoded, nil
	case strings.HasPrefix(decoded, "https://") || strings.HasPrefix(decoded, "http://"):
		return decoded, nil
	default:
		return "", fmt.Errorf("channel must be a URL or @handle")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.String("request_id", reqID),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeErrorBody(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeErrorBody(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorBody(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
