package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
	"github.com/kailas-cloud/lostmatch/internal/logger"
	healthuc "github.com/kailas-cloud/lostmatch/internal/usecase/health"
)

// maxBodyBytes caps the POST /match request body.
const maxBodyBytes = 64 << 10

// Matcher answers match queries.
type Matcher interface {
	Match(ctx context.Context, query string, k *int) (dommatch.Result, error)
}

// HealthChecker aggregates component probes.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the match API over chi.
type Server struct {
	matcher       Matcher
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(matcher Matcher, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{matcher: matcher, health: health, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeInvalidInput),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/match", s.PostMatch)
	r.Get("/match", s.GetMatch)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// PostMatch handles POST /match.
func (s *Server) PostMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	s.match(w, r, req.Text, req.K)
}

// GetMatch handles GET /match?q=&k=.
func (s *Server) GetMatch(w http.ResponseWriter, r *http.Request) {
	var k *int
	if err := runtime.BindQueryParameter("form", true, false, "k", r.URL.Query(), &k); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter k")
		return
	}
	s.match(w, r, r.URL.Query().Get("q"), k)
}

func (s *Server) match(w http.ResponseWriter, r *http.Request, text string, k *int) {
	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.matcher.Match(ctx, text, k)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	resp := matchResultToResponse(res)
	w.Header().Set("X-Match-Status", resp.Status)
	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.TokenUsage) {
	emb, gen, used := usage.Snapshot()
	if !used {
		return
	}
	if emb > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(emb))
	}
	if gen > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(gen))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The full message is returned because validation errors carry no internals.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContextOr(ctx, s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Debug("Request rejected", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
