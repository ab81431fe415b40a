package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"roadassist/internal/config"
	"roadassist/internal/domain"
	"roadassist/internal/logging"
	"roadassist/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services bundles the engine operations served over HTTP.
type Services struct {
	Requests domain.RequestService
	Dispatch domain.DispatchService
	Users    domain.UserService
	Activity domain.ActivityStream
	Health   HealthChecker
}

// HTTPServer exposes the request engine as a JSON API.
type HTTPServer struct {
	cfg        config.APIConfig
	production bool
	svc        Services
	server     *http.Server
	auth       *HTTPAuth
	logger     *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, app config.AppConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:        cfg,
		production: app.IsProduction(),
		svc:        svc,
		auth:       NewHTTPAuth(cfg),
		logger:     logging.Component(logger, "http"),
	}

	srv.handle(mux, "POST /api/v1/requests", "create_request", srv.handleCreate)
	srv.handle(mux, "GET /api/v1/requests", "list_visible", srv.handleListVisible)
	srv.handle(mux, "GET /api/v1/requests/available", "list_available", srv.handleListAvailable)
	srv.handle(mux, "GET /api/v1/requests/mine", "list_mine", srv.handleListMine)
	srv.handle(mux, "GET /api/v1/requests/export", "export_requests", srv.handleExport)
	srv.handle(mux, "GET /api/v1/requests/{ref}", "get_request", srv.handleGetDetails)
	srv.handle(mux, "GET /api/v1/requests/{ref}/activity", "get_activity", srv.handleGetHistory)
	srv.handle(mux, "POST /api/v1/requests/{ref}/accept", "accept_request", srv.handleAccept)
	srv.handle(mux, "POST /api/v1/requests/{ref}/reject", "reject_request", srv.handleReject)
	srv.handle(mux, "PATCH /api/v1/requests/{ref}/status", "update_status", srv.handleUpdateStatus)
	srv.handle(mux, "POST /api/v1/requests/{ref}/cancel", "cancel_request", srv.handleCancel)
	srv.handle(mux, "PUT /api/v1/mechanics/me/location", "update_location", srv.handleUpdateLocation)
	srv.handle(mux, "GET /api/v1/activity/recent", "recent_activity", srv.handleRecentActivity)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	handler := srv.recoverMiddleware(srv.loggingMiddleware(srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the root handler, middleware included.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener.
func (s *HTTPServer) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		h(w, r)
	})
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    *keyAuth
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		keys:    newKeyAuth(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || isProbe(r) {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				if errors.Is(err, errPermissionDenied) {
					writeError(w, http.StatusForbidden, string(domain.KindForbidden), err.Error(), "")
					return
				}
				writeError(w, http.StatusUnauthorized, kindUnauthorized, err.Error(), "")
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, kindRateLimited, "rate limit exceeded", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	client, err := a.keys.authenticate(
		strings.TrimSpace(r.Header.Get(a.keys.headerAPIKey)),
		strings.TrimSpace(r.Header.Get(a.keys.headerExtra)),
	)
	if err != nil {
		return err
	}
	return authorize(client, requiredPermissionHTTP(r))
}

func requiredPermissionHTTP(r *http.Request) string {
	if !strings.HasPrefix(r.URL.Path, "/api/v1/") {
		return ""
	}
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return permReadRequests
	}
	return permWriteRequests
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.headerAPIKey)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/healthz" || r.URL.Path == "/readyz"
}

type ctxKey int

const requestIDKey ctxKey = iota

const requestIDHeader = "X-Request-ID"

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("http handler panic")
				writeError(w, http.StatusInternalServerError, kindInternal, "internal error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

const (
	kindUnauthorized = "UNAUTHORIZED"
	kindRateLimited  = "RATE_LIMITED"
	kindInternal     = "INTERNAL_ERROR"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, kind, message, details string) {
	writeJSON(w, statusCode, envelope{Error: &errorBody{Kind: kind, Message: message, Details: details}})
}

// statusFor maps engine error kinds onto HTTP status codes.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindAlreadyClaimed, domain.KindInvalidTransition, domain.KindMissingMechanicLocation:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeDomainError reports err with its stable kind. Wrapped internal causes
// are only exposed outside production.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	code := statusFor(kind)

	var details string
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		if !s.production {
			details = err.Error()
		}
	}
	writeError(w, code, string(kind), domain.MessageOf(err), details)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
