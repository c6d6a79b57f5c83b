package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"safepaw/internal/config"
	"safepaw/internal/domain"
	"safepaw/internal/metrics"
	"safepaw/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deps are the services the HTTP API dispatches to.
type Deps struct {
	Bookings   *service.BookingService
	Payments   *service.PaymentService
	Caregivers *service.CaregiverService
	Media      *service.MediaService
	Verifier   domain.IdentityVerifier
	// Ready reports whether the booking store can serve requests.
	Ready    func(ctx context.Context) error
	Location *time.Location
}

// HTTPServer exposes the booking API.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	auth    *HTTPAuth
	handler http.Handler
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	srv := &HTTPServer{cfg: cfg, deps: deps, logger: &httpLogger}
	srv.auth = NewHTTPAuth(deps.Verifier, newRateLimiter(cfg.RateLimit), &httpLogger)

	mux := http.NewServeMux()
	srv.routes(mux)
	srv.handler = srv.loggingMiddleware(metricsMiddleware(corsMiddleware(cfg.HTTP.AllowedOrigins, mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.Wrap(h))
	}
	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.WrapPublic(h))
	}

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	private("POST /api/v1/bookings", s.handleCreateBooking)
	private("GET /api/v1/bookings/{id}", s.handleGetBooking)
	private("GET /api/v1/bookings/{id}/events", s.handleBookingEvents)
	private("POST /api/v1/bookings/{id}/transitions", s.handleTransition)
	private("POST /api/v1/bookings/{id}/payment", s.handleStartPayment)
	private("POST /api/v1/uploads/photo", s.handleUploadPhoto)
	private("GET /api/v1/me/bookings", s.handleOwnerBookings)

	private("GET /api/v1/caregivers/me/bookings", s.handleCaregiverBookings)
	private("GET /api/v1/caregivers/me/bookings/pending-count", s.handlePendingCount)
	private("GET /api/v1/caregivers/me/bookings/export.xlsx", s.handleExport)
	private("PUT /api/v1/caregivers/me", s.handleSaveProfile)
	public("GET /api/v1/caregivers", s.handleListCaregivers)
	public("GET /api/v1/caregivers/{id}", s.handleGetCaregiver)

	private("GET /api/v1/wompi/acceptance-token", s.handleAcceptanceToken)
	public("POST /api/v1/wompi/webhook", s.handleWompiWebhook)
	private("POST /api/v1/cloudinary/sign", s.handleSignUpload)
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
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

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
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

		evt := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		}
		evt.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)
	})
}

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		return next
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		body := map[string]string{"error": err.Error()}
		if field := domain.FieldOf(err); field != "" {
			body["field"] = field
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "conflict"})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "invalid_transition"})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, domain.ErrCollaboratorUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("collaborator unavailable")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps server-sent events working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
