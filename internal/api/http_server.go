package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"courtbook/internal/booking"
	"courtbook/internal/config"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/reservation"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer exposes the booking core over HTTP for venue front-ends and
// partner integrations.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings *booking.Service
	reserve  *reservation.Engine
	courts   []models.Court
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings *booking.Service,
	reserve *reservation.Engine,
	courts []models.Court,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		reserve:  reserve,
		courts:   courts,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/courts", srv.handleCourts)
	mux.HandleFunc("/api/v1/admin/release", srv.handleAdminRelease)
	mux.HandleFunc("/api/v1/export/bookings", srv.handleExportBookings)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler. Tests drive it directly.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// HTTPAuth provides API-key auth and per-key rate limiting.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = "x-api-extra"
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return "admin:release"
	case strings.HasPrefix(path, "/api/v1/availability"):
		return "read:availability"
	case strings.HasPrefix(path, "/api/v1/export/"):
		return "read:bookings"
	case strings.HasPrefix(path, "/api/v1/bookings"):
		if r.Method == http.MethodGet {
			return "read:bookings"
		}
		return "write:bookings"
	case path == "/api/v1/courts":
		return "read:courts"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	lim := a.getLimiter(a.clientKey(r))
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(endpointLabel(r.URL.Path), strconv.Itoa(recorder.status))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// endpointLabel collapses IDs out of paths to keep metric cardinality bounded.
func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/bookings/"):
		rest := strings.TrimPrefix(path, "/api/v1/bookings/")
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/api/v1/bookings/{id}" + rest[idx:]
		}
		return "/api/v1/bookings/{id}"
	case strings.HasPrefix(path, "/api/v1/availability/"):
		return "/api/v1/availability/{court_id}"
	}
	return path
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
