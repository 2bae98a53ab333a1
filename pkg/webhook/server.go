package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/internal/tracing"
	"github.com/harun/medibook/pkg/routing"
	"github.com/rs/zerolog"
)

const (
	defaultPort            = 8080
	defaultHost            = "0.0.0.0"
	defaultRateLimit       = 120
	defaultShutdownTimeout = 30 * time.Second
	defaultMaxBodyBytes    = 1 << 20
)

// Options configures the webhook server.
type Options struct {
	Host string
	Port int

	// RateLimitPerMinute caps requests per client IP; negative disables it.
	RateLimitPerMinute int
	DedupeTTL          time.Duration
	ShutdownTimeout    time.Duration
	MaxBodyBytes       int64

	// TelegramPathToken is the secret last segment of the Telegram webhook
	// path. TelegramSecretToken, when set, must match the
	// X-Telegram-Bot-Api-Secret-Token header.
	TelegramPathToken   string
	TelegramSecretToken string

	// WhatsAppURL is the public URL Twilio signs. Empty reconstructs it from
	// the request.
	WhatsAppURL string

	// MetricsPath exposes prometheus collectors; empty disables the route.
	MetricsPath string
}

// Server is the HTTP ingress for channel webhooks.
type Server struct {
	options Options
	router  *routing.Router
	handler routing.Handler

	mux       chi.Router
	server    *http.Server
	limiter   *RateLimiter
	dedupe    *DedupeCache
	logger    zerolog.Logger
	startTime time.Time

	stopOnce       sync.Once
	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// NewServer builds the ingress. handler receives every routed message.
func NewServer(options Options, router *routing.Router, handler routing.Handler, logger zerolog.Logger) (*Server, error) {
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if options.Port == 0 {
		options.Port = defaultPort
	}
	if options.Host == "" {
		options.Host = defaultHost
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = defaultRateLimit
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = defaultShutdownTimeout
	}
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		options:   options,
		router:    router,
		handler:   handler,
		limiter:   NewRateLimiter(options.RateLimitPerMinute),
		dedupe:    NewDedupeCache(options.DedupeTTL),
		logger:    logger.With().Str("component", "webhook").Logger(),
		startTime: time.Now(),
	}
	s.mux = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", options.Host, options.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.dedupe.Start()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestContext)

	r.Get("/health", s.handleHealth)
	if s.options.MetricsPath != "" {
		r.Method(http.MethodGet, s.options.MetricsPath, observability.MetricsHandler())
	}

	r.Route("/webhook", func(r chi.Router) {
		r.Use(s.trackInFlight)
		r.Use(s.rateLimit)

		r.Post("/telegram", s.handleTelegram)
		r.Post("/telegram/{token}", s.handleTelegram)
		r.Post("/whatsapp", s.handleWhatsApp)
		r.Get("/instagram", s.handleInstagramVerify)
		r.Post("/instagram", s.handleInstagram)
	})
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Strs("channels", s.router.Channels()).
		Msg("Starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}
	return nil
}

// Stop refuses new webhooks, waits for in-flight ones up to the shutdown
// timeout or ctx, then closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.shutdownMu.Lock()
		s.isShuttingDown = true
		s.shutdownMu.Unlock()

		s.logger.Info().Msg("Shutting down webhook server")

		done := make(chan struct{})
		go func() {
			s.inFlightReqs.Wait()
			close(done)
		}()

		timer := time.NewTimer(s.options.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-done:
			s.logger.Info().Msg("All in-flight requests completed")
		case <-timer.C:
			s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
		case <-ctx.Done():
			s.logger.Warn().Msg("Shutdown cancelled, forcing close")
		}

		s.limiter.Stop()
		s.dedupe.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.server.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("failed to shutdown webhook server: %w", shutdownErr)
			return
		}
		s.logger.Info().Msg("Webhook server stopped")
	})
	return err
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.NewRequestContext(r.Context())
		w.Header().Set("X-Request-ID", tracing.GetRequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Add under the read lock so Stop cannot start waiting between the
		// check and the Add.
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.CheckLimit(ip) {
			retryAfter := s.limiter.GetRetryAfter(ip)
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retry_after", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.shuttingDown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"uptime":    time.Since(s.startTime).Seconds(),
		"channels":  s.router.Channels(),
		"sessions":  s.router.Store().Size(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
