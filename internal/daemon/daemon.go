package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/harun/medibook/internal/config"
	"github.com/harun/medibook/internal/logger"
	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/internal/tracing"
	"github.com/harun/medibook/pkg/channels"
	"github.com/harun/medibook/pkg/channels/instagram"
	"github.com/harun/medibook/pkg/channels/telegram"
	"github.com/harun/medibook/pkg/channels/whatsapp"
	"github.com/harun/medibook/pkg/conversation"
	"github.com/harun/medibook/pkg/identity"
	"github.com/harun/medibook/pkg/notify"
	"github.com/harun/medibook/pkg/routing"
	"github.com/harun/medibook/pkg/webhook"
)

// Daemon wires the session store, channel adapters, router, webhook ingress
// and expiry sweeper into one service.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	version string
	handler routing.Handler

	store    *conversation.Store
	registry *channels.Registry
	notifier *notify.AdminNotifier
	router   *routing.Router
	identity io.Closer

	webhookServer *webhook.Server
	sweeper       *conversation.Sweeper
	lifecycle     *LifecycleManager

	serveErr chan error
	wg       sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHandler sets the business handler every routed message is passed to.
func WithHandler(h routing.Handler) Option {
	return func(d *Daemon) {
		if h != nil {
			d.handler = h
		}
	}
}

// WithVersion sets the version reported to the tracer resource.
func WithVersion(v string) Option {
	return func(d *Daemon) {
		if v != "" {
			d.version = v
		}
	}
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Daemon{
		config:   cfg,
		logger:   log,
		version:  "dev",
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.handler == nil {
		d.handler = NewLogHandler(log.Component("handler"))
	}

	observability.EnsureRegistered()
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, d.version, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.release()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.release()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

// initializeCoreModules builds the store, adapters and router.
func (d *Daemon) initializeCoreModules() error {
	if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if path := d.config.Logging.AuditFile; path != "" {
		if err := observability.InitAuditLogger(path); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			d.logger.Info().Str("path", path).Msg("Audit logger initialized")
		}
	}

	d.store = conversation.NewStore()
	d.logger.Info().Msg("Session store initialized")

	d.registry = channels.NewRegistry()
	d.notifier = notify.NewAdminNotifier(d.registry, adminRecipients(d.config))

	mapper, err := d.newIdentityMapper()
	if err != nil {
		return err
	}
	d.router = routing.NewRouter(d.store,
		routing.WithMapper(mapper),
		routing.WithRegistry(d.registry),
	)

	for _, adapter := range d.buildAdapters() {
		adapter.Sender().Policy = retryPolicy(d.config.Retry)
		if err := d.router.RegisterAdapter(adapter.Name(), adapter); err != nil {
			return fmt.Errorf("failed to register %s adapter: %w", adapter.Name(), err)
		}
	}
	d.logger.Info().Strs("channels", d.router.Channels()).Msg("Channel adapters registered")

	return nil
}

// initializeServices builds the webhook ingress and the expiry sweeper.
func (d *Daemon) initializeServices() error {
	hook := d.config.Webhook
	options := webhook.Options{
		Host:                hook.Host,
		Port:                hook.Port,
		RateLimitPerMinute:  hook.RateLimitPerMinute,
		DedupeTTL:           time.Duration(hook.DedupeTTLSeconds) * time.Second,
		ShutdownTimeout:     time.Duration(hook.ShutdownTimeoutSeconds) * time.Second,
		MaxBodyBytes:        hook.MaxBodyBytes,
		TelegramPathToken:   hook.TelegramPathToken,
		TelegramSecretToken: hook.TelegramSecretToken,
		WhatsAppURL:         d.config.WhatsApp.WebhookURL,
	}
	if d.config.Metrics.Enabled {
		options.MetricsPath = d.config.Metrics.Path
	}

	server, err := webhook.NewServer(options, d.router, d.handler, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}
	d.webhookServer = server

	d.sweeper = conversation.NewSweeper(d.store, d.config.Session.MaxAge(), d.config.Session.CleanupSchedule)
	return nil
}

// sendingAdapter is a channel adapter that exposes its retry envelope.
type sendingAdapter interface {
	channels.Adapter
	Sender() *channels.Sender
}

// buildAdapters creates an adapter for every configured channel.
func (d *Daemon) buildAdapters() []sendingAdapter {
	cfg := d.config
	var adapters []sendingAdapter

	if cfg.Telegram.BotToken != "" {
		adapters = append(adapters, telegram.New(telegram.Config{
			BotToken:    cfg.Telegram.BotToken,
			APIEndpoint: cfg.Telegram.APIEndpoint,
			Timeout:     time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
		}, d.notifier))
	}

	if cfg.WhatsApp.Configured() {
		adapters = append(adapters, whatsapp.New(whatsapp.Config{
			AccountSID: cfg.WhatsApp.AccountSID,
			AuthToken:  cfg.WhatsApp.AuthToken,
			FromNumber: cfg.WhatsApp.FromNumber,
		}, d.notifier))
	}

	if cfg.Instagram.Configured() {
		adapters = append(adapters, instagram.New(instagram.Config{
			PageAccessToken: cfg.Instagram.PageAccessToken,
			AppSecret:       cfg.Instagram.AppSecret,
			VerifyToken:     cfg.Instagram.VerifyToken,
			APIBase:         cfg.Instagram.APIBase,
			Timeout:         time.Duration(cfg.Instagram.TimeoutSeconds) * time.Second,
		}, d.notifier))
	}

	return adapters
}

func (d *Daemon) newIdentityMapper() (routing.IdentityMapper, error) {
	switch d.config.Identity.Driver {
	case config.IdentitySQLite:
		mapper, err := identity.OpenSQLite(d.config.Identity.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open identity store: %w", err)
		}
		d.identity = mapper
		return mapper, nil
	default:
		return routing.NewHashMapper(), nil
	}
}

func adminRecipients(cfg *config.Config) map[string][]string {
	recipients := make(map[string][]string)
	for _, id := range cfg.Telegram.AdminChatIDs {
		recipients[telegram.Name] = append(recipients[telegram.Name], strconv.FormatInt(id, 10))
	}
	return recipients
}

func retryPolicy(cfg config.RetryConfig) channels.RetryPolicy {
	return channels.RetryPolicy{
		Attempts:   cfg.Attempts,
		Multiplier: cfg.Multiplier,
		MinWait:    cfg.MinWait(),
		MaxWait:    cfg.MaxWait(),
	}
}

// Start starts the daemon and returns once every service is running.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting medibook daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.sweeper.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	logger.Info().Msg("Session sweeper started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.webhookServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Webhook server failed")
			d.serveErr <- err
		}
	}()

	logger.Info().
		Str("addr", d.webhookServer.Addr()).
		Strs("channels", d.router.Channels()).
		Msg("Medibook daemon started")
	return nil
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping medibook daemon")

	var firstErr error
	if err := d.webhookServer.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop webhook server")
		firstErr = err
	}
	d.wg.Wait()

	if err := d.sweeper.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop session sweeper")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.release()
	logger.Info().Msg("Medibook daemon stopped")
	return firstErr
}

// release closes resources owned outside the running services.
func (d *Daemon) release() {
	if d.identity != nil {
		if err := d.identity.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close identity store")
		}
		d.identity = nil
	}
	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to shutdown tracing")
		}
		d.tracingEnabled = false
	}
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Errors delivers a fatal webhook listener error, e.g. the port is taken.
func (d *Daemon) Errors() <-chan error {
	return d.serveErr
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Channels: d.router.Channels(),
		Sessions: d.store.Size(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Channels  []string
	Sessions  int
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetRouter returns the message router
func (d *Daemon) GetRouter() *routing.Router {
	return d.router
}

// GetStore returns the session store
func (d *Daemon) GetStore() *conversation.Store {
	return d.store
}

// GetWebhookServer returns the webhook ingress
func (d *Daemon) GetWebhookServer() *webhook.Server {
	return d.webhookServer
}

// GetSweeper returns the session expiry sweeper
func (d *Daemon) GetSweeper() *conversation.Sweeper {
	return d.sweeper
}
