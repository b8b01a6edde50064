package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neogan74/bakery/internal/acl"
	"github.com/neogan74/bakery/internal/audit"
	"github.com/neogan74/bakery/internal/auth"
	"github.com/neogan74/bakery/internal/config"
	"github.com/neogan74/bakery/internal/handlers"
	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/metrics"
	"github.com/neogan74/bakery/internal/middleware"
	"github.com/neogan74/bakery/internal/persistence"
	"github.com/neogan74/bakery/internal/ratelimit"
	"github.com/neogan74/bakery/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Builder wires bakery application dependencies.
type Builder struct {
	cfg     *config.Config
	version string
	now     func() time.Time

	logger         logger.Logger
	fiberApp       *fiber.App
	tracerProvider *telemetry.Provider
	engine         persistence.Engine
	credentials    identity.Store
	codec          *auth.Codec
	policies       []acl.Policy
	evaluator      *acl.Evaluator
	adminAccess    acl.Access
	auditor        *audit.Manager
	searcher       *audit.Searcher
	loginLimiter   *ratelimit.Store
	closers        []func()
}

// NewBuilder creates a new application builder.
func NewBuilder(cfg *config.Config, version string) *Builder {
	return &Builder{cfg: cfg, version: version, now: time.Now, policies: acl.DefaultPolicies()}
}

// WithLogger overrides the logger built from configuration.
func (b *Builder) WithLogger(log logger.Logger) *Builder {
	b.logger = log
	return b
}

// WithPolicies replaces the registered authorization policies. The set
// must still define RequireAdminRole.
func (b *Builder) WithPolicies(policies ...acl.Policy) *Builder {
	b.policies = policies
	return b
}

// WithClock overrides the clock used to issue and validate tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build assembles the application. Any component failing to start aborts
// the build and releases what was already opened.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	b.initLogger()
	b.recordStartupMetrics()

	if err := b.initTracing(ctx); err != nil {
		return nil, err
	}

	steps := []func(context.Context) error{
		b.initPersistence,
		b.initCredentials,
		b.initSecurity,
		b.initAudit,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			b.cleanupOnError()
			return nil, err
		}
	}

	b.initLoginLimiter()
	b.initFiber()
	b.initRoutes()

	return &App{
		cfg:      b.cfg,
		logger:   b.logger,
		fiberApp: b.fiberApp,
		closers:  b.closers,
	}, nil
}

func (b *Builder) initLogger() {
	if b.logger == nil {
		b.logger = logger.NewFromConfig(b.cfg.Log.Level, b.cfg.Log.Format)
	}
	logger.SetDefault(b.logger)
}

func (b *Builder) recordStartupMetrics() {
	metrics.BuildInfo.WithLabelValues(b.version, runtime.Version()).Set(1)

	b.logger.Info("Starting bakery API",
		logger.String("version", b.version),
		logger.String("address", b.cfg.Address()),
		logger.String("log_level", b.cfg.Log.Level),
		logger.String("credentials_backend", b.cfg.Credentials.Backend),
		logger.String("audit_store", b.cfg.Persistence.Type),
		logger.Bool("audit_enabled", b.cfg.Audit.Enabled),
	)
}

func (b *Builder) initTracing(ctx context.Context) error {
	provider, err := telemetry.Init(ctx, b.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	b.tracerProvider = provider

	if provider.Enabled() {
		b.logger.Info("OpenTelemetry tracing initialized",
			logger.String("endpoint", b.cfg.Tracing.Endpoint),
			logger.String("service_name", b.cfg.Tracing.ServiceName),
		)
		b.addCloser(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				b.logger.Error("Failed to shutdown tracer provider", logger.Error(err))
			}
		})
	}
	return nil
}

func (b *Builder) initPersistence(context.Context) error {
	engine, err := persistence.NewEngine(persistence.Config{
		Type:       b.cfg.Persistence.Type,
		DataDir:    b.cfg.Persistence.DataDir,
		SyncWrites: b.cfg.Persistence.SyncWrites,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}
	b.engine = engine

	b.addCloser(func() {
		if err := engine.Close(); err != nil {
			b.logger.Error("Failed to close audit store", logger.Error(err))
		}
	})
	return nil
}

func (b *Builder) initCredentials(ctx context.Context) error {
	switch b.cfg.Credentials.Backend {
	case "postgres":
		pg, err := identity.OpenPostgres(ctx, b.cfg.Credentials.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return fmt.Errorf("failed to migrate credential store: %w", err)
		}
		b.credentials = pg
	default:
		b.credentials = identity.NewMemoryStore()
	}

	store := b.credentials
	b.addCloser(func() {
		if err := store.Close(); err != nil {
			b.logger.Error("Failed to close credential store", logger.Error(err))
		}
	})

	if !b.cfg.Credentials.SeedUsers {
		return nil
	}
	created, err := identity.Seed(ctx, b.credentials, identity.DefaultSeedAccounts())
	if err != nil {
		return fmt.Errorf("failed to seed accounts: %w", err)
	}
	if len(created) > 0 {
		b.logger.Info("Seeded staff accounts", logger.Strings("usernames", created))
	}
	return nil
}

func (b *Builder) initSecurity(context.Context) error {
	codec, err := auth.NewCodec(b.cfg.Auth.SigningKey, b.cfg.Auth.Issuer, b.cfg.Auth.Audience)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	evaluator, err := acl.NewEvaluator(b.logger, b.policies...)
	if err != nil {
		return fmt.Errorf("failed to register policies: %w", err)
	}
	adminAccess, err := evaluator.Require(acl.RequireAdminRole)
	if err != nil {
		return fmt.Errorf("failed to resolve route policies: %w", err)
	}

	b.codec = codec
	b.evaluator = evaluator
	b.adminAccess = adminAccess
	return nil
}

func (b *Builder) initAudit(context.Context) error {
	manager, err := audit.NewManager(audit.Config{
		Enabled:       b.cfg.Audit.Enabled,
		Sink:          b.cfg.Audit.Sink,
		FilePath:      b.cfg.Audit.FilePath,
		BufferSize:    b.cfg.Audit.BufferSize,
		FlushInterval: b.cfg.Audit.FlushInterval,
		DropPolicy:    audit.DropPolicy(b.cfg.Audit.DropPolicy),
		BlockTimeout:  b.cfg.Audit.BlockTimeout,
	}, b.engine, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit recorder: %w", err)
	}
	b.auditor = manager
	b.searcher = audit.NewSearcher(b.engine, b.logger)

	// Registered after the store closer so that pending events are flushed
	// before the store closes.
	b.addCloser(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("Failed to flush audit events", logger.Error(err))
		}
	})

	if manager.Enabled() {
		b.logger.Info("Audit recording enabled",
			logger.String("sink", b.cfg.Audit.Sink),
			logger.String("drop_policy", b.cfg.Audit.DropPolicy),
			logger.Duration("block_timeout", b.cfg.Audit.BlockTimeout),
		)
	}
	return nil
}

func (b *Builder) initLoginLimiter() {
	if !b.cfg.LoginLimit.Enabled {
		return
	}

	b.loginLimiter = ratelimit.NewStore(ratelimit.Config{
		RequestsPerSec: b.cfg.LoginLimit.RequestsPerSec,
		Burst:          b.cfg.LoginLimit.Burst,
	})
	limiter := b.loginLimiter
	b.addCloser(limiter.Close)

	b.logger.Info("Login throttling enabled",
		logger.String("requests_per_sec", fmt.Sprintf("%.1f", b.cfg.LoginLimit.RequestsPerSec)),
		logger.Int("burst", b.cfg.LoginLimit.Burst),
	)
}

func (b *Builder) initFiber() {
	b.fiberApp = fiber.New(fiber.Config{
		AppName:      "bakery",
		ErrorHandler: middleware.ErrorHandler(b.logger),
	})

	b.fiberApp.Use(recover.New())
	if len(b.cfg.Server.CORSOrigins) > 0 {
		b.fiberApp.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(b.cfg.Server.CORSOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}))
	}
	b.fiberApp.Use(middleware.RequestLogging(b.logger))
	b.fiberApp.Use(middleware.MetricsMiddleware())
	if b.tracerProvider.Enabled() {
		b.fiberApp.Use(middleware.TracingMiddleware(b.cfg.Tracing.ServiceName))
	}
}

func (b *Builder) initRoutes() {
	authz := middleware.NewAuthorizer(b.codec, b.evaluator, b.now)
	recordAudit := middleware.AuditMiddleware(b.auditor)
	adminOnly := authz.Guard(b.adminAccess)

	accountHandler := handlers.NewAccountHandler(b.credentials, b.codec, b.now, b.logger)
	logsHandler := handlers.NewLogsHandler(b.searcher)
	healthHandler := handlers.NewHealthHandler(b.version, map[string]handlers.Pinger{
		"credentials": b.credentials,
		"audit_store": b.engine,
	})

	account := b.fiberApp.Group("/account")
	account.Post("/login",
		authz.Guard(acl.Anonymous()),
		middleware.RateLimitMiddleware(b.loginLimiter, "login"),
		recordAudit,
		accountHandler.Login)
	account.Post("/register", adminOnly, recordAudit, accountHandler.Register)
	account.Get("/me", authz.Guard(acl.Authenticated()), accountHandler.Me)

	b.fiberApp.Get("/searchlog", adminOnly, logsHandler.Search)

	if b.cfg.Credentials.SeedRoute {
		seedHandler := handlers.NewSeedHandler(b.credentials, identity.DefaultSeedAccounts())
		b.fiberApp.Put("/seed", authz.Guard(acl.Anonymous()), recordAudit, seedHandler.Seed)
		b.logger.Warn("Seed route enabled; disable BAKERY_SEED_ROUTE outside development")
	}

	b.fiberApp.Get("/health", healthHandler.Check)
	b.fiberApp.Get("/health/live", healthHandler.Liveness)
	b.fiberApp.Get("/health/ready", healthHandler.Readiness)

	b.fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (b *Builder) addCloser(closer func()) {
	b.closers = append(b.closers, closer)
}

func (b *Builder) cleanupOnError() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// App represents a configured bakery application ready to run.
type App struct {
	cfg      *config.Config
	logger   logger.Logger
	fiberApp *fiber.App
	closers  []func()
}

// Handler exposes the fiber application, mainly for in-process tests.
func (a *App) Handler() *fiber.App {
	return a.fiberApp
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains the server and releases every component.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)

	go func() {
		if a.cfg.Server.TLS.Enabled {
			a.logger.Info("Server starting with TLS",
				logger.String("address", a.cfg.Address()),
				logger.String("cert", a.cfg.Server.TLS.CertFile),
			)
			serverErr <- a.fiberApp.ListenTLS(a.cfg.Address(), a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
			return
		}
		a.logger.Info("Server starting", logger.String("address", a.cfg.Address()))
		serverErr <- a.fiberApp.Listen(a.cfg.Address())
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Failed to start server", logger.Error(err))
			a.Close()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")

	if err := a.fiberApp.ShutdownWithTimeout(shutdownTimeout); err != nil {
		a.logger.Error("Server forced to shutdown", logger.Error(err))
	}

	a.Close()

	if err := <-serverErr; err != nil {
		return err
	}

	a.logger.Info("Server exited gracefully")
	return nil
}

// Close releases every component in reverse start order. It is safe to
// call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
