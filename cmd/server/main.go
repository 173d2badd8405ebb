package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/application/notification"
	"github.com/orderbot/backend/internal/application/settings"
	webhookapp "github.com/orderbot/backend/internal/application/webhook"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/auth"
	"github.com/orderbot/backend/internal/infrastructure/cache"
	"github.com/orderbot/backend/internal/infrastructure/config"
	"github.com/orderbot/backend/internal/infrastructure/event"
	"github.com/orderbot/backend/internal/infrastructure/logger"
	"github.com/orderbot/backend/internal/infrastructure/persistence"
	"github.com/orderbot/backend/internal/infrastructure/scheduler"
	"github.com/orderbot/backend/internal/infrastructure/secret"
	"github.com/orderbot/backend/internal/infrastructure/sender"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"github.com/orderbot/backend/internal/interfaces/http/handler"
	"github.com/orderbot/backend/internal/interfaces/http/middleware"
	"github.com/orderbot/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//	@title			OrderBot API
//	@version		1.0
//	@description	Order notification and confirmation over Telegram, Messenger, WhatsApp and Viber

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const dispatchLockKey = "orderbot:dispatcher:lock"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Telemetry comes up before anything that emits spans or metrics
	providers, err := telemetry.Setup(rootCtx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = providers.Logs.Bridge(log, cfg.Telemetry.ServiceName, zap.InfoLevel)

	log.Info("Starting OrderBot",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	pipelineMetrics, err := telemetry.NewPipelineMetrics(providers.Meter.Meter("orderbot/pipeline"))
	if err != nil {
		log.Fatal("Failed to create pipeline metrics", zap.Error(err))
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterDBTracing(db.DB, cfg.Database.DBName, 200*time.Millisecond, log); err != nil {
			log.Warn("Database tracing unavailable", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Redis is optional; without it dedup and dashboard fan-out stay in-process
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = cache.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = rdb.Close()
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	box, err := newSecretBox(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	// Initialize repositories
	credentialRepo := persistence.NewGormCredentialRepository(db.DB, box)
	identityLinkRepo := persistence.NewGormIdentityLinkRepository(db.DB)
	tokenRepo := persistence.NewGormPreconnectTokenRepository(db.DB)
	bindingRepo := persistence.NewGormOrderBindingRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	confirmLinkRepo := persistence.NewGormConfirmationLinkRepository(db.DB)
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	outboundRepo := persistence.NewGormOutboundRepository(db.DB)

	resolver := channel.NewCredentialResolver(credentialRepo, sender.NewPlatformCredentials(cfg))
	senders := sender.NewRegistryFromConfig(cfg)
	telegramSender, _ := senders.Telegram()
	messengerSender, _ := senders.Messenger()

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log, event.WithObserver(pipelineMetrics))

	// Initialize application services
	decider := confirmation.NewService(orderRepo, eventBus, log)
	decider.SetMetrics(pipelineMetrics)

	linkService := confirmation.NewLinkService(confirmation.LinkConfig{
		TTL:           cfg.Confirmation.LinkTTL,
		PublicBaseURL: cfg.Confirmation.PublicBaseURL,
	}, auth.NewLinkSigner(cfg.Confirmation.SigningSecret), confirmLinkRepo, orderRepo, tenantRepo, decider, log)

	linker := linking.NewService(linking.Config{
		TokenTTL:     cfg.Linking.TokenTTL,
		SharedWindow: cfg.Linking.SharedWindow,
	}, resolver, linking.Repositories{
		Tokens:   tokenRepo,
		Links:    identityLinkRepo,
		Bindings: bindingRepo,
		Tenants:  tenantRepo,
		Orders:   orderRepo,
		Outbound: outboundRepo,
	}, eventBus, log)

	notifications := notification.NewService(tenantRepo, orderRepo, identityLinkRepo, outboundRepo, resolver, linker, linkService, log)
	notifications.SetMetrics(pipelineMetrics)

	settingsService := settings.NewService(settings.Config{
		TelegramSecretSalt: cfg.Telegram.WebhookSecretSalt,
		TelegramWebhookURL: cfg.Telegram.WebhookURL,
	}, credentialRepo, resolver, tenantRepo, telegramSender, messengerSender, log)

	var dedup shared.IdempotencyStore
	if rdb != nil {
		dedup = cache.NewRedisDedupStore(rdb, "orderbot:webhook:")
	} else {
		memDedup := cache.NewInMemoryDedupStore()
		defer func() {
			_ = memDedup.Close()
		}()
		dedup = memDedup
	}

	webhookService := webhookapp.NewService(webhookapp.Config{
		TelegramSecretSalt:   cfg.Telegram.WebhookSecretSalt,
		MessengerAppSecret:   cfg.Messenger.AppSecret,
		MessengerVerifyToken: cfg.Messenger.VerifyToken,
	}, webhookapp.Dependencies{
		Credentials: credentialRepo,
		Resolver:    resolver,
		Orders:      orderRepo,
		Linker:      linker,
		Decider:     decider,
		Links:       linkService,
		Dedup:       dedup,
		Telegram:    telegramSender,
		Messenger:   messengerSender,
		Logger:      log,
	})
	webhookService.SetMetrics(pipelineMetrics)

	// Outbound dispatcher
	delivery := notification.NewDelivery(notification.DeliveryConfigFrom(cfg.Dispatcher),
		outboundRepo, orderRepo, identityLinkRepo, bindingRepo, resolver, senders, log)
	delivery.SetMetrics(pipelineMetrics)

	dispatcherOpts := []scheduler.DispatcherOption{scheduler.WithTickObserver(pipelineMetrics)}
	if cfg.Dispatcher.DistributedLock {
		dispatcherOpts = append(dispatcherOpts,
			scheduler.WithLocker(scheduler.NewRedsyncLocker(rdb, dispatchLockKey, cfg.Dispatcher.Lease, log)))
	}
	dispatcher, err := scheduler.NewOutboundDispatcher(scheduler.DispatcherConfigFrom(cfg.Dispatcher), delivery, log, dispatcherOpts...)
	if err != nil {
		log.Fatal("Failed to create outbound dispatcher", zap.Error(err))
	}

	// Dashboard fan-out
	hubOpts := []confirmation.DashboardOption{}
	if rdb != nil {
		pubsub := cache.NewRedisPubSub(rdb, cache.WithPubSubLogger(log))
		defer func() {
			_ = pubsub.Close()
		}()
		hubOpts = append(hubOpts, confirmation.WithFanout(pubsub))
	}
	hub := confirmation.NewDashboardHub(log, hubOpts...)
	go func() {
		if err := hub.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Error("Dashboard fan-out stopped", zap.Error(err))
		}
	}()

	// Register event handlers
	eventBus.Subscribe(hub.EventHandler())
	eventBus.Subscribe(confirmation.NewSupersedeHandler(outboundRepo, log))
	eventBus.Subscribe(notification.NewBacklogHandler(outboundRepo, dispatcher, pipelineMetrics, log))

	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Dispatcher.Enabled {
		if err := dispatcher.Start(rootCtx); err != nil {
			log.Fatal("Failed to start outbound dispatcher", zap.Error(err))
		}
	} else {
		log.Warn("Outbound dispatcher disabled; messages will queue without being sent")
	}

	var housekeeper *scheduler.Housekeeper
	if cfg.Housekeeping.Enabled {
		housekeeper, err = scheduler.NewHousekeeper(cfg.Housekeeping.Schedule, []scheduler.PurgeTask{
			{Name: "preconnect_tokens", Retention: cfg.Housekeeping.TokenRetention, Purge: tokenRepo.DeleteExpired},
			{Name: "confirmation_links", Retention: cfg.Housekeeping.LinkRetention, Purge: confirmLinkRepo.DeleteExpired},
			{Name: "sent_messages", Retention: cfg.Housekeeping.SentMessageRetention, Purge: outboundRepo.DeleteSentBefore},
		}, log)
		if err != nil {
			log.Fatal("Failed to create housekeeper", zap.Error(err))
		}
		if err := housekeeper.Start(rootCtx); err != nil {
			log.Fatal("Failed to start housekeeper", zap.Error(err))
		}
	}

	// Rate limiters
	perSecond := float64(cfg.HTTP.RateLimitRequests) / cfg.HTTP.RateLimitWindow.Seconds()
	ipLimiter := middleware.NewRateLimiter(perSecond, cfg.HTTP.RateLimitRequests)
	tenantLimiter := middleware.NewRateLimiter(perSecond, cfg.HTTP.RateLimitRequests)
	go ipLimiter.Run(rootCtx)
	go tenantLimiter.Run(rootCtx)

	// Setup Gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(providers.Meter),
		middleware.Profiling(cfg.Telemetry.ProfilingEnabled, "/health", "/ready"),
		middleware.SecureWithConfig(middleware.DefaultSecurityConfig()),
		middleware.CORSWithConfig(corsCfg),
	)

	checks := map[string]handler.Pinger{}
	if sqlDB, err := db.DB.DB(); err == nil {
		checks["database"] = sqlDB
	}
	if rdb != nil {
		checks["redis"] = redisPinger{rdb}
	}

	// The dashboard stream is long-lived, so only the short routes get a handler deadline.
	webhookMW := []gin.HandlerFunc{middleware.BodyLimit(min(cfg.HTTP.MaxBodySize, middleware.DefaultWebhookBodyLimit)), middleware.Timeout(cfg.HTTP.HandlerTimeout)}
	confirmMW := []gin.HandlerFunc{middleware.Timeout(cfg.HTTP.HandlerTimeout)}
	if cfg.HTTP.RateLimitEnabled {
		webhookMW = append(webhookMW, middleware.RateLimit(ipLimiter))
		confirmMW = append(confirmMW, middleware.RateLimit(ipLimiter))
	}
	apiMW := []gin.HandlerFunc{
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
			JWTService:      auth.NewJWTService(cfg.JWT),
			QueryTokenPaths: []string{router.DashboardStreamPath},
			Logger:          log,
		}),
	}
	if cfg.HTTP.RateLimitEnabled {
		apiMW = append(apiMW, middleware.RateLimitByKey(tenantLimiter, middleware.TenantKey))
	}

	router.Mount(engine, router.Handlers{
		System:    handler.NewSystemHandler(version, checks),
		Webhook:   handler.NewWebhookHandler(webhookService),
		Confirm:   handler.NewConfirmHandler(linkService),
		Tenant:    handler.NewTenantHandler(settingsService, linker),
		Order:     handler.NewOrderHandler(notifications),
		Dashboard: handler.NewDashboardSSEHandler(hub, handler.WithSSELogger(log)),
	}, router.Middleware{
		Webhook: webhookMW,
		Confirm: confirmMW,
		API:     apiMW,
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first, then drain background work
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if housekeeper != nil {
		if err := housekeeper.Stop(ctx); err != nil {
			log.Error("Error stopping housekeeper", zap.Error(err))
		}
	}
	if dispatcher.IsRunning() {
		if err := dispatcher.Stop(ctx); err != nil {
			log.Error("Error stopping outbound dispatcher", zap.Error(err))
		}
	}
	stop()
	if err := providers.Shutdown(ctx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newSecretBox builds the credential sealer. Outside production (where
// config validation demands a key) an unset key falls back to one derived
// from the JWT secret so a fresh checkout runs without setup.
func newSecretBox(cfg *config.Config, log *zap.Logger) (*secret.Box, error) {
	if cfg.Secrets.EncryptionKey != "" {
		return secret.NewBox(cfg.Secrets.EncryptionKey)
	}
	log.Warn("secrets.encryption_key not set; using a development key")
	return secret.NewDevelopmentBox(cfg.JWT.Secret), nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
