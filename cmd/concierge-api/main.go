package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/adminauth"
	"github.com/healo-ai/concierge/pkg/alerts"
	"github.com/healo-ai/concierge/pkg/attachments"
	"github.com/healo-ai/concierge/pkg/audit"
	"github.com/healo-ai/concierge/pkg/chat"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/config"
	"github.com/healo-ai/concierge/pkg/common/database"
	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/dlp"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/gateway/middleware"
	"github.com/healo-ai/concierge/pkg/inquiry"
	"github.com/healo-ai/concierge/pkg/leadquality"
	"github.com/healo-ai/concierge/pkg/llm"
	"github.com/healo-ai/concierge/pkg/normalizer"
	"github.com/healo-ai/concierge/pkg/notifications"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
	"github.com/healo-ai/concierge/pkg/rag"
	"github.com/healo-ai/concierge/pkg/ratelimit"
	"github.com/healo-ai/concierge/pkg/referral"
	"github.com/healo-ai/concierge/pkg/security"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	logger.Init()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}

	cipher, err := security.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid encryption key")
	}

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres(db)

	inquiryRepo := inquiry.NewRepository(db)
	auditRepo := audit.NewRepository(db)
	eventRepo := funnel.NewRepository(db)
	recipientRepo := notifications.NewRepository(db)
	ragRepo := rag.NewRepository(db)
	for name, migrate := range map[string]func() error{
		"inquiries":     inquiryRepo.AutoMigrate,
		"audit":         auditRepo.AutoMigrate,
		"events":        eventRepo.AutoMigrate,
		"notifications": recipientRepo.AutoMigrate,
		"rag":           ragRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("schema", name).Fatal("Failed to migrate database")
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var redisClient *redis.Client
	var limiterStore ratelimit.Store
	if cfg.RateLimitBackend == "redis" {
		redisClient, err = database.NewRedis(ctx, cfg)
		if err != nil {
			logger.Log.WithError(err).Warn("Redis unavailable at startup, rate limits will fail open until it recovers")
		}
		limiterStore = ratelimit.NewRedisStore(redisClient)
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.Run(ctx, time.Minute, 10*time.Minute)
		limiterStore = mem
	}
	limiter := ratelimit.NewLimiter(limiterStore)

	funnelProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaFunnelTopic)
	defer funnelProducer.Close()
	notifyProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaNotificationsTopic)
	defer notifyProducer.Close()
	alertProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaAlertsTopic)
	defer alertProducer.Close()

	thresholds, err := alerts.LoadThresholds(cfg.AlertThresholdsPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Using default alert thresholds")
	}
	counter := alerts.NewCounter()
	go counter.Run(ctx, time.Minute, time.Hour)
	monitor := alerts.NewMonitor(counter, thresholds, alertProducer)

	scoring, err := leadquality.LoadConfig(cfg.LeadScoringConfigPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Using default lead scoring weights")
	}

	rules, err := dlp.LoadRules(cfg.DLPRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Using default DLP rules")
		rules = dlp.DefaultRules()
	}
	detector, err := dlp.NewDetector(rules)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid DLP rules")
	}

	tracker := funnel.NewTracker(funnelProducer)
	auditor := audit.NewAuditor(auditRepo, audit.NewSanitizer(detector))

	identity, err := adminauth.NewProvider(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure admin identity provider")
	}
	gateOpts := adminauth.GateOptions{
		Allowlist:  cfg.AdminEmailAllowlist,
		CookieName: cfg.AdminSessionCookie,
		Auditor:    auditor,
	}
	if cfg.AdminRateLimit {
		gateOpts.Limiter = limiter
	}
	gate := adminauth.NewGate(identity, gateOpts)

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Log.WithError(err).Warn("LLM provider not configured, chat will return errors")
	}

	inquiryService := inquiry.NewService(inquiryRepo, cipher)
	normalizerService := normalizer.NewService(inquiryRepo, cipher, leadquality.NewScorer(scoring), monitor)
	signer := attachments.NewSupabaseSigner(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.AttachmentsBucket, cfg.UpstreamRequestTimeout)
	searcher := rag.NewSearcher(ragRepo)
	ingestor := rag.NewIngestor(ragRepo, ragRepo, cfg.RAGChunkMaxLength)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", readiness(db, redisClient)).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	inquiryHandler := inquiry.NewHandler(inquiryService, inquiry.Options{
		Limiter:     limiter,
		Tracker:     tracker,
		Monitor:     monitor,
		Notifier:    notifications.NewDispatcher(notifyProducer),
		Auditor:     auditor,
		AdminSecret: cfg.InternalAdminSecret,
	})
	inquiryHandler.Register(apiRouter)
	funnel.NewHandler(eventRepo).Register(apiRouter)
	attachmentService := attachments.NewService(inquiryRepo, signer, cfg.SignedURLTTL)
	attachments.NewHandler(attachmentService, limiter).Register(apiRouter)
	referral.NewHandler(referral.NewService(inquiryRepo, attachmentService), limiter).Register(apiRouter)
	normalizer.NewHandler(normalizerService, limiter, tracker, monitor).Register(apiRouter)
	ragHandler := rag.NewHandler(ingestor, searcher, inquiryRepo, cipher)
	ragHandler.Register(apiRouter)
	ragHandler.RegisterAdmin(apiRouter, gate.Middleware)
	chat.NewHandler(llmClient, searcher, chat.Options{
		Limiter:    limiter,
		Tracker:    tracker,
		Monitor:    monitor,
		Recorder:   normalizerService,
		Provider:   cfg.LLMProvider,
		MaxSources: cfg.ChatMaxSources,
		Verbose:    !cfg.IsProduction(),
	}).Register(apiRouter)

	// whoami reports the caller without gating or auditing.
	adminauth.NewHandler(gate).Register(apiRouter.PathPrefix("/admin").Subrouter())

	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(gate.Middleware)
	inquiryHandler.RegisterAdmin(adminRouter)
	audit.NewHandler(auditRepo).Register(adminRouter)
	notifications.NewHandler(recipientRepo).Register(adminRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":         cfg.ServerHost,
			"port":         cfg.ServerPort,
			"llm_provider": cfg.LLMProvider,
			"rate_limit":   cfg.RateLimitBackend,
		}).Info("Concierge API started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Concierge API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	stop()
	auditor.Wait()
	tracker.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Log.Info("Concierge API stopped")
}

func readiness(db *gorm.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok"}
		ready := true
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["postgres"] = "unavailable"
			ready = false
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unavailable"
				ready = false
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		api.WriteJSON(w, status, map[string]interface{}{"ready": ready, "checks": checks})
	}
}
