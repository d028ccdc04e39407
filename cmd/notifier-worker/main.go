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
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/config"
	"github.com/healo-ai/concierge/pkg/common/database"
	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/notifications"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
)

// notifier-worker drains the admin notification topic and sends SMS.
func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres(db)

	provider, err := notifications.NewProvider(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure SMS provider")
	}

	recipients := notifications.NewRepository(db)
	events := funnel.NewRepository(db)
	notifier := notifications.NewNotifier(
		notifications.NewDirectory(recipients, cfg.AdminPhoneNumbers),
		provider,
		events,
		cfg.AdminDashboardURL,
	)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaNotificationsTopic, cfg.KafkaGroupID+"-notifier")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Consume(ctx, notifier.EventHandler()); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	port := os.Getenv("NOTIFIER_PORT")
	if port == "" {
		port = "8081"
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, port),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic":    cfg.KafkaNotificationsTopic,
			"provider": provider.Name(),
			"port":     port,
		}).Info("Notifier worker started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down notifier worker...")
	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Notifier worker stopped")
}
