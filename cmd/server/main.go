// HTTP API кошельков и статистики
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/glkeru/recycle/internal/api"
	config "github.com/glkeru/recycle/internal/config"
	db "github.com/glkeru/recycle/internal/db"
	kafka "github.com/glkeru/recycle/internal/external/kafka"
	interf "github.com/glkeru/recycle/internal/interfaces"
	services "github.com/glkeru/recycle/internal/services"
	otel "github.com/glkeru/recycle/observability/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// log
	logger, err := config.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// tracing
	shutdown, err := otel.InitTracer(ctx, cfg.OtelEndpoint, cfg.OtelService, logger)
	if err != nil {
		logger.Fatal("tracer", zap.Error(err))
	}
	defer shutdown()

	// database
	store, closeStore, err := db.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer closeStore()

	locker, closeLocker, err := db.NewLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("locker", zap.Error(err))
	}
	defer closeLocker()

	// events
	var publisher interf.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		writer, err := kafka.NewEventsWriter(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		if err != nil {
			logger.Fatal("kafka", zap.Error(err))
		}
		defer writer.Close()
		publisher = writer
	}

	// services
	ledger := services.NewLedgerService(logger, store, locker, publisher, services.Options{
		Locale:           cfg.Locale,
		DefaultCommunity: cfg.DefaultCommunity,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.StoreTimeout,
	})
	stats := services.NewStatsService(logger, store, cfg.DefaultCommunity, cfg.StoreTimeout)

	// api handlers
	r := api.NewHandler(ledger, stats, logger)
	srv := &http.Server{
		Handler:      otelhttp.NewHandler(r, "recycle-http"),
		Addr:         ":" + cfg.HTTPPort,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()
	logger.Info("http server started", zap.String("port", cfg.HTTPPort))

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
