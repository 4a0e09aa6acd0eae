// Job - прием чеков с весов пунктов приема
// Опрос Kafka -> расчет суммы по ценам сырья -> продажа в кошелек участника -> подтверждение смещения
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	config "github.com/glkeru/recycle/internal/config"
	db "github.com/glkeru/recycle/internal/db"
	kafka "github.com/glkeru/recycle/internal/external/kafka"
	interf "github.com/glkeru/recycle/internal/interfaces"
	services "github.com/glkeru/recycle/internal/services"
	otel "github.com/glkeru/recycle/observability/otel"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := otel.InitTracer(ctx, cfg.OtelEndpoint, cfg.OtelService, logger)
	if err != nil {
		logger.Fatal("tracer", zap.Error(err))
	}
	defer shutdown()

	// kafka
	reader, err := kafka.NewSalesReader(cfg.KafkaBrokers, cfg.KafkaSalesTopic, cfg.KafkaGroup)
	if err != nil {
		logger.Fatal("kafka", zap.Error(err))
	}
	defer reader.CloseReader()

	var publisher interf.EventPublisher
	if cfg.KafkaEventsTopic != "" {
		writer, err := kafka.NewEventsWriter(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		if err != nil {
			logger.Fatal("kafka", zap.Error(err))
		}
		defer writer.Close()
		publisher = writer
	}

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

	// services
	serv := services.NewLedgerService(logger, store, locker, publisher, services.Options{
		Locale:           cfg.Locale,
		DefaultCommunity: cfg.DefaultCommunity,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.StoreTimeout,
	})

	// os signals
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, cfg.Workers)

	for {
		ticket, err := reader.FetchSale(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("kafka read", zap.Error(err))
			}
			break
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(ticket kafka.SaleTicket) {
			defer wg.Done()
			defer func() { <-semaphore }()
			if !processSale(ctx, serv, logger, ticket.ID, ticket.Value, time.Second) {
				return
			}
			// не подтвержденный чек придет снова и будет опознан как повтор
			err := reader.Commit(ctx, ticket)
			if err != nil {
				logger.Error("kafka commit", zap.String("key", ticket.ID), zap.Error(err))
			}
		}(ticket)
	}
	wg.Wait()
}
