// Job - обработка заявок на награды
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	config "github.com/glkeru/recycle/internal/config"
	db "github.com/glkeru/recycle/internal/db"
	kafka "github.com/glkeru/recycle/internal/external/kafka"
	rabbit "github.com/glkeru/recycle/internal/external/rabbitmq"
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

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer(cfg.RabbitURL, cfg.RabbitRedeemQueue, cfg.RabbitConfirmQueue)
	if err != nil {
		logger.Fatal("rabbitmq", zap.Error(err))
	}
	defer reader.Close()

	var publisher interf.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
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

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go worker(ctx, serv, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, serv *services.LedgerService, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-reader.Msg:
			if !ok {
				return
			}
			handleRedeem(ctx, serv, logger, reader, msg)
		}
	}
}
