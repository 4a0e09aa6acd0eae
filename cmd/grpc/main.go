// gRPC server - кошелек, история транзакций и рейтинг
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	serv "github.com/glkeru/recycle/internal/api/grpc"
	config "github.com/glkeru/recycle/internal/config"
	db "github.com/glkeru/recycle/internal/db"
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

	ctx := context.Background()
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

	// только чтение: без блокировок и событий
	ledger := services.NewLedgerService(logger, store, nil, nil, services.Options{
		Locale:           cfg.Locale,
		DefaultCommunity: cfg.DefaultCommunity,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.StoreTimeout,
	})
	stats := services.NewStatsService(logger, store, cfg.DefaultCommunity, cfg.StoreTimeout)

	lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	grpcServer := serv.NewServer(serv.NewWalletService(ledger, stats, logger))
	go func() {
		err := grpcServer.Serve(lis)
		if err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()
	logger.Info("gRPC server started", zap.String("port", cfg.GRPCPort))

	<-interrupt
	grpcServer.GracefulStop()
}
