// Job - заполнение community у старых пользователей и транзакций
package main

import (
	"context"
	"flag"

	config "github.com/glkeru/recycle/internal/config"
	db "github.com/glkeru/recycle/internal/db"
	services "github.com/glkeru/recycle/internal/services"
	"go.uber.org/zap"
)

func main() {
	community := flag.String("community", "", "community for documents without one (default ledger.default_community)")
	flag.Parse()

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
	store, closeStore, err := db.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer closeStore()

	stats := services.NewStatsService(logger, store, cfg.DefaultCommunity, cfg.StoreTimeout)
	updated, err := stats.BackfillMissingCommunity(ctx, *community)
	if err != nil {
		logger.Fatal("backfill", zap.Int("updated", updated), zap.Error(err))
	}
	logger.Info("backfill done", zap.Int("updated", updated))
}
