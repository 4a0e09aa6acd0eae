package recycle

import (
	"context"
	"fmt"

	config "github.com/glkeru/recycle/internal/config"
	interf "github.com/glkeru/recycle/internal/interfaces"
	"go.uber.org/zap"
)

// NewStore - хранилище по store.backend. Второе значение закрывает соединение
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interf.DocumentStore, func() error, error) {
	switch cfg.StoreBackend {
	case "mongo":
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTransactions, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store.backend %q", cfg.StoreBackend)
}

// NewLocker - redis, если задан redis.addr, иначе блокировка в процессе
func NewLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interf.MemberLocker, func() error, error) {
	if cfg.RedisAddr == "" {
		logger.Info("redis.addr is not set, wallet locks are local to the process")
		return NewLocalLocker(), func() error { return nil }, nil
	}
	l, err := NewRedisLocker(ctx, cfg.RedisAddr, cfg.RedisUser, cfg.RedisPassword, cfg.RedisLockTTL)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Close, nil
}
