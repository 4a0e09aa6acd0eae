package main

import (
	"context"
	"time"

	model "github.com/glkeru/recycle/internal/models"
	services "github.com/glkeru/recycle/internal/services"
	"go.uber.org/zap"
)

const maxRetryDelay = 30 * time.Second

type saleProcessor interface {
	SaleProcess(ctx context.Context, key string, sale []byte) (*model.Result, error)
}

// processSale - true: чек проведен или отклонен окончательно, смещение можно подтверждать.
// Ошибки хранилища повторяются до успеха или остановки, повтор проведенного чека не начисляет второй раз
func processSale(ctx context.Context, serv saleProcessor, logger *zap.Logger, key string, sale []byte, delay time.Duration) bool {
	for {
		res, err := serv.SaleProcess(ctx, key, sale)
		if err == nil {
			if !res.Success {
				logger.Warn("sale rejected", zap.String("key", key), zap.String("code", string(res.Code)), zap.String("message", res.Message))
			}
			return true
		}
		if services.IsPermanent(err) {
			logger.Error("sale dropped", zap.String("key", key), zap.ByteString("message", sale), zap.Error(err))
			return true
		}

		logger.Warn("sale retry", zap.String("key", key), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			logger.Error("sale not recorded before shutdown", zap.String("key", key), zap.Error(err))
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
