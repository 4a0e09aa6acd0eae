package main

import (
	"context"

	rabbit "github.com/glkeru/recycle/internal/external/rabbitmq"
	model "github.com/glkeru/recycle/internal/models"
	services "github.com/glkeru/recycle/internal/services"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type confirmer interface {
	Processed(ctx context.Context, confirm rabbit.RedeemConfirm) error
}

// handleRedeem - ack только после отправки подтверждения.
// Повторная доставка безопасна: проведенная заявка возвращается с Duplicate, баллы не списываются
func handleRedeem(ctx context.Context, serv *services.LedgerService, logger *zap.Logger, out confirmer, msg amqp.Delivery) {
	redeemId, res, err := serv.RedeemProcess(ctx, msg.Body)
	if err != nil {
		logger.Error("redeem", zap.String("redeemId", redeemId), zap.Error(err))
		if redeemId == "" {
			// не разобрать: ответить некому, в очередь не возвращаем
			_ = msg.Nack(false, false)
			return
		}
		if !services.IsPermanent(err) {
			_ = msg.Nack(false, true)
			return
		}
	}

	err = out.Processed(ctx, confirmation(redeemId, res, err))
	if err != nil {
		logger.Error("confirm", zap.String("redeemId", redeemId), zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func confirmation(redeemId string, res *model.Result, err error) rabbit.RedeemConfirm {
	confirm := rabbit.RedeemConfirm{RedeemID: redeemId}
	switch {
	case err != nil:
		confirm.Message = err.Error()
	case res.Success:
		confirm.Success = true
		confirm.TnxID = res.Transaction.ID
		confirm.Message = res.Message
	default:
		confirm.Code = string(res.Code)
		confirm.Message = res.Message
	}
	return confirm
}
