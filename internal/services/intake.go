package recycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	model "github.com/glkeru/recycle/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate = validator.New()

// ErrInvalidMessage - сообщение из очереди не разобрать, повтор не поможет
var ErrInvalidMessage = errors.New("invalid message")

// IsPermanent - повторная обработка сообщения даст тот же результат.
// ErrInconsistent тоже: кошелек уже изменен, повтор спишет второй раз
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidMessage) ||
		errors.Is(err, model.ErrUserNotFound) ||
		errors.Is(err, model.ErrRewardNotFound) ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrInconsistent)
}

// SaleMessage - чек весов пункта приема (Kafka)
type SaleMessage struct {
	// SaleID - id чека на весах; без него ключом служит позиция сообщения в очереди
	SaleID     string       `json:"saleId"`
	MemberID   string       `json:"memberId"`
	Items      []model.Item `json:"items" validate:"required,min=1,dive"`
	Total      *string      `json:"total,omitempty"`
	RecordedBy string       `json:"recordedBy"`
}

// SaleProcess - продажа из сообщения. Без total сумма считается по ценам сырья.
// Повтор того же чека (saleId или key) не проводится второй раз
func (l *LedgerService) SaleProcess(ctx context.Context, key string, sale []byte) (*model.Result, error) {
	msg := &SaleMessage{}
	err := json.Unmarshal(sale, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: sale: %w", ErrInvalidMessage, err)
	}
	err = validate.Struct(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: sale: %w", ErrInvalidMessage, err)
	}

	items := msg.Items
	var total decimal.Decimal
	if msg.Total == nil {
		total, items, err = l.PriceItems(ctx, msg.Items)
		if err != nil {
			return nil, err
		}
	} else {
		total, err = decimal.NewFromString(*msg.Total)
		if err != nil {
			return nil, fmt.Errorf("%w: sale total %q: %w", ErrInvalidMessage, *msg.Total, err)
		}
	}

	requestID := msg.SaleID
	if requestID == "" {
		requestID = key
	}
	if requestID != "" {
		requestID = "sale:" + requestID
	}

	l.logger.Info("sale",
		zap.String("member", msg.MemberID),
		zap.String("request", requestID),
		zap.String("total", total.StringFixed(2)))
	return l.recordSale(ctx, requestID, msg.MemberID, items, total, msg.RecordedBy)
}

// RedeemMessage - заявка на награду из очереди
type RedeemMessage struct {
	RedeemID string `json:"redeemId" validate:"required"`
	MemberID string `json:"memberId" validate:"required"`
	RewardID string `json:"rewardId" validate:"required"`
}

// RedeemProcess - списание по заявке. redeemId возвращается, если заявку удалось разобрать.
// Повтор заявки возвращает прежнюю транзакцию с Duplicate=true, баллы не списываются
func (l *LedgerService) RedeemProcess(ctx context.Context, redeem []byte) (redeemId string, res *model.Result, err error) {
	msg := &RedeemMessage{}
	err = json.Unmarshal(redeem, msg)
	if err != nil {
		return "", nil, fmt.Errorf("%w: redeem: %w", ErrInvalidMessage, err)
	}
	err = validate.Struct(msg)
	if err != nil {
		return msg.RedeemID, nil, fmt.Errorf("%w: redeem: %w", ErrInvalidMessage, err)
	}
	res, err = l.redeemRewardByID(ctx, "redeem:"+msg.RedeemID, msg.MemberID, msg.RewardID)
	if err != nil {
		return msg.RedeemID, nil, err
	}
	return msg.RedeemID, res, nil
}
