package recycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	interf "github.com/glkeru/recycle/internal/interfaces"
	model "github.com/glkeru/recycle/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("recycle")

var ledgerOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recycle_ledger_operations_total",
		Help: "Кол-во операций с кошельками",
	},
	[]string{"operation", "result"},
)

type Options struct {
	Locale           string
	DefaultCommunity string
	// повторы при конфликте версии кошелька
	MaxRetries int
	// таймаут одного обращения к хранилищу
	Timeout time.Duration
}

type LedgerService struct {
	logger    *zap.Logger
	store     interf.DocumentStore
	locker    interf.MemberLocker
	publisher interf.EventPublisher
	msg       *Messages
	opts      Options
	now       func() time.Time
}

// NewLedgerService. locker и publisher могут быть nil
func NewLedgerService(logger *zap.Logger, store interf.DocumentStore, locker interf.MemberLocker, publisher interf.EventPublisher, opts Options) *LedgerService {
	if opts.DefaultCommunity == "" {
		opts.DefaultCommunity = "general"
	}
	return &LedgerService{
		logger:    logger,
		store:     store,
		locker:    locker,
		publisher: publisher,
		msg:       NewMessages(opts.Locale),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *LedgerService) Messages() *Messages {
	return l.msg
}

// mutation меняет кошелек и возвращает транзакцию, либо результат с ошибкой пользователя
type mutation func(w *model.Wallet) (model.Transaction, *model.Result)

// Пополнение
func (l *LedgerService) Deposit(ctx context.Context, memberID string, amount decimal.Decimal, detail string) (res *model.Result, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Deposit", trace.WithAttributes(attribute.String("member_id", memberID)))
	defer func() { l.finish(span, "deposit", res, err) }()

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return l.reject(model.InvalidAmount, MsgInvalidDeposit, nil), nil
	}
	return l.mutate(ctx, memberID, "", MsgDepositOK, func(w *model.Wallet) (model.Transaction, *model.Result) {
		w.Cash = w.Cash.Add(amount)
		return model.Transaction{Type: model.Deposit, Amount: amount, Detail: detail}, nil
	})
}

// Вывод средств
func (l *LedgerService) Withdraw(ctx context.Context, memberID string, amount decimal.Decimal) (res *model.Result, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Withdraw", trace.WithAttributes(attribute.String("member_id", memberID)))
	defer func() { l.finish(span, "withdraw", res, err) }()

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return l.reject(model.InvalidAmount, MsgInvalidWithdraw, nil), nil
	}
	return l.mutate(ctx, memberID, "", MsgWithdrawOK, func(w *model.Wallet) (model.Transaction, *model.Result) {
		if amount.GreaterThan(w.Cash) {
			return model.Transaction{}, l.reject(model.InsufficientBalance, MsgInsufficientBalance, w)
		}
		w.Cash = w.Cash.Sub(amount)
		return model.Transaction{Type: model.Withdraw, Amount: amount.Neg(), Detail: l.msg.Text(DetailWithdraw)}, nil
	})
}

// Продажа сырья на пункте приема. memberID "" или GUEST - продажа без кошелька.
// total округляется до 2 знаков, баллы - целая часть округленной суммы (20.999 -> 21.00 и 21 балл)
func (l *LedgerService) RecordSale(ctx context.Context, memberID string, items []model.Item, total decimal.Decimal, recordedBy string) (*model.Result, error) {
	return l.recordSale(ctx, "", memberID, items, total, recordedBy)
}

// recordSale. Непустой requestID проводится не больше одного раза
func (l *LedgerService) recordSale(ctx context.Context, requestID string, memberID string, items []model.Item, total decimal.Decimal, recordedBy string) (res *model.Result, err error) {
	ctx, span := tracer.Start(ctx, "ledger.RecordSale", trace.WithAttributes(
		attribute.String("member_id", memberID),
		attribute.String("request_id", requestID),
		attribute.Int("items", len(items)),
	))
	defer func() { l.finish(span, "sell", res, err) }()

	total = total.Round(2)
	if total.IsNegative() {
		return l.reject(model.InvalidAmount, MsgInvalidSale, nil), nil
	}
	for _, item := range items {
		if item.MaterialID == "" || !item.Weight.IsPositive() {
			return l.reject(model.InvalidAmount, MsgInvalidSale, nil), nil
		}
	}
	if recordedBy == "" {
		recordedBy = "admin"
	}

	if memberID == "" || memberID == model.GuestID {
		return l.guestSale(ctx, requestID, items, total, recordedBy)
	}

	points := total.Floor().IntPart()
	return l.mutate(ctx, memberID, requestID, MsgSaleOK, func(w *model.Wallet) (model.Transaction, *model.Result) {
		w.Cash = w.Cash.Add(total)
		w.Points += points
		w.Accumulate(items)
		name := w.Username
		if name == "" {
			name = UnknownUserName
		}
		return model.Transaction{
			Type:       model.Sell,
			Amount:     total,
			Items:      items,
			MemberName: name,
			RecordedBy: recordedBy,
		}, nil
	})
}

// у гостя нет кошелька: только запись в журнал
func (l *LedgerService) guestSale(ctx context.Context, requestID string, items []model.Item, total decimal.Decimal, recordedBy string) (*model.Result, error) {
	prev, err := l.findRequest(ctx, l.store, requestID)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		return &model.Result{Success: true, Duplicate: true, Message: l.msg.Text(MsgSaleOK), Transaction: prev}, nil
	}

	tnx := model.Transaction{
		MemberID:   model.GuestID,
		MemberName: model.GuestName,
		Community:  l.opts.DefaultCommunity,
		Type:       model.Sell,
		Amount:     total,
		Items:      items,
		Status:     model.StatusCompleted,
		RecordedBy: recordedBy,
		RequestID:  requestID,
		CreatedAt:  l.now(),
	}
	err = l.call(ctx, func(ctx context.Context) error {
		id, err := l.store.Create(ctx, model.Transactions, tnx.Fields())
		tnx.ID = id
		return err
	})
	if err != nil {
		l.logger.Error("guest sale", zap.String("service", "RecordSale"), zap.Error(err))
		return nil, err
	}
	l.publish(ctx, tnx)
	return &model.Result{Success: true, Message: l.msg.Text(MsgSaleOK), Transaction: &tnx}, nil
}

// Списание баллов за награду. Остаток награды (stock) не меняется
func (l *LedgerService) RedeemReward(ctx context.Context, memberID string, reward model.Reward) (*model.Result, error) {
	return l.redeemReward(ctx, "", memberID, reward)
}

func (l *LedgerService) redeemReward(ctx context.Context, requestID string, memberID string, reward model.Reward) (res *model.Result, err error) {
	ctx, span := tracer.Start(ctx, "ledger.RedeemReward", trace.WithAttributes(
		attribute.String("member_id", memberID),
		attribute.String("reward_id", reward.ID),
	))
	defer func() { l.finish(span, "redeem", res, err) }()

	if reward.Cost < 0 {
		return l.reject(model.InvalidAmount, MsgInvalidRewardCost, nil), nil
	}
	return l.mutate(ctx, memberID, requestID, MsgRedeemOK, func(w *model.Wallet) (model.Transaction, *model.Result) {
		if w.Points < reward.Cost {
			return model.Transaction{}, l.reject(model.InsufficientPoints, MsgInsufficientPoints, w)
		}
		w.Points -= reward.Cost
		return model.Transaction{
			Type:     model.Redeem,
			Amount:   decimal.NewFromInt(-reward.Cost),
			RewardID: reward.ID,
			Detail:   l.msg.Text(DetailRedeem, reward.Name),
		}, nil
	})
}

// RedeemRewardByID - награда из коллекции rewards
func (l *LedgerService) RedeemRewardByID(ctx context.Context, memberID string, rewardID string) (*model.Result, error) {
	return l.redeemRewardByID(ctx, "", memberID, rewardID)
}

func (l *LedgerService) redeemRewardByID(ctx context.Context, requestID string, memberID string, rewardID string) (*model.Result, error) {
	var doc model.Document
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = l.store.Get(ctx, model.Rewards, rewardID)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", rewardID, model.ErrRewardNotFound)
		}
		return nil, err
	}
	return l.redeemReward(ctx, requestID, memberID, model.RewardFromDocument(doc))
}

// Кошелек по id документа, для старых записей - по полю userId
func (l *LedgerService) GetWallet(ctx context.Context, memberID string) (*model.Wallet, error) {
	var doc model.Document
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = l.store.Get(ctx, model.Users, memberID)
		return err
	})
	if err == nil {
		w := model.WalletFromDocument(doc, l.opts.DefaultCommunity)
		return &w, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	q := model.Where("userId", memberID)
	q.Limit = 1
	return l.findUser(ctx, memberID, q)
}

func (l *LedgerService) FindUserByPhone(ctx context.Context, phone string) (*model.Wallet, error) {
	q := model.Where("phone", phone)
	q.Limit = 1
	return l.findUser(ctx, phone, q)
}

func (l *LedgerService) findUser(ctx context.Context, key string, q model.Query) (*model.Wallet, error) {
	var docs []model.Document
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		docs, err = l.store.Query(ctx, model.Users, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", key, model.ErrUserNotFound)
	}
	w := model.WalletFromDocument(docs[0], l.opts.DefaultCommunity)
	return &w, nil
}

// PriceItems - сумма продажи по ценам trash_types, каждая позиция округляется до 2 знаков.
// Возвращает позиции с названиями видов сырья
func (l *LedgerService) PriceItems(ctx context.Context, items []model.Item) (decimal.Decimal, []model.Item, error) {
	total := decimal.Zero
	priced := make([]model.Item, len(items))
	for i, item := range items {
		var doc model.Document
		err := l.call(ctx, func(ctx context.Context) error {
			var err error
			doc, err = l.store.Get(ctx, model.TrashTypes, item.MaterialID)
			return err
		})
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("material %s: %w", item.MaterialID, err)
		}
		material := model.MaterialTypeFromDocument(doc)
		total = total.Add(item.Weight.Mul(material.PricePerUnit).Round(2))
		priced[i] = item
		if priced[i].Name == "" {
			priced[i].Name = material.Name
		}
	}
	return total, priced, nil
}

// mutate - блокировка участника и повтор при конфликте версии
func (l *LedgerService) mutate(ctx context.Context, memberID string, requestID string, okMsg string, m mutation) (*model.Result, error) {
	if memberID == "" {
		return nil, model.ErrUserNotFound
	}
	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, memberID)
		if err != nil {
			l.logger.Error("wallet lock", zap.String("member", memberID), zap.Error(err))
			return nil, fmt.Errorf("lock %s: %w: %w", memberID, model.ErrDatabase, err)
		}
		defer unlock()
	}

	for attempt := 0; attempt <= l.opts.MaxRetries; attempt++ {
		res, err := l.attempt(ctx, memberID, requestID, m)
		if errors.Is(err, model.ErrConflict) {
			l.logger.Warn("wallet version conflict", zap.String("member", memberID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		if res.Success {
			res.Message = l.msg.Text(okMsg)
			if res.Duplicate {
				l.logger.Info("request already applied", zap.String("member", memberID), zap.String("request", requestID))
			} else {
				l.publish(ctx, *res.Transaction)
			}
		}
		return res, nil
	}
	return nil, fmt.Errorf("%s: %w", memberID, model.ErrConcurrentUpdate)
}

// attempt - одна попытка, в транзакции хранилища, если она поддерживается
func (l *LedgerService) attempt(ctx context.Context, memberID string, requestID string, m mutation) (res *model.Result, err error) {
	tr, ok := l.store.(interf.Transactor)
	if !ok || !tr.Transactional() {
		return l.apply(ctx, l.store, false, memberID, requestID, m)
	}
	err = tr.WithTx(ctx, func(ctx context.Context, tx interf.DocumentStore) error {
		var err error
		res, err = l.apply(ctx, tx, true, memberID, requestID, m)
		return err
	})
	if err != nil {
		return nil, dbError(err)
	}
	return res, nil
}

// apply: чтение кошелька, проверка, запись кошелька с условием на версию, запись транзакции.
// Транзакция пишется только после записи кошелька
func (l *LedgerService) apply(ctx context.Context, store interf.DocumentStore, native bool, memberID string, requestID string, m mutation) (*model.Result, error) {
	var doc model.Document
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = store.Get(ctx, model.Users, memberID)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", memberID, model.ErrUserNotFound)
		}
		return nil, err
	}

	before := model.WalletFromDocument(doc, l.opts.DefaultCommunity)

	// повтор сообщения из очереди: кошелек уже изменен этим запросом
	prev, err := l.findRequest(ctx, store, requestID)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		return &model.Result{Success: true, Duplicate: true, Wallet: &before, Transaction: prev}, nil
	}

	wallet := before.Clone()
	tnx, failure := m(&wallet)
	if failure != nil {
		return failure, nil
	}

	err = l.call(ctx, func(ctx context.Context) error {
		return store.UpdateIfVersion(ctx, model.Users, memberID, doc.Version, walletFields(wallet))
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", memberID, model.ErrUserNotFound)
		}
		return nil, err
	}
	wallet.Version = doc.Version + 1

	tnx.MemberID = memberID
	tnx.RequestID = requestID
	tnx.Status = model.StatusCompleted
	tnx.CreatedAt = l.now()
	if tnx.Community == "" {
		tnx.Community = wallet.Community
	}
	err = l.call(ctx, func(ctx context.Context) error {
		id, err := store.Create(ctx, model.Transactions, tnx.Fields())
		tnx.ID = id
		return err
	})
	if err != nil {
		l.logger.Error("append transaction", zap.String("member", memberID), zap.String("type", string(tnx.Type)), zap.Error(err))
		if native {
			// откат транзакции хранилища
			return nil, err
		}
		return nil, l.compensate(ctx, store, memberID, wallet.Version, before, err)
	}
	return &model.Result{Success: true, Wallet: &wallet, Transaction: &tnx}, nil
}

// findRequest - транзакция, уже записанная по requestID, или nil
func (l *LedgerService) findRequest(ctx context.Context, store interf.DocumentStore, requestID string) (*model.Transaction, error) {
	if requestID == "" {
		return nil, nil
	}
	q := model.Where("request_id", requestID)
	q.Limit = 1
	var docs []model.Document
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		docs, err = store.Query(ctx, model.Transactions, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	tnx := model.TransactionFromDocument(docs[0])
	return &tnx, nil
}

// compensate возвращает кошелек в прежнее состояние, если запись транзакции не удалась
func (l *LedgerService) compensate(ctx context.Context, store interf.DocumentStore, memberID string, version int64, before model.Wallet, cause error) error {
	err := l.call(ctx, func(ctx context.Context) error {
		return store.UpdateIfVersion(ctx, model.Users, memberID, version, walletFields(before))
	})
	if err != nil {
		l.logger.Error("wallet compensation failed",
			zap.String("member", memberID),
			zap.Int64("version", version),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w: %w", memberID, model.ErrInconsistent, cause)
	}
	return fmt.Errorf("append transaction: %w", cause)
}

// call - обращение к хранилищу с таймаутом. Ошибки, кроме NotFound и Conflict, становятся ErrDatabase
func (l *LedgerService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return storeCall(ctx, l.opts.Timeout, fn)
}

func storeCall(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return dbError(fn(ctx))
}

func dbError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrDatabase),
		errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrInconsistent):
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrDatabase, err)
}

func walletFields(w model.Wallet) map[string]any {
	return map[string]any{
		"balance.cash": model.Money(w.Cash),
		"points":       w.Points,
		"portfolio":    w.PortfolioFields(),
	}
}

func (l *LedgerService) reject(code model.FailureCode, key string, w *model.Wallet) *model.Result {
	return &model.Result{Success: false, Code: code, Message: l.msg.Text(key), Wallet: w}
}

// publish - событие о транзакции, ошибка только в лог
func (l *LedgerService) publish(ctx context.Context, tnx model.Transaction) {
	if l.publisher == nil {
		return
	}
	err := l.publisher.Publish(ctx, tnx)
	if err != nil {
		l.logger.Error("publish transaction", zap.String("id", tnx.ID), zap.Error(err))
	}
}

func (l *LedgerService) finish(span trace.Span, operation string, res *model.Result, err error) {
	result := "success"
	switch {
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res != nil && !res.Success:
		result = "rejected"
		span.SetAttributes(attribute.String("failure", string(res.Code)))
	}
	ledgerOperations.WithLabelValues(operation, result).Inc()
	span.End()
}
