package recycle

import (
	"context"
	"time"

	interf "github.com/glkeru/recycle/internal/interfaces"
	model "github.com/glkeru/recycle/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const leaderboardSize = 10

// StatsService - статистика по журналу транзакций и пользователям.
// Ошибка хранилища не возвращается: View.Failed=true и запись в лог
type StatsService struct {
	logger           *zap.Logger
	store            interf.DocumentStore
	defaultCommunity string
	timeout          time.Duration
}

func NewStatsService(logger *zap.Logger, store interf.DocumentStore, defaultCommunity string, timeout time.Duration) *StatsService {
	if defaultCommunity == "" {
		defaultCommunity = "general"
	}
	return &StatsService{logger, store, defaultCommunity, timeout}
}

func (s *StatsService) query(ctx context.Context, collection string, q model.Query) ([]model.Document, error) {
	var docs []model.Document
	err := storeCall(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		docs, err = s.store.Query(ctx, collection, q)
		return err
	})
	return docs, err
}

func (s *StatsService) failed(span trace.Span, service string, err error) {
	s.logger.Error("Stats query failed", zap.String("service", service), zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Итоги сообщества. community "" или "all" - по всем
func (s *StatsService) CommunityStats(ctx context.Context, community string) model.View[model.CommunityStats] {
	ctx, span := tracer.Start(ctx, "stats.CommunityStats", trace.WithAttributes(attribute.String("community", community)))
	defer span.End()

	usersQuery := model.Query{}
	salesQuery := model.Where("type", string(model.Sell))
	if community != "" && community != "all" {
		usersQuery = model.Where("community", community)
		salesQuery.Where = append(salesQuery.Where, model.Filter{Field: "community", Op: model.OpEq, Value: community})
	}

	var users, sales []model.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.query(gctx, model.Users, usersQuery)
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = s.query(gctx, model.Transactions, salesQuery)
		return err
	})
	err := g.Wait()
	if err != nil {
		s.failed(span, "CommunityStats", err)
		return model.View[model.CommunityStats]{Data: model.ZeroCommunityStats(), Failed: true}
	}

	stats := model.CommunityStats{Members: int64(len(users))}
	for _, u := range users {
		stats.Points += model.ToInt64(u.Fields["points"])
	}
	weight, money := decimal.Zero, decimal.Zero
	for _, doc := range sales {
		tnx := model.TransactionFromDocument(doc)
		money = money.Add(tnx.Amount)
		for _, item := range tnx.Items {
			weight = weight.Add(item.Weight)
		}
	}
	stats.TotalWeightKg = weight.StringFixed(2)
	stats.TotalMoney = money.StringFixed(2)
	return model.View[model.CommunityStats]{Data: stats}
}

// Рейтинг: 10 участников по баллам, при равенстве - по id.
// Сортировка в сервисе: у старых записей points строкой, хранилище ставит их выше чисел
func (s *StatsService) Leaderboard(ctx context.Context) model.View[[]model.LeaderEntry] {
	ctx, span := tracer.Start(ctx, "stats.Leaderboard")
	defer span.End()

	docs, err := s.query(ctx, model.Users, model.Query{})
	if err != nil {
		s.failed(span, "Leaderboard", err)
		return model.View[[]model.LeaderEntry]{Data: []model.LeaderEntry{}, Failed: true}
	}
	entries := make([]model.LeaderEntry, 0, len(docs))
	for _, doc := range docs {
		w := model.WalletFromDocument(doc, s.defaultCommunity)
		entries = append(entries, model.LeaderEntry{
			MemberID:  w.MemberID,
			Username:  w.Username,
			Community: w.Community,
			Points:    w.Points,
		})
	}
	model.SortLeaders(entries)
	if len(entries) > leaderboardSize {
		entries = entries[:leaderboardSize]
	}
	return model.View[[]model.LeaderEntry]{Data: entries}
}

// Вес по видам сырья, только продажи
func (s *StatsService) MaterialVolumeStats(ctx context.Context) model.View[model.MaterialVolume] {
	ctx, span := tracer.Start(ctx, "stats.MaterialVolumeStats")
	defer span.End()

	docs, err := s.query(ctx, model.Transactions, model.Where("type", string(model.Sell)))
	if err != nil {
		s.failed(span, "MaterialVolumeStats", err)
		return model.View[model.MaterialVolume]{Data: model.MaterialVolume{}, Failed: true}
	}
	volume := model.MaterialVolume{}
	for _, doc := range docs {
		tnx := model.TransactionFromDocument(doc)
		if tnx.Type != model.Sell {
			continue
		}
		for _, item := range tnx.Items {
			volume[item.MaterialID] = volume[item.MaterialID].Add(item.Weight)
		}
	}
	return model.View[model.MaterialVolume]{Data: volume}
}

// История участника, новые первыми. Без даты - в конце
func (s *StatsService) UserTransactionHistory(ctx context.Context, memberID string) model.View[[]model.Transaction] {
	ctx, span := tracer.Start(ctx, "stats.UserTransactionHistory", trace.WithAttributes(attribute.String("member_id", memberID)))
	defer span.End()

	docs, err := s.query(ctx, model.Transactions, model.Where("member_id", memberID))
	if err != nil {
		s.failed(span, "UserTransactionHistory", err)
		return model.View[[]model.Transaction]{Data: []model.Transaction{}, Failed: true}
	}
	txs := make([]model.Transaction, 0, len(docs))
	for _, doc := range docs {
		txs = append(txs, model.TransactionFromDocument(doc))
	}
	model.SortNewestFirst(txs)
	return model.View[[]model.Transaction]{Data: txs}
}

// BackfillMissingCommunity проставляет community пользователям и транзакциям без него.
// Повторный запуск ничего не пишет
func (s *StatsService) BackfillMissingCommunity(ctx context.Context, fallback string) (int, error) {
	ctx, span := tracer.Start(ctx, "stats.BackfillMissingCommunity")
	defer span.End()

	if fallback == "" {
		fallback = s.defaultCommunity
	}
	var usersUpdated, txUpdated int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		usersUpdated, err = s.backfill(gctx, model.Users, fallback)
		return err
	})
	g.Go(func() error {
		var err error
		txUpdated, err = s.backfill(gctx, model.Transactions, fallback)
		return err
	})
	err := g.Wait()
	updated := usersUpdated + txUpdated
	span.SetAttributes(attribute.Int("updated", updated))
	if err != nil {
		s.failed(span, "BackfillMissingCommunity", err)
		return updated, err
	}
	s.logger.Info("community backfill", zap.String("community", fallback), zap.Int("updated", updated))
	return updated, nil
}

func (s *StatsService) backfill(ctx context.Context, collection string, fallback string) (int, error) {
	docs, err := s.query(ctx, collection, model.Query{})
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, doc := range docs {
		if model.ToString(doc.Fields["community"]) != "" {
			continue
		}
		err = storeCall(ctx, s.timeout, func(ctx context.Context) error {
			return s.store.Update(ctx, collection, doc.ID, map[string]any{"community": fallback})
		})
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
