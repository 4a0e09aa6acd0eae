package recycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	db "github.com/glkeru/recycle/internal/db"
	model "github.com/glkeru/recycle/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newTestStats(t *testing.T) (*StatsService, *db.SQLiteStore) {
	t.Helper()
	store, err := db.NewSQLiteStore(context.Background(), ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewStatsService(zap.NewNop(), store, "general", 5*time.Second), store
}

func seedTx(t *testing.T, store *db.SQLiteStore, fields map[string]any) {
	t.Helper()
	_, err := store.Create(context.Background(), model.Transactions, fields)
	require.NoError(t, err)
}

func seedCommunity(t *testing.T, store *db.SQLiteStore) {
	seedUser(t, store, "a", map[string]any{"points": 10, "community": "north"})
	seedUser(t, store, "b", map[string]any{"points": 5, "community": "north"})
	seedUser(t, store, "c", map[string]any{"points": 100, "community": "south"})

	seedTx(t, store, map[string]any{
		"member_id": "a", "type": "sell", "amount": 21.25, "community": "north",
		"items": []any{
			map[string]any{"id": "pet", "weight": 2.5},
			map[string]any{"id": "can", "weight": 1.0},
		},
	})
	seedTx(t, store, map[string]any{
		"member_id": "c", "type": "sell", "amount": 10, "community": "south",
		"items": []any{map[string]any{"id": "pet", "weight": "1"}},
	})
	// не продажи - в статистику не попадают
	seedTx(t, store, map[string]any{"member_id": "a", "type": "deposit", "amount": 50, "community": "north"})
	seedTx(t, store, map[string]any{
		"member_id": "b", "type": "redeem", "amount": -5, "community": "north",
		"items": []any{map[string]any{"id": "pet", "weight": 100}},
	})
}

func TestCommunityStats(t *testing.T) {
	ctx := context.Background()
	s, store := newTestStats(t)
	seedCommunity(t, store)

	tests := []struct {
		community string
		expected  model.CommunityStats
	}{
		{"north", model.CommunityStats{Members: 2, Points: 15, TotalWeightKg: "3.50", TotalMoney: "21.25"}},
		{"all", model.CommunityStats{Members: 3, Points: 115, TotalWeightKg: "4.50", TotalMoney: "31.25"}},
		{"", model.CommunityStats{Members: 3, Points: 115, TotalWeightKg: "4.50", TotalMoney: "31.25"}},
		{"east", model.ZeroCommunityStats()},
	}
	for _, ts := range tests {
		view := s.CommunityStats(ctx, ts.community)
		require.False(t, view.Failed, "community=%s", ts.community)
		require.Equal(t, ts.expected, view.Data, "community=%s", ts.community)
	}
}

func TestMaterialVolumeStats(t *testing.T) {
	ctx := context.Background()
	s, store := newTestStats(t)
	seedCommunity(t, store)

	view := s.MaterialVolumeStats(ctx)
	require.False(t, view.Failed)
	require.Len(t, view.Data, 2)
	require.True(t, dec("3.5").Equal(view.Data["pet"]), view.Data["pet"].String())
	require.True(t, dec("1").Equal(view.Data["can"]))
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	s, store := newTestStats(t)
	for i := 0; i < 12; i++ {
		seedUser(t, store, fmt.Sprintf("m%02d", i), map[string]any{"points": i % 6, "username": fmt.Sprintf("user %d", i)})
	}

	view := s.Leaderboard(ctx)
	require.False(t, view.Failed)
	require.Len(t, view.Data, 10)
	// 5,5,4,4,3,3,2,2,1,1; при равенстве - по id
	require.Equal(t, "m05", view.Data[0].MemberID)
	require.Equal(t, "m11", view.Data[1].MemberID)
	require.Equal(t, "m04", view.Data[2].MemberID)
	for i := 1; i < len(view.Data); i++ {
		require.GreaterOrEqual(t, view.Data[i-1].Points, view.Data[i].Points)
	}
	require.Equal(t, "general", view.Data[0].Community)
}

func TestLeaderboardLegacyPoints(t *testing.T) {
	ctx := context.Background()
	s, store := newTestStats(t)
	for i := 0; i < 10; i++ {
		seedUser(t, store, fmt.Sprintf("m%02d", i), map[string]any{"points": 1000 + i})
	}
	// старая запись: баллы строкой
	seedUser(t, store, "legacy", map[string]any{"points": "5"})
	seedUser(t, store, "legacy_top", map[string]any{"points": "2000"})

	view := s.Leaderboard(ctx)
	require.False(t, view.Failed)
	require.Len(t, view.Data, 10)
	require.Equal(t, "legacy_top", view.Data[0].MemberID)
	require.Equal(t, int64(2000), view.Data[0].Points)
	require.Equal(t, "m09", view.Data[1].MemberID)
	require.Equal(t, "m01", view.Data[9].MemberID)
	for _, e := range view.Data {
		require.NotEqual(t, "legacy", e.MemberID)
	}
}

func TestUserTransactionHistory(t *testing.T) {
	ctx := context.Background()
	s, store := newTestStats(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	seedTx(t, store, map[string]any{"member_id": "u1", "type": "deposit", "amount": 1, "detail": "old", "created_at": base})
	seedTx(t, store, map[string]any{"member_id": "u1", "type": "deposit", "amount": 2, "detail": "no date"})
	seedTx(t, store, map[string]any{"member_id": "u1", "type": "deposit", "amount": 3, "detail": "new", "created_at": base.Add(time.Hour)})
	seedTx(t, store, map[string]any{"member_id": "u2", "type": "deposit", "amount": 4, "created_at": base})

	view := s.UserTransactionHistory(ctx, "u1")
	require.False(t, view.Failed)
	require.Len(t, view.Data, 3)
	require.Equal(t, "new", view.Data[0].Detail)
	require.Equal(t, "old", view.Data[1].Detail)
	require.Equal(t, "no date", view.Data[2].Detail)
	require.Equal(t, int64(0), view.Data[2].CreatedAt.Unix())
}

func TestBackfillMissingCommunity(t *testing.T) {
	ctx := context.Background()
	s, store := newTestStats(t)
	seedUser(t, store, "a", map[string]any{"points": 1})
	seedUser(t, store, "b", map[string]any{"points": 1, "community": ""})
	seedUser(t, store, "c", map[string]any{"points": 1, "community": "south"})
	seedTx(t, store, map[string]any{"member_id": "a", "type": "sell", "amount": 1})
	seedTx(t, store, map[string]any{"member_id": "c", "type": "sell", "amount": 1, "community": "south"})

	updated, err := s.BackfillMissingCommunity(ctx, "muang_sakon_nakhon")
	require.NoError(t, err)
	require.Equal(t, 3, updated)

	doc, err := store.Get(ctx, model.Users, "a")
	require.NoError(t, err)
	require.Equal(t, "muang_sakon_nakhon", doc.Fields["community"])

	// повторный запуск ничего не пишет
	versions := map[string]int64{}
	docs, err := store.Query(ctx, model.Users, model.Query{})
	require.NoError(t, err)
	for _, d := range docs {
		versions[d.ID] = d.Version
	}
	updated, err = s.BackfillMissingCommunity(ctx, "muang_sakon_nakhon")
	require.NoError(t, err)
	require.Equal(t, 0, updated)
	docs, err = store.Query(ctx, model.Users, model.Query{})
	require.NoError(t, err)
	for _, d := range docs {
		require.Equal(t, versions[d.ID], d.Version)
	}
}

func TestStatsFailedView(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()
	store := NewMockDocumentStore(cont)
	s := NewStatsService(zap.NewNop(), store, "general", time.Second)
	ctx := context.Background()
	unavailable := errors.New("no reachable servers")

	store.EXPECT().Query(gomock.Any(), model.Users, gomock.Any()).Return(nil, unavailable).Times(2)
	store.EXPECT().Query(gomock.Any(), model.Transactions, gomock.Any()).Return(nil, nil).AnyTimes()

	stats := s.CommunityStats(ctx, "north")
	require.True(t, stats.Failed)
	require.Equal(t, model.ZeroCommunityStats(), stats.Data)

	leaders := s.Leaderboard(ctx)
	require.True(t, leaders.Failed)
	require.Empty(t, leaders.Data)

	// пустой журнал - не ошибка
	volume := s.MaterialVolumeStats(ctx)
	require.False(t, volume.Failed)
	require.Empty(t, volume.Data)
}

func TestBackfillError(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()
	store := NewMockDocumentStore(cont)
	s := NewStatsService(zap.NewNop(), store, "general", time.Second)

	store.EXPECT().Query(gomock.Any(), model.Users, gomock.Any()).Return([]model.Document{
		{ID: "a", Fields: map[string]any{}},
	}, nil)
	store.EXPECT().Query(gomock.Any(), model.Transactions, gomock.Any()).Return(nil, nil)
	store.EXPECT().Update(gomock.Any(), model.Users, "a", map[string]any{"community": "general"}).Return(errors.New("write conflict"))

	_, err := s.BackfillMissingCommunity(context.Background(), "")
	require.ErrorIs(t, err, model.ErrDatabase)
}
