package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	db "github.com/glkeru/recycle/internal/db"
	interf "github.com/glkeru/recycle/internal/interfaces"
	model "github.com/glkeru/recycle/internal/models"
	services "github.com/glkeru/recycle/internal/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyStore - запись кошелька падает, пока failures > 0 (failures < 0 - всегда)
type flakyStore struct {
	interf.DocumentStore
	failures atomic.Int64
}

func (f *flakyStore) UpdateIfVersion(ctx context.Context, collection string, id string, version int64, fields map[string]any) error {
	if f.failures.Load() != 0 {
		f.failures.Add(-1)
		return errors.New("connection reset by peer")
	}
	return f.DocumentStore.UpdateIfVersion(ctx, collection, id, version, fields)
}

func newFlakyLedger(t *testing.T, failures int64) (*services.LedgerService, *db.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	store, err := db.NewSQLiteStore(ctx, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Set(ctx, model.Users, "u1", map[string]any{"points": 10}))

	flaky := &flakyStore{DocumentStore: store}
	flaky.failures.Store(failures)
	ledger := services.NewLedgerService(zap.NewNop(), flaky, db.NewLocalLocker(), nil, services.Options{
		Locale:  "en",
		Timeout: time.Second,
	})
	return ledger, store
}

func sales(t *testing.T, store *db.SQLiteStore) []model.Document {
	t.Helper()
	docs, err := store.Query(context.Background(), model.Transactions, model.Where("member_id", "u1"))
	require.NoError(t, err)
	return docs
}

var sale = []byte(`{"memberId": "u1", "items": [{"id": "pet", "weight": 2.5}], "total": "21.25"}`)

func TestProcessSaleRetriesStoreFailure(t *testing.T) {
	ledger, store := newFlakyLedger(t, 2)

	done := processSale(context.Background(), ledger, zap.NewNop(), "booth_sales/0/7", sale, time.Millisecond)
	require.True(t, done)

	w, err := ledger.GetWallet(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, w.Cash.Equal(model.ToDecimal("21.25")))
	require.Equal(t, int64(31), w.Points)
	require.Len(t, sales(t, store), 1)

	// повторная доставка после неудачного подтверждения смещения
	require.True(t, processSale(context.Background(), ledger, zap.NewNop(), "booth_sales/0/7", sale, time.Millisecond))
	w, err = ledger.GetWallet(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(31), w.Points)
	require.Len(t, sales(t, store), 1)
}

func TestProcessSaleNotCommittedOnShutdown(t *testing.T) {
	ledger, store := newFlakyLedger(t, -1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := processSale(ctx, ledger, zap.NewNop(), "booth_sales/0/8", sale, 5*time.Millisecond)
	require.False(t, done)
	require.Empty(t, sales(t, store))
}

func TestProcessSalePermanent(t *testing.T) {
	ledger, store := newFlakyLedger(t, -1)

	// окончательные ошибки не повторяются: хранилище бы падало вечно
	require.True(t, processSale(context.Background(), ledger, zap.NewNop(), "booth_sales/0/9", []byte(`{"items": []}`), time.Hour))
	require.True(t, processSale(context.Background(), ledger, zap.NewNop(), "booth_sales/0/10",
		[]byte(`{"memberId": "ghost", "items": [{"id": "pet", "weight": 1}], "total": "8"}`), time.Hour))
	// отклонение пользователя - тоже окончательный результат
	require.True(t, processSale(context.Background(), ledger, zap.NewNop(), "booth_sales/0/11",
		[]byte(`{"memberId": "u1", "items": [{"id": "pet", "weight": 1}], "total": "-3"}`), time.Hour))
	require.Empty(t, sales(t, store))
}
