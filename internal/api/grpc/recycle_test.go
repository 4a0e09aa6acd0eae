package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	db "github.com/glkeru/recycle/internal/db"
	model "github.com/glkeru/recycle/internal/models"
	services "github.com/glkeru/recycle/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	status "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) *gogrpc.ClientConn {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	store, err := db.NewSQLiteStore(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Set(ctx, model.Users, "u1", map[string]any{
		"username": "malee",
		"balance":  map[string]any{"cash": 12.5},
		"points":   40,
	}))

	ledger := services.NewLedgerService(logger, store, nil, nil, services.Options{Locale: "en", Timeout: time.Second})
	stats := services.NewStatsService(logger, store, "general", time.Second)
	_, err = ledger.Deposit(ctx, "u1", decimal.NewFromInt(5), "")
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(NewWalletService(ledger, stats, logger))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := gogrpc.NewClient("passthrough:///bufnet",
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWalletService(t *testing.T) {
	conn := startServer(t)
	client := NewWalletClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, err := client.GetWallet(ctx, &WalletRequest{MemberID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "malee", w.Username)
	require.True(t, decimal.RequireFromString("17.5").Equal(w.Cash))
	require.Equal(t, int64(40), w.Points)

	_, err = client.GetWallet(ctx, &WalletRequest{MemberID: "nobody"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetWallet(ctx, &WalletRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	history, err := client.GetHistory(ctx, &WalletRequest{MemberID: "u1"})
	require.NoError(t, err)
	require.False(t, history.Failed)
	require.Len(t, history.Transactions, 1)
	require.Equal(t, model.Deposit, history.Transactions[0].Type)

	leaders, err := client.Leaderboard(ctx, &LeaderboardRequest{})
	require.NoError(t, err)
	require.Len(t, leaders.Entries, 1)
	require.Equal(t, "u1", leaders.Entries[0].MemberID)
}

func TestHealth(t *testing.T) {
	conn := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "recycle.Wallet"})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
