package grpc

import (
	"context"
	"encoding/json"
	"errors"

	model "github.com/glkeru/recycle/internal/models"
	services "github.com/glkeru/recycle/internal/services"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	status "google.golang.org/grpc/status"
)

// Сообщения сервиса кодируются в JSON (content-subtype "json"), .proto нет

const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type WalletRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

type HistoryResponse struct {
	Transactions []model.Transaction `json:"transactions"`
	Failed       bool                `json:"failed"`
}

type LeaderboardRequest struct{}

type LeaderboardResponse struct {
	Entries []model.LeaderEntry `json:"entries"`
	Failed  bool                `json:"failed"`
}

type WalletServer interface {
	GetWallet(ctx context.Context, in *WalletRequest) (*model.Wallet, error)
	GetHistory(ctx context.Context, in *WalletRequest) (*HistoryResponse, error)
	Leaderboard(ctx context.Context, in *LeaderboardRequest) (*LeaderboardResponse, error)
}

const serviceName = "recycle.Wallet"

var WalletServiceDesc = gogrpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WalletServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "GetWallet", Handler: getWalletHandler},
		{MethodName: "GetHistory", Handler: getHistoryHandler},
		{MethodName: "Leaderboard", Handler: leaderboardHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "recycle/wallet",
}

func RegisterWalletServer(s gogrpc.ServiceRegistrar, srv WalletServer) {
	s.RegisterService(&WalletServiceDesc, srv)
}

func getWalletHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(WalletRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServer).GetWallet(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetWallet"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WalletServer).GetWallet(ctx, req.(*WalletRequest))
	})
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(WalletRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServer).GetHistory(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetHistory"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WalletServer).GetHistory(ctx, req.(*WalletRequest))
	})
}

func leaderboardHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(LeaderboardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServer).Leaderboard(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Leaderboard"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WalletServer).Leaderboard(ctx, req.(*LeaderboardRequest))
	})
}

// WalletService - чтение кошельков и статистики по gRPC
type WalletService struct {
	ledger   *services.LedgerService
	stats    *services.StatsService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewWalletService(ledger *services.LedgerService, stats *services.StatsService, logger *zap.Logger) *WalletService {
	return &WalletService{ledger, stats, validator.New(), logger}
}

// NewServer - сервер с health и трассировкой
func NewServer(service WalletServer, opts ...gogrpc.ServerOption) *gogrpc.Server {
	opts = append(opts, gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	s := gogrpc.NewServer(opts...)
	RegisterWalletServer(s, service)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Кошелек
func (s *WalletService) GetWallet(ctx context.Context, in *WalletRequest) (*model.Wallet, error) {
	err := s.validate.Struct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	w, err := s.ledger.GetWallet(ctx, in.MemberID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		s.logger.Error("GetWallet", zap.String("member", in.MemberID), zap.Error(err))
		return nil, status.Error(codes.Internal, s.ledger.Messages().Text(services.MsgGenericError))
	}
	return w, nil
}

// История транзакций
func (s *WalletService) GetHistory(ctx context.Context, in *WalletRequest) (*HistoryResponse, error) {
	err := s.validate.Struct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	view := s.stats.UserTransactionHistory(ctx, in.MemberID)
	return &HistoryResponse{Transactions: view.Data, Failed: view.Failed}, nil
}

// Рейтинг
func (s *WalletService) Leaderboard(ctx context.Context, in *LeaderboardRequest) (*LeaderboardResponse, error) {
	view := s.stats.Leaderboard(ctx)
	return &LeaderboardResponse{Entries: view.Data, Failed: view.Failed}, nil
}

// WalletClient - клиент сервиса, JSON кодек подключается к каждому вызову
type WalletClient struct {
	cc gogrpc.ClientConnInterface
}

func NewWalletClient(cc gogrpc.ClientConnInterface) *WalletClient {
	return &WalletClient{cc}
}

func (c *WalletClient) invoke(ctx context.Context, method string, in any, out any, opts []gogrpc.CallOption) error {
	opts = append([]gogrpc.CallOption{gogrpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}

func (c *WalletClient) GetWallet(ctx context.Context, in *WalletRequest, opts ...gogrpc.CallOption) (*model.Wallet, error) {
	out := new(model.Wallet)
	err := c.invoke(ctx, "GetWallet", in, out, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WalletClient) GetHistory(ctx context.Context, in *WalletRequest, opts ...gogrpc.CallOption) (*HistoryResponse, error) {
	out := new(HistoryResponse)
	err := c.invoke(ctx, "GetHistory", in, out, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WalletClient) Leaderboard(ctx context.Context, in *LeaderboardRequest, opts ...gogrpc.CallOption) (*LeaderboardResponse, error) {
	out := new(LeaderboardResponse)
	err := c.invoke(ctx, "Leaderboard", in, out, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}
