package recycle

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	model "github.com/glkeru/recycle/internal/models"
	services "github.com/glkeru/recycle/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletHandler struct {
	router   *mux.Router
	ledger   *services.LedgerService
	stats    *services.StatsService
	validate *validator.Validate
	logger   *zap.Logger
}

type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
	Detail string           `json:"detail" validate:"max=200"`
}

type RedeemRequest struct {
	RewardID string `json:"reward_id" validate:"required"`
}

// SaleRequest. Без total сумма считается по ценам trash_types
type SaleRequest struct {
	MemberID   string           `json:"member_id"`
	Items      []model.Item     `json:"items" validate:"required,min=1,dive"`
	Total      *decimal.Decimal `json:"total"`
	RecordedBy string           `json:"recorded_by" validate:"max=100"`
}

type BackfillRequest struct {
	Community string `json:"community"`
}

type BackfillResponse struct {
	Updated int `json:"updated"`
}

func NewHandler(ledger *services.LedgerService, stats *services.StatsService, logger *zap.Logger) *WalletHandler {
	router := mux.NewRouter()
	handler := &WalletHandler{router, ledger, stats, validator.New(), logger}
	router.Use(MiddlewareMetrics(logger))

	router.HandleFunc("/wallets/{id}", handler.GetWalletHandler).Methods(http.MethodGet)
	router.HandleFunc("/wallets/{id}/transactions", handler.HistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/wallets/{id}/deposit", handler.DepositHandler).Methods(http.MethodPost)
	router.HandleFunc("/wallets/{id}/withdraw", handler.WithdrawHandler).Methods(http.MethodPost)
	router.HandleFunc("/wallets/{id}/redeem", handler.RedeemHandler).Methods(http.MethodPost)
	router.HandleFunc("/users/by-phone/{phone}", handler.FindByPhoneHandler).Methods(http.MethodGet)
	router.HandleFunc("/sales", handler.SaleHandler).Methods(http.MethodPost)
	router.HandleFunc("/stats/community", handler.CommunityStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats/leaderboard", handler.LeaderboardHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats/materials", handler.MaterialsHandler).Methods(http.MethodGet)
	router.HandleFunc("/maintenance/backfill-community", handler.BackfillHandler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return handler
}

func (h *WalletHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *WalletHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

func (h *WalletHandler) writeJSON(w http.ResponseWriter, code int, v any, service string) {
	j, err := json.Marshal(v)
	if err != nil {
		h.Log("Marshal", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(j)
}

// writeResult - ошибка пользователя 422, успех 200
func (h *WalletHandler) writeResult(w http.ResponseWriter, res *model.Result, service string) {
	code := http.StatusOK
	if !res.Success {
		code = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, code, res, service)
}

// writeError - подробности только в лог, пользователю общее сообщение
func (h *WalletHandler) writeError(w http.ResponseWriter, err error, service string) {
	msg := h.ledger.Messages()
	code := http.StatusInternalServerError
	text := msg.Text(services.MsgGenericError)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		code, text = http.StatusNotFound, msg.Text(services.MsgUserNotFound)
	case errors.Is(err, model.ErrRewardNotFound):
		code, text = http.StatusNotFound, msg.Text(services.MsgRewardNotFound)
	case errors.Is(err, model.ErrNotFound):
		code, text = http.StatusNotFound, msg.Text(services.MsgMaterialNotFound)
	case errors.Is(err, model.ErrConcurrentUpdate):
		code, text = http.StatusConflict, msg.Text(services.MsgConcurrentUpdate)
	default:
		h.Log("Ledger error", service, err)
	}
	h.writeJSON(w, code, model.Result{Success: false, Message: text}, service)
}

// decode - тело запроса в структуру с проверкой validator
func (h *WalletHandler) decode(req *http.Request, v any, service string) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", service, err)
		return err
	}
	defer req.Body.Close()
	if len(body) > 0 {
		err = json.Unmarshal(body, v)
		if err != nil {
			return err
		}
	}
	return h.validate.Struct(v)
}

// Кошелек
func (h *WalletHandler) GetWalletHandler(w http.ResponseWriter, req *http.Request) {
	wallet, err := h.ledger.GetWallet(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, err, "GetWalletHandler")
		return
	}
	h.writeJSON(w, http.StatusOK, wallet, "GetWalletHandler")
}

// Поиск по телефону
func (h *WalletHandler) FindByPhoneHandler(w http.ResponseWriter, req *http.Request) {
	wallet, err := h.ledger.FindUserByPhone(req.Context(), mux.Vars(req)["phone"])
	if err != nil {
		h.writeError(w, err, "FindByPhoneHandler")
		return
	}
	h.writeJSON(w, http.StatusOK, wallet, "FindByPhoneHandler")
}

// История транзакций
func (h *WalletHandler) HistoryHandler(w http.ResponseWriter, req *http.Request) {
	view := h.stats.UserTransactionHistory(req.Context(), mux.Vars(req)["id"])
	h.writeJSON(w, http.StatusOK, view, "HistoryHandler")
}

// Пополнение
func (h *WalletHandler) DepositHandler(w http.ResponseWriter, req *http.Request) {
	body := &AmountRequest{}
	err := h.decode(req, body, "DepositHandler")
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	res, err := h.ledger.Deposit(req.Context(), mux.Vars(req)["id"], *body.Amount, body.Detail)
	if err != nil {
		h.writeError(w, err, "DepositHandler")
		return
	}
	h.writeResult(w, res, "DepositHandler")
}

// Вывод
func (h *WalletHandler) WithdrawHandler(w http.ResponseWriter, req *http.Request) {
	body := &AmountRequest{}
	err := h.decode(req, body, "WithdrawHandler")
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	res, err := h.ledger.Withdraw(req.Context(), mux.Vars(req)["id"], *body.Amount)
	if err != nil {
		h.writeError(w, err, "WithdrawHandler")
		return
	}
	h.writeResult(w, res, "WithdrawHandler")
}

// Обмен баллов на награду
func (h *WalletHandler) RedeemHandler(w http.ResponseWriter, req *http.Request) {
	body := &RedeemRequest{}
	err := h.decode(req, body, "RedeemHandler")
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	res, err := h.ledger.RedeemRewardByID(req.Context(), mux.Vars(req)["id"], body.RewardID)
	if err != nil {
		h.writeError(w, err, "RedeemHandler")
		return
	}
	h.writeResult(w, res, "RedeemHandler")
}

// Продажа на пункте приема
func (h *WalletHandler) SaleHandler(w http.ResponseWriter, req *http.Request) {
	body := &SaleRequest{}
	err := h.decode(req, body, "SaleHandler")
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	items := body.Items
	var total decimal.Decimal
	if body.Total != nil {
		total = *body.Total
	} else {
		total, items, err = h.ledger.PriceItems(req.Context(), body.Items)
		if err != nil {
			h.writeError(w, err, "SaleHandler")
			return
		}
	}
	res, err := h.ledger.RecordSale(req.Context(), body.MemberID, items, total, body.RecordedBy)
	if err != nil {
		h.writeError(w, err, "SaleHandler")
		return
	}
	h.writeResult(w, res, "SaleHandler")
}

// Статистика сообщества, ?community=
func (h *WalletHandler) CommunityStatsHandler(w http.ResponseWriter, req *http.Request) {
	view := h.stats.CommunityStats(req.Context(), req.URL.Query().Get("community"))
	h.writeJSON(w, http.StatusOK, view, "CommunityStatsHandler")
}

func (h *WalletHandler) LeaderboardHandler(w http.ResponseWriter, req *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats.Leaderboard(req.Context()), "LeaderboardHandler")
}

func (h *WalletHandler) MaterialsHandler(w http.ResponseWriter, req *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats.MaterialVolumeStats(req.Context()), "MaterialsHandler")
}

// Проставить community старым записям
func (h *WalletHandler) BackfillHandler(w http.ResponseWriter, req *http.Request) {
	body := &BackfillRequest{}
	err := h.decode(req, body, "BackfillHandler")
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	updated, err := h.stats.BackfillMissingCommunity(req.Context(), body.Community)
	if err != nil {
		h.writeError(w, err, "BackfillHandler")
		return
	}
	h.writeJSON(w, http.StatusOK, &BackfillResponse{updated}, "BackfillHandler")
}
