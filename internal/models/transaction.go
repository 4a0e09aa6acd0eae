package recycle

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	Deposit  TxType = "deposit"
	Withdraw TxType = "withdraw"
	Sell     TxType = "sell"
	Redeem   TxType = "redeem"
)

// Статус всегда completed: pending/failed не используются
const StatusCompleted = "completed"

// Участник без кошелька
const (
	GuestID   = "GUEST"
	GuestName = "Guest (Walk-in)"
)

// Позиция продажи: вид сырья и вес, кг
type Item struct {
	MaterialID string          `json:"id" validate:"required"`
	Name       string          `json:"name,omitempty"`
	Weight     decimal.Decimal `json:"weight"`
}

// Транзакция - неизменяемая запись журнала
type Transaction struct {
	ID         string          `json:"id"`
	MemberID   string          `json:"member_id"`
	MemberName string          `json:"member_name,omitempty"`
	Community  string          `json:"community,omitempty"`
	Type       TxType          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Items      []Item          `json:"items,omitempty"`
	RewardID   string          `json:"reward_id,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Status     string          `json:"status"`
	RecordedBy string          `json:"recorded_by,omitempty"`
	// RequestID - id сообщения из очереди, по нему повтор не проводится второй раз
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Fields - документ для коллекции transactions
func (t Transaction) Fields() map[string]any {
	f := map[string]any{
		"member_id":  t.MemberID,
		"type":       string(t.Type),
		"amount":     Money(t.Amount),
		"status":     t.Status,
		"created_at": t.CreatedAt,
	}
	if t.MemberName != "" {
		f["member_name"] = t.MemberName
	}
	if t.Community != "" {
		f["community"] = t.Community
	}
	if len(t.Items) > 0 {
		items := make([]any, len(t.Items))
		for i, item := range t.Items {
			m := map[string]any{
				"id":     item.MaterialID,
				"weight": item.Weight.InexactFloat64(),
			}
			if item.Name != "" {
				m["name"] = item.Name
			}
			items[i] = m
		}
		f["items"] = items
	}
	if t.RewardID != "" {
		f["reward_id"] = t.RewardID
	}
	if t.Detail != "" {
		f["detail"] = t.Detail
	}
	if t.RecordedBy != "" {
		f["recorded_by"] = t.RecordedBy
	}
	if t.RequestID != "" {
		f["request_id"] = t.RequestID
	}
	return f
}

func TransactionFromDocument(doc Document) Transaction {
	t := Transaction{
		ID:         doc.ID,
		MemberID:   ToString(doc.Fields["member_id"]),
		MemberName: ToString(doc.Fields["member_name"]),
		Community:  ToString(doc.Fields["community"]),
		Type:       TxType(ToString(doc.Fields["type"])),
		Amount:     ToDecimal(doc.Fields["amount"]),
		RewardID:   ToString(doc.Fields["reward_id"]),
		Detail:     ToString(doc.Fields["detail"]),
		Status:     ToString(doc.Fields["status"]),
		RecordedBy: ToString(doc.Fields["recorded_by"]),
		RequestID:  ToString(doc.Fields["request_id"]),
		CreatedAt:  ToTime(doc.Fields["created_at"]),
	}
	t.Items = ItemsFromValue(doc.Fields["items"])
	return t
}

// ItemsFromValue - позиции из массива документа. Позиции без id пропускаются
func ItemsFromValue(v any) []Item {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id := ToString(m["id"])
		if id == "" {
			continue
		}
		items = append(items, Item{
			MaterialID: id,
			Name:       ToString(m["name"]),
			Weight:     ToDecimal(m["weight"]),
		})
	}
	return items
}

// SortNewestFirst - по created_at, новые первыми
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
