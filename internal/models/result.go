package recycle

import "github.com/shopspring/decimal"

// Result - итог операции кошелька.
// Success=false - ошибка пользователя (Code, Message), ошибки инфраструктуры возвращаются как error
type Result struct {
	Success     bool         `json:"success"`
	Code        FailureCode  `json:"code,omitempty"`
	Message     string       `json:"message"`
	Wallet      *Wallet      `json:"wallet,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	// Duplicate - запрос уже проведен раньше, Transaction - прежняя запись
	Duplicate bool `json:"duplicate,omitempty"`
}

// View - результат агрегации. Failed=true: запрос не выполнен, Data пустые
type View[T any] struct {
	Data   T    `json:"data"`
	Failed bool `json:"failed"`
}

type CommunityStats struct {
	Members       int64  `json:"members"`
	Points        int64  `json:"points"`
	TotalWeightKg string `json:"total_weight_kg"`
	TotalMoney    string `json:"total_money"`
}

// ZeroCommunityStats - статистика без активности
func ZeroCommunityStats() CommunityStats {
	return CommunityStats{
		TotalWeightKg: decimal.Zero.StringFixed(2),
		TotalMoney:    decimal.Zero.StringFixed(2),
	}
}

// MaterialVolume - суммарный вес по видам сырья, кг
type MaterialVolume map[string]decimal.Decimal
