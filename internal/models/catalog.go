package recycle

import "github.com/shopspring/decimal"

// Вид вторсырья
type MaterialType struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Unit         string          `json:"unit"`
}

func MaterialTypeFromDocument(doc Document) MaterialType {
	return MaterialType{
		ID:           doc.ID,
		Name:         ToString(doc.Fields["name"]),
		PricePerUnit: ToDecimal(doc.Fields["price_per_unit"]),
		Unit:         ToString(doc.Fields["unit"]),
	}
}

// Награда. Stock при списании не уменьшается
type Reward struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cost  int64  `json:"cost"`
	Stock int64  `json:"stock"`
}

func RewardFromDocument(doc Document) Reward {
	return Reward{
		ID:    doc.ID,
		Name:  ToString(doc.Fields["name"]),
		Cost:  ToInt64(doc.Fields["cost"]),
		Stock: ToInt64(doc.Fields["stock"]),
	}
}
