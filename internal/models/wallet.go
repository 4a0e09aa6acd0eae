package recycle

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Кошелек участника
type Wallet struct {
	MemberID  string                     `json:"member_id"`
	Username  string                     `json:"username,omitempty"`
	Phone     string                     `json:"phone,omitempty"`
	Cash      decimal.Decimal            `json:"cash"`
	Points    int64                      `json:"points"`
	Portfolio map[string]decimal.Decimal `json:"portfolio"`
	Community string                     `json:"community"`
	Version   int64                      `json:"-"`
}

// WalletFromDocument - нормализация документа users.
// balance.thb - поле старой схемы, читается, только если balance.cash нет совсем (cash=0 не заменяется)
func WalletFromDocument(doc Document, defaultCommunity string) Wallet {
	w := Wallet{
		MemberID:  doc.ID,
		Username:  ToString(doc.Fields["username"]),
		Phone:     ToString(doc.Fields["phone"]),
		Points:    ToInt64(doc.Fields["points"]),
		Community: ToString(doc.Fields["community"]),
		Portfolio: map[string]decimal.Decimal{},
		Version:   doc.Version,
	}
	if cash, ok := GetPath(doc.Fields, "balance.cash"); ok && cash != nil {
		w.Cash = ToDecimal(cash)
	} else if thb, ok := GetPath(doc.Fields, "balance.thb"); ok {
		w.Cash = ToDecimal(thb)
	}
	if w.Community == "" {
		w.Community = defaultCommunity
	}
	if p, ok := doc.Fields["portfolio"].(map[string]any); ok {
		for id, weight := range p {
			w.Portfolio[id] = ToDecimal(weight)
		}
	}
	return w
}

// PortfolioFields - портфель для записи в документ
func (w Wallet) PortfolioFields() map[string]any {
	p := make(map[string]any, len(w.Portfolio))
	for id, weight := range w.Portfolio {
		p[id] = weight.InexactFloat64()
	}
	return p
}

// Accumulate добавляет вес к портфелю, не перезаписывая накопленное
func (w *Wallet) Accumulate(items []Item) {
	if w.Portfolio == nil {
		w.Portfolio = map[string]decimal.Decimal{}
	}
	for _, item := range items {
		w.Portfolio[item.MaterialID] = w.Portfolio[item.MaterialID].Add(item.Weight)
	}
}

// Участник в рейтинге
type LeaderEntry struct {
	MemberID  string `json:"member_id"`
	Username  string `json:"username"`
	Community string `json:"community"`
	Points    int64  `json:"points"`
}

// SortLeaders - баллы по убыванию, при равенстве - id по возрастанию
func SortLeaders(entries []LeaderEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].MemberID < entries[j].MemberID
	})
}

// Clone - копия с отдельным портфелем
func (w Wallet) Clone() Wallet {
	c := w
	c.Portfolio = make(map[string]decimal.Decimal, len(w.Portfolio))
	for id, weight := range w.Portfolio {
		c.Portfolio[id] = weight
	}
	return c
}
