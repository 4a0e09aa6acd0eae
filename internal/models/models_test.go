package recycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		value    any
		expected string
	}{
		{nil, "0"},
		{12.5, "12.5"},
		{int64(7), "7"},
		{int32(3), "3"},
		{"21.25", "21.25"},
		{" 4 ", "4"},
		{"abc", "0"},
		{true, "1"},
		{map[string]any{}, "0"},
	}
	for _, ts := range tests {
		result := ToDecimal(ts.value)
		require.True(t, decimal.RequireFromString(ts.expected).Equal(result), "value=%v result=%s", ts.value, result)
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		value    any
		expected int64
	}{
		{nil, 0},
		{31.0, 31},
		{12.9, 12},
		{"12.7", 12},
		{"40", 40},
		{int32(5), 5},
		{"", 0},
	}
	for _, ts := range tests {
		require.Equal(t, ts.expected, ToInt64(ts.value), "value=%v", ts.value)
	}
}

func TestToTime(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		value    any
		expected time.Time
	}{
		{nil, time.Unix(0, 0).UTC()},
		{at, at},
		{at.Format(time.RFC3339Nano), at},
		{map[string]any{"seconds": float64(at.Unix()), "nanoseconds": 0.0}, at},
		{at.Unix(), at},
		{"not a date", time.Unix(0, 0).UTC()},
	}
	for _, ts := range tests {
		require.True(t, ts.expected.Equal(ToTime(ts.value)), "value=%v", ts.value)
	}
}

func TestWalletFromDocument(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]any
		cash      string
		points    int64
		community string
	}{
		{"current", map[string]any{"balance": map[string]any{"cash": 10.5}, "points": 3.0, "community": "north"}, "10.5", 3, "north"},
		{"legacy thb", map[string]any{"balance": map[string]any{"thb": "7"}}, "7", 0, "general"},
		{"cash over thb", map[string]any{"balance": map[string]any{"cash": 0.0, "thb": 99.0}}, "0", 0, "general"},
		{"empty", map[string]any{}, "0", 0, "general"},
	}
	for _, ts := range tests {
		w := WalletFromDocument(Document{ID: "u1", Version: 4, Fields: ts.fields}, "general")
		require.Equal(t, "u1", w.MemberID, ts.name)
		require.Equal(t, int64(4), w.Version, ts.name)
		require.True(t, decimal.RequireFromString(ts.cash).Equal(w.Cash), ts.name)
		require.Equal(t, ts.points, w.Points, ts.name)
		require.Equal(t, ts.community, w.Community, ts.name)
		require.NotNil(t, w.Portfolio, ts.name)
	}
}

func TestAccumulate(t *testing.T) {
	w := WalletFromDocument(Document{Fields: map[string]any{
		"portfolio": map[string]any{"pet": 2.5},
	}}, "general")
	c := w.Clone()
	c.Accumulate([]Item{
		{MaterialID: "pet", Weight: decimal.RequireFromString("1.5")},
		{MaterialID: "can", Weight: decimal.RequireFromString("0.2")},
	})
	require.True(t, decimal.NewFromInt(4).Equal(c.Portfolio["pet"]))
	require.True(t, decimal.RequireFromString("0.2").Equal(c.Portfolio["can"]))
	// исходный кошелек не меняется
	require.True(t, decimal.RequireFromString("2.5").Equal(w.Portfolio["pet"]))
	require.Equal(t, map[string]any{"pet": 4.0, "can": 0.2}, c.PortfolioFields())
}

func TestTransactionDocument(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tnx := Transaction{
		MemberID:  "u1",
		Type:      Sell,
		Amount:    decimal.RequireFromString("21.254"),
		Items:     []Item{{MaterialID: "pet", Weight: decimal.RequireFromString("2.5")}},
		Status:    StatusCompleted,
		CreatedAt: at,
	}
	fields := tnx.Fields()
	require.Equal(t, 21.25, fields["amount"])
	require.Equal(t, "sell", fields["type"])
	_, ok := fields["reward_id"]
	require.False(t, ok)
	_, ok = fields["request_id"]
	require.False(t, ok)

	back := TransactionFromDocument(Document{ID: "t1", Fields: fields})
	require.Equal(t, "t1", back.ID)
	require.Len(t, back.Items, 1)
	require.True(t, decimal.RequireFromString("2.5").Equal(back.Items[0].Weight))
	require.True(t, at.Equal(back.CreatedAt))

	tnx.RequestID = "sale:k1"
	require.Equal(t, "sale:k1", TransactionFromDocument(Document{Fields: tnx.Fields()}).RequestID)

	// позиции без id пропускаются
	items := ItemsFromValue([]any{map[string]any{"weight": 1.0}, "junk", map[string]any{"id": "can", "weight": "0.5"}})
	require.Len(t, items, 1)
	require.Equal(t, "can", items[0].MaterialID)
}

func TestQueryMatch(t *testing.T) {
	fields := map[string]any{"community": "north", "balance": map[string]any{"cash": 10.0}}
	require.True(t, Where("community", "north").Match(fields))
	require.False(t, Where("community", "south").Match(fields))
	require.True(t, Where("balance.cash", 10).Match(fields))
	require.False(t, Where("missing", "").Match(fields))

	SetPath(fields, "balance.thb", 5)
	v, ok := GetPath(fields, "balance.thb")
	require.True(t, ok)
	require.Equal(t, 5, v)
}

func TestSortLeaders(t *testing.T) {
	entries := []LeaderEntry{{MemberID: "b", Points: 5}, {MemberID: "a", Points: 5}, {MemberID: "c", Points: 9}}
	SortLeaders(entries)
	require.Equal(t, []string{"c", "a", "b"}, []string{entries[0].MemberID, entries[1].MemberID, entries[2].MemberID})
}
