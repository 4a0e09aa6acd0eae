package recycle

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Старые документы хранят числа как угодно: числом, строкой, пустым значением.
// Всё приводится здесь, а не в местах чтения.

// ToDecimal - число или строка в decimal, всё остальное - 0
func ToDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// ToInt64 - как parseInt: дробная часть отбрасывается
func ToInt64(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return ToDecimal(val).IntPart()
	case float32, float64:
		return ToDecimal(val).IntPart()
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return 0
	}
	return i
}

func ToString(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

// ToTime - дата документа. Пустая дата - нулевое время (эпоха 0)
func ToTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return time.Unix(0, 0).UTC()
		}
		return t
	case map[string]any:
		// timestamp в формате {seconds, nanoseconds}
		return time.Unix(ToInt64(val["seconds"]), ToInt64(val["nanoseconds"])).UTC()
	case nil:
		return time.Unix(0, 0).UTC()
	}
	sec, err := cast.ToInt64E(v)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return time.Unix(sec, 0).UTC()
}

// Money - decimal для записи в документ
func Money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
