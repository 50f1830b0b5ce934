package service

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// normalizeValue turns a driver value into one of string, float64, int64,
// bool or nil so rows serialise the same way on every store.
func normalizeValue(v any, dbType string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeValue(string(x), dbType)
	case string:
		if isDecimalType(dbType) {
			if d, err := decimal.NewFromString(x); err == nil {
				return d.InexactFloat64()
			}
		}
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64, float64, bool:
		return x
	case float32:
		return float64(x)
	case *big.Rat:
		if x == nil {
			return nil
		}
		d, err := decimal.NewFromString(x.FloatString(9))
		if err != nil {
			return x.String()
		}
		return d.InexactFloat64()
	case time.Time:
		return formatTime(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isDecimalType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL", "BIGNUMERIC", "BIGDECIMAL", "MONEY":
		return true
	}
	return false
}

// formatTime renders calendar days as YYYY-MM-DD and anything with a clock
// component as RFC 3339 in UTC.
func formatTime(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format(time.DateOnly)
	}
	return u.Format(time.RFC3339)
}
