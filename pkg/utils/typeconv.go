package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DateLayout is the calendar-date layout used for run dates and sale dates.
const DateLayout = "2006-01-02"

// naTokens are the cell values flat-file exports use for "no value". The
// set matches the defaults of the common dataframe CSV readers.
var naTokens = map[string]bool{
	"#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true,
	"N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

// IsMissing reports whether a raw value counts as absent: nil, a blank or
// NA-token string, or a NaN float.
func IsMissing(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(v)
		return s == "" || naTokens[s]
	case []byte:
		return IsMissing(string(v))
	case float64:
		return math.IsNaN(v)
	case float32:
		return math.IsNaN(float64(v))
	case decimal.NullDecimal:
		return !v.Valid
	default:
		return false
	}
}

// ConvertToInt64 converts a raw value to int64. Floats and decimal strings
// are accepted only when they hold an integral value.
func ConvertToInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// 2^63 is exactly representable; anything at or past it wraps.
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) ||
			v < -9.223372036854775808e18 || v >= 9.223372036854775808e18 {
			return 0, fmt.Errorf("cannot convert %v to an integer", v)
		}
		return int64(v), nil
	case decimal.Decimal:
		if !fitsInt64(v) {
			return 0, fmt.Errorf("cannot convert %s to an integer", v)
		}
		return v.IntPart(), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil || !fitsInt64(d) {
			return 0, fmt.Errorf("cannot convert %q to an integer", v)
		}
		return d.IntPart(), nil
	case []byte:
		return ConvertToInt64(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", val)
	}
}

// fitsInt64 reports whether d is a whole number within the int64 range.
func fitsInt64(d decimal.Decimal) bool {
	return d.IsInteger() && d.BigInt().IsInt64()
}

// ConvertToDecimal converts a raw value to a fixed-point decimal.
func ConvertToDecimal(val interface{}) (decimal.Decimal, error) {
	switch v := val.(type) {
	case decimal.Decimal:
		return v, nil
	case decimal.NullDecimal:
		if !v.Valid {
			return decimal.Zero, fmt.Errorf("cannot convert NULL to a decimal")
		}
		return v.Decimal, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("cannot convert %v to a decimal", v)
		}
		return decimal.NewFromFloat(v), nil
	case primitive.Decimal128:
		return decimal.NewFromString(v.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot convert %q to a decimal", v)
		}
		return d, nil
	case []byte:
		return ConvertToDecimal(string(v))
	default:
		return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", val)
	}
}

// ConvertDateTime parses the time representations the drivers and the CSV
// file hand back.
func ConvertDateTime(val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02 15:04:05.999999999-07:00",
			DateLayout,
		}
		s := strings.TrimSpace(v)
		for _, f := range formats {
			if t, err := time.Parse(f, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", val)
	}
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same calendar date, each read
// in its own location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
