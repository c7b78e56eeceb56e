package utils

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(nil))
	assert.True(t, IsMissing(""))
	assert.True(t, IsMissing("   "))
	assert.True(t, IsMissing(math.NaN()))
	assert.True(t, IsMissing(decimal.NullDecimal{}))
	for _, tok := range []string{"NaN", "NA", "N/A", "null", "NULL", " nan ", "<NA>", "None"} {
		assert.True(t, IsMissing(tok), "token %q", tok)
	}
	assert.True(t, IsMissing([]byte("NA")))

	assert.False(t, IsMissing("0"))
	assert.False(t, IsMissing(int64(0)))
	assert.False(t, IsMissing(decimal.Zero))
	assert.False(t, IsMissing("Nano"))
}

func TestConvertToInt64(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{int(3), 3},
		{int32(4), 4},
		{int64(101), 101},
		{float64(102), 102},
		{"103", 103},
		{" 104 ", 104},
		{"105.0", 105},
		{[]byte("106"), 106},
		{decimal.NewFromInt(107), 107},
		{"9223372036854775807", math.MaxInt64},
		{"-9223372036854775808.0", math.MinInt64},
		{float64(-9.223372036854775808e18), math.MinInt64},
	}
	for _, c := range cases {
		got, err := ConvertToInt64(c.in)
		require.NoError(t, err, "input %#v", c.in)
		assert.Equal(t, c.want, got)
	}
}

func TestConvertToInt64_Rejects(t *testing.T) {
	for _, in := range []interface{}{
		"abc", "1.5", 2.5, math.Inf(1), true, decimal.RequireFromString("3.3"),
		"99999999999999999999",
		"18446744073709551617",
		"9223372036854775808.0",
		"-9223372036854775809",
		float64(1e19),
		float64(9.223372036854775808e18),
		decimal.RequireFromString("18446744073709551617"),
	} {
		_, err := ConvertToInt64(in)
		assert.Error(t, err, "input %#v", in)
	}
}

func TestConvertToDecimal(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{"40.00", "40"},
		{" 20.5 ", "20.5"},
		{float64(60), "60"},
		{int64(7), "7"},
		{decimal.RequireFromString("12.34"), "12.34"},
		{[]byte("1.10"), "1.1"},
	}
	for _, c := range cases {
		got, err := ConvertToDecimal(c.in)
		require.NoError(t, err, "input %#v", c.in)
		assert.True(t, got.Equal(decimal.RequireFromString(c.want)), "input %#v: got %s", c.in, got)
	}

	d128, err := primitive.ParseDecimal128("99.95")
	require.NoError(t, err)
	got, err := ConvertToDecimal(d128)
	require.NoError(t, err)
	assert.Equal(t, "99.95", got.String())
}

func TestConvertToDecimal_Rejects(t *testing.T) {
	for _, in := range []interface{}{"not-a-number", math.NaN(), struct{}{}} {
		_, err := ConvertToDecimal(in)
		assert.Error(t, err, "input %#v", in)
	}
}

func TestConvertDateTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []interface{}{"2024-03-01", "2024-03-01T00:00:00Z", "2024-03-01 00:00:00", []byte("2024-03-01"), want} {
		got, err := ConvertDateTime(in)
		require.NoError(t, err, "input %#v", in)
		assert.True(t, got.Equal(want), "input %#v: got %s", in, got)
	}

	got, err := ConvertDateTime(primitive.NewDateTimeFromTime(want))
	require.NoError(t, err)
	assert.True(t, got.Equal(want))

	_, err = ConvertDateTime("03/01/2024")
	assert.Error(t, err)
}

func TestParseDateAndSameDay(t *testing.T) {
	d, err := ParseDate("2024-03-02")
	require.NoError(t, err)
	assert.True(t, SameDay(d, time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC)))
	assert.False(t, SameDay(d, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)))

	_, err = ParseDate("2024-13-40")
	assert.Error(t, err)
}
