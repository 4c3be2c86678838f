package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFeeFraction(t *testing.T) {
	cases := []struct {
		percent, want string
	}{
		{"0", "0"},
		{"0.25", "0.0025"},
		{"0.2", "0.002"},
		{"100", "1"},
		{"0.123456785", "0.00123457"}, // eight places, half up
		{"33.333333333", "0.33333333"},
	}
	for _, tc := range cases {
		got, err := FeeFraction(decimal.RequireFromString(tc.percent))
		if err != nil {
			t.Fatalf("FeeFraction(%s): %v", tc.percent, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("FeeFraction(%s) = %s, want %s", tc.percent, got, tc.want)
		}
	}
}

func TestFeeFraction_RangeForAllValidPercentages(t *testing.T) {
	one := decimal.NewFromInt(1)
	for i := 0; i <= 10000; i += 7 {
		pct := decimal.New(int64(i), -2) // 0.00 .. 100.00
		f, err := FeeFraction(pct)
		if err != nil {
			t.Fatalf("FeeFraction(%s): %v", pct, err)
		}
		if f.IsNegative() || f.GreaterThan(one) {
			t.Fatalf("FeeFraction(%s) = %s outside [0,1]", pct, f)
		}
	}

	for _, bad := range []string{"-0.01", "100.01"} {
		if _, err := FeeFraction(decimal.RequireFromString(bad)); err == nil {
			t.Errorf("FeeFraction(%s) should fail", bad)
		}
	}
}
