package dca

import (
	"math/big"
	"testing"
)

func TestAdjustedAmount(t *testing.T) {
	tests := []struct {
		name        string
		base        int64
		entryTick   int64
		currentTick int64
		zeroForOne  bool
		want        int64
	}{
		{"no movement returns base", 1000, 100, 100, true, 1000},
		{"unfavorable movement returns base", 1000, 100, 120, true, 1000},
		{"favorable 20 ticks adds 20 percent", 1000, 100, 80, true, 1200},
		{"favorable 1 tick adds 1 percent", 1000, 100, 99, true, 1010},
		{"displacement past 100 capped at double", 1000, 100, -50, true, 2000},
		{"exactly 100 doubles", 1000, 100, 0, true, 2000},
		{"oneForZero favorable is rising tick", 1000, 100, 130, false, 1300},
		{"oneForZero unfavorable returns base", 1000, 100, 70, false, 1000},
		{"rounding truncates toward zero", 999, 100, 99, true, 1008},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdjustedAmount(big.NewInt(tt.base), tt.entryTick, tt.currentTick, tt.zeroForOne)
			if got.Int64() != tt.want {
				t.Errorf("AdjustedAmount() = %s, want %d", got, tt.want)
			}
		})
	}
}

// The adjusted amount never drops below base and never exceeds twice base,
// for any tick pair in either direction.
func TestAdjustedAmountBounds(t *testing.T) {
	base := big.NewInt(12345)
	double := new(big.Int).Mul(base, big.NewInt(2))
	for entry := int64(-200); entry <= 200; entry += 17 {
		for current := int64(-200); current <= 200; current += 13 {
			for _, zeroForOne := range []bool{true, false} {
				got := AdjustedAmount(base, entry, current, zeroForOne)
				if got.Cmp(base) < 0 {
					t.Fatalf("entry=%d current=%d zfo=%v: %s below base", entry, current, zeroForOne, got)
				}
				if got.Cmp(double) > 0 {
					t.Fatalf("entry=%d current=%d zfo=%v: %s above 2x cap", entry, current, zeroForOne, got)
				}
			}
		}
	}
}

func TestAdjustedAmountDoesNotMutateBase(t *testing.T) {
	base := big.NewInt(1000)
	_ = AdjustedAmount(base, 100, 50, true)
	if base.Int64() != 1000 {
		t.Fatalf("base mutated to %s", base)
	}
}
