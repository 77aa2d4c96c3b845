package dca

import "math/big"

// sizingCapPct caps the favorable displacement used for dynamic sizing: an
// order never grows past twice its base amount.
const sizingCapPct = 100

// AdjustedAmount scales a base amount by the favorable tick displacement
// since entry. No favorable movement returns the base unchanged; favorable
// movement increases the converted amount linearly, one percent per tick, up
// to a hard cap of 2x. The result is never below base.
func AdjustedAmount(base *big.Int, entryTick, currentTick int64, zeroForOne bool) *big.Int {
	var delta int64
	if zeroForOne {
		delta = entryTick - currentTick
	} else {
		delta = currentTick - entryTick
	}
	if delta <= 0 {
		return new(big.Int).Set(base)
	}
	if delta > sizingCapPct {
		delta = sizingCapPct
	}
	bonus := new(big.Int).Mul(base, big.NewInt(delta))
	bonus.Div(bonus, big.NewInt(100))
	return new(big.Int).Add(base, bonus)
}
