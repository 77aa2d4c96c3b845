package dca

import (
	"time"

	"github.com/spendsave/engine/internal/types"
)

// ProjectExecutionTick computes the target tick a queued order must reach
// before it becomes eligible. A zero tickDelta means "execute at the
// prevailing price". Otherwise the target is displaced from the current tick
// so that further movement in the user's favor is required: zeroForOne swaps
// profit from a falling tick, so the target sits tickDelta below.
func ProjectExecutionTick(strategy types.TickStrategy, currentTick int64, zeroForOne bool) int64 {
	if strategy.TickDelta == 0 {
		return currentTick
	}
	if zeroForOne {
		return currentTick - strategy.TickDelta
	}
	return currentTick + strategy.TickDelta
}

// Eligible decides whether a queued item may execute now. The deadline
// fallback overrides every price condition: an order must eventually execute
// even in an unfavorable market. When OnlyImprovePrice is unset, the item is
// eligible on the next evaluation regardless of the current tick.
func Eligible(item types.QueueItem, strategy types.TickStrategy, currentTick int64, now time.Time) bool {
	if item.Executed {
		return false
	}
	if strategy.TickExpiry > 0 && now.After(item.Deadline) {
		return true
	}
	if strategy.OnlyImprovePrice {
		return priceImproved(item, strategy, currentTick)
	}
	return true
}

func priceImproved(item types.QueueItem, strategy types.TickStrategy, currentTick int64) bool {
	if item.Pair().ZeroForOne() {
		if currentTick > item.ExecutionTick {
			return false
		}
		if strategy.MinTickImprovement > 0 && item.ExecutionTick-currentTick < strategy.MinTickImprovement {
			return false
		}
		return true
	}
	if currentTick < item.ExecutionTick {
		return false
	}
	if strategy.MinTickImprovement > 0 && currentTick-item.ExecutionTick < strategy.MinTickImprovement {
		return false
	}
	return true
}
