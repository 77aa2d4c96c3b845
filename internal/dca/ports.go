// Package dca implements the save-while-you-swap conversion engine: the
// per-user order queue, the tick-conditional scheduler, dynamic order
// sizing, and slippage-protected execution over a host liquidity pool.
package dca

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/engine/internal/types"
)

// OrderStore is the durable per-user order queue plus strategy/configuration
// records. The engine is the sole writer of execution state. All calls are
// assumed atomic and consistent within one engine invocation.
type OrderStore interface {
	QueueLength(ctx context.Context, user common.Address) (int, error)
	QueueItem(ctx context.Context, user common.Address, index int) (types.QueueItem, error)
	AppendToQueue(ctx context.Context, user common.Address, item types.QueueItem) error
	MarkExecuted(ctx context.Context, user common.Address, index int) error
	// CompactExecuted removes executed items preserving the relative order
	// of the remaining unexecuted items.
	CompactExecuted(ctx context.Context, user common.Address) error
	TickStrategy(ctx context.Context, user common.Address) (types.TickStrategy, error)
	DCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, error)
}

// Ledger is the savings balance store the engine debits and credits.
type Ledger interface {
	Balance(ctx context.Context, user common.Address, token common.Address) (*big.Int, error)
	Debit(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
	Credit(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
}

// TickOracle reads the live tick of an asset pair. Scheduling correctness
// requires the value to reflect the price at the instant of the call, never
// a cached observation.
type TickOracle interface {
	CurrentTick(ctx context.Context, pair types.Pair) (int64, error)
}

// SwapExecutor submits a conversion to the external pool. The executor
// applies its own venue-level guard against pathological execution (a price
// bound or minimum-output floor, whatever the venue supports); ordinary
// slippage is enforced by the engine on the returned amount.
type SwapExecutor interface {
	Swap(ctx context.Context, pair types.Pair, zeroForOne bool, amount *big.Int) (*big.Int, error)
}

// SlippagePolicy resolves the effective tolerance for a swap and arbitrates
// shortfalls. OnShortfall returning true means "accept the degraded result".
type SlippagePolicy interface {
	EffectiveTolerance(ctx context.Context, user common.Address, pair types.Pair, overrideBps uint16) (uint16, error)
	OnShortfall(ctx context.Context, user common.Address, pair types.Pair, requested, received, minExpected *big.Int) (bool, error)
}

// ReceiptAccounting is the tokenized claim bookkeeping mirrored on every
// conversion: burn on the source asset, mint on the destination.
type ReceiptAccounting interface {
	Burn(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
	Mint(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
	// ResolveOrRegister returns the receipt identifier for a token,
	// registering the token if it has none yet.
	ResolveOrRegister(ctx context.Context, token common.Address) (uint64, error)
}

// EventSink receives queued and executed events for telemetry and history.
type EventSink interface {
	OrderQueued(ctx context.Context, user common.Address, item types.QueueItem) error
	OrderExecuted(ctx context.Context, user common.Address, item types.QueueItem, requested, received *big.Int) error
}

// TickCache records the last observed tick per pair, updated
// opportunistically for change detection. It is never consulted for
// scheduling decisions.
type TickCache interface {
	LastTick(ctx context.Context, pair types.Pair) (int64, bool, error)
	StoreTick(ctx context.Context, pair types.Pair, tick int64) error
}
