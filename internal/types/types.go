package types

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SlippageAction is the user-configured resolution for a swap that delivered
// less than the computed minimum output.
type SlippageAction string

const (
	SlippageAbort    SlippageAction = "abort"
	SlippageContinue SlippageAction = "continue"
)

// Pair identifies the traded asset pair of a queue item.
type Pair struct {
	FromToken common.Address `json:"from_token"`
	ToToken   common.Address `json:"to_token"`
}

// ZeroForOne reports the swap direction derived from the natural ordering of
// the two token identifiers. It is a property of the pair, not of market
// semantics: the lower address is always token zero.
func (p Pair) ZeroForOne() bool {
	return bytes.Compare(p.FromToken.Bytes(), p.ToToken.Bytes()) < 0
}

func (p Pair) String() string {
	return fmt.Sprintf("%s->%s", p.FromToken.Hex(), p.ToToken.Hex())
}

// QueueItem is one queued conversion order. Items are append-only per user;
// the engine is the sole writer of Executed, which latches false->true
// exactly once. Amount is fixed at enqueue time and records what was
// requested, even when dynamic sizing converts more.
type QueueItem struct {
	ID                uuid.UUID      `json:"id"`
	FromToken         common.Address `json:"from_token"`
	ToToken           common.Address `json:"to_token"`
	Amount            *big.Int       `json:"amount"`
	ExecutionTick     int64          `json:"execution_tick"`
	Deadline          time.Time      `json:"deadline"`
	Executed          bool           `json:"executed"`
	CustomSlippageBps uint16         `json:"custom_slippage_bps"`
}

func (q QueueItem) Pair() Pair {
	return Pair{FromToken: q.FromToken, ToToken: q.ToToken}
}

// TickStrategy is the per-user scheduling strategy, mutable between orders.
type TickStrategy struct {
	UserAddress        common.Address `json:"user_address"`
	TickDelta          int64          `json:"tick_delta"`
	TickExpiry         time.Duration  `json:"tick_expiry"`
	OnlyImprovePrice   bool           `json:"only_improve_price"`
	MinTickImprovement int64          `json:"min_tick_improvement"`
	DynamicSizing      bool           `json:"dynamic_sizing"`
	CustomSlippageBps  uint16         `json:"custom_slippage_bps"`
}

// DCAConfig is the per-user conversion configuration consulted by batch
// sweeps and the slippage policy.
type DCAConfig struct {
	UserAddress    common.Address `json:"user_address"`
	Enabled        bool           `json:"enabled"`
	TargetToken    common.Address `json:"target_token"`
	MinAmount      *big.Int       `json:"min_amount"`
	MaxSlippageBps uint16         `json:"max_slippage_bps"`
	LowerTick      int64          `json:"lower_tick"`
	UpperTick      int64          `json:"upper_tick"`
	SlippageAction SlippageAction `json:"slippage_action"`
}

// Validate rejects malformed configurations before they are stored.
func (c DCAConfig) Validate() error {
	if c.LowerTick >= c.UpperTick {
		return fmt.Errorf("%w: lower=%d upper=%d", ErrInvalidTickRange, c.LowerTick, c.UpperTick)
	}
	if c.MaxSlippageBps > 10000 {
		return fmt.Errorf("max slippage %d exceeds 10000 bps", c.MaxSlippageBps)
	}
	switch c.SlippageAction {
	case SlippageAbort, SlippageContinue, "":
	default:
		return fmt.Errorf("unknown slippage action %q", c.SlippageAction)
	}
	return nil
}

// ExecutionStatus tracks an execution-history record through its lifetime.
type ExecutionStatus string

const (
	StatusQueued   ExecutionStatus = "QUEUED"
	StatusExecuted ExecutionStatus = "EXECUTED"
	StatusFailed   ExecutionStatus = "FAILED"
)

// ExecutionRecord is one row of the execution history: a queued event at
// enqueue time, later superseded by an executed event carrying both the
// requested and the actually received amounts.
type ExecutionRecord struct {
	ID         uuid.UUID              `json:"id"`
	User       common.Address         `json:"user"`
	FromToken  common.Address         `json:"from_token"`
	ToToken    common.Address         `json:"to_token"`
	Requested  *big.Int               `json:"requested"`
	Received   *big.Int               `json:"received,omitempty"`
	Status     ExecutionStatus        `json:"status"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	ExecutedAt *time.Time             `json:"executed_at,omitempty"`
}

// SkipReason explains why a batch sweep left an item in the queue.
type SkipReason string

const (
	SkipAlreadyExecuted SkipReason = "already_executed"
	SkipBelowMinAmount  SkipReason = "below_min_amount"
	SkipNotEligible     SkipReason = "not_eligible"
	SkipZeroOutput      SkipReason = "zero_output"
	SkipExecutionError  SkipReason = "execution_error"
	SkipDisabled        SkipReason = "dca_disabled"
)

// SweepReceipt is the outcome of one successful in-sweep execution.
type SweepReceipt struct {
	User      common.Address `json:"user"`
	Index     int            `json:"index"`
	FromToken common.Address `json:"from_token"`
	ToToken   common.Address `json:"to_token"`
	Requested *big.Int       `json:"requested"`
	Received  *big.Int       `json:"received"`
}

// SweepSkip is one item a sweep evaluated but did not execute.
type SweepSkip struct {
	User   common.Address `json:"user"`
	Index  int            `json:"index"`
	Reason SkipReason     `json:"reason"`
	Err    string         `json:"error,omitempty"`
}

// SweepResult is the fail-soft report of a batch pass. Receipts are sized
// exactly to the number of successful executions.
type SweepResult struct {
	Receipts []SweepReceipt `json:"receipts"`
	Skips    []SweepSkip    `json:"skips"`
}

// Executed reports how many items the sweep converted.
func (r SweepResult) Executed() int { return len(r.Receipts) }
