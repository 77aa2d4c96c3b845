package dca

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
)

// Config carries the engine-level constants and privileged identities.
type Config struct {
	// Orchestrator is the protocol service address allowed to act on any
	// user's queue.
	Orchestrator common.Address
	// Trigger is the designated keeper address allowed to run sweeps.
	Trigger common.Address
	// FeeCollector receives the protocol fee taken from every conversion.
	FeeCollector common.Address
	// ProtocolFeeBps is applied to the received amount on settlement.
	ProtocolFeeBps uint16
}

// Engine orchestrates enqueueing, scheduling, sizing and slippage-protected
// execution of queued conversions. Collaborators are injected by capability
// so each can be substituted independently.
type Engine struct {
	cfg      Config
	store    OrderStore
	ledger   Ledger
	oracle   TickOracle
	swapper  SwapExecutor
	slippage SlippagePolicy
	receipts ReceiptAccounting
	events   EventSink
	cache    TickCache
	logger   *logrus.Logger

	// mu serializes state-mutating entry points, so overlapping calls from
	// the API and the keeper queue up behind one another. Recursive
	// re-entry from a collaborator callback is detected separately through
	// the context marker set by enter.
	mu sync.Mutex
}

// NewEngine wires the engine to its collaborators. cache and events may be
// nil; everything else is required.
func NewEngine(
	cfg Config,
	store OrderStore,
	ledger Ledger,
	oracle TickOracle,
	swapper SwapExecutor,
	slippage SlippagePolicy,
	receipts ReceiptAccounting,
	events EventSink,
	cache TickCache,
	logger *logrus.Logger,
) (*Engine, error) {
	if store == nil || ledger == nil || oracle == nil || swapper == nil || slippage == nil || receipts == nil {
		return nil, fmt.Errorf("engine collaborators cannot be nil")
	}
	if cfg.ProtocolFeeBps > 10000 {
		return nil, fmt.Errorf("protocol fee %d exceeds 10000 bps", cfg.ProtocolFeeBps)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		oracle:   oracle,
		swapper:  swapper,
		slippage: slippage,
		receipts: receipts,
		events:   events,
		cache:    cache,
		logger:   logger,
	}, nil
}

// busyKey marks a context that is already inside a state-mutating engine
// call. Collaborators receive the marked context, so a callback that calls
// back into the engine is rejected instead of deadlocking on the mutex.
type busyKey struct{}

func (e *Engine) enter(ctx context.Context) (context.Context, error) {
	if ctx.Value(busyKey{}) != nil {
		return nil, types.ErrReentrantCall
	}
	e.mu.Lock()
	return context.WithValue(ctx, busyKey{}, struct{}{}), nil
}

func (e *Engine) exit() {
	e.mu.Unlock()
}

func (e *Engine) authorize(caller, user common.Address) error {
	if caller == user || caller == e.cfg.Orchestrator || caller == e.cfg.Trigger {
		return nil
	}
	return fmt.Errorf("%w: %s acting for %s", types.ErrUnauthorizedCaller, caller.Hex(), user.Hex())
}

// liveTick reads the oracle and opportunistically refreshes the tick cache.
// The cache is telemetry only, so its failures never surface.
func (e *Engine) liveTick(ctx context.Context, pair types.Pair) (int64, error) {
	tick, err := e.oracle.CurrentTick(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("oracle.CurrentTick failed: %w", err)
	}
	if e.cache != nil {
		last, ok, cerr := e.cache.LastTick(ctx, pair)
		if cerr == nil && ok && last != tick {
			e.logger.WithFields(logrus.Fields{
				"pair": pair.String(),
				"from": last,
				"to":   tick,
			}).Debug("pool tick moved")
		}
		if cerr := e.cache.StoreTick(ctx, pair, tick); cerr != nil {
			e.logger.WithError(cerr).Warn("tick cache update failed")
		}
	}
	return tick, nil
}

// Enqueue appends a new conversion order for user, capturing the projected
// execution tick and the deadline derived from the user's strategy.
func (e *Engine) Enqueue(
	ctx context.Context,
	caller, user common.Address,
	fromToken, toToken common.Address,
	amount *big.Int,
	customSlippageBps uint16,
) (types.QueueItem, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return types.QueueItem{}, err
	}
	defer e.exit()

	if err := e.authorize(caller, user); err != nil {
		return types.QueueItem{}, err
	}
	if fromToken == toToken {
		return types.QueueItem{}, types.ErrSameToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return types.QueueItem{}, types.ErrZeroAmountSwap
	}

	strategy, err := e.store.TickStrategy(ctx, user)
	if err != nil {
		return types.QueueItem{}, fmt.Errorf("store.TickStrategy failed: %w", err)
	}

	pair := types.Pair{FromToken: fromToken, ToToken: toToken}
	currentTick, err := e.liveTick(ctx, pair)
	if err != nil {
		return types.QueueItem{}, err
	}

	item := types.QueueItem{
		ID:                uuid.New(),
		FromToken:         fromToken,
		ToToken:           toToken,
		Amount:            new(big.Int).Set(amount),
		ExecutionTick:     ProjectExecutionTick(strategy, currentTick, pair.ZeroForOne()),
		Deadline:          time.Now().Add(strategy.TickExpiry),
		CustomSlippageBps: customSlippageBps,
	}
	if err := e.store.AppendToQueue(ctx, user, item); err != nil {
		return types.QueueItem{}, fmt.Errorf("store.AppendToQueue failed: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"user":           user.Hex(),
		"pair":           pair.String(),
		"amount":         item.Amount.String(),
		"execution_tick": item.ExecutionTick,
	}).Info("conversion order queued")
	if e.events != nil {
		if err := e.events.OrderQueued(ctx, user, item); err != nil {
			return types.QueueItem{}, fmt.Errorf("events.OrderQueued failed: %w", err)
		}
	}
	return item, nil
}
