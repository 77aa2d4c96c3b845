package dca

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
)

var errZeroOutput = fmt.Errorf("%w: swap produced zero output", types.ErrSwapExecutionFailed)

// Execute converts queue item index for user at the live market tick. Every
// failure is surfaced to the caller so a directly-invoked execution can be
// retried or inspected; the engine never retries on its own.
func (e *Engine) Execute(ctx context.Context, caller, user common.Address, index int) (types.SweepReceipt, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return types.SweepReceipt{}, err
	}
	defer e.exit()

	if err := e.authorize(caller, user); err != nil {
		return types.SweepReceipt{}, err
	}

	item, err := e.store.QueueItem(ctx, user, index)
	if err != nil {
		return types.SweepReceipt{}, fmt.Errorf("store.QueueItem failed: %w", err)
	}
	strategy, err := e.store.TickStrategy(ctx, user)
	if err != nil {
		return types.SweepReceipt{}, fmt.Errorf("store.TickStrategy failed: %w", err)
	}
	currentTick, err := e.liveTick(ctx, item.Pair())
	if err != nil {
		return types.SweepReceipt{}, err
	}
	return e.executeItem(ctx, user, index, item, strategy, currentTick)
}

// executeItem is the settlement core shared by Execute and the batch sweeps.
// The caller has already been authorized and the guard is held.
func (e *Engine) executeItem(
	ctx context.Context,
	user common.Address,
	index int,
	item types.QueueItem,
	strategy types.TickStrategy,
	currentTick int64,
) (types.SweepReceipt, error) {
	if item.Executed {
		return types.SweepReceipt{}, fmt.Errorf("%w: index %d", types.ErrInvalidDCAExecution, index)
	}
	if item.Amount == nil || item.Amount.Sign() <= 0 {
		return types.SweepReceipt{}, types.ErrZeroAmountSwap
	}

	pair := item.Pair()
	zeroForOne := pair.ZeroForOne()

	// The execution tick serves as the entry reference: displacement past
	// the target is what the order "earned" by waiting.
	swapAmount := new(big.Int).Set(item.Amount)
	if strategy.DynamicSizing {
		swapAmount = AdjustedAmount(item.Amount, item.ExecutionTick, currentTick, zeroForOne)
	}

	balance, err := e.ledger.Balance(ctx, user, item.FromToken)
	if err != nil {
		return types.SweepReceipt{}, fmt.Errorf("ledger.Balance failed: %w", err)
	}
	if balance.Cmp(swapAmount) < 0 {
		return types.SweepReceipt{}, fmt.Errorf("%w: have %s, need %s",
			types.ErrInsufficientSavings, balance.String(), swapAmount.String())
	}

	toleranceBps, err := e.slippage.EffectiveTolerance(ctx, user, pair, item.CustomSlippageBps)
	if err != nil {
		return types.SweepReceipt{}, fmt.Errorf("slippage.EffectiveTolerance failed: %w", err)
	}
	minAmountOut := new(big.Int).Mul(swapAmount, big.NewInt(10000-int64(toleranceBps)))
	minAmountOut.Div(minAmountOut, big.NewInt(10000))

	received, err := e.swapper.Swap(ctx, pair, zeroForOne, swapAmount)
	if err != nil {
		return types.SweepReceipt{}, fmt.Errorf("%w: %v", types.ErrSwapExecutionFailed, err)
	}
	if received == nil || received.Sign() == 0 {
		return types.SweepReceipt{}, errZeroOutput
	}

	if received.Cmp(minAmountOut) < 0 {
		accept, err := e.slippage.OnShortfall(ctx, user, pair, swapAmount, received, minAmountOut)
		if err != nil {
			return types.SweepReceipt{}, fmt.Errorf("slippage.OnShortfall failed: %w", err)
		}
		if !accept {
			return types.SweepReceipt{}, fmt.Errorf("%w: received %s < min %s",
				types.ErrSlippageToleranceExceeded, received.String(), minAmountOut.String())
		}
		e.logger.WithFields(logrus.Fields{
			"user":     user.Hex(),
			"pair":     pair.String(),
			"received": received.String(),
			"min_out":  minAmountOut.String(),
		}).Warn("accepting degraded swap result per user policy")
	}

	// Settlement. The source ledger is debited by the requested swap amount,
	// the destination is credited with the post-fee received amount; the two
	// sides are intentionally asymmetric when a shortfall was accepted.
	if err := e.ledger.Debit(ctx, user, item.FromToken, swapAmount); err != nil {
		return types.SweepReceipt{}, fmt.Errorf("ledger.Debit failed: %w", err)
	}
	net := new(big.Int).Set(received)
	if e.cfg.ProtocolFeeBps > 0 {
		fee := new(big.Int).Mul(received, big.NewInt(int64(e.cfg.ProtocolFeeBps)))
		fee.Div(fee, big.NewInt(10000))
		if fee.Sign() > 0 {
			if err := e.ledger.Credit(ctx, e.cfg.FeeCollector, item.ToToken, fee); err != nil {
				return types.SweepReceipt{}, fmt.Errorf("ledger.Credit fee failed: %w", err)
			}
			net.Sub(net, fee)
		}
	}
	if err := e.ledger.Credit(ctx, user, item.ToToken, net); err != nil {
		return types.SweepReceipt{}, fmt.Errorf("ledger.Credit failed: %w", err)
	}

	if _, err := e.receipts.ResolveOrRegister(ctx, item.ToToken); err != nil {
		return types.SweepReceipt{}, fmt.Errorf("receipts.ResolveOrRegister failed: %w", err)
	}
	if err := e.receipts.Burn(ctx, user, item.FromToken, swapAmount); err != nil {
		return types.SweepReceipt{}, fmt.Errorf("receipts.Burn failed: %w", err)
	}
	if err := e.receipts.Mint(ctx, user, item.ToToken, net); err != nil {
		return types.SweepReceipt{}, fmt.Errorf("receipts.Mint failed: %w", err)
	}

	if err := e.store.MarkExecuted(ctx, user, index); err != nil {
		return types.SweepReceipt{}, fmt.Errorf("store.MarkExecuted failed: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"user":      user.Hex(),
		"pair":      pair.String(),
		"requested": swapAmount.String(),
		"received":  received.String(),
		"tick":      currentTick,
	}).Info("conversion executed")
	if e.events != nil {
		if err := e.events.OrderExecuted(ctx, user, item, swapAmount, received); err != nil {
			return types.SweepReceipt{}, fmt.Errorf("events.OrderExecuted failed: %w", err)
		}
	}

	return types.SweepReceipt{
		User:      user,
		Index:     index,
		FromToken: item.FromToken,
		ToToken:   item.ToToken,
		Requested: swapAmount,
		Received:  received,
	}, nil
}
