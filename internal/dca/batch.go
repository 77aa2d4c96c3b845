package dca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/engine/internal/types"
)

// SweepUser evaluates user's full queue in index order, executing every
// eligible item above the configured minimum amount. Per-item failures are
// converted to skips so the rest of the queue proceeds; only bookkeeping
// failures (store reads, compaction) abort the sweep.
func (e *Engine) SweepUser(ctx context.Context, caller, user common.Address) (types.SweepResult, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return types.SweepResult{}, err
	}
	defer e.exit()

	if err := e.authorize(caller, user); err != nil {
		return types.SweepResult{}, err
	}

	var result types.SweepResult
	if err := e.sweepOne(ctx, user, &result); err != nil {
		return types.SweepResult{}, err
	}
	return result, nil
}

// SweepUsers runs the single-user sweep logic over a caller-supplied list of
// users. The receipts accumulate across users and are sized exactly to the
// number of successful executions. A user the caller may not act for aborts
// the batch before any work is done for them.
func (e *Engine) SweepUsers(ctx context.Context, caller common.Address, users []common.Address) (types.SweepResult, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return types.SweepResult{}, err
	}
	defer e.exit()

	var result types.SweepResult
	for _, user := range users {
		if err := e.authorize(caller, user); err != nil {
			return types.SweepResult{}, err
		}
		if err := e.sweepOne(ctx, user, &result); err != nil {
			return types.SweepResult{}, err
		}
	}
	return result, nil
}

func (e *Engine) sweepOne(ctx context.Context, user common.Address, result *types.SweepResult) error {
	cfg, err := e.store.DCAConfig(ctx, user)
	if err != nil {
		return fmt.Errorf("store.DCAConfig failed: %w", err)
	}
	if !cfg.Enabled {
		result.Skips = append(result.Skips, types.SweepSkip{User: user, Index: -1, Reason: types.SkipDisabled})
		return nil
	}
	strategy, err := e.store.TickStrategy(ctx, user)
	if err != nil {
		return fmt.Errorf("store.TickStrategy failed: %w", err)
	}
	length, err := e.store.QueueLength(ctx, user)
	if err != nil {
		return fmt.Errorf("store.QueueLength failed: %w", err)
	}

	executed := 0
	for i := 0; i < length; i++ {
		item, err := e.store.QueueItem(ctx, user, i)
		if err != nil {
			return fmt.Errorf("store.QueueItem failed at %d: %w", i, err)
		}
		if item.Executed {
			result.Skips = append(result.Skips, types.SweepSkip{User: user, Index: i, Reason: types.SkipAlreadyExecuted})
			continue
		}
		if cfg.MinAmount != nil && cfg.MinAmount.Sign() > 0 && item.Amount.Cmp(cfg.MinAmount) < 0 {
			result.Skips = append(result.Skips, types.SweepSkip{User: user, Index: i, Reason: types.SkipBelowMinAmount})
			continue
		}

		// The oracle is read live on every scheduling decision; the cache
		// is never a substitute.
		currentTick, err := e.liveTick(ctx, item.Pair())
		if err != nil {
			result.Skips = append(result.Skips, types.SweepSkip{
				User: user, Index: i, Reason: types.SkipExecutionError, Err: err.Error(),
			})
			continue
		}
		if !Eligible(item, strategy, currentTick, time.Now()) {
			result.Skips = append(result.Skips, types.SweepSkip{User: user, Index: i, Reason: types.SkipNotEligible})
			continue
		}

		receipt, err := e.executeItem(ctx, user, i, item, strategy, currentTick)
		if err != nil {
			reason := types.SkipExecutionError
			if errors.Is(err, errZeroOutput) {
				reason = types.SkipZeroOutput
			}
			e.logger.WithError(err).WithField("user", user.Hex()).WithField("index", i).
				Warn("sweep item skipped")
			result.Skips = append(result.Skips, types.SweepSkip{
				User: user, Index: i, Reason: reason, Err: err.Error(),
			})
			continue
		}
		result.Receipts = append(result.Receipts, receipt)
		executed++
	}

	// Compaction runs only after a pass that executed something; a failure
	// here indicates store corruption and aborts the whole batch.
	if executed > 0 {
		if err := e.store.CompactExecuted(ctx, user); err != nil {
			return fmt.Errorf("store.CompactExecuted failed: %w", err)
		}
	}
	return nil
}
