package dca

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/engine/internal/types"
)

func seedItem(h *testHarness, user common.Address, amount int64, executionTick int64) {
	h.store.queues[user] = append(h.store.queues[user], types.QueueItem{
		FromToken:     tokenA,
		ToToken:       tokenB,
		Amount:        big.NewInt(amount),
		ExecutionTick: executionTick,
		Deadline:      time.Now().Add(time.Hour),
	})
}

func TestExecuteSettlesBalances(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()
	seedItem(h, alice, 1000, 100)
	h.ledger.set(alice, tokenA, big.NewInt(5000))
	h.oracle.setTick(100)

	receipt, err := h.engine.Execute(ctx, alice, alice, 0)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if receipt.Requested.Int64() != 1000 || receipt.Received.Int64() != 1000 {
		t.Fatalf("receipt = %s/%s, want 1000/1000", receipt.Requested, receipt.Received)
	}

	from, _ := h.ledger.Balance(ctx, alice, tokenA)
	to, _ := h.ledger.Balance(ctx, alice, tokenB)
	if from.Int64() != 4000 {
		t.Errorf("source balance = %s, want 4000", from)
	}
	if to.Int64() != 1000 {
		t.Errorf("destination balance = %s, want 1000", to)
	}
	if h.receipts.burns != 1 || h.receipts.mints != 1 {
		t.Errorf("receipt accounting burns=%d mints=%d, want 1/1", h.receipts.burns, h.receipts.mints)
	}
	if _, ok := h.receipts.registered[tokenB]; !ok {
		t.Error("destination token was not registered")
	}

	item, _ := h.store.QueueItem(ctx, alice, 0)
	if !item.Executed {
		t.Error("item not marked executed")
	}
}

func TestExecuteIdempotent(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()
	seedItem(h, alice, 1000, 100)
	h.ledger.set(alice, tokenA, big.NewInt(5000))
	h.oracle.setTick(100)

	if _, err := h.engine.Execute(ctx, alice, alice, 0); err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}
	from, _ := h.ledger.Balance(ctx, alice, tokenA)

	_, err := h.engine.Execute(ctx, alice, alice, 0)
	if !errors.Is(err, types.ErrInvalidDCAExecution) {
		t.Fatalf("second Execute err = %v, want ErrInvalidDCAExecution", err)
	}
	fromAfter, _ := h.ledger.Balance(ctx, alice, tokenA)
	if from.Cmp(fromAfter) != 0 {
		t.Errorf("second Execute mutated balance: %s -> %s", from, fromAfter)
	}
	if h.swapper.calls != 1 {
		t.Errorf("swap called %d times, want 1", h.swapper.calls)
	}
}

func TestExecutePreconditions(t *testing.T) {
	t.Run("zero amount", func(t *testing.T) {
		h := newHarness(0)
		h.store.queues[alice] = []types.QueueItem{{
			FromToken: tokenA, ToToken: tokenB, Amount: big.NewInt(0),
		}}
		_, err := h.engine.Execute(context.Background(), alice, alice, 0)
		if !errors.Is(err, types.ErrZeroAmountSwap) {
			t.Fatalf("err = %v, want ErrZeroAmountSwap", err)
		}
		if h.swapper.calls != 0 {
			t.Error("zero-amount order reached the pool")
		}
	})

	t.Run("insufficient savings", func(t *testing.T) {
		h := newHarness(0)
		seedItem(h, alice, 1000, 100)
		h.ledger.set(alice, tokenA, big.NewInt(999))
		h.oracle.setTick(100)
		_, err := h.engine.Execute(context.Background(), alice, alice, 0)
		if !errors.Is(err, types.ErrInsufficientSavings) {
			t.Fatalf("err = %v, want ErrInsufficientSavings", err)
		}
	})

	t.Run("pool error", func(t *testing.T) {
		h := newHarness(0)
		seedItem(h, alice, 1000, 100)
		h.ledger.set(alice, tokenA, big.NewInt(5000))
		h.oracle.setTick(100)
		h.swapper.fn = func(context.Context, types.Pair, bool, *big.Int) (*big.Int, error) {
			return nil, fmt.Errorf("pool reverted")
		}
		_, err := h.engine.Execute(context.Background(), alice, alice, 0)
		if !errors.Is(err, types.ErrSwapExecutionFailed) {
			t.Fatalf("err = %v, want ErrSwapExecutionFailed", err)
		}
	})

	t.Run("unauthorized caller", func(t *testing.T) {
		h := newHarness(0)
		seedItem(h, alice, 1000, 100)
		_, err := h.engine.Execute(context.Background(), bob, alice, 0)
		if !errors.Is(err, types.ErrUnauthorizedCaller) {
			t.Fatalf("err = %v, want ErrUnauthorizedCaller", err)
		}
	})
}

// Dynamic sizing uses the execution tick as entry reference: 20 favorable
// ticks convert 20% more than requested.
func TestExecuteDynamicSizing(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()
	h.store.strategies[alice] = types.TickStrategy{DynamicSizing: true}
	seedItem(h, alice, 1000, 100)
	h.ledger.set(alice, tokenA, big.NewInt(5000))
	h.oracle.setTick(80)

	receipt, err := h.engine.Execute(ctx, alice, alice, 0)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if receipt.Requested.Int64() != 1200 {
		t.Fatalf("requested = %s, want 1200", receipt.Requested)
	}
	from, _ := h.ledger.Balance(ctx, alice, tokenA)
	if from.Int64() != 3800 {
		t.Errorf("source balance = %s, want 3800", from)
	}

	// The stored record of what was requested at enqueue time is untouched.
	item, _ := h.store.QueueItem(ctx, alice, 0)
	if item.Amount.Int64() != 1000 {
		t.Errorf("stored amount = %s, want 1000", item.Amount)
	}
}

func TestExecuteShortfallPolicy(t *testing.T) {
	short := func(context.Context, types.Pair, bool, *big.Int) (*big.Int, error) {
		return big.NewInt(500), nil // well below min out for 1000 at 1% tolerance
	}

	t.Run("abort", func(t *testing.T) {
		h := newHarness(0)
		seedItem(h, alice, 1000, 100)
		h.ledger.set(alice, tokenA, big.NewInt(5000))
		h.oracle.setTick(100)
		h.store.configs[alice] = types.DCAConfig{
			Enabled: true, LowerTick: -100, UpperTick: 100, SlippageAction: types.SlippageAbort,
		}
		h.swapper.fn = short

		_, err := h.engine.Execute(context.Background(), alice, alice, 0)
		if !errors.Is(err, types.ErrSlippageToleranceExceeded) {
			t.Fatalf("err = %v, want ErrSlippageToleranceExceeded", err)
		}
		from, _ := h.ledger.Balance(context.Background(), alice, tokenA)
		if from.Int64() != 5000 {
			t.Errorf("aborted execution debited the ledger: %s", from)
		}
	})

	t.Run("continue", func(t *testing.T) {
		h := newHarness(0)
		ctx := context.Background()
		seedItem(h, alice, 1000, 100)
		h.ledger.set(alice, tokenA, big.NewInt(5000))
		h.oracle.setTick(100)
		h.store.configs[alice] = types.DCAConfig{
			Enabled: true, LowerTick: -100, UpperTick: 100, SlippageAction: types.SlippageContinue,
		}
		h.swapper.fn = short

		receipt, err := h.engine.Execute(ctx, alice, alice, 0)
		if err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
		if receipt.Received.Int64() != 500 {
			t.Fatalf("received = %s, want 500", receipt.Received)
		}

		// The requested amount is debited while the credit is what the pool
		// actually delivered.
		from, _ := h.ledger.Balance(ctx, alice, tokenA)
		to, _ := h.ledger.Balance(ctx, alice, tokenB)
		if from.Int64() != 4000 {
			t.Errorf("source balance = %s, want 4000", from)
		}
		if to.Int64() != 500 {
			t.Errorf("destination balance = %s, want 500", to)
		}
	})
}

func TestExecuteProtocolFee(t *testing.T) {
	h := newHarness(50) // 0.5%
	ctx := context.Background()
	seedItem(h, alice, 10000, 100)
	h.ledger.set(alice, tokenA, big.NewInt(10000))
	h.oracle.setTick(100)

	if _, err := h.engine.Execute(ctx, alice, alice, 0); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	to, _ := h.ledger.Balance(ctx, alice, tokenB)
	fee, _ := h.ledger.Balance(ctx, treasury, tokenB)
	if to.Int64() != 9950 {
		t.Errorf("net credit = %s, want 9950", to)
	}
	if fee.Int64() != 50 {
		t.Errorf("treasury fee = %s, want 50", fee)
	}
}

func TestEffectiveToleranceLadder(t *testing.T) {
	ctx := context.Background()
	pair := types.Pair{FromToken: tokenA, ToToken: tokenB}

	h := newHarness(0)
	policy := h.engine.slippage

	// Protocol default (harness uses 100 bps).
	bps, err := policy.EffectiveTolerance(ctx, alice, pair, 0)
	if err != nil || bps != 100 {
		t.Fatalf("default tolerance = %d (%v), want 100", bps, err)
	}

	// User strategy default beats protocol default.
	h.store.strategies[alice] = types.TickStrategy{CustomSlippageBps: 200}
	bps, _ = policy.EffectiveTolerance(ctx, alice, pair, 0)
	if bps != 200 {
		t.Fatalf("strategy tolerance = %d, want 200", bps)
	}

	// Per-pair preference beats strategy default.
	h.store.prefs[alice.Hex()+pair.String()] = 300
	bps, _ = policy.EffectiveTolerance(ctx, alice, pair, 0)
	if bps != 300 {
		t.Fatalf("pair tolerance = %d, want 300", bps)
	}

	// Item override beats everything.
	bps, _ = policy.EffectiveTolerance(ctx, alice, pair, 400)
	if bps != 400 {
		t.Fatalf("override tolerance = %d, want 400", bps)
	}

	// Config cap clamps the result.
	h.store.configs[alice] = types.DCAConfig{LowerTick: -1, UpperTick: 1, MaxSlippageBps: 250}
	bps, _ = policy.EffectiveTolerance(ctx, alice, pair, 400)
	if bps != 250 {
		t.Fatalf("clamped tolerance = %d, want 250", bps)
	}
}

func TestEnqueueProjectsTickAndDeadline(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()
	h.store.strategies[alice] = types.TickStrategy{TickDelta: 10, TickExpiry: time.Hour}
	h.oracle.setTick(100)

	before := time.Now()
	item, err := h.engine.Enqueue(ctx, alice, alice, tokenA, tokenB, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if item.ExecutionTick != 90 {
		t.Errorf("execution tick = %d, want 90", item.ExecutionTick)
	}
	wantDeadline := before.Add(time.Hour)
	if item.Deadline.Before(wantDeadline) || item.Deadline.After(wantDeadline.Add(time.Minute)) {
		t.Errorf("deadline = %v, want about %v", item.Deadline, wantDeadline)
	}

	length, _ := h.store.QueueLength(ctx, alice)
	if length != 1 {
		t.Fatalf("queue length = %d, want 1", length)
	}
}

func TestEnqueueRejections(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()

	if _, err := h.engine.Enqueue(ctx, alice, alice, tokenA, tokenA, big.NewInt(1), 0); !errors.Is(err, types.ErrSameToken) {
		t.Errorf("same token err = %v, want ErrSameToken", err)
	}
	if _, err := h.engine.Enqueue(ctx, alice, alice, tokenA, tokenB, big.NewInt(0), 0); !errors.Is(err, types.ErrZeroAmountSwap) {
		t.Errorf("zero amount err = %v, want ErrZeroAmountSwap", err)
	}
	if _, err := h.engine.Enqueue(ctx, bob, alice, tokenA, tokenB, big.NewInt(1), 0); !errors.Is(err, types.ErrUnauthorizedCaller) {
		t.Errorf("unauthorized err = %v, want ErrUnauthorizedCaller", err)
	}
}

// A collaborator calling back into the engine mid-operation is rejected,
// not deadlocked.
func TestReentrancyGuard(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()
	seedItem(h, alice, 1000, 100)
	h.ledger.set(alice, tokenA, big.NewInt(5000))
	h.oracle.setTick(100)

	var reentrantErr error
	h.swapper.fn = func(ctx context.Context, _ types.Pair, _ bool, amount *big.Int) (*big.Int, error) {
		_, reentrantErr = h.engine.Execute(ctx, alice, alice, 0)
		return new(big.Int).Set(amount), nil
	}

	if _, err := h.engine.Execute(ctx, alice, alice, 0); err != nil {
		t.Fatalf("outer Execute returned error: %v", err)
	}
	if !errors.Is(reentrantErr, types.ErrReentrantCall) {
		t.Fatalf("inner err = %v, want ErrReentrantCall", reentrantErr)
	}
}
