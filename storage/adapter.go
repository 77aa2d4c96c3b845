package storage

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/engine/internal/types"
)

// ReceiptAdapter exposes the store's receipt accounting under the engine's
// collaborator contract.
type ReceiptAdapter struct {
	DB DatabaseStorage
}

func (a ReceiptAdapter) Burn(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error {
	return a.DB.BurnReceipt(ctx, user, token, amount)
}

func (a ReceiptAdapter) Mint(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error {
	return a.DB.MintReceipt(ctx, user, token, amount)
}

func (a ReceiptAdapter) ResolveOrRegister(ctx context.Context, token common.Address) (uint64, error) {
	return a.DB.ResolveOrRegisterReceipt(ctx, token)
}

// HistorySink records queued and executed events in the execution history.
// The queue item's ID keys both events so an execution updates the row its
// enqueue created.
type HistorySink struct {
	DB DatabaseStorage
}

func (s HistorySink) OrderQueued(ctx context.Context, user common.Address, item types.QueueItem) error {
	_, err := s.DB.InsertExecutionRecord(ctx, types.ExecutionRecord{
		ID:        item.ID,
		User:      user,
		FromToken: item.FromToken,
		ToToken:   item.ToToken,
		Requested: item.Amount,
		Status:    types.StatusQueued,
		Metadata: map[string]interface{}{
			"execution_tick": item.ExecutionTick,
			"deadline":       item.Deadline,
		},
	})
	return err
}

func (s HistorySink) OrderExecuted(ctx context.Context, user common.Address, item types.QueueItem, requested, received *big.Int) error {
	return s.DB.MarkRecordExecuted(ctx, item.ID, received, map[string]interface{}{
		"timestamp": time.Now(),
		"requested": requested.String(),
		"received":  received.String(),
	})
}
