package storage

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spendsave/engine/internal/types"
)

// DatabaseStorage is everything the engine and services need from the
// durable store: the per-user order queue, strategy and conversion
// configuration, the savings ledger, per-pair slippage preferences, receipt
// accounting, and the execution history.
type DatabaseStorage interface {
	Close() error

	// Order queue. Indexes are positional within the user's queue ordered
	// by append time; compaction removes executed rows preserving the
	// relative order of the rest.
	QueueLength(ctx context.Context, user common.Address) (int, error)
	QueueItem(ctx context.Context, user common.Address, index int) (types.QueueItem, error)
	AppendToQueue(ctx context.Context, user common.Address, item types.QueueItem) error
	MarkExecuted(ctx context.Context, user common.Address, index int) error
	CompactExecuted(ctx context.Context, user common.Address) error

	// Strategy and configuration.
	TickStrategy(ctx context.Context, user common.Address) (types.TickStrategy, error)
	UpsertTickStrategyTx(ctx context.Context, dbTx pgx.Tx, strategy types.TickStrategy) error
	DCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, error)
	UpsertDCAConfigTx(ctx context.Context, dbTx pgx.Tx, cfg types.DCAConfig) error
	EnabledUsers(ctx context.Context) ([]common.Address, error)

	// Savings ledger.
	Balance(ctx context.Context, user common.Address, token common.Address) (*big.Int, error)
	Debit(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
	Credit(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error

	// Per-pair slippage preferences.
	PairSlippageBps(ctx context.Context, user common.Address, pair types.Pair) (uint16, bool, error)
	UpsertPairSlippageBps(ctx context.Context, user common.Address, pair types.Pair, bps uint16) error

	// Receipt accounting.
	BurnReceipt(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
	MintReceipt(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error
	ResolveOrRegisterReceipt(ctx context.Context, token common.Address) (uint64, error)

	// Execution history.
	InsertExecutionRecord(ctx context.Context, rec types.ExecutionRecord) (uuid.UUID, error)
	MarkRecordExecuted(ctx context.Context, itemID uuid.UUID, received *big.Int, metadata map[string]interface{}) error
	ExecutionHistory(ctx context.Context, user common.Address, sort string, take, skip int) ([]types.ExecutionRecord, error)

	Pool() *pgxpool.Pool
}
