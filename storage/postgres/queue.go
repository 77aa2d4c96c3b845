package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/engine/internal/types"
)

func scanBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func (p *PostgresBackend) QueueLength(ctx context.Context, user common.Address) (int, error) {
	var length int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM dca_queue_items WHERE user_address = $1`,
		user.Hex(),
	).Scan(&length)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return length, nil
}

func (p *PostgresBackend) QueueItem(ctx context.Context, user common.Address, index int) (types.QueueItem, error) {
	var (
		item      types.QueueItem
		fromToken string
		toToken   string
		amount    string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, from_token, to_token, amount::text, execution_tick, deadline, executed, custom_slippage_bps
		FROM dca_queue_items
		WHERE user_address = $1
		ORDER BY position
		OFFSET $2 LIMIT 1`,
		user.Hex(), index,
	).Scan(
		&item.ID,
		&fromToken,
		&toToken,
		&amount,
		&item.ExecutionTick,
		&item.Deadline,
		&item.Executed,
		&item.CustomSlippageBps,
	)
	if err != nil {
		return types.QueueItem{}, fmt.Errorf("failed to get queue item %d: %w", index, err)
	}
	item.FromToken = common.HexToAddress(fromToken)
	item.ToToken = common.HexToAddress(toToken)
	item.Amount, err = scanBig(amount)
	if err != nil {
		return types.QueueItem{}, err
	}
	return item, nil
}

func (p *PostgresBackend) AppendToQueue(ctx context.Context, user common.Address, item types.QueueItem) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO dca_queue_items (
			id, user_address, position, from_token, to_token, amount,
			execution_tick, deadline, executed, custom_slippage_bps
		)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3, $4, $5, $6, $7, FALSE, $8
		FROM dca_queue_items WHERE user_address = $2`,
		item.ID,
		user.Hex(),
		item.FromToken.Hex(),
		item.ToToken.Hex(),
		item.Amount.String(),
		item.ExecutionTick,
		item.Deadline,
		item.CustomSlippageBps,
	)
	if err != nil {
		return fmt.Errorf("failed to append queue item: %w", err)
	}
	return nil
}

func (p *PostgresBackend) MarkExecuted(ctx context.Context, user common.Address, index int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE dca_queue_items SET executed = TRUE
		WHERE id = (
			SELECT id FROM dca_queue_items
			WHERE user_address = $1
			ORDER BY position
			OFFSET $2 LIMIT 1
		) AND executed = FALSE`,
		user.Hex(), index,
	)
	if err != nil {
		return fmt.Errorf("failed to mark item executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue item %d for %s not found or already executed", index, user.Hex())
	}
	return nil
}

func (p *PostgresBackend) CompactExecuted(ctx context.Context, user common.Address) error {
	// Positions of the surviving rows keep their relative order; gaps are
	// harmless because lookups go through ORDER BY position with OFFSET.
	_, err := p.pool.Exec(ctx,
		`DELETE FROM dca_queue_items WHERE user_address = $1 AND executed = TRUE`,
		user.Hex(),
	)
	if err != nil {
		return fmt.Errorf("failed to compact queue: %w", err)
	}
	return nil
}

func (p *PostgresBackend) TickStrategy(ctx context.Context, user common.Address) (types.TickStrategy, error) {
	var (
		strategy      types.TickStrategy
		expirySeconds int64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT tick_delta, tick_expiry_seconds, only_improve_price,
		       min_tick_improvement, dynamic_sizing, custom_slippage_bps
		FROM dca_tick_strategies
		WHERE user_address = $1`,
		user.Hex(),
	).Scan(
		&strategy.TickDelta,
		&expirySeconds,
		&strategy.OnlyImprovePrice,
		&strategy.MinTickImprovement,
		&strategy.DynamicSizing,
		&strategy.CustomSlippageBps,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.TickStrategy{UserAddress: user}, nil
	}
	if err != nil {
		return types.TickStrategy{}, fmt.Errorf("failed to get tick strategy: %w", err)
	}
	strategy.UserAddress = user
	strategy.TickExpiry = time.Duration(expirySeconds) * time.Second
	return strategy, nil
}

func (p *PostgresBackend) UpsertTickStrategyTx(ctx context.Context, dbTx pgx.Tx, strategy types.TickStrategy) error {
	_, err := dbTx.Exec(ctx, `
		INSERT INTO dca_tick_strategies (
			user_address, tick_delta, tick_expiry_seconds, only_improve_price,
			min_tick_improvement, dynamic_sizing, custom_slippage_bps, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_address) DO UPDATE SET
			tick_delta = EXCLUDED.tick_delta,
			tick_expiry_seconds = EXCLUDED.tick_expiry_seconds,
			only_improve_price = EXCLUDED.only_improve_price,
			min_tick_improvement = EXCLUDED.min_tick_improvement,
			dynamic_sizing = EXCLUDED.dynamic_sizing,
			custom_slippage_bps = EXCLUDED.custom_slippage_bps,
			updated_at = NOW()`,
		strategy.UserAddress.Hex(),
		strategy.TickDelta,
		int64(strategy.TickExpiry/time.Second),
		strategy.OnlyImprovePrice,
		strategy.MinTickImprovement,
		strategy.DynamicSizing,
		strategy.CustomSlippageBps,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tick strategy: %w", err)
	}
	return nil
}

func (p *PostgresBackend) DCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, error) {
	var (
		cfg         types.DCAConfig
		targetToken string
		minAmount   string
		action      string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT enabled, target_token, min_amount::text, max_slippage_bps,
		       lower_tick, upper_tick, slippage_action
		FROM dca_configs
		WHERE user_address = $1`,
		user.Hex(),
	).Scan(
		&cfg.Enabled,
		&targetToken,
		&minAmount,
		&cfg.MaxSlippageBps,
		&cfg.LowerTick,
		&cfg.UpperTick,
		&action,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.DCAConfig{UserAddress: user}, nil
	}
	if err != nil {
		return types.DCAConfig{}, fmt.Errorf("failed to get dca config: %w", err)
	}
	cfg.UserAddress = user
	cfg.TargetToken = common.HexToAddress(targetToken)
	cfg.SlippageAction = types.SlippageAction(action)
	cfg.MinAmount, err = scanBig(minAmount)
	if err != nil {
		return types.DCAConfig{}, err
	}
	return cfg, nil
}

func (p *PostgresBackend) UpsertDCAConfigTx(ctx context.Context, dbTx pgx.Tx, cfg types.DCAConfig) error {
	minAmount := "0"
	if cfg.MinAmount != nil {
		minAmount = cfg.MinAmount.String()
	}
	action := cfg.SlippageAction
	if action == "" {
		action = types.SlippageAbort
	}
	_, err := dbTx.Exec(ctx, `
		INSERT INTO dca_configs (
			user_address, enabled, target_token, min_amount, max_slippage_bps,
			lower_tick, upper_tick, slippage_action, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_address) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			target_token = EXCLUDED.target_token,
			min_amount = EXCLUDED.min_amount,
			max_slippage_bps = EXCLUDED.max_slippage_bps,
			lower_tick = EXCLUDED.lower_tick,
			upper_tick = EXCLUDED.upper_tick,
			slippage_action = EXCLUDED.slippage_action,
			updated_at = NOW()`,
		cfg.UserAddress.Hex(),
		cfg.Enabled,
		cfg.TargetToken.Hex(),
		minAmount,
		cfg.MaxSlippageBps,
		cfg.LowerTick,
		cfg.UpperTick,
		string(action),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dca config: %w", err)
	}
	return nil
}

func (p *PostgresBackend) EnabledUsers(ctx context.Context) ([]common.Address, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_address FROM dca_configs WHERE enabled = TRUE`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled users: %w", err)
	}
	defer rows.Close()

	var users []common.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		users = append(users, common.HexToAddress(addr))
	}
	return users, rows.Err()
}

func (p *PostgresBackend) PairSlippageBps(ctx context.Context, user common.Address, pair types.Pair) (uint16, bool, error) {
	var bps uint16
	err := p.pool.QueryRow(ctx, `
		SELECT tolerance_bps FROM pair_slippage_prefs
		WHERE user_address = $1 AND from_token = $2 AND to_token = $3`,
		user.Hex(), pair.FromToken.Hex(), pair.ToToken.Hex(),
	).Scan(&bps)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get pair slippage pref: %w", err)
	}
	return bps, true, nil
}

func (p *PostgresBackend) UpsertPairSlippageBps(ctx context.Context, user common.Address, pair types.Pair, bps uint16) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO pair_slippage_prefs (user_address, from_token, to_token, tolerance_bps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_address, from_token, to_token) DO UPDATE SET
			tolerance_bps = EXCLUDED.tolerance_bps`,
		user.Hex(), pair.FromToken.Hex(), pair.ToToken.Hex(), bps,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pair slippage pref: %w", err)
	}
	return nil
}
