package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

func (p *PostgresBackend) Balance(ctx context.Context, user common.Address, token common.Address) (*big.Int, error) {
	var balance string
	err := p.pool.QueryRow(ctx,
		`SELECT balance::text FROM savings_ledger WHERE user_address = $1 AND token = $2`,
		user.Hex(), token.Hex(),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return scanBig(balance)
}

// Debit reduces the user's balance. The balance >= amount predicate keeps a
// concurrent writer from driving the row negative.
func (p *PostgresBackend) Debit(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE savings_ledger
		SET balance = balance - $3, updated_at = NOW()
		WHERE user_address = $1 AND token = $2 AND balance >= $3`,
		user.Hex(), token.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to debit ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger underflow for %s %s", user.Hex(), token.Hex())
	}
	return nil
}

func (p *PostgresBackend) Credit(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO savings_ledger (user_address, token, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_address, token) DO UPDATE SET
			balance = savings_ledger.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		user.Hex(), token.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to credit ledger: %w", err)
	}
	return nil
}

func (p *PostgresBackend) BurnReceipt(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE receipt_balances
		SET balance = balance - $3
		WHERE user_address = $1 AND token = $2 AND balance >= $3`,
		user.Hex(), token.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to burn receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt underflow for %s %s", user.Hex(), token.Hex())
	}
	return nil
}

func (p *PostgresBackend) MintReceipt(ctx context.Context, user common.Address, token common.Address, amount *big.Int) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO receipt_balances (user_address, token, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_address, token) DO UPDATE SET
			balance = receipt_balances.balance + EXCLUDED.balance`,
		user.Hex(), token.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mint receipt: %w", err)
	}
	return nil
}

func (p *PostgresBackend) ResolveOrRegisterReceipt(ctx context.Context, token common.Address) (uint64, error) {
	var id uint64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO receipt_tokens (token) VALUES ($1)
		ON CONFLICT (token) DO UPDATE SET token = EXCLUDED.token
		RETURNING id`,
		token.Hex(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve receipt token: %w", err)
	}
	return id, nil
}
