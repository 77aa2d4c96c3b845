package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	enginecommon "github.com/spendsave/engine/common"
	"github.com/spendsave/engine/internal/types"
)

func (p *PostgresBackend) InsertExecutionRecord(ctx context.Context, rec types.ExecutionRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO execution_history (
			id, user_address, from_token, to_token, requested, status, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		rec.ID,
		rec.User.Hex(),
		rec.FromToken.Hex(),
		rec.ToToken.Hex(),
		rec.Requested.String(),
		string(rec.Status),
		rec.Metadata,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert execution record: %w", err)
	}
	return rec.ID, nil
}

func (p *PostgresBackend) MarkRecordExecuted(ctx context.Context, itemID uuid.UUID, received *big.Int, metadata map[string]interface{}) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE execution_history
		SET status = $2, received = $3, metadata = $4, executed_at = NOW()
		WHERE id = $1`,
		itemID,
		string(types.StatusExecuted),
		received.String(),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution record %s not found", itemID)
	}
	return nil
}

func (p *PostgresBackend) ExecutionHistory(ctx context.Context, user common.Address, sort string, take, skip int) ([]types.ExecutionRecord, error) {
	orderBy, orderDirection := enginecommon.GetSortingCondition(sort)
	query := fmt.Sprintf(`
		SELECT id, user_address, from_token, to_token, requested::text, received::text,
		       status, metadata, created_at, executed_at
		FROM execution_history
		WHERE user_address = $1
		ORDER BY %s %s
		LIMIT $2 OFFSET $3`, orderBy, orderDirection)

	rows, err := p.pool.Query(ctx, query, user.Hex(), take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	defer rows.Close()

	var records []types.ExecutionRecord
	for rows.Next() {
		var (
			rec       types.ExecutionRecord
			userAddr  string
			fromToken string
			toToken   string
			requested string
			received  *string
			status    string
		)
		if err := rows.Scan(
			&rec.ID,
			&userAddr,
			&fromToken,
			&toToken,
			&requested,
			&received,
			&status,
			&rec.Metadata,
			&rec.CreatedAt,
			&rec.ExecutedAt,
		); err != nil {
			return nil, err
		}
		rec.User = common.HexToAddress(userAddr)
		rec.FromToken = common.HexToAddress(fromToken)
		rec.ToToken = common.HexToAddress(toToken)
		rec.Status = types.ExecutionStatus(status)
		if rec.Requested, err = scanBig(requested); err != nil {
			return nil, err
		}
		if received != nil {
			if rec.Received, err = scanBig(*received); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
