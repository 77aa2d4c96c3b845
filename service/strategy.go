package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
	"github.com/spendsave/engine/storage"
)

// Strategy manages per-user tick strategies and conversion configurations.
// Malformed configurations are rejected here, before anything reaches the
// queue.
type Strategy interface {
	UpsertTickStrategy(ctx context.Context, strategy types.TickStrategy) error
	UpsertDCAConfig(ctx context.Context, cfg types.DCAConfig) error
	GetTickStrategy(ctx context.Context, user common.Address) (types.TickStrategy, error)
	GetDCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, error)
	SetPairSlippage(ctx context.Context, user common.Address, pair types.Pair, bps uint16) error
	GetExecutionHistory(ctx context.Context, user common.Address, sort string) ([]types.ExecutionRecord, error)
}

var _ Strategy = (*StrategyService)(nil)

type StrategyService struct {
	db     storage.DatabaseStorage
	logger *logrus.Logger
}

func NewStrategyService(db storage.DatabaseStorage, logger *logrus.Logger) (*StrategyService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StrategyService{db: db, logger: logger}, nil
}

func (s *StrategyService) handleRollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.WithError(err).Error("failed to rollback transaction")
	}
}

func (s *StrategyService) UpsertTickStrategy(ctx context.Context, strategy types.TickStrategy) error {
	if strategy.TickExpiry < 0 {
		return fmt.Errorf("tick expiry cannot be negative")
	}
	if strategy.CustomSlippageBps > 10000 {
		return fmt.Errorf("custom slippage %d exceeds 10000 bps", strategy.CustomSlippageBps)
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.handleRollback(ctx, tx)

	if err := s.db.UpsertTickStrategyTx(ctx, tx, strategy); err != nil {
		return fmt.Errorf("failed to upsert strategy: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithField("user", strategy.UserAddress.Hex()).Info("tick strategy updated")
	return nil
}

func (s *StrategyService) UpsertDCAConfig(ctx context.Context, cfg types.DCAConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Enabled && cfg.TargetToken == (common.Address{}) {
		return fmt.Errorf("target token is required when dca is enabled")
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.handleRollback(ctx, tx)

	if err := s.db.UpsertDCAConfigTx(ctx, tx, cfg); err != nil {
		return fmt.Errorf("failed to upsert config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":    cfg.UserAddress.Hex(),
		"enabled": cfg.Enabled,
	}).Info("dca config updated")
	return nil
}

func (s *StrategyService) GetTickStrategy(ctx context.Context, user common.Address) (types.TickStrategy, error) {
	strategy, err := s.db.TickStrategy(ctx, user)
	if err != nil {
		return types.TickStrategy{}, fmt.Errorf("failed to get strategy: %w", err)
	}
	return strategy, nil
}

func (s *StrategyService) GetDCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, error) {
	cfg, err := s.db.DCAConfig(ctx, user)
	if err != nil {
		return types.DCAConfig{}, fmt.Errorf("failed to get config: %w", err)
	}
	return cfg, nil
}

func (s *StrategyService) SetPairSlippage(ctx context.Context, user common.Address, pair types.Pair, bps uint16) error {
	if bps > 10000 {
		return fmt.Errorf("tolerance %d exceeds 10000 bps", bps)
	}
	if pair.FromToken == pair.ToToken {
		return types.ErrSameToken
	}
	return s.db.UpsertPairSlippageBps(ctx, user, pair, bps)
}

func (s *StrategyService) GetExecutionHistory(ctx context.Context, user common.Address, sort string) ([]types.ExecutionRecord, error) {
	history, err := s.db.ExecutionHistory(ctx, user, sort, 30, 0) // take the last 30 records and skip the first 0
	if err != nil {
		return nil, fmt.Errorf("failed to get execution history: %w", err)
	}
	return history, nil
}
