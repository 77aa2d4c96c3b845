package dca

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
)

// PairPrefStore looks up a user's per-pair slippage preference, the second
// rung of the tolerance resolution ladder.
type PairPrefStore interface {
	PairSlippageBps(ctx context.Context, user common.Address, pair types.Pair) (uint16, bool, error)
}

// StoredSlippagePolicy resolves tolerances from stored preferences and
// arbitrates shortfalls from the user's configured action. Resolution
// priority: item-level override, per-pair preference, user strategy default,
// protocol default. The user's DCAConfig.MaxSlippageBps, when set, clamps
// whatever the ladder produced.
type StoredSlippagePolicy struct {
	store      OrderStore
	prefs      PairPrefStore
	defaultBps uint16
	logger     *logrus.Logger
}

var _ SlippagePolicy = (*StoredSlippagePolicy)(nil)

func NewStoredSlippagePolicy(store OrderStore, prefs PairPrefStore, defaultBps uint16, logger *logrus.Logger) (*StoredSlippagePolicy, error) {
	if store == nil {
		return nil, fmt.Errorf("order store cannot be nil")
	}
	if defaultBps > 10000 {
		return nil, fmt.Errorf("default tolerance %d exceeds 10000 bps", defaultBps)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StoredSlippagePolicy{store: store, prefs: prefs, defaultBps: defaultBps, logger: logger}, nil
}

func (p *StoredSlippagePolicy) EffectiveTolerance(ctx context.Context, user common.Address, pair types.Pair, overrideBps uint16) (uint16, error) {
	bps, err := p.resolve(ctx, user, pair, overrideBps)
	if err != nil {
		return 0, err
	}
	cfg, err := p.store.DCAConfig(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("store.DCAConfig failed: %w", err)
	}
	if cfg.MaxSlippageBps > 0 && bps > cfg.MaxSlippageBps {
		bps = cfg.MaxSlippageBps
	}
	return bps, nil
}

func (p *StoredSlippagePolicy) resolve(ctx context.Context, user common.Address, pair types.Pair, overrideBps uint16) (uint16, error) {
	if overrideBps > 0 {
		return overrideBps, nil
	}
	if p.prefs != nil {
		bps, ok, err := p.prefs.PairSlippageBps(ctx, user, pair)
		if err != nil {
			return 0, fmt.Errorf("prefs.PairSlippageBps failed: %w", err)
		}
		if ok {
			return bps, nil
		}
	}
	strategy, err := p.store.TickStrategy(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("store.TickStrategy failed: %w", err)
	}
	if strategy.CustomSlippageBps > 0 {
		return strategy.CustomSlippageBps, nil
	}
	return p.defaultBps, nil
}

// OnShortfall consults the user's configured action. The default, when no
// action was ever configured, is to abort: accepting a degraded result is an
// explicit opt-in, never a hidden default.
func (p *StoredSlippagePolicy) OnShortfall(ctx context.Context, user common.Address, pair types.Pair, requested, received, minExpected *big.Int) (bool, error) {
	cfg, err := p.store.DCAConfig(ctx, user)
	if err != nil {
		return false, fmt.Errorf("store.DCAConfig failed: %w", err)
	}
	accept := cfg.SlippageAction == types.SlippageContinue
	p.logger.WithFields(logrus.Fields{
		"user":      user.Hex(),
		"pair":      pair.String(),
		"requested": requested.String(),
		"received":  received.String(),
		"min_out":   minExpected.String(),
		"accept":    accept,
	}).Warn("swap shortfall")
	return accept, nil
}
