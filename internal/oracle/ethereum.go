// Package oracle reads the live pool tick from the chain. Scheduling
// decisions always go through here rather than any cache.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/spendsave/engine/internal/types"
)

// PairKey normalizes a pair to its unordered pool identity: the same pool
// serves both trade directions.
func PairKey(pair types.Pair) string {
	a, b := pair.FromToken, pair.ToToken
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return a.Hex() + "/" + b.Hex()
}

var slot0Selector = crypto.Keccak256([]byte("slot0()"))[:4]

// EthereumOracle resolves pairs to pool contracts and reads their current
// tick with an eth_call against slot0.
type EthereumOracle struct {
	client *ethclient.Client
	pools  map[string]common.Address
}

func NewEthereumOracle(rpcURL string, pools map[string]common.Address) (*EthereumOracle, error) {
	if len(pools) == 0 {
		return nil, fmt.Errorf("no pools configured")
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return &EthereumOracle{client: client, pools: pools}, nil
}

func (o *EthereumOracle) PoolFor(pair types.Pair) (common.Address, error) {
	pool, ok := o.pools[PairKey(pair)]
	if !ok {
		return common.Address{}, fmt.Errorf("no pool configured for pair %s", pair.String())
	}
	return pool, nil
}

func (o *EthereumOracle) CurrentTick(ctx context.Context, pair types.Pair) (int64, error) {
	pool, err := o.PoolFor(pair)
	if err != nil {
		return 0, err
	}
	out, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &pool,
		Data: slot0Selector,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("slot0 call failed: %w", err)
	}
	// slot0 returns (uint160 sqrtPriceX96, int24 tick, ...); the tick
	// occupies the second 32-byte word, sign-extended.
	if len(out) < 64 {
		return 0, fmt.Errorf("short slot0 response: %d bytes", len(out))
	}
	tick := new(big.Int).SetBytes(out[32:64])
	if tick.Bit(255) == 1 {
		tick.Sub(tick, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	if !tick.IsInt64() {
		return 0, fmt.Errorf("tick out of range: %s", tick)
	}
	return tick.Int64(), nil
}

func (o *EthereumOracle) Close() {
	o.client.Close()
}
