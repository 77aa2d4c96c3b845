// Package uniswap submits conversions to a Uniswap V2 style router on
// behalf of the savings ledger's custody account.
package uniswap

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
)

const routerABIJSON = `[
	{"name":"swapExactTokensForTokens","type":"function","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}],
	"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","inputs":[
		{"name":"spender","type":"address"},
		{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

// Config mirrors the uniswap section of the service configuration.
type Config struct {
	RouterAddress   string `mapstructure:"router_address"`
	DeadlineSeconds int64  `mapstructure:"deadline_seconds"`
	SignerKeyHex    string `mapstructure:"signer_key"`
}

// Executor turns engine swap requests into router transactions and derives
// the received amount from the destination token's balance delta.
type Executor struct {
	client    *ethclient.Client
	router    common.Address
	routerABI abi.ABI
	erc20ABI  abi.ABI
	key       *ecdsa.PrivateKey
	custody   common.Address
	chainID   *big.Int
	deadline  time.Duration
	logger    *logrus.Logger
}

func NewExecutor(rpcURL string, cfg Config, logger *logrus.Logger) (*Executor, error) {
	if cfg.RouterAddress == "" {
		return nil, fmt.Errorf("router address is required")
	}
	if cfg.DeadlineSeconds <= 0 {
		return nil, fmt.Errorf("router deadline must be positive")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Executor{
		client:    client,
		router:    common.HexToAddress(cfg.RouterAddress),
		routerABI: routerABI,
		erc20ABI:  erc20ABI,
		key:       key,
		custody:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		deadline:  time.Duration(cfg.DeadlineSeconds) * time.Second,
		logger:    logger,
	}, nil
}

func (e *Executor) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := e.erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// Swap submits the conversion through the router. The router's amountOutMin
// is pinned to 1, the venue-level guard this executor supports: it only
// rejects a pathological zero-output execution, ordinary slippage is
// enforced by the engine on the returned balance delta.
func (e *Executor) Swap(ctx context.Context, pair types.Pair, zeroForOne bool, amount *big.Int) (*big.Int, error) {
	before, err := e.balanceOf(ctx, pair.ToToken, e.custody)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	deadline := big.NewInt(time.Now().Add(e.deadline).Unix())
	path := []common.Address{pair.FromToken, pair.ToToken}
	data, err := e.routerABI.Pack("swapExactTokensForTokens",
		amount, big.NewInt(1), path, e.custody, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap call: %w", err)
	}

	contract := bind.NewBoundContract(e.router, e.routerABI, e.client, e.client, e.client)
	tx, err := contract.RawTransact(opts, data)
	if err != nil {
		return nil, fmt.Errorf("swap transaction failed: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for swap: %w", err)
	}
	if receipt.Status != 1 {
		return nil, fmt.Errorf("swap transaction reverted: %s", tx.Hash().Hex())
	}

	after, err := e.balanceOf(ctx, pair.ToToken, e.custody)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() < 0 {
		received.SetInt64(0)
	}
	e.logger.WithFields(logrus.Fields{
		"pair":     pair.String(),
		"amount":   amount.String(),
		"received": received.String(),
		"tx":       tx.Hash().Hex(),
	}).Info("router swap mined")
	return received, nil
}

func (e *Executor) Close() {
	e.client.Close()
}
