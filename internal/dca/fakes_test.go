package dca

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
)

// In-memory collaborator doubles. Each substitutes one narrow engine
// dependency without touching engine logic.

type memStore struct {
	mu         sync.Mutex
	queues     map[common.Address][]types.QueueItem
	strategies map[common.Address]types.TickStrategy
	configs    map[common.Address]types.DCAConfig
	prefs      map[string]uint16
	compactErr error
}

func newMemStore() *memStore {
	return &memStore{
		queues:     make(map[common.Address][]types.QueueItem),
		strategies: make(map[common.Address]types.TickStrategy),
		configs:    make(map[common.Address]types.DCAConfig),
		prefs:      make(map[string]uint16),
	}
}

func (s *memStore) QueueLength(_ context.Context, user common.Address) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[user]), nil
}

func (s *memStore) QueueItem(_ context.Context, user common.Address, index int) (types.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[user]
	if index < 0 || index >= len(q) {
		return types.QueueItem{}, fmt.Errorf("queue index %d out of range", index)
	}
	return q[index], nil
}

func (s *memStore) AppendToQueue(_ context.Context, user common.Address, item types.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[user] = append(s.queues[user], item)
	return nil
}

func (s *memStore) MarkExecuted(_ context.Context, user common.Address, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[user]
	if index < 0 || index >= len(q) {
		return fmt.Errorf("queue index %d out of range", index)
	}
	q[index].Executed = true
	return nil
}

func (s *memStore) CompactExecuted(_ context.Context, user common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compactErr != nil {
		return s.compactErr
	}
	var kept []types.QueueItem
	for _, item := range s.queues[user] {
		if !item.Executed {
			kept = append(kept, item)
		}
	}
	s.queues[user] = kept
	return nil
}

func (s *memStore) TickStrategy(_ context.Context, user common.Address) (types.TickStrategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategies[user], nil
}

func (s *memStore) DCAConfig(_ context.Context, user common.Address) (types.DCAConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[user], nil
}

func (s *memStore) PairSlippageBps(_ context.Context, user common.Address, pair types.Pair) (uint16, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bps, ok := s.prefs[user.Hex()+pair.String()]
	return bps, ok, nil
}

type memLedger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (l *memLedger) set(user, token common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[user] == nil {
		l.balances[user] = make(map[common.Address]*big.Int)
	}
	l.balances[user][token] = new(big.Int).Set(amount)
}

func (l *memLedger) Balance(_ context.Context, user, token common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[user][token]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (l *memLedger) Debit(_ context.Context, user, token common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[user][token]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("ledger underflow for %s", user.Hex())
	}
	b.Sub(b, amount)
	return nil
}

func (l *memLedger) Credit(_ context.Context, user, token common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[user] == nil {
		l.balances[user] = make(map[common.Address]*big.Int)
	}
	if l.balances[user][token] == nil {
		l.balances[user][token] = big.NewInt(0)
	}
	l.balances[user][token].Add(l.balances[user][token], amount)
	return nil
}

type fakeOracle struct {
	mu   sync.Mutex
	tick int64
	err  error
}

func (o *fakeOracle) CurrentTick(context.Context, types.Pair) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tick, o.err
}

func (o *fakeOracle) setTick(t int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tick = t
}

// fakeSwapper returns the input amount one-for-one unless overridden.
type fakeSwapper struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, pair types.Pair, zeroForOne bool, amount *big.Int) (*big.Int, error)
	calls int
}

func (s *fakeSwapper) Swap(ctx context.Context, pair types.Pair, zeroForOne bool, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, pair, zeroForOne, amount)
	}
	return new(big.Int).Set(amount), nil
}

type fakeReceipts struct {
	mu         sync.Mutex
	nextID     uint64
	registered map[common.Address]uint64
	burns      int
	mints      int
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{nextID: 1, registered: make(map[common.Address]uint64)}
}

func (r *fakeReceipts) Burn(_ context.Context, _ common.Address, _ common.Address, _ *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.burns++
	return nil
}

func (r *fakeReceipts) Mint(_ context.Context, _ common.Address, _ common.Address, _ *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints++
	return nil
}

func (r *fakeReceipts) ResolveOrRegister(_ context.Context, token common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.registered[token]; ok {
		return id, nil
	}
	id := r.nextID
	r.nextID++
	r.registered[token] = id
	return id, nil
}

type testHarness struct {
	engine   *Engine
	store    *memStore
	ledger   *memLedger
	oracle   *fakeOracle
	swapper  *fakeSwapper
	receipts *fakeReceipts
}

var (
	tokenA       = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB       = common.HexToAddress("0x000000000000000000000000000000000000000b")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	orchestrator = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	keeper       = common.HexToAddress("0x0000000000000000000000000000000000000bee")
	treasury     = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
)

func newHarness(feeBps uint16) *testHarness {
	store := newMemStore()
	ledger := newMemLedger()
	oracle := &fakeOracle{}
	swapper := &fakeSwapper{}
	receipts := newFakeReceipts()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	policy, err := NewStoredSlippagePolicy(store, store, 100, logger)
	if err != nil {
		panic(err)
	}
	engine, err := NewEngine(Config{
		Orchestrator:   orchestrator,
		Trigger:        keeper,
		FeeCollector:   treasury,
		ProtocolFeeBps: feeBps,
	}, store, ledger, oracle, swapper, policy, receipts, nil, nil, logger)
	if err != nil {
		panic(err)
	}
	return &testHarness{
		engine:   engine,
		store:    store,
		ledger:   ledger,
		oracle:   oracle,
		swapper:  swapper,
		receipts: receipts,
	}
}
