package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"sort"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"researchdao/internal/chain"
	"researchdao/internal/dao/daotest"
	"researchdao/internal/model"
	"researchdao/internal/storage"
)

const testRPCURL = "http://127.0.0.1:8545"

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	testDAO1    = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	testDAO2    = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	testCreator = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testWallet  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	logs        map[uint64][]types.Log
	failReceipt map[common.Hash]bool
	headErr     error
	filterErr   error
	closed      bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		logs:        make(map[uint64][]types.Log),
		failReceipt: make(map[common.Hash]bool),
	}
}

// addLog places log in block as its own transaction and returns its hash.
func (f *fakeChain) addLog(block uint64, log types.Log) common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()

	index := len(f.logs[block])
	log.BlockNumber = block
	log.Index = uint(index)
	log.TxIndex = uint(index)
	log.TxHash = common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index) + 1))
	f.logs[block] = append(f.logs[block], log)
	if block > f.head {
		f.head = block
	}
	return log.TxHash
}

func (f *fakeChain) setFilterErr(err error) {
	f.mu.Lock()
	f.filterErr = err
	f.mu.Unlock()
}

func (f *fakeChain) setHead(head uint64) {
	f.mu.Lock()
	f.head = head
	f.mu.Unlock()
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeChain) BlockSummary(_ context.Context, number uint64) (chain.BlockSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if number > f.head {
		return chain.BlockSummary{}, fmt.Errorf("block %d not found", number)
	}
	summary := chain.BlockSummary{Number: number, Timestamp: blockTime(number)}
	for _, log := range f.logs[number] {
		summary.TxHashes = append(summary.TxHashes, log.TxHash)
	}
	return summary, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReceipt[txHash] {
		return nil, errors.New("receipt unavailable")
	}
	for _, logs := range f.logs {
		for i := range logs {
			if logs[i].TxHash == txHash {
				log := logs[i]
				return &types.Receipt{TxHash: txHash, Logs: []*types.Log{&log}}, nil
			}
		}
	}
	return nil, fmt.Errorf("receipt %s not found", txHash.Hex())
}

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return blockTime(number), nil
}

func (f *fakeChain) FilterLogs(_ context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.filterErr != nil {
		return nil, f.filterErr
	}

	var out []types.Log
	for block, logs := range f.logs {
		if block < fromBlock || block > toBlock {
			continue
		}
		for _, log := range logs {
			if len(addresses) > 0 && !containsAddress(addresses, log.Address) {
				continue
			}
			if len(topic0) > 0 && !containsHash(topic0, log.Topics[0]) {
				continue
			}
			out = append(out, log)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (f *fakeChain) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func blockTime(number uint64) uint64 {
	return 1700000000 + number*12
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

func dialerFor(c ChainReader) Dialer {
	return func(context.Context, string) (ChainReader, error) { return c, nil }
}

func newTestEngine(t *testing.T, fc *fakeChain, store *storage.MemoryStore, cursor storage.CursorStore) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		RPCURL:       testRPCURL,
		Factory:      testFactory,
		BatchSize:    3,
		RetryBackoff: time.Millisecond,
	}, Deps{
		Dialer: dialerFor(fc),
		Store:  store,
		Cursor: cursor,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func initialize(t *testing.T, engine *Engine) {
	t.Helper()
	ok, err := engine.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !ok {
		t.Fatalf("expected connected engine")
	}
}

func ether(v string) *big.Int {
	return decimal.RequireFromString(v).Shift(18).BigInt()
}

func TestBackfillIsIdempotent(t *testing.T) {
	fc := newFakeChain()
	fc.addLog(3, daotest.DAOCreatedLog(t, testFactory, testDAO1, "Longevity DAO", testCreator, 1700000100))
	fc.addLog(5, daotest.DAOCreatedLog(t, testFactory, testDAO2, "Fusion DAO", testCreator, 1700000200))
	fc.addLog(6, daotest.FundsReceivedLog(t, testDAO1, testWallet, ether("1.5"), 1))
	fc.addLog(7, daotest.MemberJoinedLog(t, testDAO2, testWallet, 2))
	fc.setHead(10)

	store := storage.NewMemoryStore()
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		engine := newTestEngine(t, fc, store, nil)
		initialize(t, engine)
		if err := engine.Backfill(ctx); err != nil {
			t.Fatalf("backfill run %d: %v", run, err)
		}

		daos, err := store.ListResearchDAOs(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(daos) != 2 {
			t.Fatalf("run %d: expected 2 daos, got %d", run, len(daos))
		}
		investments, err := store.GetBlockchainInvestments(ctx, testWallet.Hex())
		if err != nil {
			t.Fatalf("investments: %v", err)
		}
		if len(investments) != 1 {
			t.Fatalf("run %d: expected 1 investment, got %d", run, len(investments))
		}
		if len(store.Events()) != 4 {
			t.Fatalf("run %d: expected 4 events, got %d", run, len(store.Events()))
		}
		if engine.CurrentBlock() != 10 {
			t.Fatalf("run %d: current block %d", run, engine.CurrentBlock())
		}
	}

	rec, err := store.GetResearchDAOByAddress(context.Background(), testDAO1.Hex())
	if err != nil {
		t.Fatalf("get dao: %v", err)
	}
	if rec.ID != model.BlockchainDAOID(testDAO1.Hex()) || rec.Name != "Longevity DAO" || rec.CreatedBlock != 3 {
		t.Fatalf("unexpected dao record %+v", rec)
	}

	investments, _ := store.GetBlockchainInvestments(ctx, testWallet.Hex())
	inv := investments[0]
	if !inv.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("amount mismatch: %s", inv.Amount)
	}
	if inv.TargetID != rec.ID || inv.TargetName != "Longevity DAO" || inv.TokenID != "1" {
		t.Fatalf("unexpected investment %+v", inv)
	}
	if inv.Date.Unix() != int64(blockTime(6)) {
		t.Fatalf("date mismatch: %v", inv.Date)
	}
}

func TestPollSkipsFailingReceipt(t *testing.T) {
	fc := newFakeChain()
	fc.addLog(1, daotest.DAOCreatedLog(t, testFactory, testDAO1, "Longevity DAO", testCreator, 1700000100))
	fc.setHead(2)

	store := storage.NewMemoryStore()
	engine := newTestEngine(t, fc, store, nil)
	initialize(t, engine)
	ctx := context.Background()
	if err := engine.Backfill(ctx); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	fc.addLog(3, daotest.FundsReceivedLog(t, testDAO1, testWallet, ether("1"), 1))
	bad := fc.addLog(4, daotest.FundsReceivedLog(t, testDAO1, testWallet, ether("2"), 2))
	fc.addLog(5, daotest.ProposalCreatedLog(t, testDAO1, 9, testWallet, "sequence more samples"))
	fc.failReceipt[bad] = true

	if err := engine.PollOnce(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if engine.CurrentBlock() != 5 {
		t.Fatalf("expected current block 5, got %d", engine.CurrentBlock())
	}
	investments, err := store.GetBlockchainInvestments(ctx, testWallet.Hex())
	if err != nil {
		t.Fatalf("investments: %v", err)
	}
	if len(investments) != 1 || investments[0].BlockNumber != 3 {
		t.Fatalf("unexpected investments %+v", investments)
	}

	var proposals int
	for _, e := range store.Events() {
		if e.EventName == "ProposalCreated" && e.BlockNumber == 5 {
			proposals++
		}
	}
	if proposals != 1 {
		t.Fatalf("expected the block after the failure to be processed")
	}
}

func TestPollIgnoresUnknownDAO(t *testing.T) {
	fc := newFakeChain()
	fc.setHead(1)

	store := storage.NewMemoryStore()
	engine := newTestEngine(t, fc, store, nil)
	initialize(t, engine)

	fc.addLog(2, daotest.FundsReceivedLog(t, testDAO2, testWallet, ether("3"), 1))
	if err := engine.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	investments, _ := store.GetBlockchainInvestments(context.Background(), testWallet.Hex())
	if len(investments) != 0 || len(store.Events()) != 0 {
		t.Fatalf("events from unregistered contracts must be ignored")
	}
	if engine.CurrentBlock() != 2 {
		t.Fatalf("expected cursor to advance, got %d", engine.CurrentBlock())
	}
}

func TestInitializeConnectionRefused(t *testing.T) {
	fc := newFakeChain()
	fc.headErr = &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	engine := newTestEngine(t, fc, storage.NewMemoryStore(), nil)
	ok, err := engine.Initialize(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ok {
		t.Fatalf("expected not connected")
	}

	status := engine.Status()
	if status.Provider != ProviderDisconnected || status.IsRunning {
		t.Fatalf("unexpected status %+v", status)
	}
	if engine.State() != StateUnavailable {
		t.Fatalf("expected unavailable, got %s", engine.State())
	}

	engine.StartIndexing(time.Millisecond)
	if engine.Status().IsRunning {
		t.Fatalf("start must be a no-op when unavailable")
	}
	if !fc.closed {
		t.Fatalf("expected client to be closed")
	}
}

func TestInitializeMalformedURL(t *testing.T) {
	engine, err := NewEngine(Config{RPCURL: "not a url"}, Deps{
		Dialer: func(context.Context, string) (ChainReader, error) {
			t.Fatalf("dialer must not be called")
			return nil, nil
		},
		Store: storage.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Initialize(context.Background()); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestInitializeOtherErrorIsFatal(t *testing.T) {
	fc := newFakeChain()
	fc.headErr = errors.New("unexpected response")
	engine := newTestEngine(t, fc, storage.NewMemoryStore(), nil)
	if _, err := engine.Initialize(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResumeFromCursor(t *testing.T) {
	fc := newFakeChain()
	fc.addLog(2, daotest.DAOCreatedLog(t, testFactory, testDAO1, "Longevity DAO", testCreator, 1700000100))
	fc.addLog(6, daotest.FundsReceivedLog(t, testDAO1, testWallet, ether("0.5"), 4))
	fc.setHead(8)

	store := storage.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.UpsertResearchDAO(ctx, model.DAORecord{DAOAddress: testDAO1.Hex(), Name: "Longevity DAO"}); err != nil {
		t.Fatalf("seed dao: %v", err)
	}
	if err := store.SaveCursor(ctx, DefaultCursorName, 4); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	engine := newTestEngine(t, fc, store, store)
	initialize(t, engine)
	if engine.CurrentBlock() != 4 {
		t.Fatalf("expected resume at 4, got %d", engine.CurrentBlock())
	}
	if err := engine.Backfill(ctx); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	investments, _ := store.GetBlockchainInvestments(ctx, testWallet.Hex())
	if len(investments) != 1 {
		t.Fatalf("expected downtime investment to be indexed, got %d", len(investments))
	}
	block, ok, _ := store.LoadCursor(ctx, DefaultCursorName)
	if !ok || block != 8 || engine.CurrentBlock() != 8 {
		t.Fatalf("cursor=%d current=%d", block, engine.CurrentBlock())
	}
}

func TestPollOnceSkipsWhileTickInProgress(t *testing.T) {
	fc := newFakeChain()
	fc.setHead(1)
	engine := newTestEngine(t, fc, storage.NewMemoryStore(), nil)
	initialize(t, engine)

	fc.setHead(5)
	engine.ticking.Store(true)
	if err := engine.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if engine.CurrentBlock() != 1 {
		t.Fatalf("overlapping tick must not run, current=%d", engine.CurrentBlock())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	fc := newFakeChain()
	fc.addLog(1, daotest.DAOCreatedLog(t, testFactory, testDAO1, "Longevity DAO", testCreator, 1700000100))
	fc.setHead(3)

	store := storage.NewMemoryStore()
	engine := newTestEngine(t, fc, store, nil)
	initialize(t, engine)

	engine.StartIndexing(5 * time.Millisecond)
	engine.StartIndexing(5 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for engine.State() != StatePolling {
		if time.Now().After(deadline) {
			t.Fatalf("engine never reached polling, state=%s", engine.State())
		}
		time.Sleep(time.Millisecond)
	}
	if !engine.Status().IsRunning {
		t.Fatalf("expected running status")
	}

	fc.addLog(4, daotest.MemberJoinedLog(t, testDAO1, testWallet, 7))
	deadline = time.Now().Add(2 * time.Second)
	for engine.CurrentBlock() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("poll loop never reached block 4")
		}
		time.Sleep(time.Millisecond)
	}

	engine.StopIndexing()
	engine.StopIndexing()
	select {
	case <-engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not stop")
	}
	if engine.State() != StateStopped || engine.Status().IsRunning {
		t.Fatalf("unexpected state after stop: %s", engine.State())
	}

	fc.addLog(9, daotest.MemberJoinedLog(t, testDAO1, testWallet, 8))
	time.Sleep(20 * time.Millisecond)
	if engine.CurrentBlock() != 4 {
		t.Fatalf("no ticks expected after stop, current=%d", engine.CurrentBlock())
	}
	if len(store.Events()) != 2 {
		t.Fatalf("expected 2 events, got %d", len(store.Events()))
	}
}

func TestStopBeforeStartPreventsStart(t *testing.T) {
	fc := newFakeChain()
	fc.setHead(5)
	engine := newTestEngine(t, fc, storage.NewMemoryStore(), nil)
	initialize(t, engine)

	engine.StopIndexing()
	engine.StartIndexing(time.Millisecond)

	if engine.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", engine.State())
	}
	select {
	case <-engine.Done():
	default:
		t.Fatalf("done must be closed when indexing never started")
	}
}

func waitForState(t *testing.T, engine *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for engine.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("engine never reached %s, state=%s", want, engine.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func stopEngine(t *testing.T, engine *Engine) {
	t.Helper()
	engine.StopIndexing()
	select {
	case <-engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not stop")
	}
	engine.Close()
}

func TestFailedBackfillNeverPersistsCursor(t *testing.T) {
	fc := newFakeChain()
	fc.addLog(3, daotest.DAOCreatedLog(t, testFactory, testDAO1, "Longevity DAO", testCreator, 1700000100))
	fc.setHead(12)
	fc.setFilterErr(errors.New("upstream 503"))

	store := storage.NewMemoryStore()
	ctx := context.Background()

	engine := newTestEngine(t, fc, store, store)
	initialize(t, engine)
	engine.StartIndexing(2 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if engine.State() != StateBackfilling {
		t.Fatalf("polling must wait for backfill, state=%s", engine.State())
	}
	stopEngine(t, engine)

	if _, ok, _ := store.LoadCursor(ctx, DefaultCursorName); ok {
		t.Fatalf("cursor saved although history was never indexed")
	}

	// Restart with the RPC still failing, then restore it while running.
	engine = newTestEngine(t, fc, store, store)
	initialize(t, engine)
	engine.StartIndexing(2 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	fc.setFilterErr(nil)
	waitForState(t, engine, StatePolling)
	stopEngine(t, engine)

	daos, err := store.ListResearchDAOs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(daos) != 1 || daos[0].CreatedBlock != 3 {
		t.Fatalf("historical dao missing after restart: %+v", daos)
	}
	saved, ok, err := store.LoadCursor(ctx, DefaultCursorName)
	if err != nil || !ok || saved != 12 {
		t.Fatalf("cursor=%d ok=%v err=%v, want 12", saved, ok, err)
	}
}

func TestBackfillPersistsCursorAtHead(t *testing.T) {
	fc := newFakeChain()
	fc.setHead(8)
	store := storage.NewMemoryStore()

	engine := newTestEngine(t, fc, store, store)
	initialize(t, engine)
	if err := engine.Backfill(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	saved, ok, err := store.LoadCursor(context.Background(), DefaultCursorName)
	if err != nil || !ok || saved != 8 {
		t.Fatalf("cursor=%d ok=%v err=%v, want 8", saved, ok, err)
	}
}
