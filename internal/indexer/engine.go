package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"researchdao/internal/chain"
	"researchdao/internal/dao"
	"researchdao/internal/metrics"
	"researchdao/internal/model"
	"researchdao/internal/notify"
	"researchdao/internal/storage"
)

const (
	DefaultPollInterval = 15 * time.Second
	DefaultBatchSize    = 2000
	DefaultCursorName   = "research-dao-indexer"

	ProviderConnected    = "Connected"
	ProviderDisconnected = "Disconnected"
)

// State is the lifecycle position of an Engine.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateUnavailable
	StateBackfilling
	StatePolling
	StateStopped
)

// String returns the lowercase state name reported by the status endpoint.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateUnavailable:
		return "unavailable"
	case StateBackfilling:
		return "backfilling"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// Config holds runtime settings for the engine.
type Config struct {
	RPCURL       string
	Factory      common.Address
	PollInterval time.Duration
	BackfillFrom uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	CursorName   string
}

// Store is the persistence the engine writes to.
type Store interface {
	storage.EventStore
	UpsertResearchDAO(ctx context.Context, rec model.DAORecord) (model.DAORecord, error)
	GetResearchDAOByAddress(ctx context.Context, address string) (model.DAORecord, error)
	ListResearchDAOs(ctx context.Context) ([]model.DAORecord, error)
	RecordBlockchainInvestment(ctx context.Context, inv model.BlockchainInvestment) (bool, error)
}

// Journal receives events that were stored for the first time.
type Journal interface {
	Append(events []model.IndexedEvent) error
}

// Deps are the collaborators of an Engine. Store is required; Dialer
// defaults to DialChain and Notifier to notify.Nop.
type Deps struct {
	Dialer   Dialer
	Store    Store
	Cursor   storage.CursorStore
	Journal  Journal
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Status is the externally visible engine state.
type Status struct {
	IsRunning    bool   `json:"isRunning"`
	CurrentBlock uint64 `json:"currentBlock"`
	Provider     string `json:"provider"`
	RPCURL       string `json:"rpcUrl"`
	State        string `json:"state"`
}

// Engine mirrors research DAO contract events into the store. It backfills
// history once and then polls new blocks on its own goroutine.
type Engine struct {
	cfg      Config
	dial     Dialer
	store    Store
	cursor   storage.CursorStore
	journal  Journal
	notifier notify.Notifier
	metrics  *metrics.Collector
	logger   *zap.Logger
	decoder  *dao.Decoder

	mu           sync.Mutex
	state        State
	client       ChainReader
	stop         chan struct{}
	done         chan struct{}
	backfillFrom uint64
	backfillTo   uint64

	currentBlock atomic.Uint64
	ticking      atomic.Bool
}

// NewEngine builds an Engine with its dependencies.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	decoder, err := dao.NewDecoder(cfg.Factory)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CursorName == "" {
		cfg.CursorName = DefaultCursorName
	}
	if deps.Dialer == nil {
		deps.Dialer = DialChain
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Engine{
		cfg:      cfg,
		dial:     deps.Dialer,
		store:    deps.Store,
		cursor:   deps.Cursor,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		decoder:  decoder,
	}, nil
}

// Initialize connects to the RPC endpoint and positions the cursor. It
// returns false with a nil error when the endpoint refused the connection;
// any other failure is returned as an error.
func (e *Engine) Initialize(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateUninitialized, StateUnavailable:
	default:
		return e.client != nil, nil
	}

	if err := chain.ValidateURL(e.cfg.RPCURL); err != nil {
		return false, fmt.Errorf("initialize indexer: %w", err)
	}

	client, err := e.dial(ctx, e.cfg.RPCURL)
	if err != nil {
		return e.failInitialize(err)
	}
	head, err := client.LatestBlockNumber(ctx)
	if err != nil {
		client.Close()
		return e.failInitialize(err)
	}

	start := head
	e.backfillFrom = e.cfg.BackfillFrom
	if e.cursor != nil {
		saved, ok, err := e.cursor.LoadCursor(ctx, e.cfg.CursorName)
		if err != nil {
			client.Close()
			return false, fmt.Errorf("load cursor: %w", err)
		}
		switch {
		case ok && saved > head:
			e.logger.Warn("saved cursor is ahead of chain head, restarting from head",
				zap.Uint64("cursor", saved), zap.Uint64("head", head))
		case ok:
			start = saved
			e.backfillFrom = saved + 1
			e.logger.Info("resume from cursor", zap.Uint64("cursor", saved), zap.Uint64("head", head))
		}
	}
	e.backfillTo = head

	e.client = client
	e.state = StateConnected
	e.currentBlock.Store(start)
	e.metrics.SetCurrentBlock(start)

	e.logger.Info("indexer connected",
		zap.String("rpc_url", e.cfg.RPCURL),
		zap.Uint64("head", head),
		zap.Uint64("current_block", start),
		zap.String("factory", e.decoder.Factory().Hex()),
	)
	return true, nil
}

func (e *Engine) failInitialize(err error) (bool, error) {
	err = chain.Classify(err)
	if errors.Is(err, chain.ErrUnavailable) {
		e.state = StateUnavailable
		e.logger.Warn("blockchain rpc unavailable, indexer disabled", zap.String("rpc_url", e.cfg.RPCURL), zap.Error(err))
		return false, nil
	}
	return false, fmt.Errorf("initialize indexer: %w", err)
}

// StartIndexing runs the backfill and then polls every interval. Calling it
// while already running, or before a successful Initialize, does nothing.
func (e *Engine) StartIndexing(interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateBackfilling, StatePolling:
		e.logger.Info("indexer already running")
		return
	case StateConnected:
	default:
		e.logger.Warn("indexer not connected, not starting", zap.String("state", e.state.String()))
		return
	}

	if interval <= 0 {
		interval = e.cfg.PollInterval
	}
	e.state = StateBackfilling
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(interval, e.stop, e.done)
}

// StopIndexing prevents further ticks. A tick already in progress runs to
// completion; Done is closed once it has. Stopping before StartIndexing
// keeps the engine from starting later.
func (e *Engine) StopIndexing() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop == nil {
		if e.state == StateConnected {
			e.state = StateStopped
		}
		return
	}
	select {
	case <-e.stop:
	default:
		close(e.stop)
		e.logger.Info("indexer stop requested")
	}
}

// Done is closed when the indexing goroutine has exited. It is already
// closed when indexing never started.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return e.done
}

// Close releases the RPC connection. Call it after Done.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}

// CurrentBlock returns the last block fully processed.
func (e *Engine) CurrentBlock() uint64 {
	return e.currentBlock.Load()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns a snapshot of state, cursor and provider for the status
// endpoint.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	provider := ProviderDisconnected
	if e.client != nil {
		provider = ProviderConnected
	}
	return Status{
		IsRunning:    e.state == StateBackfilling || e.state == StatePolling,
		CurrentBlock: e.currentBlock.Load(),
		Provider:     provider,
		RPCURL:       e.cfg.RPCURL,
		State:        e.state.String(),
	}
}

func (e *Engine) run(interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	// RPCs in flight when stop is requested must complete, so the loop
	// context is never cancelled by StopIndexing.
	ctx := context.Background()

	backfilled := e.tryBackfill(ctx, stop)
	if stopped(stop) {
		e.setState(StateStopped)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if backfilled {
		e.startPolling(ctx, interval)
	}
	for {
		select {
		case <-stop:
			e.setState(StateStopped)
			e.logger.Info("indexer stopped", zap.Uint64("current_block", e.CurrentBlock()))
			return
		case <-ticker.C:
			if stopped(stop) {
				continue
			}
			if !backfilled {
				// No poll tick may move the cursor before history is in.
				if backfilled = e.tryBackfill(ctx, stop); !backfilled || stopped(stop) {
					continue
				}
				e.startPolling(ctx, interval)
				continue
			}
			e.tick(ctx)
		}
	}
}

func (e *Engine) tryBackfill(ctx context.Context, stop <-chan struct{}) bool {
	if err := e.backfill(ctx, stop); err != nil {
		e.metrics.RecordError("backfill")
		e.logger.Error("backfill failed, retrying on next tick", zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) startPolling(ctx context.Context, interval time.Duration) {
	e.setState(StatePolling)
	e.logger.Info("polling started", zap.Duration("interval", interval))
	e.tick(ctx)
}

func (e *Engine) tick(ctx context.Context) {
	if err := e.PollOnce(ctx); err != nil {
		e.metrics.RecordError("poll")
		e.logger.Warn("poll tick failed", zap.Error(err))
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) chainClient() (ChainReader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("indexer not connected")
	}
	return e.client, nil
}

// advance moves the cursor forward and persists it. It never moves back and
// reports whether it moved.
func (e *Engine) advance(ctx context.Context, block uint64) bool {
	for {
		cur := e.currentBlock.Load()
		if block <= cur {
			return false
		}
		if e.currentBlock.CompareAndSwap(cur, block) {
			break
		}
	}
	e.metrics.SetCurrentBlock(block)
	e.saveCursor(ctx, block)
	return true
}

func (e *Engine) saveCursor(ctx context.Context, block uint64) {
	if e.cursor == nil {
		return
	}
	if err := e.cursor.SaveCursor(ctx, e.cfg.CursorName, block); err != nil {
		e.metrics.RecordError("cursor")
		e.logger.Warn("save cursor failed", zap.Uint64("block", block), zap.Error(err))
	}
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
