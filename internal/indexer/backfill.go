package indexer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backfill replays factory and DAO history from the configured start block
// up to the head observed by Initialize. It is safe to run repeatedly. The
// cursor is persisted only after every batch succeeded.
func (e *Engine) Backfill(ctx context.Context) error {
	return e.backfill(ctx, nil)
}

func (e *Engine) backfill(ctx context.Context, stop <-chan struct{}) error {
	client, err := e.chainClient()
	if err != nil {
		return err
	}

	e.mu.Lock()
	from, to := e.backfillFrom, e.backfillTo
	e.mu.Unlock()

	if from > to {
		e.logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, e.cfg.BatchSize)
	if err != nil {
		return err
	}

	var factoryFilter []common.Address
	if factory := e.decoder.Factory(); factory != (common.Address{}) {
		factoryFilter = []common.Address{factory}
	}

	e.logger.Info("backfill started", zap.Uint64("from", from), zap.Uint64("to", to), zap.Int("batches", len(ranges)))

	for _, blockRange := range ranges {
		if err := interrupted(ctx, stop); err != nil {
			return err
		}
		logs, err := e.filterLogsWithRetry(ctx, client, blockRange, factoryFilter, e.decoder.FactoryTopics())
		if err != nil {
			return fmt.Errorf("filter factory logs: %w", err)
		}
		e.handleLogs(ctx, client, logs)
	}

	daos, err := e.store.ListResearchDAOs(ctx)
	if err != nil {
		return fmt.Errorf("list daos: %w", err)
	}
	addresses := make([]common.Address, 0, len(daos))
	for _, rec := range daos {
		if common.IsHexAddress(rec.DAOAddress) {
			addresses = append(addresses, common.HexToAddress(rec.DAOAddress))
		}
	}

	if len(addresses) > 0 {
		for _, blockRange := range ranges {
			if err := interrupted(ctx, stop); err != nil {
				return err
			}
			logs, err := e.filterLogsWithRetry(ctx, client, blockRange, addresses, e.decoder.DAOTopics())
			if err != nil {
				return fmt.Errorf("filter dao logs: %w", err)
			}
			e.handleLogs(ctx, client, logs)
		}
	}

	// Without a saved cursor the engine already sits at head, so advance
	// does not move; history is only durable once the cursor is written.
	if !e.advance(ctx, to) {
		e.saveCursor(ctx, to)
	}
	e.logger.Info("backfill complete", zap.Int("daos", len(addresses)), zap.Uint64("current_block", e.CurrentBlock()))
	return nil
}

func (e *Engine) handleLogs(ctx context.Context, client ChainReader, logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	timestamp := func(block uint64) (uint64, error) {
		return e.blockTimestampWithRetry(ctx, client, block)
	}
	for _, log := range logs {
		if err := e.handleLog(ctx, log, timestamp); err != nil {
			e.metrics.RecordError("event")
			e.logger.Warn("skip log",
				zap.Uint64("block", log.BlockNumber),
				zap.String("tx", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) filterLogsWithRetry(ctx context.Context, client ChainReader, blockRange BlockRange, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := e.retry(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = client.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, topics)
		return err
	}, zap.Stringer("range", blockRange))
	return logs, err
}

func (e *Engine) blockTimestampWithRetry(ctx context.Context, client ChainReader, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := e.retry(ctx, "block timestamp", func(ctx context.Context) error {
		var err error
		ts, err = client.BlockTimestamp(ctx, blockNumber)
		return err
	}, zap.Uint64("block_number", blockNumber))
	return ts, err
}

func interrupted(ctx context.Context, stop <-chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if stopped(stop) {
		return fmt.Errorf("backfill interrupted by stop")
	}
	return nil
}
