package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PollOnce processes every block after the cursor up to the current head.
// Failures inside a block are logged and skipped; the cursor still advances
// to head. A call made while another is in progress returns immediately.
func (e *Engine) PollOnce(ctx context.Context) error {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Debug("poll tick already in progress, skipping")
		return nil
	}
	defer e.ticking.Store(false)

	start := time.Now()
	defer func() { e.metrics.ObserveTick(time.Since(start)) }()

	client, err := e.chainClient()
	if err != nil {
		return err
	}

	head, err := client.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	from := e.CurrentBlock() + 1
	if head < from {
		return nil
	}

	for block := from; block <= head; block++ {
		if err := e.processBlock(ctx, client, block); err != nil {
			e.metrics.RecordError("block")
			e.logger.Warn("skip block", zap.Uint64("block", block), zap.Error(err))
		}
	}

	e.advance(ctx, head)
	e.logger.Debug("poll tick complete",
		zap.Uint64("from", from),
		zap.Uint64("to", head),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (e *Engine) processBlock(ctx context.Context, client ChainReader, number uint64) error {
	summary, err := client.BlockSummary(ctx, number)
	if err != nil {
		return fmt.Errorf("get block: %w", err)
	}

	timestamp := func(uint64) (uint64, error) { return summary.Timestamp, nil }

	for _, txHash := range summary.TxHashes {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			e.metrics.RecordError("receipt")
			e.logger.Warn("skip transaction receipt",
				zap.Uint64("block", number),
				zap.String("tx", txHash.Hex()),
				zap.Error(err),
			)
			continue
		}
		for _, log := range receipt.Logs {
			if log == nil {
				continue
			}
			if err := e.handleLog(ctx, *log, timestamp); err != nil {
				e.metrics.RecordError("event")
				e.logger.Warn("skip log",
					zap.Uint64("block", number),
					zap.String("tx", txHash.Hex()),
					zap.Uint("log_index", log.Index),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}
