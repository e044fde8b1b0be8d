package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"researchdao/internal/dao"
	"researchdao/internal/model"
	"researchdao/internal/storage"
)

const (
	resultStored    = "stored"
	resultDuplicate = "duplicate"
	resultSkipped   = "skipped"

	weiDecimals = 18
)

type timestampFunc func(block uint64) (uint64, error)

// handleLog decodes one log and applies its side effects. Unrecognized logs
// are ignored.
func (e *Engine) handleLog(ctx context.Context, log types.Log, timestamp timestampFunc) error {
	decoded, err := e.decoder.Decode(log)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if !decoded.Matched() {
		return nil
	}

	name := decoded.Payload.EventName()
	ts, err := timestamp(decoded.BlockNumber)
	if err != nil {
		return fmt.Errorf("block timestamp %d: %w", decoded.BlockNumber, err)
	}

	switch p := decoded.Payload.(type) {
	case dao.DAOCreated:
		if err := e.onDAOCreated(ctx, decoded, p, ts); err != nil {
			return err
		}
	case dao.FundsReceived:
		rec, ok, err := e.knownDAO(ctx, decoded)
		if err != nil || !ok {
			return err
		}
		if err := e.onFundsReceived(ctx, decoded, p, rec, ts); err != nil {
			return err
		}
	case dao.MemberJoined:
		if _, ok, err := e.knownDAO(ctx, decoded); err != nil || !ok {
			return err
		}
		e.logger.Info("member joined",
			zap.String("dao", decoded.Contract.Hex()),
			zap.String("member", p.Member.Hex()),
			zap.Stringer("token_id", p.TokenID),
		)
	case dao.ProposalCreated:
		if _, ok, err := e.knownDAO(ctx, decoded); err != nil || !ok {
			return err
		}
		e.logger.Info("proposal created",
			zap.String("dao", decoded.Contract.Hex()),
			zap.Stringer("proposal_id", p.ProposalID),
			zap.String("proposer", p.Proposer.Hex()),
		)
	default:
		return fmt.Errorf("unhandled event payload %T", p)
	}

	return e.recordEvent(ctx, decoded, ts, name)
}

func (e *Engine) recordEvent(ctx context.Context, decoded dao.Decoded, ts uint64, name string) error {
	event, err := decoded.IndexedEvent(ts)
	if err != nil {
		return err
	}
	added, err := e.store.RecordEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("record %s event: %w", name, err)
	}
	if !added {
		e.metrics.RecordEvent(name, resultDuplicate)
		return nil
	}
	e.metrics.RecordEvent(name, resultStored)

	if e.journal != nil {
		if err := e.journal.Append([]model.IndexedEvent{event}); err != nil {
			e.metrics.RecordError("journal")
			e.logger.Warn("journal append failed", zap.String("tx", event.TxHash), zap.Error(err))
		}
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.metrics.RecordError("notify")
		e.logger.Warn("notify failed", zap.String("event", name), zap.String("tx", event.TxHash), zap.Error(err))
	}
	return nil
}

func (e *Engine) onDAOCreated(ctx context.Context, decoded dao.Decoded, p dao.DAOCreated, blockTS uint64) error {
	createdAt := time.Unix(int64(blockTS), 0).UTC()
	if p.Timestamp != nil && p.Timestamp.Sign() > 0 && p.Timestamp.IsInt64() {
		createdAt = time.Unix(p.Timestamp.Int64(), 0).UTC()
	}

	rec, err := e.store.UpsertResearchDAO(ctx, model.DAORecord{
		ID:           model.BlockchainDAOID(p.DAO.Hex()),
		Name:         p.Name,
		DAOAddress:   strings.ToLower(p.DAO.Hex()),
		Creator:      strings.ToLower(p.Creator.Hex()),
		CreatedBlock: decoded.BlockNumber,
		CreatedAt:    createdAt,
		Source:       model.DAOSourceBlockchain,
	})
	if err != nil {
		return fmt.Errorf("upsert dao %s: %w", p.DAO.Hex(), err)
	}

	e.logger.Info("dao indexed",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.String("address", rec.DAOAddress),
		zap.Uint64("block", decoded.BlockNumber),
	)
	return nil
}

func (e *Engine) onFundsReceived(ctx context.Context, decoded dao.Decoded, p dao.FundsReceived, rec model.DAORecord, ts uint64) error {
	inv := model.BlockchainInvestment{
		TransactionHash: decoded.TxHash.Hex(),
		LogIndex:        uint64(decoded.LogIndex),
		TokenID:         p.TokenID.String(),
		WalletAddress:   model.NormalizeWallet(p.Contributor.Hex()),
		DAOAddress:      rec.DAOAddress,
		TargetID:        rec.ID,
		TargetName:      rec.Name,
		TargetType:      model.TargetTypeDAO,
		Amount:          WeiToEther(p.Amount),
		BlockNumber:     decoded.BlockNumber,
		Date:            time.Unix(int64(ts), 0).UTC(),
	}
	added, err := e.store.RecordBlockchainInvestment(ctx, inv)
	if err != nil {
		return fmt.Errorf("record investment %s: %w", inv.TransactionHash, err)
	}
	if added {
		e.logger.Info("investment indexed",
			zap.String("dao", rec.ID),
			zap.String("wallet", inv.WalletAddress),
			zap.String("amount_eth", inv.Amount.String()),
		)
	}
	return nil
}

// knownDAO looks up the emitting contract. Events from contracts that are
// not registered DAOs are counted as skipped and reported as not found.
func (e *Engine) knownDAO(ctx context.Context, decoded dao.Decoded) (model.DAORecord, bool, error) {
	rec, err := e.store.GetResearchDAOByAddress(ctx, strings.ToLower(decoded.Contract.Hex()))
	if errors.Is(err, storage.ErrNotFound) {
		e.metrics.RecordEvent(decoded.Payload.EventName(), resultSkipped)
		e.logger.Debug("event from unknown dao",
			zap.String("event", decoded.Payload.EventName()),
			zap.String("contract", decoded.Contract.Hex()),
		)
		return model.DAORecord{}, false, nil
	}
	if err != nil {
		return model.DAORecord{}, false, fmt.Errorf("lookup dao %s: %w", decoded.Contract.Hex(), err)
	}
	return rec, true, nil
}

// WeiToEther converts a wei amount to an ether decimal.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}
