package storage

import (
	"context"
	"errors"

	"researchdao/internal/model"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a create would violate a natural key.
	ErrConflict = errors.New("record already exists")
)

// DAOStore persists research DAO records.
type DAOStore interface {
	// UpsertResearchDAO inserts or refreshes a record keyed by DAOAddress.
	// Repeated calls with the same address never create a second record.
	UpsertResearchDAO(ctx context.Context, rec model.DAORecord) (model.DAORecord, error)
	CreateResearchDAO(ctx context.Context, rec model.DAORecord) (model.DAORecord, error)
	GetResearchDAO(ctx context.Context, id string) (model.DAORecord, error)
	GetResearchDAOByAddress(ctx context.Context, address string) (model.DAORecord, error)
	ListResearchDAOs(ctx context.Context) ([]model.DAORecord, error)
}

// InvestorStore persists investor profiles and preferences. Wallet lookups
// are case-insensitive.
type InvestorStore interface {
	GetInvestor(ctx context.Context, wallet string) (model.Investor, error)
	CreateInvestor(ctx context.Context, inv model.Investor) (model.Investor, error)
	UpdateInvestor(ctx context.Context, wallet string, update model.InvestorUpdate) (model.Investor, error)
	GetInvestorPreferences(ctx context.Context, wallet string) (model.InvestorPreferences, error)
	SaveInvestorPreferences(ctx context.Context, prefs model.InvestorPreferences) (model.InvestorPreferences, error)
}

// InvestmentStore persists both investment ledgers.
type InvestmentStore interface {
	// CreateInvestment is a plain insert and also increments the investor's
	// running aggregates in the same transaction. It is not idempotent.
	CreateInvestment(ctx context.Context, inv model.Investment) (model.Investment, error)
	GetInvestorInvestments(ctx context.Context, wallet string) ([]model.Investment, error)
	// RecordBlockchainInvestment stores an on-chain investment once per
	// (TransactionHash, LogIndex) and reports whether it was new.
	RecordBlockchainInvestment(ctx context.Context, inv model.BlockchainInvestment) (bool, error)
	GetBlockchainInvestments(ctx context.Context, wallet string) ([]model.BlockchainInvestment, error)
}

// EventStore records decoded chain events once per (TxHash, LogIndex).
type EventStore interface {
	RecordEvent(ctx context.Context, event model.IndexedEvent) (bool, error)
}

// CursorStore persists named block cursors.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (uint64, bool, error)
	SaveCursor(ctx context.Context, name string, block uint64) error
}

// Gateway is the full persistence surface used by the indexer and the API.
type Gateway interface {
	DAOStore
	InvestorStore
	InvestmentStore
	EventStore
	CursorStore
	Close()
}
