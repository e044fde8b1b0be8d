package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"researchdao/internal/model"
)

// MemoryStore is a Gateway kept entirely in process memory. It backs the
// server when no database is configured and is used throughout the tests.
type MemoryStore struct {
	mu sync.RWMutex

	daos        map[string]model.DAORecord
	daoByAddr   map[string]string
	investors   map[string]model.Investor
	preferences map[string]model.InvestorPreferences
	investments []model.Investment
	nextInvID   int64
	chainInv    map[string]model.BlockchainInvestment
	events      map[string]model.IndexedEvent
	cursors     map[string]uint64

	now func() time.Time
}

// NewMemoryStore returns an empty in-process Gateway.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		daos:        make(map[string]model.DAORecord),
		daoByAddr:   make(map[string]string),
		investors:   make(map[string]model.Investor),
		preferences: make(map[string]model.InvestorPreferences),
		chainInv:    make(map[string]model.BlockchainInvestment),
		events:      make(map[string]model.IndexedEvent),
		cursors:     make(map[string]uint64),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) UpsertResearchDAO(_ context.Context, rec model.DAORecord) (model.DAORecord, error) {
	addr := strings.ToLower(rec.DAOAddress)
	if addr == "" {
		return model.DAORecord{}, fmt.Errorf("dao address required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.daoByAddr[addr]; ok {
		existing := s.daos[id]
		existing.Creator = rec.Creator
		if existing.Name == "" {
			existing.Name = rec.Name
		}
		if existing.CreatedBlock == 0 || (rec.CreatedBlock != 0 && rec.CreatedBlock < existing.CreatedBlock) {
			existing.CreatedBlock = rec.CreatedBlock
		}
		s.daos[id] = existing
		return existing, nil
	}

	rec.DAOAddress = addr
	if rec.ID == "" {
		rec.ID = model.BlockchainDAOID(addr)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.daos[rec.ID] = rec
	s.daoByAddr[addr] = rec.ID
	return rec, nil
}

func (s *MemoryStore) CreateResearchDAO(_ context.Context, rec model.DAORecord) (model.DAORecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.DAOAddress = strings.ToLower(rec.DAOAddress)
	if rec.DAOAddress != "" {
		if _, ok := s.daoByAddr[rec.DAOAddress]; ok {
			return model.DAORecord{}, ErrConflict
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok := s.daos[rec.ID]; ok {
		return model.DAORecord{}, ErrConflict
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.daos[rec.ID] = rec
	if rec.DAOAddress != "" {
		s.daoByAddr[rec.DAOAddress] = rec.ID
	}
	return rec, nil
}

func (s *MemoryStore) GetResearchDAO(_ context.Context, id string) (model.DAORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.daos[id]
	if !ok {
		return model.DAORecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) GetResearchDAOByAddress(_ context.Context, address string) (model.DAORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.daoByAddr[strings.ToLower(address)]
	if !ok {
		return model.DAORecord{}, ErrNotFound
	}
	return s.daos[id], nil
}

func (s *MemoryStore) ListResearchDAOs(_ context.Context) ([]model.DAORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DAORecord, 0, len(s.daos))
	for _, rec := range s.daos {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetInvestor(_ context.Context, wallet string) (model.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investors[model.NormalizeWallet(wallet)]
	if !ok {
		return model.Investor{}, ErrNotFound
	}
	return inv, nil
}

func (s *MemoryStore) CreateInvestor(_ context.Context, inv model.Investor) (model.Investor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv.WalletAddress = model.NormalizeWallet(inv.WalletAddress)
	if _, ok := s.investors[inv.WalletAddress]; ok {
		return model.Investor{}, ErrConflict
	}
	if inv.JoinedAt.IsZero() {
		inv.JoinedAt = s.now()
	}
	s.investors[inv.WalletAddress] = inv
	return inv, nil
}

func (s *MemoryStore) UpdateInvestor(_ context.Context, wallet string, update model.InvestorUpdate) (model.Investor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.NormalizeWallet(wallet)
	inv, ok := s.investors[key]
	if !ok {
		return model.Investor{}, ErrNotFound
	}
	update.Apply(&inv)
	s.investors[key] = inv
	return inv, nil
}

func (s *MemoryStore) GetInvestorPreferences(_ context.Context, wallet string) (model.InvestorPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.preferences[model.NormalizeWallet(wallet)]
	if !ok {
		return model.InvestorPreferences{}, ErrNotFound
	}
	return prefs, nil
}

func (s *MemoryStore) SaveInvestorPreferences(_ context.Context, prefs model.InvestorPreferences) (model.InvestorPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs.WalletAddress = model.NormalizeWallet(prefs.WalletAddress)
	if _, ok := s.investors[prefs.WalletAddress]; !ok {
		return model.InvestorPreferences{}, ErrNotFound
	}
	prefs.UpdatedAt = s.now()
	s.preferences[prefs.WalletAddress] = prefs
	return prefs, nil
}

func (s *MemoryStore) CreateInvestment(_ context.Context, inv model.Investment) (model.Investment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv.WalletAddress = model.NormalizeWallet(inv.WalletAddress)
	investor, ok := s.investors[inv.WalletAddress]
	if !ok {
		return model.Investment{}, ErrNotFound
	}

	s.nextInvID++
	inv.ID = s.nextInvID
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	s.investments = append(s.investments, inv)

	investor.TotalInvested = investor.TotalInvested.Add(inv.Amount)
	investor.InvestmentCount++
	s.investors[inv.WalletAddress] = investor
	return inv, nil
}

func (s *MemoryStore) GetInvestorInvestments(_ context.Context, wallet string) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := model.NormalizeWallet(wallet)
	out := make([]model.Investment, 0)
	for _, inv := range s.investments {
		if inv.WalletAddress == key {
			out = append(out, inv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RecordBlockchainInvestment(_ context.Context, inv model.BlockchainInvestment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.IndexedEvent{TxHash: inv.TransactionHash, LogIndex: inv.LogIndex}.Key()
	if _, ok := s.chainInv[key]; ok {
		return false, nil
	}
	inv.WalletAddress = model.NormalizeWallet(inv.WalletAddress)
	s.chainInv[key] = inv
	return true, nil
}

func (s *MemoryStore) GetBlockchainInvestments(_ context.Context, wallet string) ([]model.BlockchainInvestment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := model.NormalizeWallet(wallet)
	out := make([]model.BlockchainInvestment, 0)
	for _, inv := range s.chainInv {
		if inv.WalletAddress == key {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return out, nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, event model.IndexedEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.Key()]; ok {
		return false, nil
	}
	s.events[event.Key()] = event
	return true, nil
}

// Events returns all recorded events ordered by block and log index.
func (s *MemoryStore) Events() []model.IndexedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.IndexedEvent, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out
}

func (s *MemoryStore) LoadCursor(_ context.Context, name string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.cursors[name]
	return block, ok, nil
}

func (s *MemoryStore) SaveCursor(_ context.Context, name string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[name] = block
	return nil
}
