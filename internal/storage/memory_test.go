package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"researchdao/internal/model"
)

const testDAOAddress = "0xAbCdEf0000000000000000000000000000000001"

func TestMemoryUpsertResearchDAOKeepsOneRecord(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.UpsertResearchDAO(ctx, model.DAORecord{
			Name:         "Ocean Genomics",
			DAOAddress:   testDAOAddress,
			Creator:      "0x01",
			CreatedBlock: 42,
			Source:       model.DAOSourceBlockchain,
		}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	list, err := store.ListResearchDAOs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 dao, got %d", len(list))
	}
	if list[0].ID != model.BlockchainDAOID(testDAOAddress) {
		t.Fatalf("unexpected id %s", list[0].ID)
	}

	got, err := store.GetResearchDAOByAddress(ctx, "0xabcdef0000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("get by address: %v", err)
	}
	if got.Name != "Ocean Genomics" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestMemoryUpsertKeepsAPIRecordID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateResearchDAO(ctx, model.DAORecord{
		Name:        "Climate Lab",
		Description: "carbon capture",
		DAOAddress:  testDAOAddress,
		Source:      model.DAOSourceAPI,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || model.IsBlockchainDAOID(created.ID) {
		t.Fatalf("expected uuid id, got %q", created.ID)
	}

	updated, err := store.UpsertResearchDAO(ctx, model.DAORecord{
		Name:       "on-chain name",
		DAOAddress: testDAOAddress,
		Creator:    "0xcreator",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if updated.ID != created.ID || updated.Name != "Climate Lab" || updated.Creator != "0xcreator" {
		t.Fatalf("unexpected merge result %+v", updated)
	}

	if _, err := store.CreateResearchDAO(ctx, model.DAORecord{Name: "again", DAOAddress: testDAOAddress}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryCreateInvestmentAggregates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.CreateInvestment(ctx, model.Investment{WalletAddress: "0xAA", Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := store.CreateInvestor(ctx, model.Investor{WalletAddress: "0xAA"}); err != nil {
		t.Fatalf("create investor: %v", err)
	}
	if _, err := store.CreateInvestor(ctx, model.Investor{WalletAddress: "0xaa"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	amounts := []string{"10.5", "4.5"}
	for _, a := range amounts {
		if _, err := store.CreateInvestment(ctx, model.Investment{
			WalletAddress: "0xaa",
			TargetID:      "dao-1",
			Amount:        decimal.RequireFromString(a),
			Currency:      model.CurrencyUSD,
		}); err != nil {
			t.Fatalf("create investment: %v", err)
		}
	}

	inv, err := store.GetInvestor(ctx, "0xAA")
	if err != nil {
		t.Fatalf("get investor: %v", err)
	}
	if inv.InvestmentCount != 2 {
		t.Fatalf("count mismatch: %d", inv.InvestmentCount)
	}
	if !inv.TotalInvested.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("total mismatch: %s", inv.TotalInvested)
	}

	list, err := store.GetInvestorInvestments(ctx, "0xaa")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID == list[1].ID {
		t.Fatalf("unexpected investments %+v", list)
	}
}

func TestMemoryUpdateInvestorPartial(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.CreateInvestor(ctx, model.Investor{WalletAddress: "0xbb", Pseudonym: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	show := true
	updated, err := store.UpdateInvestor(ctx, "0xBB", model.InvestorUpdate{ShowOnLeaderboard: &show})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Pseudonym != "alice" || !updated.ShowOnLeaderboard {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := store.UpdateInvestor(ctx, "0xcc", model.InvestorUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryPreferencesRequireInvestor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	prefs := model.InvestorPreferences{WalletAddress: "0xDD", ResearchAreas: []string{"biotech"}}
	if _, err := store.SaveInvestorPreferences(ctx, prefs); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.CreateInvestor(ctx, model.Investor{WalletAddress: "0xdd"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.SaveInvestorPreferences(ctx, prefs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.GetInvestorPreferences(ctx, "0xdd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ResearchAreas) != 1 || got.ResearchAreas[0] != "biotech" {
		t.Fatalf("unexpected prefs %+v", got)
	}
}

func TestMemoryBlockchainInvestmentIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	inv := model.BlockchainInvestment{
		TransactionHash: "0xabc",
		LogIndex:        2,
		WalletAddress:   "0xEE",
		Amount:          decimal.RequireFromString("0.5"),
		BlockNumber:     9,
		Date:            time.Unix(1700000000, 0).UTC(),
	}
	added, err := store.RecordBlockchainInvestment(ctx, inv)
	if err != nil || !added {
		t.Fatalf("first record: added=%v err=%v", added, err)
	}
	added, err = store.RecordBlockchainInvestment(ctx, inv)
	if err != nil || added {
		t.Fatalf("second record: added=%v err=%v", added, err)
	}

	list, err := store.GetBlockchainInvestments(ctx, "0xee")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 investment, got %d", len(list))
	}
}

func TestMemoryEventsAndCursor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	events := []model.IndexedEvent{
		{TxHash: "0x2", LogIndex: 0, BlockNumber: 11},
		{TxHash: "0x1", LogIndex: 1, BlockNumber: 10},
		{TxHash: "0x1", LogIndex: 1, BlockNumber: 10},
	}
	var added int
	for _, e := range events {
		ok, err := store.RecordEvent(ctx, e)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if ok {
			added++
		}
	}
	if added != 2 {
		t.Fatalf("expected 2 new events, got %d", added)
	}
	got := store.Events()
	if len(got) != 2 || got[0].BlockNumber != 10 {
		t.Fatalf("unexpected order %+v", got)
	}

	if _, ok, _ := store.LoadCursor(ctx, "poll"); ok {
		t.Fatalf("expected empty cursor")
	}
	if err := store.SaveCursor(ctx, "poll", 77); err != nil {
		t.Fatalf("save: %v", err)
	}
	block, ok, err := store.LoadCursor(ctx, "poll")
	if err != nil || !ok || block != 77 {
		t.Fatalf("cursor=%d ok=%v err=%v", block, ok, err)
	}
}
