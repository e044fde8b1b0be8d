// Package portfolio reconciles database and on-chain investments into one
// ledger.
package portfolio

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"researchdao/internal/model"
)

const (
	SourceDatabase   = "database"
	SourceBlockchain = "blockchain"
)

// DefaultTolerance is the amount difference below which an on-chain entry
// is taken to be a copy of a database entry.
var DefaultTolerance = decimal.New(1, -3)

// Entry is one line of a merged portfolio. Source is always set.
type Entry struct {
	Key             string          `json:"key"`
	Source          string          `json:"source"`
	TargetID        string          `json:"targetId"`
	TargetName      string          `json:"targetName"`
	TargetType      string          `json:"targetType"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	Returns         decimal.Decimal `json:"returns"`
	Performance     float64         `json:"performance"`
	CreatedAt       time.Time       `json:"createdAt"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	TokenID         string          `json:"tokenId,omitempty"`
	BlockNumber     uint64          `json:"blockNumber,omitempty"`
}

// DedupRule decides when an on-chain entry duplicates a database entry: same
// target, database currency equal to Currency, and amounts closer than
// Tolerance. A zero Tolerance matches equal amounts only.
type DedupRule struct {
	Currency  string
	Tolerance decimal.Decimal
}

// DefaultDedupRule matches ETH amounts within DefaultTolerance.
func DefaultDedupRule() DedupRule {
	return DedupRule{Currency: model.CurrencyETH, Tolerance: DefaultTolerance}
}

// Suppression records an on-chain entry hidden by the dedup rule.
type Suppression struct {
	Entry      Entry  `json:"entry"`
	MatchedKey string `json:"matchedKey"`
}

// Result is the merged ledger, newest first.
type Result struct {
	Entries    []Entry       `json:"entries"`
	Suppressed []Suppression `json:"suppressed,omitempty"`
}

// Merge builds the portfolio. It is pure and deterministic: entries are
// ordered by CreatedAt descending with ties broken by key.
func Merge(db []model.Investment, chain []model.BlockchainInvestment, rule DedupRule) Result {
	entries := make([]Entry, 0, len(db)+len(chain))
	seen := make(map[string]struct{}, len(db)+len(chain))
	dbEntries := make([]Entry, 0, len(db))

	for _, inv := range db {
		entry := fromDatabase(inv)
		if _, dup := seen[entry.Key]; dup {
			continue
		}
		seen[entry.Key] = struct{}{}
		entries = append(entries, entry)
		dbEntries = append(dbEntries, entry)
	}

	var suppressed []Suppression
	for _, inv := range chain {
		entry := fromBlockchain(inv)
		if _, dup := seen[entry.Key]; dup {
			continue
		}
		if match, ok := rule.match(entry, dbEntries); ok {
			suppressed = append(suppressed, Suppression{Entry: entry, MatchedKey: match.Key})
			continue
		}
		seen[entry.Key] = struct{}{}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Key < entries[j].Key
	})

	return Result{Entries: entries, Suppressed: suppressed}
}

func (r DedupRule) match(candidate Entry, dbEntries []Entry) (Entry, bool) {
	currency := r.Currency
	if currency == "" {
		currency = model.CurrencyETH
	}
	for _, existing := range dbEntries {
		if existing.TargetID != candidate.TargetID || existing.Currency != currency {
			continue
		}
		diff := existing.Amount.Sub(candidate.Amount).Abs()
		if diff.LessThan(r.Tolerance) || (r.Tolerance.IsZero() && diff.IsZero()) {
			return existing, true
		}
	}
	return Entry{}, false
}

func fromDatabase(inv model.Investment) Entry {
	currency := strings.TrimSpace(inv.Currency)
	if currency == "" {
		currency = model.CurrencyUSD
	}
	return Entry{
		Key:         "db-" + strconv.FormatInt(inv.ID, 10),
		Source:      SourceDatabase,
		TargetID:    inv.TargetID,
		TargetName:  inv.TargetName,
		TargetType:  inv.TargetType,
		Amount:      inv.Amount,
		Currency:    currency,
		Status:      inv.Status,
		Returns:     inv.Returns,
		Performance: inv.Performance,
		CreatedAt:   inv.CreatedAt,
	}
}

func fromBlockchain(inv model.BlockchainInvestment) Entry {
	return Entry{
		Key:             "blockchain-" + inv.TransactionHash + "-" + inv.TokenID,
		Source:          SourceBlockchain,
		TargetID:        inv.TargetID,
		TargetName:      inv.TargetName,
		TargetType:      inv.TargetType,
		Amount:          inv.Amount,
		Currency:        model.CurrencyETH,
		Status:          model.StatusConfirmed,
		Returns:         decimal.Zero,
		CreatedAt:       inv.Date,
		TransactionHash: inv.TransactionHash,
		TokenID:         inv.TokenID,
		BlockNumber:     inv.BlockNumber,
	}
}
