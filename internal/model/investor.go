package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Investor is a wallet-keyed investor profile. TotalInvested and
// InvestmentCount are running aggregates maintained by database-path
// investments only.
type Investor struct {
	WalletAddress     string          `json:"walletAddress"`
	Pseudonym         string          `json:"pseudonym"`
	ProfileCompleted  bool            `json:"profileCompleted"`
	ShowOnLeaderboard bool            `json:"showOnLeaderboard"`
	TotalInvested     decimal.Decimal `json:"totalInvested"`
	InvestmentCount   int             `json:"investmentCount"`
	JoinedAt          time.Time       `json:"joinedAt"`
}

// InvestorUpdate carries the mutable profile fields; nil means unchanged.
type InvestorUpdate struct {
	Pseudonym         *string `json:"pseudonym"`
	ProfileCompleted  *bool   `json:"profileCompleted"`
	ShowOnLeaderboard *bool   `json:"showOnLeaderboard"`
}

// Apply copies the set fields of u onto inv.
func (u InvestorUpdate) Apply(inv *Investor) {
	if u.Pseudonym != nil {
		inv.Pseudonym = *u.Pseudonym
	}
	if u.ProfileCompleted != nil {
		inv.ProfileCompleted = *u.ProfileCompleted
	}
	if u.ShowOnLeaderboard != nil {
		inv.ShowOnLeaderboard = *u.ShowOnLeaderboard
	}
}

// InvestorPreferences stores what an investor wants to be shown.
type InvestorPreferences struct {
	WalletAddress     string    `json:"walletAddress"`
	ResearchAreas     []string  `json:"researchAreas"`
	RiskTolerance     string    `json:"riskTolerance"`
	InvestmentHorizon string    `json:"investmentHorizon"`
	NotifyNewDAOs     bool      `json:"notifyNewDaos"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NormalizeWallet lower-cases and trims a wallet address. Wallets are
// compared case-insensitively everywhere.
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
