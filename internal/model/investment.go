package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CurrencyUSD = "USD"
	CurrencyETH = "ETH"

	StatusConfirmed = "confirmed"

	TargetTypeDAO = "dao"
)

// Investment is a database-recorded investment row.
type Investment struct {
	ID            int64           `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	TargetID      string          `json:"targetId"`
	TargetName    string          `json:"targetName"`
	TargetType    string          `json:"targetType"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	Returns       decimal.Decimal `json:"returns"`
	Performance   float64         `json:"performance"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// BlockchainInvestment is derived from a FundsReceived event. Once observed it
// never changes.
type BlockchainInvestment struct {
	TransactionHash string          `json:"transaction_hash"`
	LogIndex        uint64          `json:"log_index"`
	TokenID         string          `json:"token_id"`
	WalletAddress   string          `json:"wallet_address"`
	DAOAddress      string          `json:"dao_address"`
	TargetID        string          `json:"target_id"`
	TargetName      string          `json:"target_name"`
	TargetType      string          `json:"target_type"`
	Amount          decimal.Decimal `json:"amount"`
	BlockNumber     uint64          `json:"block_number"`
	Date            time.Time       `json:"date"`
}
