package model

import (
	"strings"
	"time"
)

const (
	// DAOSourceAPI marks records created through the REST API.
	DAOSourceAPI = "api"
	// DAOSourceBlockchain marks records mirrored from a DAOCreated event.
	DAOSourceBlockchain = "blockchain"

	blockchainIDPrefix = "blockchain-"
)

// DAORecord mirrors a research DAO, either registered through the API or
// discovered on chain.
type DAORecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category,omitempty"`
	DAOAddress   string    `json:"daoAddress,omitempty"`
	Creator      string    `json:"creator,omitempty"`
	TokenSymbol  string    `json:"tokenSymbol,omitempty"`
	CreatedBlock uint64    `json:"createdBlock,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Source       string    `json:"source"`
}

// BlockchainDAOID returns the record id used for indexer-created DAOs.
func BlockchainDAOID(address string) string {
	return blockchainIDPrefix + strings.ToLower(address)
}

// IsBlockchainDAOID reports whether id was assigned by the indexer.
func IsBlockchainDAOID(id string) bool {
	return strings.HasPrefix(id, blockchainIDPrefix)
}
