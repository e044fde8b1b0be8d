package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"researchdao/internal/chain"
)

// ChainReader is the subset of the chain client the engine uses.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockSummary(ctx context.Context, number uint64) (chain.BlockSummary, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	Close()
}

// Dialer opens a ChainReader for an RPC URL.
type Dialer func(ctx context.Context, rpcURL string) (ChainReader, error)

// DialChain is the production Dialer.
func DialChain(ctx context.Context, rpcURL string) (ChainReader, error) {
	client, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}
