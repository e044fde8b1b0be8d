package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	tsCache *lru.Cache[uint64, uint64]
}

// TimestampCacheSize bounds the block timestamp cache of a long-running
// client.
const TimestampCacheSize = 4096

// NewClient creates a new chain client from the RPC URL. A syntactically
// invalid URL is rejected before any connection attempt.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	if err := ValidateURL(rpcURL); err != nil {
		return nil, err
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return newClient(rpcClient), nil
}

func newClient(rpcClient *rpc.Client) *Client {
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   lru.NewCache[uint64, uint64](TimestampCacheSize),
	}
}

// ValidateURL checks that rpcURL is an absolute http(s), ws(s) URL or an IPC
// path.
func ValidateURL(rpcURL string) error {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if strings.HasPrefix(rpcURL, "/") || strings.HasSuffix(rpcURL, ".ipc") {
		return nil
	}
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return fmt.Errorf("invalid rpc url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid rpc url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid rpc url: missing host")
	}
	return nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockByNumber returns the block by number.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	block, err := c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	c.tsCache.Add(number, block.Time())
	return block, nil
}

// BlockSummary is the part of a block the poll loop needs.
type BlockSummary struct {
	Number    uint64
	Timestamp uint64
	TxHashes  []common.Hash
}

// BlockSummary returns the timestamp and ordered transaction hashes of a
// block.
func (c *Client) BlockSummary(ctx context.Context, number uint64) (BlockSummary, error) {
	block, err := c.BlockByNumber(ctx, number)
	if err != nil {
		return BlockSummary{}, err
	}
	txs := block.Transactions()
	hashes := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash())
	}
	return BlockSummary{Number: number, Timestamp: block.Time(), TxHashes: hashes}, nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, txHash)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.tsCache.Get(number); ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	c.tsCache.Add(number, header.Time)
	return header.Time, nil
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}
