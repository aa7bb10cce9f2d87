package rpcclient

import (
	"context"
	"strconv"
)

// RawTx is one transaction as embedded in a verbosity=2 getblock result,
// or as returned directly by getrawtransaction(txid, 1). Only the
// fields the core needs are decoded; the node's JSON carries many more.
type RawTx struct {
	TxID string `json:"txid"`
	Hex  string `json:"hex"`
}

// Block is a getblock(hash, verbosity=2) result.
type Block struct {
	Hash              string  `json:"hash"`
	Height            int32   `json:"height"`
	Version           uint32  `json:"version"`
	MerkleRoot        string  `json:"merkleroot"`
	Time              uint32  `json:"time"`
	Bits              string  `json:"bits"`
	Nonce             uint32  `json:"nonce"`
	PreviousBlockHash string  `json:"previousblockhash"`
	Tx                []RawTx `json:"tx"`
}

// BitsUint32 parses the node's hex-string "bits" field.
func (b *Block) BitsUint32() (uint32, error) {
	v, err := strconv.ParseUint(b.Bits, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// GetBlockCount returns the node's current tip height.
func (c *Client) GetBlockCount(ctx context.Context) (int32, error) {
	var height int32
	err := c.Call(ctx, "getblockcount", nil, &height)
	return height, err
}

// GetBlockHash returns the canonical block hash at height, as currently
// known to the node.
func (c *Client) GetBlockHash(ctx context.Context, height int32) (string, error) {
	var hash string
	err := c.Call(ctx, "getblockhash", []interface{}{height}, &hash)
	return hash, err
}

// GetBlock fetches a block with embedded full transaction objects
// (verbosity=2), the form the live-tail fetch stage needs so it never
// has to make a second round trip per transaction.
func (c *Client) GetBlock(ctx context.Context, hash string) (*Block, error) {
	var block Block
	err := c.Call(ctx, "getblock", []interface{}{hash, 2}, &block)
	return &block, err
}

// GetRawTransaction fetches one transaction by txid, used as the
// MissingPrevTx fallback when a previous output isn't already in the
// store.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	var tx RawTx
	err := c.Call(ctx, "getrawtransaction", []interface{}{txid, 1}, &tx)
	return &tx, err
}

// GetRawMempool returns the txids currently in the node's mempool.
func (c *Client) GetRawMempool(ctx context.Context) ([]string, error) {
	var txids []string
	err := c.Call(ctx, "getrawmempool", []interface{}{false}, &txids)
	return txids, err
}
