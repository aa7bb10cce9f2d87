// Package chainstate tracks sync progress: a thin
// façade over the handful of singleton keys in the chain_state column
// family. Every write goes through a caller-supplied store.Batch so it
// inherits that batch's atomicity; this package never commits on its own.
package chainstate

import (
	"encoding/binary"
	"strconv"

	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/pkg/types"
)

// Tracker reads and writes the chain_state singleton keys.
type Tracker struct {
	st *store.Store
}

// New wraps a store for chain-state access.
func New(st *store.Store) *Tracker {
	return &Tracker{st: st}
}

// GetSyncHeight returns the height up to which every block's mutations
// are known durable, or -1 if never set.
func (t *Tracker) GetSyncHeight() (int32, error) {
	return t.getHeight(store.KeySyncHeight)
}

// GetNetworkHeight returns the node's last-observed tip height, or -1 if
// never set.
func (t *Tracker) GetNetworkHeight() (int32, error) {
	return t.getHeight(store.KeyNetworkHeight)
}

func (t *Tracker) getHeight(key string) (int32, error) {
	v, err := t.st.Get(store.CFChainState, []byte(key))
	if err != nil {
		return -1, nil
	}
	if len(v) != 4 {
		return -1, nil
	}
	return int32(binary.BigEndian.Uint32(v)), nil
}

// IsSynced reports whether the gap between the node's tip and the sync
// height is within threshold blocks.
func (t *Tracker) IsSynced(threshold int32) (bool, error) {
	sync, err := t.GetSyncHeight()
	if err != nil {
		return false, err
	}
	network, err := t.GetNetworkHeight()
	if err != nil {
		return false, err
	}
	if network < 0 {
		return false, nil
	}
	return network-sync <= threshold, nil
}

// AddressIndexComplete reports whether the address/UTXO engine has
// finished an initial full pass over the chain.
func (t *Tracker) AddressIndexComplete() (bool, error) {
	v, err := t.st.Get(store.CFChainState, []byte(store.KeyAddressIndexComplete))
	if err != nil {
		return false, nil
	}
	return string(v) == "1", nil
}

// EnrichmentHeight returns the height up to which Sapling/price
// enrichment has run, or -1 if never set.
func (t *Tracker) EnrichmentHeight() (int32, error) {
	return t.getHeight(store.KeyEnrichmentHeight)
}

// HashAtHeight returns the canonical hash already committed for height,
// for cheap duplicate-block detection ahead of a full store read.
func (t *Tracker) HashAtHeight(height int32) (types.Hash, bool, error) {
	v, err := t.st.Get(store.CFChainState, store.HeightKey(store.TagDuplicateCheck, height))
	if err != nil || len(v) != types.HashSize {
		return types.Hash{}, false, nil
	}
	h, err := types.HashFromInternal(v)
	if err != nil {
		return types.Hash{}, false, nil
	}
	return h, true, nil
}

// SetSyncHeight stages sync_height = height on batch.
func SetSyncHeight(batch *store.Batch, height int32) error {
	return batch.Put(store.CFChainState, []byte(store.KeySyncHeight), store.HeightBytes(height))
}

// SetNetworkHeight stages network_height = height on batch.
func SetNetworkHeight(batch *store.Batch, height int32) error {
	return batch.Put(store.CFChainState, []byte(store.KeyNetworkHeight), store.HeightBytes(height))
}

// SetAddressIndexComplete stages the address_index_complete flag.
func SetAddressIndexComplete(batch *store.Batch, complete bool) error {
	v := "0"
	if complete {
		v = "1"
	}
	return batch.Put(store.CFChainState, []byte(store.KeyAddressIndexComplete), []byte(v))
}

// SetEnrichmentHeight stages enrichment_height = height on batch.
func SetEnrichmentHeight(batch *store.Batch, height int32) error {
	return batch.Put(store.CFChainState, []byte(store.KeyEnrichmentHeight), store.HeightBytes(height))
}

// SetHashAtHeight stages the H|height duplicate-detection alias.
func SetHashAtHeight(batch *store.Batch, height int32, hash types.Hash) error {
	return batch.Put(store.CFChainState, store.HeightKey(store.TagDuplicateCheck, height), hash.Bytes())
}

// DeleteHashAtHeight removes the H|height alias, used by the reorg engine.
func DeleteHashAtHeight(batch *store.Batch, height int32) error {
	return batch.Delete(store.CFChainState, store.HeightKey(store.TagDuplicateCheck, height))
}

// String renders a height for diagnostic messages.
func String(height int32) string {
	return strconv.Itoa(int(height))
}
