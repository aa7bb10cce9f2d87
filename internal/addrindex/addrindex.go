// Package addrindex implements the address/UTXO engine: the
// consistency core that mutates the per-address UTXO set, per-address
// transaction history, and cumulative received/sent counters for every
// block applied to the chain, and produces the undo record that makes
// those mutations reversible.
package addrindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pivx-project/chainindex/internal/script"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/pkg/tx"
	"github.com/pivx-project/chainindex/pkg/types"
)

// outpointSize is the on-disk width of one (txid, vout) entry in a
// per-address UTXO list: a 32-byte txid followed by a 4-byte vout.
const outpointSize = 36

// PrevTxLookup looks up the output referenced by a spending input. It is the
// engine's one I/O dependency: given a previous txid, return that
// transaction's outputs (value and script, by vout). Implementations
// read from internal/store's CFTransactions. Apply calls it for every
// input without a null prevout, including inputs that spend an output
// born within the same apply window; the two-pass set (see InBatchSet)
// only keeps such outputs off the UTXO list.
type PrevTxLookup func(txid types.Hash) (outputs []tx.Output, err error)

// Undo is the per-block undo record: enough
// to reverse every mutation Apply made for one block. AddrUndo entries
// are keyed by address string (base58check) so JSON round-trips
// losslessly; Revert walks them in Go map order, which is not fixed.
type Undo struct {
	Height int32                `json:"height"`
	Addrs  map[string]*AddrUndo `json:"addrs"`
	TxIDs  []types.Hash         `json:"tx_ids"`
}

// AddrUndo is one address's contribution to a block's undo record.
type AddrUndo struct {
	TxAdded       []types.Hash     `json:"tx_added"`
	UTXOsCreated  []types.Outpoint `json:"utxos_created"`
	UTXOsSpent    []types.Outpoint `json:"utxos_spent"`
	ReceivedDelta int64            `json:"received_delta"`
	SentDelta     int64            `json:"sent_delta"`
}

func (u *Undo) addr(addr types.Address) *AddrUndo {
	key := addr.String()
	if u.Addrs == nil {
		u.Addrs = make(map[string]*AddrUndo)
	}
	a, ok := u.Addrs[key]
	if !ok {
		a = &AddrUndo{}
		u.Addrs[key] = a
	}
	return a
}

// InBatchSet is the two-pass optimization's spent-set: outpoints both
// created and consumed within the batch currently being applied.
// Outputs in this set are never added to an address's UTXO list, since
// they are born and die within the same batch — and because membership
// requires the creating transaction to be a batch member, an absent
// entry during applyInputs reliably means the prevout was committed by
// an earlier batch.
type InBatchSet map[types.Outpoint]struct{}

// BuildInBatchSet scans every transaction in a batch of blocks and
// collects the outpoints that are both created and consumed within the
// batch: an input's prevout joins the set only when its creating
// transaction is itself a batch member. Prevouts created by earlier,
// already-committed blocks are deliberately excluded — for those, the
// UTXO list itself tells a genuine spend apart from a replayed one.
func BuildInBatchSet(blocks [][]*tx.Transaction) InBatchSet {
	created := make(map[types.Hash]struct{})
	for _, txs := range blocks {
		for _, t := range txs {
			created[t.TxID] = struct{}{}
		}
	}
	set := make(InBatchSet)
	for _, txs := range blocks {
		for _, t := range txs {
			for _, in := range t.Inputs {
				if in.IsNullPrevout() {
					continue
				}
				if _, ok := created[in.PrevOut.TxID]; ok {
					set[in.PrevOut] = struct{}{}
				}
			}
		}
	}
	return set
}

// Engine applies and reverses blocks' effects on the address index.
type Engine struct {
	st     *store.Store
	lookup PrevTxLookup

	// staged overlays the values this engine has put (or deleted, nil
	// entry) on the current batch but not yet flushed. Reads go through
	// it first: two transactions mutating the same address within one
	// flush window must each see the other's staged state, which the
	// store alone can't show until the batch commits.
	staged map[string][]byte
}

// New creates an address/UTXO engine. lookup resolves a previous
// transaction's outputs when an input's spent value isn't already known
// from the in-batch spent set.
func New(st *store.Store, lookup PrevTxLookup) *Engine {
	return &Engine{st: st, lookup: lookup, staged: make(map[string][]byte)}
}

// Reset drops the staged-value overlay. Callers invoke it whenever the
// batch the engine has been writing to is flushed or abandoned; after a
// flush the overlay matches the store anyway, but after an abandoned
// batch it would silently diverge.
func (e *Engine) Reset() {
	e.staged = make(map[string][]byte)
}

func stagedKey(cf store.CF, key []byte) string {
	return string([]byte{byte(cf)}) + string(key)
}

// read returns the current value for cf|key as the in-flight batch will
// leave it: the staged overlay first, then the store.
func (e *Engine) read(cf store.CF, key []byte) []byte {
	if v, ok := e.staged[stagedKey(cf, key)]; ok {
		return v
	}
	v, err := e.st.Get(cf, key)
	if err != nil {
		return nil
	}
	return v
}

func (e *Engine) put(batch *store.Batch, cf store.CF, key, value []byte) error {
	if err := batch.Put(cf, key, value); err != nil {
		return err
	}
	e.staged[stagedKey(cf, key)] = value
	return nil
}

func (e *Engine) del(batch *store.Batch, cf store.CF, key []byte) error {
	if err := batch.Delete(cf, key); err != nil {
		return err
	}
	e.staged[stagedKey(cf, key)] = nil
	return nil
}

// Apply indexes one transaction at height into batch, staging every
// UTXO, history, and counter mutation and recording it into undo.
// inBatch is the two-pass spent-set for the surrounding apply window
// (nil outside live tail / per-file bulk batching, in which case every
// created output is recorded unconditionally).
func (e *Engine) Apply(batch *store.Batch, undo *Undo, height int32, t *tx.Transaction, inBatch InBatchSet) error {
	if err := e.applyOutputs(batch, undo, height, t, inBatch); err != nil {
		return err
	}
	if err := e.applyInputs(batch, undo, t, inBatch); err != nil {
		return err
	}
	return nil
}

func (e *Engine) applyOutputs(batch *store.Batch, undo *Undo, height int32, t *tx.Transaction, inBatch InBatchSet) error {
	for i, out := range t.Outputs {
		class := script.Classify(out.Script)
		if len(class.Addresses) == 0 {
			continue
		}
		op := types.Outpoint{TxID: t.TxID, Vout: uint32(i)}

		_, bornAndSpent := inBatch[op]

		for _, addr := range class.Addresses {
			counted := bornAndSpent
			if !bornAndSpent {
				added, err := e.addUTXO(batch, addr, op)
				if err != nil {
					return err
				}
				if added {
					undo.addr(addr).UTXOsCreated = append(undo.addr(addr).UTXOsCreated, op)
				}
				// An outpoint already in the list means this output was
				// applied before (a replayed block); its credit is
				// already counted.
				counted = added
			}
			if !counted {
				continue
			}

			addedTx, err := e.addTxHistory(batch, addr, t.TxID)
			if err != nil {
				return err
			}
			if addedTx {
				undo.addr(addr).TxAdded = append(undo.addr(addr).TxAdded, t.TxID)
				undo.TxIDs = append(undo.TxIDs, t.TxID)
			}

			if err := e.addReceived(batch, addr, out.Value); err != nil {
				return err
			}
			undo.addr(addr).ReceivedDelta += out.Value
		}
	}
	return nil
}

func (e *Engine) applyInputs(batch *store.Batch, undo *Undo, t *tx.Transaction, inBatch InBatchSet) error {
	for _, in := range t.Inputs {
		if in.IsNullPrevout() {
			continue
		}
		outputs, err := e.lookup(in.PrevOut.TxID)
		if err != nil {
			return fmt.Errorf("addrindex: lookup prev tx %s: %w", in.PrevOut.TxID, err)
		}
		if int(in.PrevOut.Vout) >= len(outputs) {
			return fmt.Errorf("addrindex: prev tx %s has no output %d", in.PrevOut.TxID, in.PrevOut.Vout)
		}
		prevOut := outputs[in.PrevOut.Vout]
		class := script.Classify(prevOut.Script)
		if len(class.Addresses) == 0 {
			continue
		}

		// A spent outpoint absent from the UTXO list means either this
		// block was applied before (the debit is already counted), or
		// the output was born within this batch and never listed — the
		// in-batch set tells the two apart.
		_, bornInBatch := inBatch[in.PrevOut]

		for _, addr := range class.Addresses {
			removed, err := e.removeUTXO(batch, addr, in.PrevOut)
			if err != nil {
				return err
			}
			if removed {
				undo.addr(addr).UTXOsSpent = append(undo.addr(addr).UTXOsSpent, in.PrevOut)
			}
			if !removed && !bornInBatch {
				continue
			}

			addedTx, err := e.addTxHistory(batch, addr, t.TxID)
			if err != nil {
				return err
			}
			if addedTx {
				undo.addr(addr).TxAdded = append(undo.addr(addr).TxAdded, t.TxID)
				undo.TxIDs = append(undo.TxIDs, t.TxID)
			}

			if err := e.addSent(batch, addr, prevOut.Value); err != nil {
				return err
			}
			undo.addr(addr).SentDelta += prevOut.Value
		}
	}
	return nil
}

// addUTXO appends (txid, vout) to the address's UTXO list, unless
// already present.
func (e *Engine) addUTXO(batch *store.Batch, addr types.Address, op types.Outpoint) (bool, error) {
	key := store.TagKey(store.TagUTXOList, []byte(addr.String()))
	existing := e.read(store.CFUTXO, key)
	entry := encodeOutpoint(op)
	if containsOutpoint(existing, entry) {
		return false, nil
	}
	updated := append(append([]byte{}, existing...), entry...)
	if err := e.put(batch, store.CFUTXO, key, updated); err != nil {
		return false, err
	}
	return true, nil
}

// removeUTXO removes (txid, vout) from the address's UTXO list.
func (e *Engine) removeUTXO(batch *store.Batch, addr types.Address, op types.Outpoint) (bool, error) {
	key := store.TagKey(store.TagUTXOList, []byte(addr.String()))
	existing := e.read(store.CFUTXO, key)
	if len(existing) == 0 {
		return false, nil
	}
	entry := encodeOutpoint(op)
	updated, removed := removeOutpoint(existing, entry)
	if !removed {
		return false, nil
	}
	if len(updated) == 0 {
		if err := e.del(batch, store.CFUTXO, key); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := e.put(batch, store.CFUTXO, key, updated); err != nil {
		return false, err
	}
	return true, nil
}

// addTxHistory appends txid to the address's history unless already
// present.
func (e *Engine) addTxHistory(batch *store.Batch, addr types.Address, txid types.Hash) (bool, error) {
	key := store.TagKey(store.TagAddrHistory, []byte(addr.String()))
	existing := e.read(store.CFAddrIndex, key)
	if containsTxID(existing, txid) {
		return false, nil
	}
	updated := append(append([]byte{}, existing...), txid.Bytes()...)
	if err := e.put(batch, store.CFAddrIndex, key, updated); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) addReceived(batch *store.Batch, addr types.Address, delta int64) error {
	return e.addCounter(batch, store.TagAddrReceived, addr, delta)
}

func (e *Engine) addSent(batch *store.Batch, addr types.Address, delta int64) error {
	return e.addCounter(batch, store.TagAddrSent, addr, delta)
}

func (e *Engine) addCounter(batch *store.Batch, tag []byte, addr types.Address, delta int64) error {
	key := store.TagKey(tag, []byte(addr.String()))
	v := e.read(store.CFAddrIndex, key)
	var current int64
	if len(v) == 8 {
		current = int64(binary.BigEndian.Uint64(v))
	}
	current += delta
	return e.put(batch, store.CFAddrIndex, key, encodeI64(current))
}

func encodeOutpoint(op types.Outpoint) []byte {
	b := make([]byte, outpointSize)
	copy(b[:32], op.TxID.Bytes())
	binary.BigEndian.PutUint32(b[32:], op.Vout)
	return b
}

func containsOutpoint(list, entry []byte) bool {
	for i := 0; i+outpointSize <= len(list); i += outpointSize {
		if string(list[i:i+outpointSize]) == string(entry) {
			return true
		}
	}
	return false
}

func removeOutpoint(list, entry []byte) ([]byte, bool) {
	for i := 0; i+outpointSize <= len(list); i += outpointSize {
		if string(list[i:i+outpointSize]) == string(entry) {
			out := make([]byte, 0, len(list)-outpointSize)
			out = append(out, list[:i]...)
			out = append(out, list[i+outpointSize:]...)
			return out, true
		}
	}
	return list, false
}

func containsTxID(list []byte, txid types.Hash) bool {
	entry := txid.Bytes()
	for i := 0; i+types.HashSize <= len(list); i += types.HashSize {
		if string(list[i:i+types.HashSize]) == string(entry) {
			return true
		}
	}
	return false
}

func encodeI64(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

// Revert reverses every mutation recorded in undo: created UTXOs are
// removed, spent UTXOs are restored, received/sent counters are
// decremented by the exact recorded delta (clamped at zero as a
// defensive floor), and tx-history additions are dropped. This is the
// reorg engine's only path to undoing a block's effects — it never
// recomputes deltas, only replays the recorded ones backwards.
func (e *Engine) Revert(batch *store.Batch, undo *Undo) error {
	for addrStr, au := range undo.Addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("addrindex: revert: bad address %q in undo record: %w", addrStr, err)
		}

		for _, op := range au.UTXOsCreated {
			if _, err := e.removeUTXO(batch, addr, op); err != nil {
				return err
			}
		}
		for _, op := range au.UTXOsSpent {
			if _, err := e.addUTXO(batch, addr, op); err != nil {
				return err
			}
		}
		for _, txid := range au.TxAdded {
			if err := e.removeTxHistory(batch, addr, txid); err != nil {
				return err
			}
		}
		if au.ReceivedDelta != 0 {
			if err := e.addReceived(batch, addr, -clampDelta(au.ReceivedDelta, mustCounter(e.GetReceived(addr)))); err != nil {
				return err
			}
		}
		if au.SentDelta != 0 {
			if err := e.addSent(batch, addr, -clampDelta(au.SentDelta, mustCounter(e.GetSent(addr)))); err != nil {
				return err
			}
		}
	}
	return nil
}

// clampDelta returns delta, or current if subtracting delta from
// current would go negative.
func clampDelta(delta, current int64) int64 {
	if current-delta < 0 {
		return current
	}
	return delta
}

func mustCounter(v int64, _ error) int64 { return v }

// removeTxHistory drops txid from the address's history list, used only
// during reorg — forward indexing never removes a history entry.
func (e *Engine) removeTxHistory(batch *store.Batch, addr types.Address, txid types.Hash) error {
	key := store.TagKey(store.TagAddrHistory, []byte(addr.String()))
	existing := e.read(store.CFAddrIndex, key)
	if len(existing) == 0 {
		return nil
	}
	entry := txid.Bytes()
	for i := 0; i+types.HashSize <= len(existing); i += types.HashSize {
		if string(existing[i:i+types.HashSize]) == string(entry) {
			updated := make([]byte, 0, len(existing)-types.HashSize)
			updated = append(updated, existing[:i]...)
			updated = append(updated, existing[i+types.HashSize:]...)
			if len(updated) == 0 {
				return e.del(batch, store.CFAddrIndex, key)
			}
			return e.put(batch, store.CFAddrIndex, key, updated)
		}
	}
	return nil
}

// GetReceived returns the cumulative received total for addr.
func (e *Engine) GetReceived(addr types.Address) (int64, error) {
	return e.getCounter(store.TagAddrReceived, addr)
}

// GetSent returns the cumulative sent total for addr.
func (e *Engine) GetSent(addr types.Address) (int64, error) {
	return e.getCounter(store.TagAddrSent, addr)
}

func (e *Engine) getCounter(tag []byte, addr types.Address) (int64, error) {
	key := store.TagKey(tag, []byte(addr.String()))
	v := e.read(store.CFAddrIndex, key)
	if len(v) != 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

// GetUTXOs returns the address's current unspent outpoints.
func (e *Engine) GetUTXOs(addr types.Address) ([]types.Outpoint, error) {
	key := store.TagKey(store.TagUTXOList, []byte(addr.String()))
	v, err := e.st.Get(store.CFUTXO, key)
	if err != nil {
		return nil, nil
	}
	out := make([]types.Outpoint, 0, len(v)/outpointSize)
	for i := 0; i+outpointSize <= len(v); i += outpointSize {
		txid, err := types.HashFromInternal(v[i : i+32])
		if err != nil {
			continue
		}
		out = append(out, types.Outpoint{TxID: txid, Vout: binary.BigEndian.Uint32(v[i+32 : i+36])})
	}
	return out, nil
}

// PutUndo stages the block undo record, self-describing (JSON),
// keyed addr_undo|height in chain_metadata.
func PutUndo(batch *store.Batch, undo *Undo) error {
	data, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("addrindex: marshal undo: %w", err)
	}
	key := store.HeightKey(store.TagUndoRecord, undo.Height)
	return batch.Put(store.CFChainMetadata, key, data)
}

// GetUndo reads the undo record for height, if any.
func GetUndo(st *store.Store, height int32) (*Undo, bool, error) {
	key := store.HeightKey(store.TagUndoRecord, height)
	v, err := st.Get(store.CFChainMetadata, key)
	if err != nil || len(v) == 0 {
		return nil, false, nil
	}
	var undo Undo
	if err := json.Unmarshal(v, &undo); err != nil {
		return nil, false, fmt.Errorf("addrindex: unmarshal undo at height %d: %w", height, err)
	}
	return &undo, true, nil
}

// DeleteUndo stages removal of the undo record for height, once the
// reorg engine has consumed it.
func DeleteUndo(batch *store.Batch, height int32) error {
	return batch.Delete(store.CFChainMetadata, store.HeightKey(store.TagUndoRecord, height))
}

// GetHistory returns the address's txids in insertion (first-seen
// height) order.
func (e *Engine) GetHistory(addr types.Address) ([]types.Hash, error) {
	key := store.TagKey(store.TagAddrHistory, []byte(addr.String()))
	v, err := e.st.Get(store.CFAddrIndex, key)
	if err != nil {
		return nil, nil
	}
	out := make([]types.Hash, 0, len(v)/types.HashSize)
	for i := 0; i+types.HashSize <= len(v); i += types.HashSize {
		h, err := types.HashFromInternal(v[i : i+types.HashSize])
		if err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
