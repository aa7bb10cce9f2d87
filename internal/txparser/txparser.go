// Package txparser decodes a block's transactions, including the
// Sapling shielded fields carried by version-3-and-above
// transactions.
package txparser

import (
	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/tx"
	"github.com/pivx-project/chainindex/pkg/types"
)

// ParseBlockTransactions decodes every transaction in a block's
// post-header bytes: a leading compact-size transaction count,
// followed by that many back-to-back transactions. blockVersion is
// recorded on each transaction for downstream dispatch (pre-Sapling
// forks encode the same fields differently than later ones).
func ParseBlockTransactions(blockVersion uint32, data []byte) ([]*tx.Transaction, error) {
	c := newCursor(data)
	count, err := c.compactSize()
	if err != nil {
		return nil, err
	}

	txs := make([]*tx.Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		t, err := parseTransaction(c, blockVersion)
		if err != nil {
			return txs, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// ParseTransaction decodes a single raw transaction, such as the "hex"
// field the node's getblock(verbosity=2)/getrawtransaction RPCs return.
// Unlike ParseBlockTransactions, data holds exactly one transaction with
// no leading count.
func ParseTransaction(blockVersion uint32, data []byte) (*tx.Transaction, error) {
	c := newCursor(data)
	return parseTransaction(c, blockVersion)
}

// parseTransaction decodes one transaction starting at the cursor's
// current position and advances it past the transaction's last byte.
func parseTransaction(c *cursor, blockVersion uint32) (*tx.Transaction, error) {
	start := c.pos

	version, err := c.u16le()
	if err != nil {
		return nil, err
	}
	txType, err := c.u16le()
	if err != nil {
		return nil, err
	}

	inputs, err := parseInputs(c)
	if err != nil {
		return nil, err
	}
	outputs, err := parseOutputs(c)
	if err != nil {
		return nil, err
	}
	locktime, err := c.u32le()
	if err != nil {
		return nil, err
	}

	t := &tx.Transaction{
		BlockVersion: blockVersion,
		Version:      version,
		Type:         txType,
		Inputs:       inputs,
		Outputs:      outputs,
		LockTime:     locktime,
	}

	if version >= 3 {
		sapling, err := parseSaplingData(c)
		if err != nil {
			return nil, err
		}
		t.Sapling = sapling

		if txType != 0 {
			payloadLen, err := c.compactSize()
			if err != nil {
				return nil, err
			}
			if err := c.skip(int(payloadLen)); err != nil {
				return nil, err
			}
		}
	}

	raw := c.data[start:c.pos]
	digest := codec.Sha256d(raw)
	txid, err := types.HashFromInternal(digest[:])
	if err != nil {
		return nil, err
	}
	t.TxID = txid
	t.Raw = append([]byte(nil), raw...)

	return t, nil
}

func parseInputs(c *cursor) ([]tx.Input, error) {
	count, err := c.compactSize()
	if err != nil {
		return nil, err
	}
	inputs := make([]tx.Input, 0, count)
	for i := uint64(0); i < count; i++ {
		prevHash, err := c.hash32()
		if err != nil {
			return nil, err
		}
		prevIndex, err := c.u32le()
		if err != nil {
			return nil, err
		}
		script, err := c.script()
		if err != nil {
			return nil, err
		}
		sequence, err := c.u32le()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, tx.Input{
			PrevOut:  types.Outpoint{TxID: prevHash, Vout: prevIndex},
			Script:   script,
			Sequence: sequence,
		})
	}
	return inputs, nil
}

func parseOutputs(c *cursor) ([]tx.Output, error) {
	count, err := c.compactSize()
	if err != nil {
		return nil, err
	}
	outputs := make([]tx.Output, 0, count)
	for i := uint64(0); i < count; i++ {
		value, err := c.i64le()
		if err != nil {
			return nil, err
		}
		script, err := c.script()
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, tx.Output{Value: value, Script: script})
	}
	return outputs, nil
}

// parseSaplingData decodes the shielded portion of a version>=3
// transaction: a discarded compact-size "value count" marker (the
// node's own encoding carries this redundant field ahead of the value
// balance), the value balance, the shielded spend and output vectors,
// and the binding signature.
func parseSaplingData(c *cursor) (*tx.SaplingData, error) {
	if _, err := c.compactSize(); err != nil {
		return nil, err
	}
	valueBalance, err := c.i64le()
	if err != nil {
		return nil, err
	}

	spends, err := parseShieldedSpends(c)
	if err != nil {
		return nil, err
	}
	outputs, err := parseShieldedOutputs(c)
	if err != nil {
		return nil, err
	}
	bindingSig, err := c.array64()
	if err != nil {
		return nil, err
	}

	return &tx.SaplingData{
		ValueBalance: valueBalance,
		Spends:       spends,
		Outputs:      outputs,
		BindingSig:   bindingSig,
	}, nil
}

// parseShieldedSpends decodes vShieldedSpend: 384 bytes per entry (32
// cv + 32 anchor + 32 nullifier + 32 rk + 192 zk-proof + 64 spend-auth
// signature).
func parseShieldedSpends(c *cursor) ([]tx.SpendDescription, error) {
	count, err := c.compactSize()
	if err != nil {
		return nil, err
	}
	out := make([]tx.SpendDescription, 0, count)
	for i := uint64(0); i < count; i++ {
		cv, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		anchor, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		nullifier, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		rk, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		zkproof, err := c.array192()
		if err != nil {
			return nil, err
		}
		spendAuthSig, err := c.array64()
		if err != nil {
			return nil, err
		}
		out = append(out, tx.SpendDescription{
			Cv:           cv,
			Anchor:       anchor,
			Nullifier:    nullifier,
			Rk:           rk,
			Zkproof:      zkproof,
			SpendAuthSig: spendAuthSig,
		})
	}
	return out, nil
}

// parseShieldedOutputs decodes vShieldedOutput: 948 bytes per entry
// (32 cv + 32 cmu + 32 ephemeral key + 580 enc ciphertext + 80 out
// ciphertext + 192 zk-proof).
func parseShieldedOutputs(c *cursor) ([]tx.OutputDescription, error) {
	count, err := c.compactSize()
	if err != nil {
		return nil, err
	}
	out := make([]tx.OutputDescription, 0, count)
	for i := uint64(0); i < count; i++ {
		cv, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		cmu, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		ephemeralKey, err := c.reversed32()
		if err != nil {
			return nil, err
		}
		encCiphertext, err := c.array580()
		if err != nil {
			return nil, err
		}
		outCiphertext, err := c.array80()
		if err != nil {
			return nil, err
		}
		zkproof, err := c.array192()
		if err != nil {
			return nil, err
		}
		out = append(out, tx.OutputDescription{
			Cv:            cv,
			Cmu:           cmu,
			EphemeralKey:  ephemeralKey,
			EncCiphertext: encCiphertext,
			OutCiphertext: outCiphertext,
			Zkproof:       zkproof,
		})
	}
	return out, nil
}
