// Package tx defines the transaction value types the parser produces
// and the rest of the core consumes.
package tx

import "github.com/pivx-project/chainindex/pkg/types"

// Maturity constants, in blocks, per output kind.
const (
	CoinbaseMaturity  = 100
	CoinstakeMaturity = 600
	NormalMaturity    = 0
)

// Kind classifies a transaction by how its coins were created.
type Kind uint8

const (
	KindNormal Kind = iota
	KindCoinbase
	KindCoinstake
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindCoinbase:
		return "Coinbase"
	case KindCoinstake:
		return "Coinstake"
	default:
		return "Normal"
	}
}

// Maturity returns the number of confirmations this kind's outputs must
// wait before they are spendable.
func (k Kind) Maturity() int {
	switch k {
	case KindCoinbase:
		return CoinbaseMaturity
	case KindCoinstake:
		return CoinstakeMaturity
	default:
		return NormalMaturity
	}
}

// coinbasePrevIndex is the sentinel prev-index value (0xFFFFFFFF) that,
// combined with an all-zero prev hash, marks a null prevout.
const coinbasePrevIndex = 0xFFFFFFFF

// Input is one transparent transaction input. Script holds the raw
// scriptSig bytes, or the coinbase data when IsNullPrevout is true.
type Input struct {
	PrevOut  types.Outpoint `json:"prevout"`
	Script   []byte         `json:"script"`
	Sequence uint32         `json:"sequence"`
}

// IsNullPrevout reports whether this input's previous outpoint is the
// all-zero hash with index 0xFFFFFFFF — the coinbase/coinstake marker.
func (in Input) IsNullPrevout() bool {
	return in.PrevOut.TxID.IsZero() && in.PrevOut.Vout == coinbasePrevIndex
}

// Output is one transparent transaction output.
type Output struct {
	Value  int64  `json:"value"`
	Script []byte `json:"script"`
}

// SpendDescription is one Sapling shielded spend (384 bytes on the wire).
// Cv, Anchor, Nullifier, and Rk are stored in display (reversed) order;
// Zkproof and SpendAuthSig are kept in wire order.
type SpendDescription struct {
	Cv           [32]byte
	Anchor       [32]byte
	Nullifier    [32]byte
	Rk           [32]byte
	Zkproof      [192]byte
	SpendAuthSig [64]byte
}

// OutputDescription is one Sapling shielded output (948 bytes on the
// wire). Cv, Cmu, and EphemeralKey are stored in display order;
// EncCiphertext, OutCiphertext, and Zkproof are kept in wire order.
type OutputDescription struct {
	Cv            [32]byte
	Cmu           [32]byte
	EphemeralKey  [32]byte
	EncCiphertext [580]byte
	OutCiphertext [80]byte
	Zkproof       [192]byte
}

// SaplingData holds the shielded components of a version>=3 transaction.
type SaplingData struct {
	ValueBalance int64
	Spends       []SpendDescription
	Outputs      []OutputDescription
	BindingSig   [64]byte
}

// Transaction is a fully parsed transparent/shielded transaction.
type Transaction struct {
	TxID         types.Hash   `json:"txid"`
	BlockVersion uint32       `json:"block_version"`
	Version      uint16       `json:"version"`
	Type         uint16       `json:"type"`
	Inputs       []Input      `json:"inputs"`
	Outputs      []Output     `json:"outputs"`
	LockTime     uint32       `json:"locktime"`
	Sapling      *SaplingData `json:"sapling,omitempty"`

	// Raw holds the exact on-wire bytes the parser consumed for this
	// transaction, for the transactions column family's
	// txid -> version|height|raw_bytes record. Not part of the JSON representation: JSON consumers get
	// the decoded fields, not a second copy of the wire encoding.
	Raw []byte `json:"-"`
}

// IsSapling reports whether this transaction carries shielded fields
// (version 3 and above).
func (t *Transaction) IsSapling() bool {
	return t.Version >= 3
}

// Kind derives the transaction's coin-creation kind from its shape:
// Coinbase is a single null-prevout input with a non-empty first output;
// Coinstake is a null-prevout first input, at least two outputs, and a
// zero-value empty-script first output; anything else is Normal.
func (t *Transaction) Kind() Kind {
	if len(t.Inputs) == 0 || !t.Inputs[0].IsNullPrevout() {
		return KindNormal
	}
	if len(t.Inputs) == 1 && len(t.Outputs) > 0 && len(t.Outputs[0].Script) > 0 {
		return KindCoinbase
	}
	if len(t.Outputs) >= 2 && t.Outputs[0].Value == 0 && len(t.Outputs[0].Script) == 0 {
		return KindCoinstake
	}
	return KindNormal
}
