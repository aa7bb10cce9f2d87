package types

import "fmt"

// Outpoint references a specific output in a transaction. In
// internal/addrindex's per-address UTXO list entries, Vout is stored as
// a 4-byte big-endian value after the 32-byte internal-order txid.
type Outpoint struct {
	TxID Hash   `json:"txid"`
	Vout uint32 `json:"vout"`
}

// IsZero returns true if the outpoint has a zero TxID and zero vout.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Vout == 0
}

// String returns "txid:vout" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Vout)
}
