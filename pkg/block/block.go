// Package block defines block value types shared by the block-index
// reader, the block-file reader, and the live-tail engine.
package block

import (
	"github.com/pivx-project/chainindex/pkg/tx"
	"github.com/pivx-project/chainindex/pkg/types"
)

// Block is a fully parsed block: its header and the transactions the
// block-file reader decoded from the bytes that follow it.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// Hash returns the block's header hash, or the zero hash if the header
// is nil.
func (b *Block) Hash() (types.Hash, error) {
	if b.Header == nil {
		return types.Hash{}, nil
	}
	return b.Header.Hash()
}
