// Package snapshot reads the node's chainstate LevelDB (the UTXO-set
// database) and aggregates unspent value per address, giving an operator
// an instant balance view before the full historical index has caught
// up. It is advisory only: the address/UTXO engine remains the source of
// truth once the bulk index finishes, and this package never writes to
// the indexed store.
package snapshot

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/pivx-project/chainindex/internal/script"
	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

// Options controls which output classes count toward balances.
type Options struct {
	// IncludeCoinbase counts coinbase outputs toward balances.
	IncludeCoinbase bool
	// CoinbaseMaturity, with CurrentHeight, excludes coinbase outputs
	// that haven't matured yet (current_height < coin_height + maturity).
	// Zero disables the maturity check.
	CoinbaseMaturity int32
	// CurrentHeight is the chain height maturity is evaluated against.
	CurrentHeight int32
}

// DefaultOptions matches the node's own notion of spendable balance:
// coinbase included, no maturity filtering.
func DefaultOptions() Options {
	return Options{IncludeCoinbase: true}
}

// Result is an aggregated chainstate view.
type Result struct {
	// Balances maps address string to total unspent value in duffs.
	Balances map[string]int64
	// CoinbaseTotal is the raw sum of all coinbase output values seen,
	// before any maturity filtering applied to Balances.
	CoinbaseTotal int64
}

// coinOutput is one unspent output recovered from a CCoins entry.
type coinOutput struct {
	vout   int
	value  int64
	script []byte
}

// coins is one parsed 'c'-prefixed chainstate entry: the creating
// transaction's height, its coinbase/coinstake flags, and whichever of
// its outputs are still unspent.
type coins struct {
	height      int32
	isCoinbase  bool
	isCoinstake bool
	outputs     []coinOutput
}

// BootstrapBalances aggregates a copied chainstate database with
// DefaultOptions. path must point at a copy — the node holds the live
// database's lock.
func BootstrapBalances(path string) (*Result, error) {
	return BootstrapBalancesWithOptions(path, DefaultOptions())
}

// BootstrapBalancesWithOptions opens the chainstate LevelDB at path,
// parses every 'c'-prefixed CCoins entry, and sums unspent output values
// per resolved address. Entries that fail to parse are skipped rather
// than failing the whole aggregation — chainstate copies taken while the
// node runs can carry a few torn records.
func BootstrapBalancesWithOptions(path string, opts Options) (*Result, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open chainstate: %w", err)
	}
	defer db.Close()

	result := &Result{Balances: make(map[string]int64)}

	iter := db.NewIterator(util.BytesPrefix([]byte("c")), nil)
	defer iter.Release()
	for iter.Next() {
		c, ok := parseCoins(iter.Value())
		if !ok {
			continue
		}
		aggregate(result, c, opts)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("snapshot: iterate chainstate: %w", err)
	}
	return result, nil
}

func aggregate(result *Result, c *coins, opts Options) {
	for _, out := range c.outputs {
		if out.value == 0 {
			continue
		}

		if c.isCoinbase {
			result.CoinbaseTotal += out.value
			if !opts.IncludeCoinbase {
				continue
			}
			if opts.CoinbaseMaturity > 0 && opts.CurrentHeight < c.height+opts.CoinbaseMaturity {
				continue
			}
		}

		class := script.Classify(out.script)
		for _, addr := range class.Addresses {
			result.Balances[addr.String()] += out.value
		}
	}
}

// parseCoins decodes one CCoins value. The layout is the node's
// per-transaction UTXO record:
//
//	code = height*4 + (coinbase ? 2 : 0) + (coinstake ? 1 : 0)
//	mask = length-prefixed bitmap, one bit per vout, set = unspent
//	per set bit: compressed amount, then compressed script
//
// Parsing is lenient: a record that runs short keeps whatever outputs
// decoded cleanly, and only a record yielding nothing at all is
// rejected.
func parseCoins(raw []byte) (*coins, bool) {
	pos := 0

	code, n, err := codec.ReadCompactSize(raw[pos:])
	if err != nil {
		return nil, false
	}
	pos += n

	c := &coins{
		height:      int32(code >> 2),
		isCoinbase:  code&2 != 0,
		isCoinstake: code&1 != 0,
	}

	maskLen, n, err := codec.ReadCompactSize(raw[pos:])
	if err != nil {
		return nil, false
	}
	pos += n
	if pos+int(maskLen) > len(raw) {
		return nil, false
	}
	mask := raw[pos : pos+int(maskLen)]
	pos += int(maskLen)

	for byteIdx, b := range mask {
		for bit := 0; bit < 8; bit++ {
			if b>>uint(bit)&1 == 0 {
				continue
			}
			vout := byteIdx*8 + bit

			amountCompact, n, err := codec.ReadCompactSize(raw[pos:])
			if err != nil {
				return c, len(c.outputs) > 0
			}
			pos += n
			value := int64(codec.DecompressAmount(amountCompact))

			scr, n, ok := readCompressedScript(raw[pos:])
			if !ok {
				return c, len(c.outputs) > 0
			}
			pos += n

			c.outputs = append(c.outputs, coinOutput{vout: vout, value: value, script: scr})
		}
	}
	return c, len(c.outputs) > 0
}

// nSpecialScripts is the number of compressed-script type codes: sizes
// below it select a fixed-width special form, sizes at or above it mean
// "raw script of length nSize - 6".
const nSpecialScripts = 6

// maxScriptLen bounds a non-special script read, as a sanity check
// against torn records.
const maxScriptLen = 10000

// readCompressedScript reads one ScriptCompression-coded script and
// returns it decompressed, along with how many input bytes it consumed.
func readCompressedScript(raw []byte) ([]byte, int, bool) {
	nSize, n, err := codec.ReadCompactSize(raw)
	if err != nil {
		return nil, 0, false
	}
	pos := n

	if nSize < nSpecialScripts {
		dataLen := 20
		if nSize >= 2 {
			dataLen = 32
		}
		if pos+dataLen > len(raw) {
			return nil, 0, false
		}
		compressed := make([]byte, 0, 1+dataLen)
		compressed = append(compressed, byte(nSize))
		compressed = append(compressed, raw[pos:pos+dataLen]...)
		return codec.DecompressScript(compressed), pos + dataLen, true
	}

	scriptLen := int(nSize - nSpecialScripts)
	if scriptLen > maxScriptLen || pos+scriptLen > len(raw) {
		return nil, 0, false
	}
	scr := make([]byte, scriptLen)
	copy(scr, raw[pos:pos+scriptLen])
	return scr, pos + scriptLen, true
}

// TxIDFromKey recovers the creating transaction's id from a chainstate
// key ('c' followed by the txid in internal byte order).
func TxIDFromKey(key []byte) (types.Hash, bool) {
	if len(key) != 1+types.HashSize || key[0] != 'c' {
		return types.Hash{}, false
	}
	h, err := types.HashFromInternal(key[1:])
	if err != nil {
		return types.Hash{}, false
	}
	return h, true
}
