package codec

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DecompressScript reverses the node's ScriptCompression format. A 21-byte
// input is type 0 (P2PKH) or type 1 (P2SH) plus a 20-byte hash; a 33-byte
// input is type 2/3 (already-compressed P2PK pubkey) or type 4/5 (pubkey
// needing Y-parity recovery to its uncompressed form). A 21- or 33-byte
// input with any other type byte, a type 4/5 key that does not parse as
// a curve point, and empty input all yield nil; input of any other
// length is returned unchanged, as a copy.
func DecompressScript(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	switch {
	case len(data) == 21:
		return decompressHashScript(data[0], data[1:21])
	case len(data) == 33:
		return decompressPubKeyScript(data[0], data[1:33])
	default:
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
}

func decompressHashScript(nsize byte, hash []byte) []byte {
	switch nsize {
	case 0x00:
		script := make([]byte, 0, 25)
		script = append(script, 0x76, 0xa9, 0x14)
		script = append(script, hash...)
		script = append(script, 0x88, 0xac)
		return script
	case 0x01:
		script := make([]byte, 0, 23)
		script = append(script, 0xa9, 0x14)
		script = append(script, hash...)
		script = append(script, 0x87)
		return script
	default:
		return nil
	}
}

func decompressPubKeyScript(nsize byte, xonly []byte) []byte {
	switch nsize {
	case 0x02, 0x03:
		script := make([]byte, 0, 35)
		script = append(script, 0x21, nsize)
		script = append(script, xonly...)
		script = append(script, 0xac)
		return script
	case 0x04, 0x05:
		prefix := nsize - 2
		compressed := make([]byte, 0, 33)
		compressed = append(compressed, prefix)
		compressed = append(compressed, xonly...)
		pub, err := secp256k1.ParsePubKey(compressed)
		if err != nil {
			return nil
		}
		uncompressed := pub.SerializeUncompressed()
		script := make([]byte, 0, 67)
		script = append(script, 0x41)
		script = append(script, uncompressed...)
		script = append(script, 0xac)
		return script
	default:
		return nil
	}
}
