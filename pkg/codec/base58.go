package codec

import (
	"errors"
	"math/big"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ErrBadChecksum is returned by Base58CheckDecode when the trailing 4-byte
// checksum does not match sha256d of the preceding bytes.
var ErrBadChecksum = errors.New("codec: base58check checksum mismatch")

var base58Big = big.NewInt(58)

// Base58CheckEncode encodes versionAndPayload (version byte(s) followed by
// the payload) with a trailing 4-byte sha256d checksum, PIVX/Bitcoin style.
func Base58CheckEncode(versionAndPayload []byte) string {
	checksum := Sha256d(versionAndPayload)
	full := make([]byte, 0, len(versionAndPayload)+4)
	full = append(full, versionAndPayload...)
	full = append(full, checksum[:4]...)
	return base58Encode(full)
}

// Base58CheckDecode decodes s and verifies its trailing checksum, returning
// the version-and-payload bytes with the checksum stripped.
func Base58CheckDecode(s string) ([]byte, error) {
	full, err := base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(full) < 4 {
		return nil, ErrBadChecksum
	}
	payload := full[:len(full)-4]
	checksum := full[len(full)-4:]
	want := Sha256d(payload)
	for i := 0; i < 4; i++ {
		if checksum[i] != want[i] {
			return nil, ErrBadChecksum
		}
	}
	return payload, nil
}

func base58Encode(b []byte) string {
	zeros := 0
	for zeros < len(b) && b[zeros] == 0 {
		zeros++
	}
	n := new(big.Int).SetBytes(b)
	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base58Big, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, base58Alphabet[0])
	}
	reverseBytes(out)
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	n := new(big.Int)
	for _, c := range s {
		idx := indexByte(base58Alphabet, byte(c))
		if idx < 0 {
			return nil, errors.New("codec: invalid base58 character")
		}
		n.Mul(n, base58Big)
		n.Add(n, big.NewInt(int64(idx)))
	}
	decoded := n.Bytes()
	zeros := 0
	for zeros < len(s) && s[zeros] == byte(base58Alphabet[0]) {
		zeros++
	}
	out := make([]byte, zeros+len(decoded))
	copy(out[zeros:], decoded)
	return out, nil
}

func indexByte(alphabet string, c byte) int {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return i
		}
	}
	return -1
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
