package codec

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDecompressScriptP2PKH(t *testing.T) {
	hash := bytes.Repeat([]byte{0xAB}, 20)
	in := append([]byte{0x00}, hash...)
	got := DecompressScript(in)
	want := append([]byte{0x76, 0xa9, 0x14}, hash...)
	want = append(want, 0x88, 0xac)
	if !bytes.Equal(got, want) {
		t.Errorf("P2PKH decompress = %x, want %x", got, want)
	}
}

func TestDecompressScriptP2SH(t *testing.T) {
	hash := bytes.Repeat([]byte{0xCD}, 20)
	in := append([]byte{0x01}, hash...)
	got := DecompressScript(in)
	want := append([]byte{0xa9, 0x14}, hash...)
	want = append(want, 0x87)
	if !bytes.Equal(got, want) {
		t.Errorf("P2SH decompress = %x, want %x", got, want)
	}
}

func TestDecompressScriptP2PKCompressed(t *testing.T) {
	gx, _ := hex.DecodeString("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	in := append([]byte{0x02}, gx...)
	got := DecompressScript(in)
	want := append([]byte{0x21, 0x02}, gx...)
	want = append(want, 0xac)
	if !bytes.Equal(got, want) {
		t.Errorf("P2PK compressed decompress = %x, want %x", got, want)
	}
}

func TestDecompressScriptP2PKUncompressed(t *testing.T) {
	gx, _ := hex.DecodeString("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	gy, _ := hex.DecodeString("483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8")
	in := append([]byte{0x04}, gx...) // 0x04 -> compressed prefix 0x02 (even y), matches G's actual y parity
	got := DecompressScript(in)

	uncompressed := append([]byte{0x04}, gx...)
	uncompressed = append(uncompressed, gy...)
	want := append([]byte{0x41}, uncompressed...)
	want = append(want, 0xac)
	if !bytes.Equal(got, want) {
		t.Errorf("P2PK uncompressed decompress = %x, want %x", got, want)
	}
}

func TestDecompressScriptNonSpecial(t *testing.T) {
	raw := []byte{0x51, 0x52, 0x53}
	got := DecompressScript(raw)
	if !bytes.Equal(got, raw) {
		t.Errorf("non-special decompress = %x, want %x", got, raw)
	}
}

func TestDecompressScriptEmpty(t *testing.T) {
	if got := DecompressScript(nil); got != nil {
		t.Errorf("empty input should decompress to nil, got %x", got)
	}
}
