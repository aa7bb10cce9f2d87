package block

import (
	"testing"

	"github.com/pivx-project/chainindex/pkg/types"
)

func TestHeaderSize(t *testing.T) {
	cases := []struct {
		version uint32
		want    int
	}{
		{1, legacyHeaderSize},
		{3, legacyHeaderSize},
		{4, extendedHeaderSize},
		{7, legacyHeaderSize},
		{8, extendedHeaderSize},
	}
	for _, c := range cases {
		if got := HeaderSize(c.version); got != c.want {
			t.Errorf("HeaderSize(%d) = %d, want %d", c.version, got, c.want)
		}
	}
}

func TestHeaderEncodeDecodeLegacy(t *testing.T) {
	h := &Header{
		Version:    1,
		PrevHash:   types.Hash{0x01},
		MerkleRoot: types.Hash{0x02},
		Time:       123456,
		Bits:       0x1e0ffff0,
		Nonce:      42,
	}
	encoded := h.Encode()
	if len(encoded) != legacyHeaderSize {
		t.Fatalf("encoded length = %d, want %d", len(encoded), legacyHeaderSize)
	}

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Version != h.Version || decoded.PrevHash != h.PrevHash ||
		decoded.MerkleRoot != h.MerkleRoot || decoded.Time != h.Time ||
		decoded.Bits != h.Bits || decoded.Nonce != h.Nonce {
		t.Errorf("decoded header mismatch: %+v vs %+v", decoded, h)
	}
	if decoded.ExtraRoot != nil {
		t.Error("legacy header should not have an ExtraRoot")
	}
}

func TestHeaderEncodeDecodeExtended(t *testing.T) {
	extra := types.Hash{0x03}
	h := &Header{
		Version:    4,
		PrevHash:   types.Hash{0x01},
		MerkleRoot: types.Hash{0x02},
		Time:       1,
		Bits:       2,
		Nonce:      3,
		ExtraRoot:  &extra,
	}
	encoded := h.Encode()
	if len(encoded) != extendedHeaderSize {
		t.Fatalf("encoded length = %d, want %d", len(encoded), extendedHeaderSize)
	}

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.ExtraRoot == nil || *decoded.ExtraRoot != extra {
		t.Errorf("ExtraRoot mismatch: got %v, want %v", decoded.ExtraRoot, extra)
	}
}

func TestDecodeHeaderBadLength(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, 79)); err == nil {
		t.Error("expected error for short header")
	}
	if _, err := DecodeHeader(make([]byte, 100)); err == nil {
		t.Error("expected error for header between 80 and 112 bytes")
	}
}

func TestHeaderHashDeterministic(t *testing.T) {
	h := &Header{Version: 1, Time: 1, Bits: 1, Nonce: 1}
	h1, err := h.Hash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := h.Hash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Error("Hash() should be deterministic for identical headers")
	}

	h.Nonce = 2
	h3, err := h.Hash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 == h3 {
		t.Error("Hash() should differ after changing Nonce")
	}
}
