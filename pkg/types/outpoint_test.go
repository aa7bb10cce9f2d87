package types

import (
	"strings"
	"testing"
)

func TestOutpoint_IsZero(t *testing.T) {
	var zero Outpoint
	if !zero.IsZero() {
		t.Error("zero-value Outpoint should be zero")
	}

	// Non-zero TxID
	nonZero := Outpoint{TxID: Hash{0x01}, Vout: 0}
	if nonZero.IsZero() {
		t.Error("Outpoint with non-zero TxID should not be zero")
	}

	// Non-zero vout
	nonZero2 := Outpoint{TxID: Hash{}, Vout: 1}
	if nonZero2.IsZero() {
		t.Error("Outpoint with non-zero Vout should not be zero")
	}
}

func TestOutpoint_String(t *testing.T) {
	var txid Hash
	txid[31] = 0xab // last internal byte becomes the first display byte
	o := Outpoint{
		TxID: txid,
		Vout: 3,
	}
	s := o.String()

	if !strings.HasPrefix(s, "ab") {
		t.Errorf("String() should start with txid hex, got %s", s)
	}
	if !strings.HasSuffix(s, ":3") {
		t.Errorf("String() should end with ':3', got %s", s)
	}

	// Zero outpoint
	var zero Outpoint
	zs := zero.String()
	if !strings.HasSuffix(zs, ":0") {
		t.Errorf("zero Outpoint String() should end with ':0', got %s", zs)
	}
}
