package xpub

import (
	"testing"

	"github.com/tyler-smith/go-bip32"

	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/internal/storage"
	"github.com/pivx-project/chainindex/pkg/types"
)

func testAccountKey(t *testing.T) *bip32.Key {
	t.Helper()
	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i)
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("master key: %v", err)
	}
	account := master
	for _, idx := range []uint32{bip32.FirstHardenedChild + 44, bip32.FirstHardenedChild + 119, bip32.FirstHardenedChild} {
		account, err = account.NewChildKey(idx)
		if err != nil {
			t.Fatalf("derive account: %v", err)
		}
	}
	return account.PublicKey()
}

func TestParseExtendedPublicKeyRejectsWrongDepth(t *testing.T) {
	seed := make([]byte, 64)
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("master key: %v", err)
	}
	xpub := master.PublicKey().String()
	if _, err := ParseExtendedPublicKey(xpub); err == nil {
		t.Fatal("expected depth-0 key to be rejected")
	}
}

func TestParseExtendedPublicKeyRejectsPrivate(t *testing.T) {
	seed := make([]byte, 64)
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("master key: %v", err)
	}
	if _, err := ParseExtendedPublicKey(master.String()); err == nil {
		t.Fatal("expected private extended key to be rejected")
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	account := testAccountKey(t)
	a1, err := DeriveAddress(account, External, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	a2, err := DeriveAddress(account, External, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a1.String() != a2.String() {
		t.Fatalf("derivation not deterministic: %s != %s", a1, a2)
	}
	a3, err := DeriveAddress(account, External, 1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a1.String() == a3.String() {
		t.Fatal("different indices produced the same address")
	}
	internal, err := DeriveAddress(account, Internal, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if internal.String() == a1.String() {
		t.Fatal("external and internal chains produced the same address")
	}
}

func TestDeriveAddressRejectsHardened(t *testing.T) {
	account := testAccountKey(t)
	if _, err := DeriveAddress(account, bip32.FirstHardenedChild, 0); err == nil {
		t.Fatal("expected hardened chain to be rejected")
	}
}

func TestScanChainStopsAtGapLimit(t *testing.T) {
	account := testAccountKey(t)
	st := store.New(storage.NewMemory())
	scanner := NewScanner(st)

	firstAddr, err := DeriveAddress(account, External, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	batch := st.NewBatch(0)
	key := store.TagKey(store.TagAddrHistory, []byte(firstAddr.String()))
	if err := batch.Put(store.CFAddrIndex, key, []byte("some-txid-bytes-here-32-bytes!!")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := batch.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	result, err := scanner.ScanChain(account, External, 3)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// index 0 active, then 3 consecutive unused (indices 1,2,3) stop the scan.
	if len(result.Addresses) != 4 {
		t.Fatalf("expected 4 derived addresses, got %d", len(result.Addresses))
	}
	if !result.Active[firstAddr.String()] {
		t.Fatal("expected first address to be marked active")
	}
	if len(result.Active) != 1 {
		t.Fatalf("expected exactly one active address, got %d", len(result.Active))
	}
}

func TestBatchHasHistory(t *testing.T) {
	account := testAccountKey(t)
	st := store.New(storage.NewMemory())
	scanner := NewScanner(st)

	a0, _ := DeriveAddress(account, External, 0)
	a1, _ := DeriveAddress(account, External, 1)

	batch := st.NewBatch(0)
	key := store.TagKey(store.TagAddrHistory, []byte(a0.String()))
	_ = batch.Put(store.CFAddrIndex, key, []byte("x"))
	_ = batch.Flush()

	result, err := scanner.BatchHasHistory([]types.Address{a0, a1})
	if err != nil {
		t.Fatalf("batch has history: %v", err)
	}
	if !result[a0.String()] {
		t.Fatal("expected a0 active")
	}
	if result[a1.String()] {
		t.Fatal("expected a1 inactive")
	}
}
