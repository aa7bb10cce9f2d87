package store

import (
	"testing"

	"github.com/pivx-project/chainindex/internal/storage"
)

func TestStore_CFIsolation(t *testing.T) {
	s := New(storage.NewMemory())
	b := s.NewBatch(0)
	if err := b.Put(CFBlocks, []byte("k"), []byte("block-value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put(CFTransactions, []byte("k"), []byte("tx-value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	gotBlock, err := s.Get(CFBlocks, []byte("k"))
	if err != nil {
		t.Fatalf("Get(CFBlocks): %v", err)
	}
	if string(gotBlock) != "block-value" {
		t.Errorf("Get(CFBlocks) = %q, want %q", gotBlock, "block-value")
	}

	gotTx, err := s.Get(CFTransactions, []byte("k"))
	if err != nil {
		t.Fatalf("Get(CFTransactions): %v", err)
	}
	if string(gotTx) != "tx-value" {
		t.Errorf("Get(CFTransactions) = %q, want %q", gotTx, "tx-value")
	}
}

func TestBatch_ShouldFlush(t *testing.T) {
	s := New(storage.NewMemory())
	b := s.NewBatch(2)
	if b.ShouldFlush() {
		t.Error("fresh batch should not need flushing")
	}
	b.Put(CFChainState, []byte("a"), []byte("1"))
	if b.ShouldFlush() {
		t.Error("batch below threshold should not need flushing")
	}
	b.Put(CFChainState, []byte("b"), []byte("2"))
	if !b.ShouldFlush() {
		t.Error("batch at threshold should need flushing")
	}
}

func TestBatch_FlushResetsPending(t *testing.T) {
	s := New(storage.NewMemory())
	b := s.NewBatch(1)
	b.Put(CFUTXO, []byte("x"), []byte("y"))
	if b.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", b.Pending())
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() after Flush = %d, want 0", b.Pending())
	}

	// The batch must still accept new operations after a flush.
	if err := b.Put(CFUTXO, []byte("x2"), []byte("y2")); err != nil {
		t.Fatalf("Put after Flush: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	got, err := s.Get(CFUTXO, []byte("x2"))
	if err != nil {
		t.Fatalf("Get after second Flush: %v", err)
	}
	if string(got) != "y2" {
		t.Errorf("Get(x2) = %q, want %q", got, "y2")
	}
}

func TestBatch_DeleteAfterPut(t *testing.T) {
	s := New(storage.NewMemory())
	b := s.NewBatch(0)
	b.Put(CFChainMetadata, []byte("k"), []byte("v"))
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.Delete(CFChainMetadata, []byte("k"))
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush delete: %v", err)
	}
	if has, _ := s.Has(CFChainMetadata, []byte("k")); has {
		t.Error("key should be gone after delete+flush")
	}
}

func TestStore_MultiGet(t *testing.T) {
	s := New(storage.NewMemory())
	b := s.NewBatch(0)
	b.Put(CFAddrIndex, []byte("addr1"), []byte("v1"))
	b.Put(CFAddrIndex, []byte("addr2"), []byte("v2"))
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := s.MultiGet(CFAddrIndex, [][]byte{[]byte("addr1"), []byte("addr2"), []byte("missing")})
	if err != nil {
		t.Fatalf("MultiGet: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("MultiGet returned %d entries, want 2", len(got))
	}
	if string(got["addr1"]) != "v1" || string(got["addr2"]) != "v2" {
		t.Errorf("MultiGet = %v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Error("MultiGet should omit missing keys, not error")
	}
}

func TestStore_ForEachWithinCF(t *testing.T) {
	s := New(storage.NewMemory())
	b := s.NewBatch(0)
	b.Put(CFUTXO, append(append([]byte{}, TagUTXOList...), []byte("addrA")...), []byte("utxoA"))
	b.Put(CFBlocks, []byte("addrA"), []byte("unrelated"))
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var seen int
	err := s.ForEach(CFUTXO, TagUTXOList, func(key, value []byte) error {
		seen++
		if string(value) != "utxoA" {
			t.Errorf("unexpected value %q", value)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if seen != 1 {
		t.Errorf("ForEach saw %d entries, want 1", seen)
	}
}
