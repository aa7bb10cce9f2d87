package tail

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pivx-project/chainindex/internal/chainstate"
	"github.com/pivx-project/chainindex/internal/rpcclient"
	"github.com/pivx-project/chainindex/internal/storage"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/pkg/block"
	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

func testAddr(seed byte) types.Address {
	var h [20]byte
	h[0] = seed
	return types.Address{Version: types.VersionP2PKH, Hash: h}
}

func hashSeed(seed byte) types.Hash {
	var h types.Hash
	h[0] = seed
	return h
}

func p2pkhScript(hash [20]byte) []byte {
	s := make([]byte, 25)
	s[0] = 0x76
	s[1] = 0xa9
	s[2] = 0x14
	copy(s[3:23], hash[:])
	s[23] = 0x88
	s[24] = 0xac
	return s
}

type txIn struct {
	prevTxid types.Hash
	prevVout uint32
	script   []byte
}

type txOut struct {
	value  int64
	script []byte
}

func encodeTx(ins []txIn, outs []txOut) []byte {
	var buf []byte
	buf = append(buf, 0x01, 0x00) // version 1
	buf = append(buf, 0x00, 0x00) // type 0

	buf = codec.WriteCompactSize(buf, uint64(len(ins)))
	for _, in := range ins {
		buf = append(buf, in.prevTxid.Bytes()...)
		var v [4]byte
		v[0], v[1], v[2], v[3] = byte(in.prevVout), byte(in.prevVout>>8), byte(in.prevVout>>16), byte(in.prevVout>>24)
		buf = append(buf, v[:]...)
		buf = codec.WriteCompactSize(buf, uint64(len(in.script)))
		buf = append(buf, in.script...)
		buf = append(buf, 0xff, 0xff, 0xff, 0xff)
	}

	buf = codec.WriteCompactSize(buf, uint64(len(outs)))
	for _, out := range outs {
		var v [8]byte
		uv := uint64(out.value)
		for i := 0; i < 8; i++ {
			v[i] = byte(uv >> (8 * i))
		}
		buf = append(buf, v[:]...)
		buf = codec.WriteCompactSize(buf, uint64(len(out.script)))
		buf = append(buf, out.script...)
	}

	buf = append(buf, 0x00, 0x00, 0x00, 0x00) // locktime
	return buf
}

// stubNode is the fixed state an httptest-backed JSON-RPC server answers
// getblockcount/getblockhash/getblock against, mirroring
// internal/rpcclient/client_test.go's server-per-test style.
type stubNode struct {
	height    int32
	blockHash map[int32]string
	blocks    map[string]rpcclient.Block
}

func newStubServer(t *testing.T, node *stubNode) *rpcclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}

		switch req.Method {
		case "getblockcount":
			resp["result"] = node.height
		case "getblockhash":
			var height int32
			json.Unmarshal(req.Params[0], &height)
			hash, ok := node.blockHash[height]
			if !ok {
				resp["error"] = map[string]interface{}{"code": -8, "message": "height out of range"}
			} else {
				resp["result"] = hash
			}
		case "getblock":
			var hash string
			json.Unmarshal(req.Params[0], &hash)
			blk, ok := node.blocks[hash]
			if !ok {
				resp["error"] = map[string]interface{}{"code": -5, "message": "block not found"}
			} else {
				resp["result"] = blk
			}
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return rpcclient.New(rpcclient.Config{Host: srv.URL[len("http://"):], MaxRetries: 0})
}

func TestPollCatchesUpFromGenesis(t *testing.T) {
	st := store.New(storage.NewMemory())
	addrA := testAddr(0xAA)

	coinbase := encodeTx(
		[]txIn{{prevVout: 0xFFFFFFFF}},
		[]txOut{{value: 500_000_000, script: p2pkhScript(addrA.Hash)}},
	)

	hash0 := hashSeed(0x10)
	merkleRoot := hashSeed(0x20)

	node := &stubNode{
		height:    0,
		blockHash: map[int32]string{0: hash0.String()},
		blocks: map[string]rpcclient.Block{
			hash0.String(): {
				Hash:              hash0.String(),
				Height:            0,
				Version:           1,
				MerkleRoot:        merkleRoot.String(),
				Time:              1000,
				Bits:              "1d00ffff",
				Nonce:             7,
				PreviousBlockHash: "",
				Tx:                []rpcclient.RawTx{{TxID: "coinbase", Hex: hex.EncodeToString(coinbase)}},
			},
		},
	}
	client := newStubServer(t, node)

	tl := New(st, client, 4, time.Second, nil)
	if err := tl.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	tracker := chainstate.New(st)
	syncHeight, err := tracker.GetSyncHeight()
	if err != nil {
		t.Fatalf("GetSyncHeight: %v", err)
	}
	if syncHeight != 0 {
		t.Errorf("sync height = %d, want 0", syncHeight)
	}

	received, err := tl.engine.GetReceived(addrA)
	if err != nil {
		t.Fatalf("GetReceived: %v", err)
	}
	if received != 500_000_000 {
		t.Errorf("received = %d, want 500000000", received)
	}

	held, err := st.Has(store.CFChainState, processingKey(0))
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if held {
		t.Error("processing marker still held after successful apply")
	}
}

func TestPollIdlesWhenAlreadySynced(t *testing.T) {
	st := store.New(storage.NewMemory())
	hash0 := hashSeed(0x10)

	batch := st.NewBatch(0)
	if err := chainstate.SetSyncHeight(batch, 0); err != nil {
		t.Fatalf("SetSyncHeight: %v", err)
	}
	if err := chainstate.SetHashAtHeight(batch, 0, hash0); err != nil {
		t.Fatalf("SetHashAtHeight: %v", err)
	}
	if err := batch.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	node := &stubNode{
		height:    0,
		blockHash: map[int32]string{0: hash0.String()},
		blocks:    map[string]rpcclient.Block{},
	}
	client := newStubServer(t, node)

	tl := New(st, client, 4, time.Second, nil)
	if err := tl.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	tracker := chainstate.New(st)
	syncHeight, err := tracker.GetSyncHeight()
	if err != nil {
		t.Fatalf("GetSyncHeight: %v", err)
	}
	if syncHeight != 0 {
		t.Errorf("sync height = %d, want 0 (idle, no catch-up attempted)", syncHeight)
	}
}

func TestApplyHeightSkipsWhenMarkerContested(t *testing.T) {
	st := store.New(storage.NewMemory())
	tl := New(st, nil, 1, time.Second, nil)

	batch := st.NewBatch(0)
	if err := batch.Put(store.CFChainState, processingKey(5), []byte{1}); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	if err := batch.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	r := fetchedBlock{height: 5, hash: hashSeed(0x99), header: &block.Header{Version: 1}, txs: nil}
	if err := tl.applyHeight(r, nil); err != nil {
		t.Fatalf("applyHeight: %v", err)
	}

	syncHeight, err := chainstate.New(st).GetSyncHeight()
	if err != nil {
		t.Fatalf("GetSyncHeight: %v", err)
	}
	if syncHeight != -1 {
		t.Errorf("sync height = %d, want -1 (contested height left untouched)", syncHeight)
	}
}
