// Package xpub derives watch-only addresses: given an extended
// public key, derive the same P2PKH addresses a wallet's receive
// and change chains would produce, without ever touching private key
// material. The query layer (outside this core) uses this to answer
// "does this xpub have a balance" without the caller ever handing over a
// seed.
package xpub

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

// RequiredDepth is the BIP-32 depth an accepted extended public key must
// already be at: m/44'/coin'/account' — this package only derives the
// remaining non-hardened chain/index levels.
const RequiredDepth = 3

// External and Internal name the two derivation chains a scan
// covers: receive addresses and change addresses.
const (
	External uint32 = 0
	Internal uint32 = 1
)

// DefaultGapLimit is the number of consecutive unused addresses scanned
// past the last one with recorded activity before a chain is considered
// exhausted.
const DefaultGapLimit = 20

// ParseExtendedPublicKey decodes a base58-serialized xpub and enforces
// RequiredDepth. It rejects extended private keys outright: this package
// never handles private material.
func ParseExtendedPublicKey(xpub string) (*bip32.Key, error) {
	key, err := bip32.B58Deserialize(xpub)
	if err != nil {
		return nil, fmt.Errorf("xpub: parse extended key: %w", err)
	}
	if key.IsPrivate {
		return nil, fmt.Errorf("xpub: extended key carries private material, refusing")
	}
	if key.Depth != RequiredDepth {
		return nil, fmt.Errorf("xpub: expected depth %d, got %d", RequiredDepth, key.Depth)
	}
	return key, nil
}

// DeriveAddress derives the P2PKH address at chain/index below an
// already-depth-3 extended public key, using standard non-hardened
// child derivation on secp256k1.
func DeriveAddress(accountKey *bip32.Key, chain, index uint32) (types.Address, error) {
	if chain >= bip32.FirstHardenedChild {
		return types.Address{}, fmt.Errorf("xpub: chain %d must be non-hardened", chain)
	}
	if index >= bip32.FirstHardenedChild {
		return types.Address{}, fmt.Errorf("xpub: index %d must be non-hardened", index)
	}
	chainKey, err := accountKey.NewChildKey(chain)
	if err != nil {
		return types.Address{}, fmt.Errorf("xpub: derive chain %d: %w", chain, err)
	}
	addrKey, err := chainKey.NewChildKey(index)
	if err != nil {
		return types.Address{}, fmt.Errorf("xpub: derive index %d: %w", index, err)
	}
	hash := codec.Hash160(addrKey.Key)
	return types.NewAddress(types.VersionP2PKH, hash[:])
}

// Scanner answers xpub gap-limit scans against the indexed store's
// per-address transaction history. ScanChain checks each derived
// address with its own point read; BatchHasHistory checks a whole
// batch of addresses with one Store.MultiGet call.
type Scanner struct {
	st *store.Store
}

// NewScanner builds a Scanner over an already-opened store.
func NewScanner(st *store.Store) *Scanner {
	return &Scanner{st: st}
}

// ChainResult is one derivation chain's gap-limit scan result: every
// address derived up to and including the gap-limit tail, and which of
// them have recorded activity.
type ChainResult struct {
	Chain     uint32
	Addresses []types.Address
	Active    map[string]bool
}

// ScanChain derives addresses at chain/0, chain/1, ... until gapLimit
// consecutive addresses show no recorded history. A
// gapLimit <= 0 selects DefaultGapLimit.
func (s *Scanner) ScanChain(accountKey *bip32.Key, chain uint32, gapLimit int) (ChainResult, error) {
	if gapLimit <= 0 {
		gapLimit = DefaultGapLimit
	}
	chainKey, err := accountKey.NewChildKey(chain)
	if err != nil {
		return ChainResult{}, fmt.Errorf("xpub: derive chain %d: %w", chain, err)
	}

	result := ChainResult{Chain: chain, Active: make(map[string]bool)}
	consecutiveUnused := 0
	index := uint32(0)
	for consecutiveUnused < gapLimit {
		addrKey, err := chainKey.NewChildKey(index)
		if err != nil {
			return ChainResult{}, fmt.Errorf("xpub: derive index %d: %w", index, err)
		}
		hash := codec.Hash160(addrKey.Key)
		addr, err := types.NewAddress(types.VersionP2PKH, hash[:])
		if err != nil {
			return ChainResult{}, err
		}
		result.Addresses = append(result.Addresses, addr)

		active, err := s.hasHistory(addr)
		if err != nil {
			return ChainResult{}, err
		}
		if active {
			result.Active[addr.String()] = true
			consecutiveUnused = 0
		} else {
			consecutiveUnused++
		}
		index++
	}
	return result, nil
}

// hasHistory reports whether the address's 't'|address key (the
// per-address transaction history) exists at all.
func (s *Scanner) hasHistory(addr types.Address) (bool, error) {
	key := store.TagKey(store.TagAddrHistory, []byte(addr.String()))
	return s.st.Has(store.CFAddrIndex, key)
}

// BatchHasHistory is the MultiGet-backed variant of hasHistory for
// callers that have already derived a batch of candidate addresses
// (e.g. scanning both chains' next window together) and want one
// call instead of one per address.
func (s *Scanner) BatchHasHistory(addrs []types.Address) (map[string]bool, error) {
	keys := make([][]byte, len(addrs))
	for i, a := range addrs {
		keys[i] = store.TagKey(store.TagAddrHistory, []byte(a.String()))
	}
	found, err := s.st.MultiGet(store.CFAddrIndex, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(addrs))
	for i, a := range addrs {
		_, ok := found[string(keys[i])]
		out[a.String()] = ok
	}
	return out, nil
}
