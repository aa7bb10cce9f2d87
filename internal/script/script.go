// Package script classifies output scripts: it recognizes
// the output script shapes PIVX transactions use and derives the
// addresses they pay.
package script

import (
	"bytes"

	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

// Opcodes relevant to classification.
const (
	opDup                    = 0x76
	opHash160                = 0xa9
	opEqual                  = 0x87
	opEqualVerify            = 0x88
	opChecksig               = 0xac
	opChecksigVerify         = 0xad
	opCheckColdStakeVerify   = 0xd2
	opCheckColdStakeVerifyLOF = 0xd1
	opElse                   = 0x67
)

const hashLen = 20

// Classify derives a ScriptClass from a raw output script. An empty
// script represents a shielded (Sapling) output: its value moves
// entirely into the shielded pool and carries no transparent address.
func Classify(raw []byte) types.ScriptClass {
	switch {
	case len(raw) == 0:
		return types.ScriptClass{Kind: types.ScriptSapling}
	case isP2PKHWrapped(raw):
		return types.ScriptClass{
			Kind:      types.ScriptP2PKHWrapped,
			Addresses: []types.Address{{Hash: hash20(raw[4:24]), Wrapped: true}},
		}
	case isP2PKH(raw):
		return types.ScriptClass{
			Kind:      types.ScriptP2PKH,
			Addresses: []types.Address{{Version: types.VersionP2PKH, Hash: hash20(raw[3:23])}},
		}
	case isP2SH(raw):
		hash := hash20(raw[2:22])
		return types.ScriptClass{
			Kind: types.ScriptP2SH,
			Addresses: []types.Address{
				{Version: types.VersionP2SH, Hash: hash},
				{Hash: hash, Wrapped: true},
			},
		}
	case raw[0] == 0xc1:
		return types.ScriptClass{Kind: types.ScriptZerocoinMint}
	case raw[0] == 0xc2:
		return types.ScriptClass{Kind: types.ScriptZerocoinSpend}
	case raw[0] == 0xc3:
		return types.ScriptClass{Kind: types.ScriptZerocoinPublicSpend}
	case isColdStake(raw):
		staker, owner, ok := coldStakeAddresses(raw)
		if !ok {
			return types.ScriptClass{Kind: types.ScriptNonstandard}
		}
		return types.ScriptClass{Kind: types.ScriptColdStake, Addresses: []types.Address{staker, owner}}
	case isP2PK(raw):
		addr, ok := p2pkAddress(raw)
		if !ok {
			return types.ScriptClass{Kind: types.ScriptNonstandard}
		}
		return types.ScriptClass{Kind: types.ScriptP2PK, Addresses: []types.Address{addr}}
	default:
		return types.ScriptClass{Kind: types.ScriptNonstandard}
	}
}

func hash20(b []byte) [20]byte {
	var h [20]byte
	copy(h[:], b)
	return h
}

// isP2PKH matches OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG.
func isP2PKH(s []byte) bool {
	return len(s) == 25 &&
		s[0] == opDup && s[1] == opHash160 && s[2] == hashLen &&
		s[23] == opEqualVerify && s[24] == opChecksig
}

// isP2PKHWrapped matches a single arbitrary prefix byte followed by the
// standard P2PKH template (a 26-byte script): some
// exchange-integrator tooling prepends a marker byte to an otherwise
// ordinary P2PKH script rather than using the plain 25-byte form.
func isP2PKHWrapped(s []byte) bool {
	return len(s) == 26 &&
		s[1] == opDup && s[2] == opHash160 && s[3] == hashLen &&
		s[24] == opEqualVerify && s[25] == opChecksig
}

// isP2SH matches OP_HASH160 <20> OP_EQUAL.
func isP2SH(s []byte) bool {
	return len(s) == 23 && s[0] == opHash160 && s[1] == hashLen && s[22] == opEqual
}

func isColdStake(s []byte) bool {
	return bytes.IndexByte(s, opCheckColdStakeVerify) >= 0 || bytes.IndexByte(s, opCheckColdStakeVerifyLOF) >= 0
}

// coldStakeAddresses extracts the staker pubkey hash (immediately after
// the cold-stake-verify opcode) and the owner pubkey hash (immediately
// after OP_ELSE), per the cold-staking script template:
//
//	OP_DUP OP_HASH160 OP_ROT OP_IF OP_CHECKCOLDSTAKEVERIFY <staker20>
//	OP_ELSE <owner20> OP_ENDIF OP_EQUALVERIFY OP_CHECKSIG
func coldStakeAddresses(s []byte) (staker, owner types.Address, ok bool) {
	pos := bytes.IndexByte(s, opCheckColdStakeVerify)
	if pos < 0 {
		pos = bytes.IndexByte(s, opCheckColdStakeVerifyLOF)
	}
	if pos < 0 || pos+1+hashLen > len(s) {
		return types.Address{}, types.Address{}, false
	}
	stakerHash := hash20(s[pos+1 : pos+1+hashLen])

	elsePos := bytes.IndexByte(s, opElse)
	if elsePos < 0 || elsePos+1+hashLen > len(s) {
		return types.Address{}, types.Address{}, false
	}
	ownerHash := hash20(s[elsePos+1 : elsePos+1+hashLen])

	staker = types.Address{Version: types.VersionColdStaker, Hash: stakerHash}
	owner = types.Address{Version: types.VersionP2PKH, Hash: ownerHash}
	return staker, owner, true
}

// isP2PK matches a bare pubkey push followed by OP_CHECKSIG, excluding
// P2PKH (which also ends in a checksig-family opcode) and cold-stake
// scripts (which use the same opcode but a different template).
func isP2PK(s []byte) bool {
	if len(s) <= 1 || s[len(s)-1] != opChecksig {
		return false
	}
	if bytes.IndexByte(s, opDup) >= 0 {
		return false
	}
	if isColdStake(s) {
		return false
	}
	return true
}

// p2pkAddress recovers the pushed public key (compressed or
// uncompressed, compressing the latter) and derives the P2PKH-style
// address from its hash160 — PIVX attributes P2PK outputs to the same
// address space as P2PKH rather than a separate pubkey address kind.
func p2pkAddress(s []byte) (types.Address, bool) {
	var pubkey []byte
	switch len(s) {
	case 67: // push 65-byte uncompressed key + OP_CHECKSIG
		pubkey = s[1:66]
	case 35: // push 33-byte compressed key + OP_CHECKSIG
		pubkey = s[1:34]
	default:
		return types.Address{}, false
	}

	compressed, ok := compressPubKey(pubkey)
	if !ok {
		return types.Address{}, false
	}
	return types.Address{Version: types.VersionP2PKH, Hash: codec.Hash160(compressed)}, true
}

// compressPubKey returns the 33-byte compressed form of an uncompressed
// pubkey, or the input unchanged if it is already compressed.
func compressPubKey(pubkey []byte) ([]byte, bool) {
	switch {
	case len(pubkey) == 65 && pubkey[0] == 0x04:
		y := pubkey[33:65]
		parity := byte(0x02)
		if y[31]%2 != 0 {
			parity = 0x03
		}
		out := make([]byte, 33)
		out[0] = parity
		copy(out[1:], pubkey[1:33])
		return out, true
	case len(pubkey) == 33 && (pubkey[0] == 0x02 || pubkey[0] == 0x03):
		return pubkey, true
	default:
		return nil, false
	}
}
