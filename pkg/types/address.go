package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pivx-project/chainindex/pkg/codec"
)

// AddressSize is the length of the hash160 payload inside an address.
const AddressSize = 20

// Version bytes for base58check address encoding.
const (
	VersionP2PKH      = 30
	VersionP2SH       = 13
	VersionColdStaker = 63
)

// Address is a base58check-encoded version byte plus a 160-bit hash. When
// Wrapped is set, String() encodes with the legacy 3-byte exchange prefix
// instead of the single Version byte. The two forms key distinct
// entries in the address index for the same hash.
type Address struct {
	Version byte
	Hash    [AddressSize]byte
	Wrapped bool
}

// IsZero returns true if the address hash is all zeros.
func (a Address) IsZero() bool {
	return a.Hash == [AddressSize]byte{}
}

// String returns the address's base58check encoding: the exchange-wrapped
// 3-byte-prefix form when Wrapped is set, otherwise version_byte | hash |
// checksum.
func (a Address) String() string {
	if a.Wrapped {
		return EncodeExchangeWrapped(a.Hash)
	}
	payload := make([]byte, 0, 1+AddressSize)
	payload = append(payload, a.Version)
	payload = append(payload, a.Hash[:]...)
	return codec.Base58CheckEncode(payload)
}

// Hex returns the raw hex-encoded hash without the version byte.
func (a Address) Hex() string {
	return hex.EncodeToString(a.Hash[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a.Hash[:])
	return b
}

// MarshalJSON encodes the address as a base58check string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58check string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a base58check address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	payload, err := codec.Base58CheckDecode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	if len(payload) != 1+AddressSize {
		return Address{}, fmt.Errorf("address payload must be %d bytes, got %d", 1+AddressSize, len(payload))
	}
	var a Address
	a.Version = payload[0]
	copy(a.Hash[:], payload[1:])
	return a, nil
}

// exchangeWrappedPrefix is the legacy 3-byte version prefix some exchange
// integrators expect instead of the standard single-byte P2SH version.
var exchangeWrappedPrefix = []byte{0x01, 0xb9, 0xa2}

// EncodeExchangeWrapped returns the exchange-wrapped base58check encoding
// of a 160-bit hash: the 3-byte prefix, the hash, and a trailing checksum.
func EncodeExchangeWrapped(hash [AddressSize]byte) string {
	payload := make([]byte, 0, len(exchangeWrappedPrefix)+AddressSize)
	payload = append(payload, exchangeWrappedPrefix...)
	payload = append(payload, hash[:]...)
	return codec.Base58CheckEncode(payload)
}

// NewAddress builds an Address from a version byte and a 20-byte hash.
func NewAddress(version byte, hash []byte) (Address, error) {
	if len(hash) != AddressSize {
		return Address{}, fmt.Errorf("hash must be %d bytes, got %d", AddressSize, len(hash))
	}
	var a Address
	a.Version = version
	copy(a.Hash[:], hash)
	return a, nil
}
