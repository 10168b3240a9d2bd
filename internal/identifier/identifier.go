// Package identifier encodes and decodes account identifiers: a bech32
// string carrying a network prefix, a 16-byte on-chain address and an
// 8-byte subaddress.
package identifier

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// Network prefixes (the bech32 human-readable part).
const (
	MainnetHRP    = "dm"
	TestnetHRP    = "tdm"
	PremainnetHRP = "pdm"
)

const (
	// AddressLength is the on-chain account address length in bytes.
	AddressLength = 16
	// SubaddressLength is the subaddress length in bytes.
	SubaddressLength = 8

	version = 1
)

// Address is an on-chain account address.
type Address [AddressLength]byte

// Subaddress routes a payment to a sub-account of a custodial account.
type Subaddress [SubaddressLength]byte

// ParseAddress decodes a hex address (with or without 0x prefix).
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return a, fmt.Errorf("invalid address hex %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return a, fmt.Errorf("invalid address length %d, want %d", len(raw), AddressLength)
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or with constant input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the lowercase hex encoding.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the subaddress is all zero bytes (no routing).
func (s Subaddress) IsZero() bool {
	return s == Subaddress{}
}

// String returns the lowercase hex encoding.
func (s Subaddress) String() string {
	return hex.EncodeToString(s[:])
}

// AccountIdentifier is a decoded account identifier.
type AccountIdentifier struct {
	HRP        string
	Address    Address
	Subaddress Subaddress
}

// Encode returns the bech32 account identifier string.
func Encode(hrp string, address Address, subaddress Subaddress) (string, error) {
	payload := make([]byte, 0, AddressLength+SubaddressLength)
	payload = append(payload, address[:]...)
	payload = append(payload, subaddress[:]...)

	five, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("encode account identifier: %w", err)
	}
	out, err := bech32.Encode(hrp, append([]byte{version}, five...))
	if err != nil {
		return "", fmt.Errorf("encode account identifier: %w", err)
	}
	return out, nil
}

// MustEncode is like Encode but panics on error.
func MustEncode(hrp string, address Address, subaddress Subaddress) string {
	s, err := Encode(hrp, address, subaddress)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode parses an account identifier and checks its network prefix.
func Decode(hrp, s string) (AccountIdentifier, error) {
	var id AccountIdentifier

	gotHRP, data, err := bech32.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decode account identifier %q: %w", s, err)
	}
	if gotHRP != hrp {
		return id, fmt.Errorf("decode account identifier %q: network prefix %q, want %q", s, gotHRP, hrp)
	}
	if len(data) == 0 || data[0] != version {
		return id, fmt.Errorf("decode account identifier %q: unsupported version", s)
	}
	payload, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return id, fmt.Errorf("decode account identifier %q: %w", s, err)
	}
	if len(payload) != AddressLength+SubaddressLength {
		return id, fmt.Errorf("decode account identifier %q: payload length %d", s, len(payload))
	}

	id.HRP = gotHRP
	copy(id.Address[:], payload[:AddressLength])
	copy(id.Subaddress[:], payload[AddressLength:])
	return id, nil
}

// SameAccount reports whether two identifier strings name the same
// on-chain account, ignoring subaddresses.
func SameAccount(hrp, a, b string) bool {
	ida, err := Decode(hrp, a)
	if err != nil {
		return false
	}
	idb, err := Decode(hrp, b)
	if err != nil {
		return false
	}
	return bytes.Equal(ida.Address[:], idb.Address[:])
}
