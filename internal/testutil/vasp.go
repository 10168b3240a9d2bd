package testutil

import (
	"bytes"
	"crypto/ed25519"

	"github.com/shopspring/decimal"

	"github.com/roach88/offchain/internal/identifier"
	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/ledger"
)

// HRP is the network used by fixtures.
const HRP = identifier.TestnetHRP

// KeyFromSeed returns the compliance key whose 32-byte seed repeats b.
func KeyFromSeed(b byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{b}, ed25519.SeedSize))
}

// VASP is a fixture VASP: an on-chain parent account and its compliance key.
type VASP struct {
	Name    string
	OnChain identifier.Address
	Key     ed25519.PrivateKey
	BaseURL string
}

// NewVASP creates a fixture from a hex on-chain address and a key seed byte.
func NewVASP(name, address string, seed byte) *VASP {
	return &VASP{
		Name:    name,
		OnChain: identifier.MustParseAddress(address),
		Key:     KeyFromSeed(seed),
	}
}

// Alice returns the fixture sending VASP.
func Alice() *VASP { return NewVASP("alice", "f72589b71ff4f8d139674a3f7369c69b", 0x01) }

// Bob returns the fixture receiving VASP.
func Bob() *VASP { return NewVASP("bob", "1b8fb8e1f4d35a01a5a2d5b2ba0d6c6b", 0x02) }

// PublicKey returns the compliance public key.
func (v *VASP) PublicKey() ed25519.PublicKey {
	return v.Key.Public().(ed25519.PublicKey)
}

// Account returns an account identifier for the VASP. sub zero yields the
// parent account itself.
func (v *VASP) Account(sub byte) string {
	var s identifier.Subaddress
	if sub != 0 {
		s[0] = sub
	}
	return identifier.MustEncode(HRP, v.OnChain, s)
}

// LedgerAccount returns the parent VASP ledger account.
func (v *VASP) LedgerAccount() ledger.Account {
	return ledger.Account{
		Address: v.OnChain,
		Role: ledger.Role{
			Type:          ledger.RoleParentVASP,
			ComplianceKey: jws.PublicKeyHex(v.PublicKey()),
			BaseURL:       v.BaseURL,
		},
	}
}

// NewLedger returns a static ledger knowing vasps and the XUS currency at
// rate 1.
func NewLedger(limit uint64, vasps ...*VASP) *ledger.Static {
	l := ledger.NewStatic(limit)
	l.AddCurrency(ledger.Currency{Code: "XUS", ToBaseCurrencyExchangeRate: decimal.NewFromInt(1)})
	for _, v := range vasps {
		l.AddAccount(v.LedgerAccount())
	}
	return l
}
