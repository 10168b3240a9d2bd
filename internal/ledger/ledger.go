// Package ledger defines the ledger RPC operations the off-chain protocol
// consumes: currency exchange rates, the dual-attestation limit and account
// roles. It also provides the VASP resolution and threshold arithmetic built
// on those operations, and an in-memory implementation.
package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/roach88/offchain/internal/identifier"
)

// Sentinel errors returned by the helpers in this package.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNotVASP         = errors.New("account is not a VASP")
	ErrNoComplianceKey = errors.New("VASP has no compliance key")
	ErrUnknownCurrency = errors.New("unknown currency")
)

// RoleType is the on-chain role of an account.
type RoleType string

const (
	RoleParentVASP       RoleType = "parent_vasp"
	RoleChildVASP        RoleType = "child_vasp"
	RoleDesignatedDealer RoleType = "designated_dealer"
	RoleUnknown          RoleType = "unknown"
)

// Currency is a registered currency and its conversion rate to the base
// currency the dual-attestation limit is expressed in.
type Currency struct {
	Code                       string
	ToBaseCurrencyExchangeRate decimal.Decimal
}

// Metadata is the subset of ledger metadata the protocol needs.
type Metadata struct {
	ChainID              uint8
	Version              uint64
	Timestamp            uint64
	DualAttestationLimit uint64
}

// Role describes an account's role. ComplianceKey and BaseURL are only set
// on parent VASPs; ParentVASPAddress only on child VASPs.
type Role struct {
	Type              RoleType
	ComplianceKey     string
	BaseURL           string
	ParentVASPAddress *identifier.Address
}

// Account is an on-chain account.
type Account struct {
	Address identifier.Address
	Role    Role
}

// Client is the ledger RPC collaborator.
// GetAccount returns (nil, nil) when the account does not exist.
type Client interface {
	GetCurrencies(ctx context.Context) ([]Currency, error)
	GetMetadata(ctx context.Context) (*Metadata, error)
	GetAccount(ctx context.Context, address identifier.Address) (*Account, error)
}

// VASP is a resolved counterparty: the parent VASP's endpoint and
// compliance key.
type VASP struct {
	Address       identifier.Address
	BaseURL       string
	ComplianceKey ed25519.PublicKey
}

// ResolveVASP returns the parent VASP serving address, walking one level up
// when address is a child VASP account.
func ResolveVASP(ctx context.Context, c Client, address identifier.Address) (*VASP, error) {
	account, err := c.GetAccount(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}

	if account.Role.Type == RoleChildVASP {
		if account.Role.ParentVASPAddress == nil {
			return nil, fmt.Errorf("%w: child %s has no parent", ErrNotVASP, address)
		}
		parent := *account.Role.ParentVASPAddress
		account, err = c.GetAccount(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("get parent account %s: %w", parent, err)
		}
		if account == nil {
			return nil, fmt.Errorf("%w: parent %s", ErrAccountNotFound, parent)
		}
	}

	if account.Role.Type != RoleParentVASP {
		return nil, fmt.Errorf("%w: %s has role %s", ErrNotVASP, account.Address, account.Role.Type)
	}
	if account.Role.ComplianceKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoComplianceKey, account.Address)
	}
	key, err := hex.DecodeString(account.Role.ComplianceKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %s has malformed key", ErrNoComplianceKey, account.Address)
	}

	return &VASP{
		Address:       account.Address,
		BaseURL:       account.Role.BaseURL,
		ComplianceKey: ed25519.PublicKey(key),
	}, nil
}

// IsUnderDualAttestationLimit reports whether amount of currency, converted
// to the base currency, is strictly below the ledger's dual-attestation limit.
//
// A currency the ledger does not list is an error wrapping
// ErrUnknownCurrency; it is never treated as under the limit.
func IsUnderDualAttestationLimit(ctx context.Context, c Client, currency string, amount uint64) (bool, error) {
	currencies, err := c.GetCurrencies(ctx)
	if err != nil {
		return false, fmt.Errorf("get currencies: %w", err)
	}
	var rate *decimal.Decimal
	for i := range currencies {
		if currencies[i].Code == currency {
			rate = &currencies[i].ToBaseCurrencyExchangeRate
			break
		}
	}
	if rate == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}

	metadata, err := c.GetMetadata(ctx)
	if err != nil {
		return false, fmt.Errorf("get metadata: %w", err)
	}

	value := uint64Decimal(amount).Mul(*rate)
	return value.LessThan(uint64Decimal(metadata.DualAttestationLimit)), nil
}

func uint64Decimal(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
