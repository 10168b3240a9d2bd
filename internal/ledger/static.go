package ledger

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/offchain/internal/identifier"
)

// Static is an in-memory Client. It serves a fixed account registry and
// currency table, for local networks, the CLI and tests.
//
// Thread-safety: all methods are safe for concurrent use.
type Static struct {
	mu         sync.RWMutex
	accounts   map[identifier.Address]Account
	currencies []Currency
	metadata   Metadata
}

// NewStatic creates an empty registry with the given dual-attestation limit.
func NewStatic(limit uint64) *Static {
	return &Static{
		accounts: make(map[identifier.Address]Account),
		metadata: Metadata{ChainID: 2, DualAttestationLimit: limit},
	}
}

// AddAccount registers or replaces an account.
func (s *Static) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Address] = a
}

// AddCurrency registers a currency, replacing one with the same code.
func (s *Static) AddCurrency(c Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.currencies {
		if s.currencies[i].Code == c.Code {
			s.currencies[i] = c
			return
		}
	}
	s.currencies = append(s.currencies, c)
}

// GetCurrencies implements Client.
func (s *Static) GetCurrencies(ctx context.Context) ([]Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Currency(nil), s.currencies...), nil
}

// GetMetadata implements Client.
func (s *Static) GetMetadata(ctx context.Context) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.metadata
	return &m, nil
}

// GetAccount implements Client.
func (s *Static) GetAccount(ctx context.Context, address identifier.Address) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[address]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// registryFile is the YAML layout read by LoadStatic.
type registryFile struct {
	DualAttestationLimit uint64 `yaml:"dual_attestation_limit"`
	Currencies           []struct {
		Code string `yaml:"code"`
		Rate string `yaml:"to_base_currency_exchange_rate"`
	} `yaml:"currencies"`
	Accounts []struct {
		Address       string `yaml:"address"`
		Role          string `yaml:"role"`
		ComplianceKey string `yaml:"compliance_key"`
		BaseURL       string `yaml:"base_url"`
		Parent        string `yaml:"parent_vasp_address"`
	} `yaml:"accounts"`
}

// LoadStatic reads a registry from a YAML file:
//
//	dual_attestation_limit: 1000000000
//	currencies:
//	  - code: XUS
//	    to_base_currency_exchange_rate: "1"
//	accounts:
//	  - address: f72589b71ff4f8d139674a3f7369c69b
//	    role: parent_vasp
//	    compliance_key: 8a3b...
//	    base_url: http://localhost:8091
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger registry: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic parses the YAML registry layout documented on LoadStatic.
func ParseStatic(data []byte) (*Static, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ledger registry: %w", err)
	}

	s := NewStatic(f.DualAttestationLimit)
	for i, c := range f.Currencies {
		rate, err := decimal.NewFromString(c.Rate)
		if err != nil {
			return nil, fmt.Errorf("currencies[%d]: invalid exchange rate %q: %w", i, c.Rate, err)
		}
		s.AddCurrency(Currency{Code: c.Code, ToBaseCurrencyExchangeRate: rate})
	}
	for i, a := range f.Accounts {
		addr, err := identifier.ParseAddress(a.Address)
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		role := Role{
			Type:          RoleType(a.Role),
			ComplianceKey: a.ComplianceKey,
			BaseURL:       a.BaseURL,
		}
		switch role.Type {
		case RoleParentVASP, RoleChildVASP, RoleDesignatedDealer, RoleUnknown:
		default:
			return nil, fmt.Errorf("accounts[%d]: unknown role %q", i, a.Role)
		}
		if a.Parent != "" {
			parent, err := identifier.ParseAddress(a.Parent)
			if err != nil {
				return nil, fmt.Errorf("accounts[%d]: parent: %w", i, err)
			}
			role.ParentVASPAddress = &parent
		}
		s.AddAccount(Account{Address: addr, Role: role})
	}
	return s, nil
}
