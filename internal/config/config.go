// Package config loads the node configuration from YAML and OFFCHAIN_*
// environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/offchain/internal/identifier"
	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/ledger"
)

// EnvPrefix prefixes environment overrides: OFFCHAIN_VASP_ADDRESS sets
// vasp.address.
const EnvPrefix = "OFFCHAIN"

// Config is the full node configuration.
type Config struct {
	VASP      VASPConfig      `yaml:"vasp" mapstructure:"vasp"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Network   NetworkConfig   `yaml:"network" mapstructure:"network"`
	Processor ProcessorConfig `yaml:"processor" mapstructure:"processor"`
}

// VASPConfig identifies the local VASP.
type VASPConfig struct {
	// Address is the parent VASP account identifier.
	Address string `yaml:"address" mapstructure:"address"`
	// ComplianceKey is the hex Ed25519 seed or private key.
	ComplianceKey string `yaml:"compliance_key" mapstructure:"compliance_key"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path              string `yaml:"path" mapstructure:"path"`
	ResponseCacheSize int    `yaml:"response_cache_size" mapstructure:"response_cache_size"`
}

// RetryConfig bounds outbound delivery.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `yaml:"delay" mapstructure:"delay"`
	MaxElapsed  time.Duration `yaml:"max_elapsed" mapstructure:"max_elapsed"`
}

// LedgerConfig configures the static ledger registry.
type LedgerConfig struct {
	// AccountsFile is a YAML registry loaded with ledger.LoadStatic.
	AccountsFile string `yaml:"accounts_file" mapstructure:"accounts_file"`
	// Currencies maps currency codes to base-currency exchange rates.
	Currencies           map[string]string `yaml:"currencies" mapstructure:"currencies"`
	DualAttestationLimit uint64            `yaml:"dual_attestation_limit" mapstructure:"dual_attestation_limit"`
}

// NetworkConfig selects the network.
type NetworkConfig struct {
	HRP string `yaml:"hrp" mapstructure:"hrp"`
}

// ProcessorConfig configures the follow-up worker loop.
type ProcessorConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Workers  int           `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Store: StoreConfig{
			Path:              "offchain.db",
			ResponseCacheSize: 10_000,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       time.Second,
			MaxElapsed:  30 * time.Second,
		},
		Ledger: LedgerConfig{
			Currencies:           map[string]string{"XUS": "1"},
			DualAttestationLimit: 1_000_000_000,
		},
		Network: NetworkConfig{
			HRP: identifier.TestnetHRP,
		},
		Processor: ProcessorConfig{
			Interval: 5 * time.Second,
			Workers:  4,
		},
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := restoreLiterals(v, path); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// literalKeys hold hex strings. An unquoted all-digit value is resolved by
// YAML as a number, losing leading zeros and precision.
var literalKeys = []string{"vasp.compliance_key"}

// restoreLiterals replaces a literal key that YAML resolved to a non-string
// with the scalar's source text. Environment overrides are always strings
// and are left alone.
func restoreLiterals(v *viper.Viper, path string) error {
	var pending []string
	for _, key := range literalKeys {
		if val := v.Get(key); val != nil {
			if _, isString := val.(string); !isString {
				pending = append(pending, key)
			}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	for _, key := range pending {
		node := lookupNode(&root, strings.Split(key, "."))
		if node == nil || node.Kind != yaml.ScalarNode {
			return fmt.Errorf("%s must be a hex string", key)
		}
		v.Set(key, node.Value)
	}
	return nil
}

// lookupNode walks mapping keys from the document root.
func lookupNode(n *yaml.Node, path []string) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, key := range path {
		if n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				next = n.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("vasp.address", d.VASP.Address)
	v.SetDefault("vasp.compliance_key", d.VASP.ComplianceKey)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.response_cache_size", d.Store.ResponseCacheSize)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.max_elapsed", d.Retry.MaxElapsed)
	v.SetDefault("ledger.accounts_file", d.Ledger.AccountsFile)
	v.SetDefault("ledger.currencies", d.Ledger.Currencies)
	v.SetDefault("ledger.dual_attestation_limit", d.Ledger.DualAttestationLimit)
	v.SetDefault("network.hrp", d.Network.HRP)
	v.SetDefault("processor.interval", d.Processor.Interval)
	v.SetDefault("processor.workers", d.Processor.Workers)
}

// Validate checks the settings a running node needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.Network.HRP {
	case identifier.MainnetHRP, identifier.TestnetHRP, identifier.PremainnetHRP:
	default:
		errs = append(errs, fmt.Errorf("network.hrp: unknown network %q", c.Network.HRP))
	}
	if c.VASP.Address == "" {
		errs = append(errs, errors.New("vasp.address is required"))
	} else if _, err := identifier.Decode(c.Network.HRP, c.VASP.Address); err != nil {
		errs = append(errs, fmt.Errorf("vasp.address: %w", err))
	}
	if c.VASP.ComplianceKey == "" {
		errs = append(errs, errors.New("vasp.compliance_key is required"))
	} else if _, err := jws.ParsePrivateKey(c.VASP.ComplianceKey); err != nil {
		errs = append(errs, fmt.Errorf("vasp.compliance_key: %w", err))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.ResponseCacheSize <= 0 {
		errs = append(errs, errors.New("store.response_cache_size must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Processor.Workers < 1 {
		errs = append(errs, errors.New("processor.workers must be at least 1"))
	}
	return errors.Join(errs...)
}

// OpenLedger builds the static ledger registry. Configured currencies fill
// in codes the accounts file does not list.
func (c LedgerConfig) OpenLedger(ctx context.Context) (*ledger.Static, error) {
	var (
		l   *ledger.Static
		err error
	)
	if c.AccountsFile != "" {
		if l, err = ledger.LoadStatic(c.AccountsFile); err != nil {
			return nil, err
		}
	} else {
		l = ledger.NewStatic(c.DualAttestationLimit)
	}

	listed, err := l.GetCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(listed))
	for _, cur := range listed {
		known[cur.Code] = true
	}

	for code, rate := range c.Currencies {
		// viper lower-cases map keys.
		code = strings.ToUpper(code)
		if known[code] {
			continue
		}
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("ledger.currencies.%s: %w", code, err)
		}
		l.AddCurrency(ledger.Currency{Code: code, ToBaseCurrencyExchangeRate: r})
	}
	return l, nil
}
