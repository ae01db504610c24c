// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/logger"
	"github.com/spf13/viper"
)

const EnvPrefix = "PUMPCURVE"

type Config struct {
	ProgramID                string         `mapstructure:"program_id"`
	Authority                string         `mapstructure:"authority"`
	WithdrawRequiresComplete bool           `mapstructure:"withdraw_requires_complete"`
	Store                    StoreConfig    `mapstructure:"store"`
	Commit                   CommitConfig   `mapstructure:"commit"`
	Events                   EventsConfig   `mapstructure:"events"`
	Log                      logger.Config  `mapstructure:"log"`
	Metrics                  MetricsConfig  `mapstructure:"metrics"`
	API                      APIConfig      `mapstructure:"api"`
	Protocol                 ProtocolConfig `mapstructure:"protocol"`

	// Genesis is credited once, the first time the daemon starts on a ledger.
	Genesis []GenesisAllocation `mapstructure:"genesis"`
}

type StoreConfig struct {
	Path      string `mapstructure:"path"`
	InMemory  bool   `mapstructure:"in_memory"`
	CacheSize int    `mapstructure:"cache_size"`
}

type CommitConfig struct {
	MaxAttempts uint `mapstructure:"max_attempts"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type MetricsConfig struct {
	// ListenAddr of the prometheus endpoint; empty disables it.
	ListenAddr string `mapstructure:"listen_addr"`
}

type APIConfig struct {
	// ListenAddr of the JSON-RPC endpoint; empty disables it.
	ListenAddr string `mapstructure:"listen_addr"`
}

type GenesisAllocation struct {
	Owner    string `mapstructure:"owner"`
	Lamports uint64 `mapstructure:"lamports"`
}

// OwnerKey parses the allocation owner.
func (g GenesisAllocation) OwnerKey() (solana.PublicKey, error) {
	return parseKey("genesis.owner", g.Owner)
}

// ProtocolConfig is the parameter set the authority applies at start when
// Bootstrap is set.
type ProtocolConfig struct {
	Bootstrap         bool   `mapstructure:"bootstrap"`
	WithdrawAuthority string `mapstructure:"withdraw_authority"`
	FeeRecipient      string `mapstructure:"fee_recipient"`

	curve.Params `mapstructure:",squash"`
}

const (
	DefaultStorePath   = "data/ledger"
	DefaultCacheSize   = 4096
	DefaultMaxAttempts = 16
	DefaultBufferSize  = 1024
	DefaultMetricsAddr = ":9464"
	DefaultAPIAddr     = "127.0.0.1:8899"

	DefaultInitialVirtualTokenReserves uint64 = 1_073_000_000_000000
	DefaultInitialVirtualSolReserves   uint64 = 30_000_000000
	DefaultInitialRealTokenReserves    uint64 = 793_100_000_000000
	DefaultTokenTotalSupply            uint64 = 1_000_000_000_000000
	DefaultFeeBasisPoints                     = 100
)

func setDefaults(v *viper.Viper) {
	logDefaults := logger.DefaultConfig()
	defaults := map[string]interface{}{
		"program_id":                 "",
		"authority":                  "",
		"withdraw_requires_complete": true,
		"store.path":                 DefaultStorePath,
		"store.in_memory":            false,
		"store.cache_size":           DefaultCacheSize,
		"commit.max_attempts":        DefaultMaxAttempts,
		"events.buffer_size":         DefaultBufferSize,
		"log.level":                  logDefaults.Level,
		"log.file":                   logDefaults.LogFile,
		"log.max_size":               logDefaults.MaxSize,
		"log.max_age":                logDefaults.MaxAge,
		"log.max_backups":            logDefaults.MaxBackups,
		"log.compress":               logDefaults.Compress,
		"log.development":            logDefaults.Development,
		"metrics.listen_addr":        DefaultMetricsAddr,
		"api.listen_addr":            DefaultAPIAddr,

		"protocol.bootstrap":                              false,
		"protocol.withdraw_authority":                     "",
		"protocol.fee_recipient":                          "",
		"protocol.initial_virtual_token_reserves":         DefaultInitialVirtualTokenReserves,
		"protocol.initial_virtual_sol_reserves":           DefaultInitialVirtualSolReserves,
		"protocol.initial_real_token_reserves":            DefaultInitialRealTokenReserves,
		"protocol.token_total_supply":                     DefaultTokenTotalSupply,
		"protocol.fee_basis_points":                       DefaultFeeBasisPoints,
		"protocol.mint_fee_sol":                           0,
		"protocol.trading_fee_creator_basis_points":       0,
		"protocol.token_share_creator_basis_points":       0,
		"protocol.sol_share_first_buyer_after_graduation": 0,
		"protocol.sol_share_protocol_after_graduation":    0,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// LoadConfig reads path (any format viper understands), applies PUMPCURVE_*
// environment overrides and validates the result. An empty path uses
// defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if _, err := cfg.ProgramKey(); err != nil {
		return err
	}
	if _, err := cfg.AuthorityKey(); err != nil {
		return err
	}
	if !cfg.Store.InMemory && cfg.Store.Path == "" {
		return errors.New("store.path is required unless store.in_memory is set")
	}
	if cfg.Store.CacheSize < 0 {
		return errors.New("invalid store.cache_size")
	}
	if cfg.Commit.MaxAttempts == 0 {
		return errors.New("commit.max_attempts must be positive")
	}
	if cfg.Events.BufferSize <= 0 {
		return errors.New("events.buffer_size must be positive")
	}
	if cfg.Metrics.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddr); err != nil {
			return fmt.Errorf("invalid metrics.listen_addr: %w", err)
		}
	}
	if cfg.API.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.API.ListenAddr); err != nil {
			return fmt.Errorf("invalid api.listen_addr: %w", err)
		}
	}
	for i, g := range cfg.Genesis {
		if _, err := g.OwnerKey(); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if g.Lamports == 0 {
			return fmt.Errorf("genesis[%d]: lamports must be positive", i)
		}
	}
	if cfg.Protocol.Bootstrap {
		if _, err := cfg.Protocol.ToParams(); err != nil {
			return fmt.Errorf("invalid protocol parameters: %w", err)
		}
	}
	return nil
}

func parseKey(name, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("missing %s in configuration", name)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return key, nil
}

// ProgramKey is the namespace every curve address is derived from.
func (c *Config) ProgramKey() (solana.PublicKey, error) {
	return parseKey("program_id", c.ProgramID)
}

// AuthorityKey is the identity that initializes and parameterizes the protocol.
func (c *Config) AuthorityKey() (solana.PublicKey, error) {
	return parseKey("authority", c.Authority)
}

// ToParams resolves the identities and validates the parameter set.
func (p ProtocolConfig) ToParams() (curve.Params, error) {
	params := p.Params

	var err error
	if params.WithdrawAuthority, err = parseKey("protocol.withdraw_authority", p.WithdrawAuthority); err != nil {
		return curve.Params{}, err
	}
	if params.FeeRecipient, err = parseKey("protocol.fee_recipient", p.FeeRecipient); err != nil {
		return curve.Params{}, err
	}
	if err := params.Validate(); err != nil {
		return curve.Params{}, err
	}
	return params, nil
}
