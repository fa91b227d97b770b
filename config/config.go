package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/arbpipeline/flashloan"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"gopkg.in/yaml.v2"
)

// ExecutionMode selects between simulated and live broadcasting.
type ExecutionMode string

const (
	ModeSimulation ExecutionMode = "simulation"
	ModeLive       ExecutionMode = "live"
)

// Config is loaded once at startup and passed by value afterwards.
type Config struct {
	Mode               ExecutionMode `yaml:"execution_mode"`
	ChainID            uint64        `yaml:"chain_id"`
	RPCEndpoint        string        `yaml:"rpc_endpoint"`
	PrivateKey         string        `yaml:"private_key"`
	SettlementContract string        `yaml:"settlement_contract"`

	MaxGasPriceGwei       uint64  `yaml:"max_gas_price_gwei"`
	MinProfitUSD          float64 `yaml:"min_profit_usd"`
	SecondaryThresholdUSD float64 `yaml:"secondary_threshold_usd"`
	ApprovalThreshold     float64 `yaml:"approval_threshold"`
	USDPerUnit            float64 `yaml:"usd_per_unit"`
	GasPriceInToken       uint64  `yaml:"gas_price_in_token"` // profit-token base units per gas unit

	MLServerURL   string   `yaml:"ml_server_url"`
	LoanProviders []string `yaml:"loan_providers"`

	Pair   PairConfig    `yaml:"pair"`
	Venues []VenueConfig `yaml:"venues"`
	Shield ShieldConfig  `yaml:"shield"`

	Timeouts TimeoutConfig `yaml:"timeouts"`

	MaxConcurrent int           `yaml:"max_concurrent"`
	RoundInterval time.Duration `yaml:"round_interval"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	Debug         bool          `yaml:"debug"`
}

// PairConfig is the token pair and input size probed each round.
type PairConfig struct {
	TokenIn  string `yaml:"token_in"`
	TokenOut string `yaml:"token_out"`
	AmountIn string `yaml:"amount_in"`
}

// VenueConfig describes one quote source.
type VenueConfig struct {
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind"` // static, uniswap, sushiswap, http
	URL         string  `yaml:"url"`
	Router      string  `yaml:"router"`
	Rate        float64 `yaml:"rate"`
	GasEstimate uint64  `yaml:"gas_estimate"`
	RateLimit   float64 `yaml:"rate_limit"`
}

// ShieldConfig controls MEV shielding and the relay it submits to.
type ShieldConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Provider       string   `yaml:"provider"`
	RelayURL       string   `yaml:"relay_url"`
	AuthHeader     string   `yaml:"auth_header"`
	AttestationKey string   `yaml:"attestation_key"`
	Network        string   `yaml:"network"`
	Builders       []string `yaml:"builders"`
	RateLimit      float64  `yaml:"rate_limit"`
}

// TimeoutConfig groups every time bound used by the pipeline.
type TimeoutConfig struct {
	Quote          time.Duration `yaml:"quote"`
	Health         time.Duration `yaml:"health"`
	Score          time.Duration `yaml:"score"`
	Deadline       time.Duration `yaml:"deadline"`
	ReceiptPoll    time.Duration `yaml:"receipt_poll"`
	Receipt        time.Duration `yaml:"receipt"`
	SimulatedDelay time.Duration `yaml:"simulated_delay"`
}

// DefaultConfig returns a simulation-mode configuration that runs fully offline.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeSimulation,
		ChainID:               1,
		RPCEndpoint:           "http://localhost:8545",
		SettlementContract:    "0x0000000000000000000000000000000000000000",
		MaxGasPriceGwei:       500,
		MinProfitUSD:          1,
		SecondaryThresholdUSD: 2,
		ApprovalThreshold:     0.6,
		USDPerUnit:            1,
		MLServerURL:           "http://localhost:8000",
		LoanProviders:         []string{flashloan.ProviderAave, flashloan.ProviderBalancer},
		Pair: PairConfig{
			TokenIn:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			TokenOut: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			AmountIn: "1",
		},
		Shield: ShieldConfig{
			Enabled:  false,
			Provider: shield.Flashbots.String(),
			RelayURL: "https://relay.flashbots.net",
			Network:  "Mainnet",
		},
		Timeouts: TimeoutConfig{
			Quote:          2 * time.Second,
			Health:         3 * time.Second,
			Score:          5 * time.Second,
			Deadline:       5 * time.Minute,
			ReceiptPoll:    2 * time.Second,
			Receipt:        60 * time.Second,
			SimulatedDelay: 100 * time.Millisecond,
		},
		MaxConcurrent: 4,
		RoundInterval: 15 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file and the process environment, in increasing precedence.
func Load(cfgFile string) (Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		data, err := os.ReadFile(filepath.Clean(cfgFile))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := LoadEnv(); err != nil {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var problems []string

	if c.Mode != ModeSimulation && c.Mode != ModeLive {
		problems = append(problems, fmt.Sprintf("execution_mode must be %q or %q", ModeSimulation, ModeLive))
	}
	if c.ChainID == 0 {
		problems = append(problems, "chain_id must be specified")
	}
	if c.Mode == ModeLive && c.RPCEndpoint == "" {
		problems = append(problems, "rpc_endpoint must be specified in live mode")
	}
	if c.Mode == ModeLive && c.PrivateKey == "" {
		problems = append(problems, "private_key must be specified in live mode")
	}
	if c.PrivateKey != "" {
		if _, err := parseKey(c.PrivateKey); err != nil {
			problems = append(problems, fmt.Sprintf("private_key is not a valid secp256k1 key: %v", err))
		}
	}
	if !common.IsHexAddress(c.SettlementContract) {
		problems = append(problems, "settlement_contract must be a hex address")
	}
	if c.MaxGasPriceGwei == 0 {
		problems = append(problems, "max_gas_price_gwei must be positive")
	}
	if c.MinProfitUSD < 0 {
		problems = append(problems, "min_profit_usd must not be negative")
	}
	if c.ApprovalThreshold <= 0 || c.ApprovalThreshold > 1 {
		problems = append(problems, "approval_threshold must be in (0, 1]")
	}
	if c.USDPerUnit <= 0 {
		problems = append(problems, "usd_per_unit must be positive")
	}
	if c.MLServerURL == "" {
		problems = append(problems, "ml_server_url must be specified")
	}
	if len(c.LoanProviders) == 0 {
		problems = append(problems, "loan_providers must list at least one provider")
	}
	for _, name := range c.LoanProviders {
		if !flashloan.Known(name) {
			problems = append(problems, fmt.Sprintf("unknown loan provider %q", name))
		}
	}
	if !common.IsHexAddress(c.Pair.TokenIn) || !common.IsHexAddress(c.Pair.TokenOut) {
		problems = append(problems, "pair token_in and token_out must be hex addresses")
	}
	if amount, ok := new(big.Int).SetString(c.Pair.AmountIn, 10); !ok || amount.Sign() <= 0 {
		problems = append(problems, "pair amount_in must be a positive integer")
	}
	for i, v := range c.Venues {
		if v.Name == "" {
			problems = append(problems, fmt.Sprintf("venue %d has no name", i))
		}
		switch v.Kind {
		case "static":
			if v.Rate <= 0 {
				problems = append(problems, fmt.Sprintf("venue %s: static venues need a positive rate", v.Name))
			}
		case "http":
			if v.URL == "" {
				problems = append(problems, fmt.Sprintf("venue %s: http venues need a url", v.Name))
			}
		case "uniswap", "sushiswap":
		default:
			problems = append(problems, fmt.Sprintf("venue %s: unknown kind %q", v.Name, v.Kind))
		}
	}
	if err := c.Shield.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("shield config error: %v", err))
	}
	if err := c.Timeouts.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("timeout config error: %v", err))
	}
	if c.MaxConcurrent <= 0 {
		problems = append(problems, "max_concurrent must be positive")
	}

	if len(problems) > 0 {
		return types.NewError(types.KindConfigInvalid, "config",
			fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; ")))
	}
	return nil
}

func (s ShieldConfig) Validate() error {
	if _, err := shield.ParseProvider(s.Provider); err != nil {
		return err
	}
	if s.Enabled && s.RelayURL == "" {
		return fmt.Errorf("relay_url must be specified when shielding is enabled")
	}
	if s.AttestationKey != "" {
		if _, err := shield.ParseAttestationKey(s.AttestationKey); err != nil {
			return fmt.Errorf("attestation_key: %w", err)
		}
	}
	return nil
}

func (t TimeoutConfig) Validate() error {
	if t.Quote <= 0 || t.Health <= 0 || t.Score <= 0 {
		return fmt.Errorf("quote, health and score timeouts must be positive")
	}
	if t.Deadline <= 0 {
		return fmt.Errorf("deadline window must be positive")
	}
	if t.ReceiptPoll <= 0 || t.Receipt < t.ReceiptPoll {
		return fmt.Errorf("receipt timeout must be at least one poll interval")
	}
	if t.SimulatedDelay < 0 {
		return fmt.Errorf("simulated delay must not be negative")
	}
	return nil
}

// MaxGasPrice returns the configured gas price ceiling in wei.
func (c Config) MaxGasPrice() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(c.MaxGasPriceGwei), big.NewInt(1e9))
}

// AmountIn returns the probed input amount in base units.
func (c Config) AmountIn() *big.Int {
	amount, ok := new(big.Int).SetString(c.Pair.AmountIn, 10)
	if !ok {
		return big.NewInt(0)
	}
	return amount
}

// Simulated reports whether broadcasting is simulated.
func (c Config) Simulated() bool {
	return c.Mode == ModeSimulation
}

// SigningKey parses the custody key. In simulation mode an empty key yields a
// fresh ephemeral key and ephemeral is true.
func (c Config) SigningKey() (key *ecdsa.PrivateKey, ephemeral bool, err error) {
	if c.PrivateKey == "" {
		if c.Mode != ModeSimulation {
			return nil, false, types.NewError(types.KindConfigInvalid, "signing key", fmt.Errorf("private key not set"))
		}
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate ephemeral key: %w", err)
		}
		return key, true, nil
	}
	key, err = parseKey(c.PrivateKey)
	if err != nil {
		return nil, false, types.NewError(types.KindConfigInvalid, "signing key", err)
	}
	return key, false, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}
