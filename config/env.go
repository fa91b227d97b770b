package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvExecutionMode      = "EXECUTION_MODE" // simulation, live
	EnvRPCURL             = "RPC_URL"
	EnvChainID            = "CHAIN_ID"
	EnvPrivateKey         = "PRIVATE_KEY"
	EnvSettlementContract = "SETTLEMENT_CONTRACT"
	EnvMaxGasPriceGwei    = "MAX_GAS_PRICE_GWEI"
	EnvMinProfitUSD       = "MIN_PROFIT_USD"
	EnvSecondaryThreshold = "SECONDARY_THRESHOLD_USD"
	EnvApprovalThreshold  = "APPROVAL_THRESHOLD"
	EnvMLServerURL        = "ML_SERVER_URL"
	EnvLoanProviders      = "LOAN_PROVIDERS"
	EnvMEVShieldEnabled   = "MEV_SHIELD_ENABLED"
	EnvRelayProvider      = "RELAY_PROVIDER" // bloxroute, quicknode, flashbots
	EnvRelayURL           = "RELAY_URL"
	EnvRelayAuthHeader    = "RELAY_AUTH_HEADER"
	EnvAttestationKey     = "ATTESTATION_KEY"
	EnvMaxConcurrent      = "MAX_CONCURRENT"
	EnvRoundInterval      = "ROUND_INTERVAL"
	EnvMetricsAddr        = "METRICS_ADDR"
)

// LoadEnv loads environment variables from a .env file when one exists.
// Variables already set in the process environment win.
func LoadEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv returns an error if key is unset or empty.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

func applyEnv(cfg *Config) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	unsigned := func(key string, dst *uint64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	if v := os.Getenv(EnvExecutionMode); v != "" {
		cfg.Mode = ExecutionMode(strings.ToLower(v))
	}
	str(EnvRPCURL, &cfg.RPCEndpoint)
	unsigned(EnvChainID, &cfg.ChainID)
	str(EnvPrivateKey, &cfg.PrivateKey)
	str(EnvSettlementContract, &cfg.SettlementContract)
	unsigned(EnvMaxGasPriceGwei, &cfg.MaxGasPriceGwei)
	float(EnvMinProfitUSD, &cfg.MinProfitUSD)
	float(EnvSecondaryThreshold, &cfg.SecondaryThresholdUSD)
	float(EnvApprovalThreshold, &cfg.ApprovalThreshold)
	str(EnvMLServerURL, &cfg.MLServerURL)
	if v := os.Getenv(EnvLoanProviders); v != "" {
		cfg.LoanProviders = splitList(v)
	}
	if v := os.Getenv(EnvMEVShieldEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvMEVShieldEnabled, err))
		} else {
			cfg.Shield.Enabled = enabled
		}
	}
	str(EnvRelayProvider, &cfg.Shield.Provider)
	str(EnvRelayURL, &cfg.Shield.RelayURL)
	str(EnvRelayAuthHeader, &cfg.Shield.AuthHeader)
	str(EnvAttestationKey, &cfg.Shield.AttestationKey)
	if v := os.Getenv(EnvMaxConcurrent); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvMaxConcurrent, err))
		} else {
			cfg.MaxConcurrent = n
		}
	}
	if v := os.Getenv(EnvRoundInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvRoundInterval, err))
		} else {
			cfg.RoundInterval = d
		}
	}
	str(EnvMetricsAddr, &cfg.MetricsAddr)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
