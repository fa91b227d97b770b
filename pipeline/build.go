package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/arbpipeline/broadcast"
	"github.com/michaelpento.lv/arbpipeline/config"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/flashloan"
	"github.com/michaelpento.lv/arbpipeline/flashloan/aave"
	"github.com/michaelpento.lv/arbpipeline/flashloan/balancer"
	"github.com/michaelpento.lv/arbpipeline/gas"
	"github.com/michaelpento.lv/arbpipeline/planner"
	"github.com/michaelpento.lv/arbpipeline/quotes"
	"github.com/michaelpento.lv/arbpipeline/relay"
	"github.com/michaelpento.lv/arbpipeline/scoring"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/signer"
	"github.com/michaelpento.lv/arbpipeline/strategies/arbitrage"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/michaelpento.lv/arbpipeline/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetricsNamespace prefixes every pipeline metric.
const MetricsNamespace = "arbpipeline"

// Runtime is a wired orchestrator and the resources behind it.
type Runtime struct {
	Orchestrator *Orchestrator
	Metrics      *metrics.PipelineMetrics
	Account      common.Address
	Mode         string

	chain *ethclient.Client
}

// Close releases the RPC connection, if any.
func (r *Runtime) Close() {
	if r.chain != nil {
		r.chain.Close()
	}
}

// Build wires every component from cfg. The RPC endpoint is dialed in live
// mode and when a router venue needs it; otherwise the pipeline runs offline.
func Build(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	key, ephemeral, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	txSigner := signer.New(key, new(big.Int).SetUint64(cfg.ChainID), logger)
	if ephemeral {
		logger.Warn("No signing key configured, using ephemeral key",
			zap.String("account", txSigner.Address().Hex()))
	}

	rt := &Runtime{Account: txSigner.Address()}
	if !cfg.Simulated() || usesRouterVenues(cfg.Venues) {
		rt.chain, err = ethclient.DialContext(ctx, cfg.RPCEndpoint)
		if err != nil {
			return nil, types.NewError(types.KindConfigInvalid, "dial",
				fmt.Errorf("failed to connect to Ethereum node: %w", err))
		}
	}

	// Typed nil pointers must not leak into the interfaces below.
	var (
		caller  ethereum.ContractCaller
		nonces  planner.NonceSource
		prices  gas.PriceSource
		blocks  shield.BlockSource
		onchain broadcast.Chain
	)
	if rt.chain != nil {
		caller, nonces, prices, blocks, onchain = rt.chain, rt.chain, rt.chain, rt.chain, rt.chain
	}

	httpClient := &http.Client{Timeout: cfg.Timeouts.Quote}
	venues, err := quotes.BuildVenues(cfg.Venues, caller, httpClient)
	if err != nil {
		rt.Close()
		return nil, types.NewError(types.KindConfigInvalid, "venues", err)
	}
	for _, v := range venues {
		if r, ok := v.(dex.RouterProvider); ok {
			logger.Debug("Quoting through router",
				zap.String("venue", v.Name()),
				zap.String("router", r.RouterAddress().Hex()))
		}
	}

	loans, err := loanManager(cfg.LoanProviders, reg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	provider, err := shield.ParseProvider(cfg.Shield.Provider)
	if err != nil {
		rt.Close()
		return nil, types.NewError(types.KindConfigInvalid, "shield", err)
	}
	shieldCfg := shield.Config{
		Enabled:  cfg.Shield.Enabled,
		Provider: provider,
		Network:  cfg.Shield.Network,
		Builders: cfg.Shield.Builders,
	}
	if cfg.Shield.AttestationKey != "" {
		shieldCfg.AttestationKey, err = shield.ParseAttestationKey(cfg.Shield.AttestationKey)
		if err != nil {
			rt.Close()
			return nil, types.NewError(types.KindConfigInvalid, "shield", err)
		}
	}

	var submitter broadcast.Submitter
	if cfg.Shield.Enabled && !cfg.Simulated() {
		submitter = relay.NewClient(relay.Options{
			URL:        cfg.Shield.RelayURL,
			Provider:   provider,
			AuthKey:    key,
			AuthHeader: cfg.Shield.AuthHeader,
			RateLimit:  cfg.Shield.RateLimit,
		}, nil, logger)
	}
	broadcaster, err := broadcast.New(broadcast.Options{
		Simulated:      cfg.Simulated(),
		Shielded:       cfg.Shield.Enabled,
		SimulatedDelay: cfg.Timeouts.SimulatedDelay,
		PollInterval:   cfg.Timeouts.ReceiptPoll,
		ReceiptTimeout: cfg.Timeouts.Receipt,
	}, onchain, submitter, logger)
	if err != nil {
		rt.Close()
		return nil, types.NewError(types.KindConfigInvalid, "broadcast", err)
	}
	rt.Mode = broadcaster.Mode()

	oracle := arbitrage.StaticOracle{
		USDPerUnit:      cfg.USDPerUnit,
		GasPriceInToken: new(big.Int).SetUint64(cfg.GasPriceInToken),
	}
	rt.Metrics = metrics.NewPipelineMetrics(MetricsNamespace, reg)

	deps := Dependencies{
		Venues:   venues,
		Quotes:   quotes.NewAggregator(cfg.Timeouts.Quote, logger),
		Detector: arbitrage.NewDetector(oracle, cfg.MinProfitUSD, logger),
		Scorer: scoring.NewClient(scoring.Options{
			URL:                cfg.MLServerURL,
			HealthTimeout:      cfg.Timeouts.Health,
			ScoreTimeout:       cfg.Timeouts.Score,
			ApprovalThreshold:  cfg.ApprovalThreshold,
			SecondaryThreshold: cfg.SecondaryThresholdUSD,
		}, nil, logger),
		Planner: planner.New(
			common.HexToAddress(cfg.SettlementContract),
			loans,
			gas.NewOracle(prices, cfg.MaxGasPrice(), logger),
			planner.NewNonceSequencer(nonces, txSigner.Address(), logger),
			cfg.Timeouts.Deadline,
			logger,
		),
		Signer:      txSigner,
		Shield:      shield.New(shieldCfg, blocks, logger),
		Broadcaster: broadcaster,
		Metrics:     rt.Metrics,
	}
	pair := Pair{
		TokenIn:  common.HexToAddress(cfg.Pair.TokenIn),
		TokenOut: common.HexToAddress(cfg.Pair.TokenOut),
		AmountIn: cfg.AmountIn(),
	}

	rt.Orchestrator, err = New(deps, pair, cfg.MaxConcurrent, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	logger.Info("Pipeline ready",
		zap.String("mode", rt.Mode),
		zap.Int("venues", len(venues)),
		zap.Strings("loanProviders", loans.Providers()),
		zap.Bool("shield", cfg.Shield.Enabled),
		zap.String("account", rt.Account.Hex()))
	return rt, nil
}

func loanManager(names []string, reg prometheus.Registerer, logger *zap.Logger) (*flashloan.Manager, error) {
	providers := make([]flashloan.Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case flashloan.ProviderAave:
			providers = append(providers, aave.NewProvider(flashloan.ProviderConfig{}))
		case flashloan.ProviderBalancer:
			providers = append(providers, balancer.NewProvider(common.Address{}))
		default:
			return nil, types.NewError(types.KindConfigInvalid, "loans", fmt.Errorf("unknown loan provider %q", name))
		}
	}
	return flashloan.NewManager(providers, reg, logger)
}

func usesRouterVenues(venues []config.VenueConfig) bool {
	for _, v := range venues {
		if v.Kind == "uniswap" || v.Kind == "sushiswap" {
			return true
		}
	}
	return false
}
