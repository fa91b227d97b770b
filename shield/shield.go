package shield

import (
	"context"
	"fmt"

	"github.com/flashbots/go-boost-utils/bls"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// BlockSource reports the current chain head. *ethclient.Client satisfies it.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config configures a Shield.
type Config struct {
	Enabled        bool
	Provider       Provider
	Network        string
	Builders       []string
	AttestationKey *bls.SecretKey
}

// Batch is the output of Protect. Payloads is index-aligned with the input.
type Batch struct {
	Commitment types.MerkleCommitment `json:"commitment"`
	Payloads   []ProviderPayload      `json:"payloads"`
}

// Shield commits a batch of signed transactions to a Merkle root and wraps
// each one for the configured relay.
type Shield struct {
	cfg    Config
	blocks BlockSource
	logger *zap.Logger
}

// New creates a Shield. blocks may be nil, in which case Flashbots bundles
// target block 0.
func New(cfg Config, blocks BlockSource, logger *zap.Logger) *Shield {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shield{cfg: cfg, blocks: blocks, logger: logger}
}

// Enabled reports whether Protect wraps transactions.
func (s *Shield) Enabled() bool {
	return s.cfg.Enabled
}

// Provider returns the relay envelopes are built for.
func (s *Shield) Provider() Provider {
	return s.cfg.Provider
}

// Protect builds the commitment over txs and one payload per transaction.
// When shielding is disabled it passes every transaction through with an
// empty commitment.
func (s *Shield) Protect(ctx context.Context, txs []types.SignedTransaction) (Batch, error) {
	if !s.cfg.Enabled {
		payloads := make([]ProviderPayload, len(txs))
		for i, tx := range txs {
			payloads[i] = PassThrough(tx)
		}
		return Batch{Payloads: payloads}, nil
	}

	commitment, err := BuildCommitment(txs)
	if err != nil {
		return Batch{}, types.NewError(types.KindShieldFailure, "commit", err)
	}

	opts := Options{
		Network:     s.cfg.Network,
		Builders:    s.cfg.Builders,
		TargetBlock: s.targetBlock(ctx),
	}
	if s.cfg.AttestationKey != nil {
		opts.Attestation = Attest(s.cfg.AttestationKey, commitment.Root)
	}

	payloads := make([]ProviderPayload, len(txs))
	for i, tx := range txs {
		proof, err := ProofFor(i, commitment)
		if err != nil {
			return Batch{}, types.NewError(types.KindShieldFailure, "proof", err)
		}
		if !Verify(tx.SignatureHash, i, proof, commitment.Root) {
			return Batch{}, types.NewError(types.KindShieldFailure, "proof",
				fmt.Errorf("proof for leaf %d does not verify", i))
		}
		payloads[i], err = WrapWithOptions(tx, commitment, proof, s.cfg.Provider, opts)
		if err != nil {
			return Batch{}, types.NewError(types.KindShieldFailure, "wrap", err)
		}
	}

	s.logger.Debug("Built shielded batch",
		zap.String("provider", s.cfg.Provider.String()),
		zap.String("root", commitment.Root.Hex()),
		zap.Int("leaves", len(txs)),
		zap.Bool("attested", opts.Attestation != nil))

	return Batch{Commitment: commitment, Payloads: payloads}, nil
}

func (s *Shield) targetBlock(ctx context.Context) uint64 {
	if s.cfg.Provider != Flashbots || s.blocks == nil {
		return 0
	}
	head, err := s.blocks.BlockNumber(ctx)
	if err != nil {
		s.logger.Warn("Failed to read chain head for bundle target", zap.Error(err))
		return 0
	}
	return head + 1
}
