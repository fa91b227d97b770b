package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Quote is a normalized price/liquidity observation from a single venue.
type Quote struct {
	VenueID     string         `json:"venueId"`
	TokenIn     common.Address `json:"tokenIn"`
	TokenOut    common.Address `json:"tokenOut"`
	AmountIn    *big.Int       `json:"amountIn"`
	AmountOut   *big.Int       `json:"amountOut"`
	Price       float64        `json:"price"`
	GasEstimate uint64         `json:"gasEstimate"`
	ObservedAt  time.Time      `json:"observedAt"`
}

// SamePair reports whether both quotes price the same input for the same token pair.
func (q Quote) SamePair(o Quote) bool {
	if q.TokenIn != o.TokenIn || q.TokenOut != o.TokenOut {
		return false
	}
	if q.AmountIn == nil || o.AmountIn == nil {
		return q.AmountIn == o.AmountIn
	}
	return q.AmountIn.Cmp(o.AmountIn) == 0
}

// Opportunity is a detected cross-venue price discrepancy. Venues[0] is the
// venue to buy on, Venues[1] the venue to sell on.
type Opportunity struct {
	ID                   string           `json:"id"`
	Path                 []common.Address `json:"path"`
	Venues               []string         `json:"venues"`
	ExpectedProfitNative *big.Int         `json:"expectedProfitNative"`
	ExpectedProfitUSD    float64          `json:"expectedProfitUsd"`
	GasEstimate          uint64           `json:"gasEstimate"`
	InputAmount          *big.Int         `json:"inputAmount"`
	OutputAmount         *big.Int         `json:"outputAmount"`
	DetectedAt           time.Time        `json:"detectedAt"`
}

// Age returns how long ago the opportunity was detected.
func (o Opportunity) Age(now time.Time) time.Duration {
	if o.DetectedAt.IsZero() || now.Before(o.DetectedAt) {
		return 0
	}
	return now.Sub(o.DetectedAt)
}

// ScoreSource records which tier produced a ScoreResult.
type ScoreSource string

const (
	ScoreSourceModel    ScoreSource = "model"
	ScoreSourceFallback ScoreSource = "fallback"
)

// ScoreResult is the viability verdict for one opportunity.
type ScoreResult struct {
	Score      float64     `json:"score"`
	Confidence float64     `json:"confidence"`
	Approved   bool        `json:"approved"`
	Source     ScoreSource `json:"source"`
}

// ExecutionPlan is everything needed to build the settlement transaction.
type ExecutionPlan struct {
	Opportunity  Opportunity    `json:"opportunity"`
	LoanProvider string         `json:"loanProvider"`
	LoanPool     common.Address `json:"loanPool"`
	To           common.Address `json:"to"`
	EncodedCall  []byte         `json:"encodedCall"`
	GasLimit     uint64         `json:"gasLimit"`
	GasPrice     *big.Int       `json:"gasPrice"`
	Nonce        uint64         `json:"nonce"`
	Deadline     time.Time      `json:"deadline"`
}

// TxPayload is the canonical, unsigned transaction body.
type TxPayload struct {
	To       common.Address `json:"to"`
	Data     []byte         `json:"data"`
	Value    *big.Int       `json:"value"`
	GasLimit uint64         `json:"gasLimit"`
	GasPrice *big.Int       `json:"gasPrice"`
	Nonce    uint64         `json:"nonce"`
	ChainID  *big.Int       `json:"chainId"`
}

// SignedTransaction is a signed, hash-addressed transaction. SignatureHash is
// keccak256(RawBytes).
type SignedTransaction struct {
	OpportunityID string      `json:"opportunityId"`
	Payload       TxPayload   `json:"payload"`
	SignatureHash common.Hash `json:"signatureHash"`
	RawBytes      []byte      `json:"rawBytes"`
}

// MerkleCommitment is a hash tree over a batch of signature hashes. Levels[0]
// holds the leaves and the last level holds only the root.
type MerkleCommitment struct {
	Root   common.Hash     `json:"root"`
	Leaves []common.Hash   `json:"leaves"`
	Levels [][]common.Hash `json:"levels"`
}

// Empty reports whether the commitment carries no leaves (shield disabled).
func (c MerkleCommitment) Empty() bool {
	return len(c.Leaves) == 0
}

// BroadcastResult describes the outcome of submitting one transaction.
type BroadcastResult struct {
	Success     bool        `json:"success"`
	TxHash      common.Hash `json:"txHash"`
	BlockNumber *uint64     `json:"blockNumber,omitempty"`
	Kind        ErrorKind   `json:"kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	ObservedAt  time.Time   `json:"observedAt"`
}

// StageResult is one entry of a pipeline report.
type StageResult struct {
	Stage         string      `json:"stage"`
	OpportunityID string      `json:"opportunityId,omitempty"`
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	Kind          ErrorKind   `json:"kind,omitempty"`
	Error         string      `json:"error,omitempty"`
	ObservedAt    time.Time   `json:"observedAt"`
}
