package pipeline

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/config"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/quotes"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/strategies/arbitrage"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func unhealthyScoring(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func simulationConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.MinProfitUSD = 3
	cfg.MLServerURL = unhealthyScoring(t).URL
	cfg.Shield.Enabled = true
	cfg.Timeouts.SimulatedDelay = time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestHappyPathScenario(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt, err := Build(context.Background(), simulationConfig(t), reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, "simulated", rt.Mode)

	report := rt.Orchestrator.RunRound(context.Background())
	require.True(t, report.Success(), "%+v", report.Results())

	quoted := report.Find(StageQuotes)
	require.Len(t, quoted, 1)
	assert.Len(t, quoted[0].Data, 4)

	detected := report.Find(StageDetect)
	require.Len(t, detected, 1)
	opps := detected[0].Data.([]types.Opportunity)
	require.Len(t, opps, 1)
	assert.Equal(t, []string{"venue-c", "venue-d"}, opps[0].Venues)
	assert.Equal(t, big.NewInt(3), opps[0].ExpectedProfitNative)

	scored := report.Find(StageScore)
	require.Len(t, scored, 1)
	verdict := scored[0].Data.(types.ScoreResult)
	assert.True(t, verdict.Approved)
	assert.Equal(t, types.ScoreSourceFallback, verdict.Source)
	assert.Equal(t, opps[0].ID, scored[0].OpportunityID)

	planned := report.Find(StagePlan)
	require.Len(t, planned, 1)
	assert.Equal(t, uint64(0), planned[0].Data.(map[string]interface{})["nonce"])

	signed := report.Find(StageSign)
	require.Len(t, signed, 1)
	sigHash := signed[0].Data.(map[string]interface{})["signatureHash"].(common.Hash)
	assert.NotEqual(t, common.Hash{}, sigHash)

	shielded := report.Find(StageShield)
	require.Len(t, shielded, 1)
	commitment := shielded[0].Data.(types.MerkleCommitment)
	assert.Equal(t, sigHash, commitment.Root)
	assert.Equal(t, []common.Hash{sigHash}, commitment.Leaves)
	proof, err := shield.ProofFor(0, commitment)
	require.NoError(t, err)
	assert.Empty(t, proof)

	broadcasted := report.Find(StageBroadcast)
	require.Len(t, broadcasted, 1)
	result := broadcasted[0].Data.(types.BroadcastResult)
	assert.True(t, result.Success)
	assert.Equal(t, sigHash, result.TxHash)

	assert.Equal(t, float64(1), testutil.ToFloat64(rt.Metrics.Fallbacks))
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.Metrics.SuccessRate))
}

func TestTotalQuoteFailureScenario(t *testing.T) {
	cfg := simulationConfig(t)
	rt, err := Build(context.Background(), cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rt.Close()

	for _, v := range rt.Orchestrator.deps.Venues {
		v.(*dex.StaticVenue).FailWith(errors.New("connection refused"))
	}

	report := rt.Orchestrator.RunRound(context.Background())
	assert.False(t, report.Success())

	results := report.Results()
	require.Len(t, results, 2)
	assert.Equal(t, StageQuotes, results[0].Stage)
	assert.Equal(t, types.KindQuoteUnavailable, results[0].Kind)
	assert.Equal(t, StageDetect, results[1].Stage)
	assert.Equal(t, types.KindNoOpportunity, results[1].Kind)
	assert.Empty(t, report.Find(StageScore))
}

// fakes for lane-level policy tests

type fixedScorer struct{ approved bool }

func (s fixedScorer) Score(context.Context, types.Opportunity) types.ScoreResult {
	return types.ScoreResult{Score: 0.9, Confidence: 0.9, Approved: s.approved, Source: types.ScoreSourceModel}
}

type countingPlanner struct {
	mu    sync.Mutex
	nonce uint64
}

func (p *countingPlanner) BuildPlan(_ context.Context, opp types.Opportunity) (types.ExecutionPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan := types.ExecutionPlan{Opportunity: opp, LoanProvider: "aave", GasLimit: 150000, GasPrice: big.NewInt(1), Nonce: p.nonce}
	p.nonce++
	return plan, nil
}

type selectiveSigner struct{ failFor string }

func (s selectiveSigner) Sign(plan types.ExecutionPlan) (types.SignedTransaction, error) {
	if plan.Opportunity.ID == s.failFor {
		return types.SignedTransaction{}, types.NewError(types.KindSigningFailure, "sign", errors.New("malformed key"))
	}
	raw := []byte(plan.Opportunity.ID)
	return types.SignedTransaction{
		OpportunityID: plan.Opportunity.ID,
		RawBytes:      raw,
		SignatureHash: common.BytesToHash(raw),
	}, nil
}

type failingShield struct{}

func (failingShield) Protect(context.Context, []types.SignedTransaction) (shield.Batch, error) {
	return shield.Batch{}, types.NewError(types.KindShieldFailure, "commit", errors.New("empty batch"))
}

type scriptedBroadcaster struct{ results map[string]types.BroadcastResult }

func (b scriptedBroadcaster) Mode() string { return "scripted" }

func (b scriptedBroadcaster) Broadcast(_ context.Context, tx types.SignedTransaction, _ shield.ProviderPayload) types.BroadcastResult {
	if r, ok := b.results[tx.OpportunityID]; ok {
		return r
	}
	return types.BroadcastResult{Success: true, TxHash: tx.SignatureHash}
}

type fixedDetector struct{ ids []string }

func (d fixedDetector) Detect([]types.Quote) []types.Opportunity {
	opps := make([]types.Opportunity, len(d.ids))
	for i, id := range d.ids {
		opps[i] = types.Opportunity{ID: id, ExpectedProfitUSD: 10}
	}
	return opps
}

func laneDeps(t *testing.T, ids ...string) Dependencies {
	return Dependencies{
		Venues:      []dex.Venue{dex.NewStaticVenue("a", 1, 1)},
		Quotes:      quotes.NewAggregator(time.Second, zaptest.NewLogger(t)),
		Detector:    fixedDetector{ids: ids},
		Scorer:      fixedScorer{approved: true},
		Planner:     &countingPlanner{},
		Signer:      selectiveSigner{},
		Shield:      shield.New(shield.Config{}, nil, zaptest.NewLogger(t)),
		Broadcaster: scriptedBroadcaster{},
	}
}

var testPair = Pair{AmountIn: big.NewInt(1)}

func TestSigningFailureStopsOnlyItsLane(t *testing.T) {
	deps := laneDeps(t, "opp-1", "opp-2", "opp-3")
	deps.Signer = selectiveSigner{failFor: "opp-2"}
	o, err := New(deps, testPair, 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	report := o.RunRound(context.Background())
	assert.False(t, report.Success())

	signs := report.Find(StageSign)
	require.Len(t, signs, 3)
	var failed []string
	for _, r := range signs {
		if !r.Success {
			failed = append(failed, r.OpportunityID)
			assert.Equal(t, types.KindSigningFailure, r.Kind)
		}
	}
	assert.Equal(t, []string{"opp-2"}, failed)

	broadcasts := report.Find(StageBroadcast)
	require.Len(t, broadcasts, 2)
	for _, r := range broadcasts {
		assert.True(t, r.Success)
		assert.NotEqual(t, "opp-2", r.OpportunityID)
	}
}

func TestRejectedOpportunityIsNotAFailure(t *testing.T) {
	deps := laneDeps(t, "opp-1")
	deps.Scorer = fixedScorer{approved: false}
	o, err := New(deps, testPair, 1, zaptest.NewLogger(t))
	require.NoError(t, err)

	report := o.RunRound(context.Background())
	assert.True(t, report.Success())
	scored := report.Find(StageScore)
	require.Len(t, scored, 1)
	assert.Equal(t, "rejected", scored[0].Message)
	assert.Empty(t, report.Find(StagePlan))
	assert.Empty(t, report.Find(StageShield))
}

func TestShieldFailureStopsRound(t *testing.T) {
	deps := laneDeps(t, "opp-1", "opp-2")
	deps.Shield = failingShield{}
	o, err := New(deps, testPair, 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	report := o.RunRound(context.Background())
	shielded := report.Find(StageShield)
	require.Len(t, shielded, 1)
	assert.Equal(t, types.KindShieldFailure, shielded[0].Kind)
	assert.Empty(t, report.Find(StageBroadcast))
}

func TestBroadcastFailuresAreDistinguished(t *testing.T) {
	deps := laneDeps(t, "rejected", "unconfirmed")
	deps.Broadcaster = scriptedBroadcaster{results: map[string]types.BroadcastResult{
		"rejected":    {Kind: types.KindRelaySubmission, Error: "status 400"},
		"unconfirmed": {Kind: types.KindReceiptTimeout, Error: "no receipt"},
	}}
	deps.Metrics = nil
	o, err := New(deps, testPair, 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	report := o.RunRound(context.Background())
	messages := map[string]string{}
	for _, r := range report.Find(StageBroadcast) {
		assert.False(t, r.Success)
		messages[r.OpportunityID] = r.Message
	}
	assert.Equal(t, "rejected by relay", messages["rejected"])
	assert.Equal(t, "unconfirmed: no receipt before timeout", messages["unconfirmed"])
}

func TestCancelledRoundIsReported(t *testing.T) {
	o, err := New(laneDeps(t, "opp-1"), testPair, 1, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := o.RunRound(ctx)
	results := report.Results()
	require.Len(t, results, 1)
	assert.Equal(t, types.KindCancelled, results[0].Kind)
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Dependencies{}, testPair, 1, nil)
	assert.Error(t, err)

	_, err = New(laneDeps(t), Pair{}, 1, nil)
	assert.Error(t, err)
}

func TestDetectorIntegration(t *testing.T) {
	deps := laneDeps(t)
	deps.Venues = quotes.DefaultVenues()
	deps.Detector = arbitrage.NewDetector(arbitrage.StaticOracle{USDPerUnit: 1}, 1, zaptest.NewLogger(t))
	o, err := New(deps, testPair, 4, zaptest.NewLogger(t))
	require.NoError(t, err)

	report := o.RunRound(context.Background())
	require.True(t, report.Success(), "%+v", report.Results())
	// six pairs, all with at least one unit of profit
	assert.Len(t, report.Find(StageSign), 6)
	assert.Len(t, report.Find(StageBroadcast), 6)
}
