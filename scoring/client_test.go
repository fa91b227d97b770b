package scoring_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/scoring"
	"github.com/michaelpento.lv/arbpipeline/scoring/server"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func opportunity(id string, profitUSD float64) types.Opportunity {
	return types.Opportunity{
		ID:                   id,
		Path:                 []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
		Venues:               []string{"a", "b"},
		ExpectedProfitNative: big.NewInt(int64(profitUSD)),
		ExpectedProfitUSD:    profitUSD,
		GasEstimate:          150000,
		InputAmount:          big.NewInt(1),
		OutputAmount:         big.NewInt(102),
		DetectedAt:           time.Now(),
	}
}

func options(url string) scoring.Options {
	return scoring.Options{
		URL:                url,
		HealthTimeout:      time.Second,
		ScoreTimeout:       time.Second,
		ApprovalThreshold:  0.6,
		SecondaryThreshold: 2,
	}
}

func TestScoreUsesModel(t *testing.T) {
	srv := httptest.NewServer(server.New(":0", nil, zaptest.NewLogger(t)).Handler())
	defer srv.Close()

	client := scoring.NewClient(options(srv.URL), srv.Client(), zaptest.NewLogger(t))
	result := client.Score(context.Background(), opportunity("opp", 15))

	assert.Equal(t, types.ScoreSourceModel, result.Source)
	assert.InDelta(t, 0.75, result.Score, 1e-9)
	assert.True(t, result.Approved)
}

func TestScoreFallsBackOnUnhealthyService(t *testing.T) {
	var predicts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict" {
			atomic.AddInt32(&predicts, 1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := scoring.NewClient(options(srv.URL), srv.Client(), zaptest.NewLogger(t))
	result := client.Score(context.Background(), opportunity("opp", 3))

	assert.Equal(t, types.ScoreSourceFallback, result.Source)
	assert.True(t, result.Approved)
	assert.GreaterOrEqual(t, result.Score, 0.6)
	assert.Equal(t, scoring.FallbackConfidence, result.Confidence)
	assert.Zero(t, atomic.LoadInt32(&predicts), "predict must not be called when unhealthy")
}

func TestScoreFallsBackOnSlowPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict" {
			time.Sleep(300 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := options(srv.URL)
	opts.ScoreTimeout = 50 * time.Millisecond
	client := scoring.NewClient(opts, srv.Client(), zaptest.NewLogger(t))

	result := client.Score(context.Background(), opportunity("opp", 1))
	assert.Equal(t, types.ScoreSourceFallback, result.Source)
	assert.False(t, result.Approved)
}

func TestScoreFallsBackWhenServiceDown(t *testing.T) {
	client := scoring.NewClient(options("http://127.0.0.1:1"), nil, zaptest.NewLogger(t))
	result := client.Score(context.Background(), opportunity("opp", 3))
	assert.Equal(t, types.ScoreSourceFallback, result.Source)
	assert.True(t, result.Approved)
}

func TestModelApprovalRespectsThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			return
		}
		_ = json.NewEncoder(w).Encode(scoring.PredictResponse{Score: 0.4, Confidence: 0.9, Approved: true})
	}))
	defer srv.Close()

	client := scoring.NewClient(options(srv.URL), srv.Client(), zaptest.NewLogger(t))
	result := client.Score(context.Background(), opportunity("opp", 100))
	assert.Equal(t, types.ScoreSourceModel, result.Source)
	assert.False(t, result.Approved)
}

func TestFallbackRule(t *testing.T) {
	approved := scoring.Fallback(opportunity("a", 2.5), 0.6, 2)
	assert.True(t, approved.Approved)
	assert.Equal(t, 0.6, approved.Score)

	rejected := scoring.Fallback(opportunity("b", 2), 0.6, 2)
	assert.False(t, rejected.Approved)
	assert.Equal(t, scoring.FallbackRejectedScore, rejected.Score)
	assert.Equal(t, types.ScoreSourceFallback, rejected.Source)
}

func TestFeatures(t *testing.T) {
	opp := opportunity("a", 3)
	opp.DetectedAt = time.Unix(100, 0)

	f := scoring.Features(opp, time.Unix(110, 0))
	require.Len(t, f, scoring.FeatureCount)
	assert.Equal(t, []float64{3, 3, 150000, 1, 102, 2, 2, 10}, f)
}

func TestScoreBatch(t *testing.T) {
	srv := httptest.NewServer(server.New(":0", nil, zaptest.NewLogger(t)).Handler())
	defer srv.Close()

	client := scoring.NewClient(options(srv.URL), srv.Client(), zaptest.NewLogger(t))
	results := client.ScoreBatch(context.Background(), []types.Opportunity{opportunity("a", 15), opportunity("b", 1)})
	require.Len(t, results, 2)
	assert.True(t, results[0].Approved)
	assert.False(t, results[1].Approved)
	assert.Equal(t, types.ScoreSourceModel, results[1].Source)

	down := scoring.NewClient(options("http://127.0.0.1:1"), nil, zaptest.NewLogger(t))
	results = down.ScoreBatch(context.Background(), []types.Opportunity{opportunity("a", 15)})
	require.Len(t, results, 1)
	assert.Equal(t, types.ScoreSourceFallback, results[0].Source)
}
