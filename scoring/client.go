package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Fallback constants. An approved fallback result scores exactly the
// approval threshold so approved results never score below it.
const (
	FallbackConfidence    = 0.3
	FallbackRejectedScore = 0.1
)

// FeatureCount is the length of the feature vector sent to /predict.
const FeatureCount = 8

// Options configures a scoring Client.
type Options struct {
	URL                string
	HealthTimeout      time.Duration
	ScoreTimeout       time.Duration
	ApprovalThreshold  float64
	SecondaryThreshold float64
}

// Client asks the scoring service for a verdict and degrades to a rule when
// the service is unhealthy, slow or erroring.
type Client struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Features      []float64 `json:"features"`
	OpportunityID string    `json:"opportunity_id"`
}

// PredictResponse is the body returned by /predict.
type PredictResponse struct {
	Score         float64 `json:"score"`
	Confidence    float64 `json:"confidence"`
	Approved      bool    `json:"approved"`
	OpportunityID string  `json:"opportunity_id,omitempty"`
}

// NewClient creates a scoring client. A nil httpClient uses a default client.
func NewClient(opts Options, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &Client{opts: opts, client: httpClient, logger: logger, now: time.Now}
}

// Score never fails: any service problem yields the fallback result.
func (c *Client) Score(ctx context.Context, opp types.Opportunity) types.ScoreResult {
	result, err := c.modelScore(ctx, opp)
	if err != nil {
		c.logger.Warn("Scoring service unavailable, using fallback",
			zap.String("opportunity", opp.ID),
			zap.Error(err))
		return Fallback(opp, c.opts.ApprovalThreshold, c.opts.SecondaryThreshold)
	}
	return result
}

// ScoreBatch scores opportunities with one /batch_predict call. Items the
// service does not answer fall back individually.
func (c *Client) ScoreBatch(ctx context.Context, opps []types.Opportunity) []types.ScoreResult {
	results := make([]types.ScoreResult, len(opps))
	if len(opps) == 0 {
		return results
	}

	responses, err := c.batchScore(ctx, opps)
	if err != nil {
		c.logger.Warn("Batch scoring unavailable, using fallback",
			zap.Int("opportunities", len(opps)),
			zap.Error(err))
	}
	byID := make(map[string]PredictResponse, len(responses))
	for _, r := range responses {
		byID[r.OpportunityID] = r
	}

	for i, opp := range opps {
		if r, ok := byID[opp.ID]; ok && err == nil {
			results[i] = c.fromResponse(r)
			continue
		}
		results[i] = Fallback(opp, c.opts.ApprovalThreshold, c.opts.SecondaryThreshold)
	}
	return results
}

// Fallback is the rule-based verdict: approve when the USD profit exceeds
// the secondary threshold.
func Fallback(opp types.Opportunity, approvalThreshold, secondaryThreshold float64) types.ScoreResult {
	approved := opp.ExpectedProfitUSD > secondaryThreshold
	score := FallbackRejectedScore
	if approved {
		score = approvalThreshold
	}
	return types.ScoreResult{
		Score:      score,
		Confidence: FallbackConfidence,
		Approved:   approved,
		Source:     types.ScoreSourceFallback,
	}
}

// Features builds the model input: profit (native), profit (USD), gas
// estimate, input amount, output amount, path length, venue count and age in
// seconds.
func Features(opp types.Opportunity, now time.Time) []float64 {
	return []float64{
		bigFloat(opp.ExpectedProfitNative),
		opp.ExpectedProfitUSD,
		float64(opp.GasEstimate),
		bigFloat(opp.InputAmount),
		bigFloat(opp.OutputAmount),
		float64(len(opp.Path)),
		float64(len(opp.Venues)),
		opp.Age(now).Seconds(),
	}
}

func (c *Client) modelScore(ctx context.Context, opp types.Opportunity) (types.ScoreResult, error) {
	if err := c.healthy(ctx); err != nil {
		return types.ScoreResult{}, err
	}

	var resp PredictResponse
	body := PredictRequest{Features: Features(opp, c.now()), OpportunityID: opp.ID}
	if err := c.post(ctx, "/predict", body, &resp); err != nil {
		return types.ScoreResult{}, err
	}
	return c.fromResponse(resp), nil
}

func (c *Client) batchScore(ctx context.Context, opps []types.Opportunity) ([]PredictResponse, error) {
	if err := c.healthy(ctx); err != nil {
		return nil, err
	}

	now := c.now()
	body := make([]PredictRequest, len(opps))
	for i, opp := range opps {
		body[i] = PredictRequest{Features: Features(opp, now), OpportunityID: opp.ID}
	}
	var resp []PredictResponse
	if err := c.post(ctx, "/batch_predict", body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// fromResponse clamps the model output and enforces the approval threshold.
func (c *Client) fromResponse(r PredictResponse) types.ScoreResult {
	score := clamp(r.Score)
	return types.ScoreResult{
		Score:      score,
		Confidence: clamp(r.Confidence),
		Approved:   r.Approved && score >= c.opts.ApprovalThreshold,
		Source:     types.ScoreSourceModel,
	}
}

func (c *Client) healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL+"/health", nil)
	if err != nil {
		return types.NewError(types.KindScoringUnavailable, "health", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.KindScoringUnavailable, "health", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.KindScoringUnavailable, "health",
			fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ScoreTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewError(types.KindScoringUnavailable, path, fmt.Errorf("failed to marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL+path, bytes.NewReader(payload))
	if err != nil {
		return types.NewError(types.KindScoringUnavailable, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.KindScoringUnavailable, path, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewError(types.KindScoringUnavailable, path, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.KindScoringUnavailable, path,
			fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.NewError(types.KindScoringUnavailable, path, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
