package server

// Predictor turns a feature vector into a score and confidence in [0,1].
type Predictor interface {
	Name() string
	Predict(features []float64) (score, confidence float64)
}

// ApprovalScore is the score at or above which the service approves.
const ApprovalScore = 0.6

// RuleModel is the reference rule-based predictor. Features follow the
// client's order: profit, profitUSD, gasEstimate, inputAmount,
// outputAmount, pathLength, venueCount, age.
type RuleModel struct{}

// Name returns the model name reported by /health
func (RuleModel) Name() string {
	return "simple_predictor"
}

// Predict scores on USD profit up to $20, discounted for heavy gas.
func (RuleModel) Predict(features []float64) (float64, float64) {
	if len(features) < 8 {
		return 0.5, 0.5
	}

	profitUSD := features[1]
	gasEstimate := features[2]

	score := profitUSD / 20.0
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if gasEstimate > 500000 {
		score *= 0.8
	}

	confidence := 0.4
	if profitUSD > 5 {
		confidence = 0.6
	}
	return score, confidence
}
