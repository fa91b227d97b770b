package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/broadcast"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/michaelpento.lv/arbpipeline/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QuoteFetcher gathers quotes from every venue. *quotes.Aggregator satisfies it.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, venues []dex.Venue) ([]types.Quote, error)
}

// OpportunityDetector turns quotes into ranked opportunities.
type OpportunityDetector interface {
	Detect(quotes []types.Quote) []types.Opportunity
}

// Scorer returns a verdict for one opportunity and never fails.
type Scorer interface {
	Score(ctx context.Context, opp types.Opportunity) types.ScoreResult
}

// PlanBuilder builds execution plans. *planner.Planner satisfies it.
type PlanBuilder interface {
	BuildPlan(ctx context.Context, opp types.Opportunity) (types.ExecutionPlan, error)
}

// TxSigner signs plans. *signer.Signer satisfies it.
type TxSigner interface {
	Sign(plan types.ExecutionPlan) (types.SignedTransaction, error)
}

// Protector commits a batch and wraps it for the relay. *shield.Shield satisfies it.
type Protector interface {
	Protect(ctx context.Context, txs []types.SignedTransaction) (shield.Batch, error)
}

// Pair is the token pair and input size probed each round.
type Pair struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
}

// Dependencies are the components a round runs through.
type Dependencies struct {
	Venues      []dex.Venue
	Quotes      QuoteFetcher
	Detector    OpportunityDetector
	Scorer      Scorer
	Planner     PlanBuilder
	Signer      TxSigner
	Shield      Protector
	Broadcaster broadcast.Broadcaster
	Metrics     *metrics.PipelineMetrics
}

// delivery is one signed transaction with its relay payload.
type delivery struct {
	tx      types.SignedTransaction
	payload shield.ProviderPayload
}

// Orchestrator sequences the stages of a round and records every outcome.
type Orchestrator struct {
	deps          Dependencies
	pair          Pair
	maxConcurrent int
	logger        *zap.Logger

	quoteStage     Stage[Pair, []types.Quote]
	detectStage    Stage[[]types.Quote, []types.Opportunity]
	scoreStage     Stage[types.Opportunity, types.ScoreResult]
	planStage      Stage[types.Opportunity, types.ExecutionPlan]
	signStage      Stage[types.ExecutionPlan, types.SignedTransaction]
	shieldStage    Stage[[]types.SignedTransaction, shield.Batch]
	broadcastStage Stage[delivery, types.BroadcastResult]
}

// New creates an orchestrator. maxConcurrent bounds the opportunity lanes
// and broadcasts running at once.
func New(deps Dependencies, pair Pair, maxConcurrent int, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Quotes == nil, deps.Detector == nil, deps.Scorer == nil:
		return nil, fmt.Errorf("orchestrator needs quote, detection and scoring components")
	case deps.Planner == nil, deps.Signer == nil, deps.Shield == nil, deps.Broadcaster == nil:
		return nil, fmt.Errorf("orchestrator needs planning, signing, shield and broadcast components")
	case pair.AmountIn == nil || pair.AmountIn.Sign() <= 0:
		return nil, fmt.Errorf("pair amount must be positive")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{deps: deps, pair: pair, maxConcurrent: maxConcurrent, logger: logger}
	o.quoteStage = NewStage(StageQuotes, func(ctx context.Context, p Pair) ([]types.Quote, error) {
		return deps.Quotes.FetchQuotes(ctx, p.TokenIn, p.TokenOut, p.AmountIn, deps.Venues)
	})
	o.detectStage = NewStage(StageDetect, func(_ context.Context, quotes []types.Quote) ([]types.Opportunity, error) {
		opps := deps.Detector.Detect(quotes)
		if len(opps) == 0 {
			return nil, types.NewError(types.KindNoOpportunity, StageDetect,
				fmt.Errorf("no profitable pair among %d quotes", len(quotes)))
		}
		return opps, nil
	})
	o.scoreStage = NewStage(StageScore, func(ctx context.Context, opp types.Opportunity) (types.ScoreResult, error) {
		return deps.Scorer.Score(ctx, opp), nil
	})
	o.planStage = NewStage(StagePlan, deps.Planner.BuildPlan)
	o.signStage = NewStage(StageSign, func(_ context.Context, plan types.ExecutionPlan) (types.SignedTransaction, error) {
		return deps.Signer.Sign(plan)
	})
	o.shieldStage = NewStage(StageShield, deps.Shield.Protect)
	o.broadcastStage = NewStage(StageBroadcast, func(ctx context.Context, d delivery) (types.BroadcastResult, error) {
		result := deps.Broadcaster.Broadcast(ctx, d.tx, d.payload)
		if !result.Success {
			return result, types.NewError(result.Kind, StageBroadcast, errors.New(result.Error))
		}
		return result, nil
	})
	return o, nil
}

// RunRound executes one full round and returns its report. It never panics
// and every stage that ran has an entry in the report.
func (o *Orchestrator) RunRound(ctx context.Context) *Report {
	report := NewReport()
	if err := ctx.Err(); err != nil {
		o.fail(report, StageQuotes, "", types.NewError(types.KindCancelled, "round", err))
		return report
	}

	quoted := Execute(ctx, o.quoteStage, o.pair)
	o.observe(quoted.Stage, quoted.Err, quoted.Elapsed)
	if quoted.Err != nil {
		o.fail(report, StageQuotes, "", quoted.Err)
		if Decide(types.KindOf(quoted.Err)) != Continue {
			return report
		}
	} else {
		report.Append(types.StageResult{
			Stage:   StageQuotes,
			Success: true,
			Message: fmt.Sprintf("fetched %d of %d venues", len(quoted.Value), len(o.deps.Venues)),
			Data:    quoted.Value,
		})
	}

	detected := Execute(ctx, o.detectStage, quoted.Value)
	o.observe(detected.Stage, detected.Err, detected.Elapsed)
	if detected.Err != nil {
		o.fail(report, StageDetect, "", detected.Err)
		if Decide(types.KindOf(detected.Err)) != Continue {
			return report
		}
	}
	opps := detected.Value
	o.deps.Metrics.OpportunitiesDetected(len(opps))
	if len(opps) > 0 {
		report.Append(types.StageResult{
			Stage:   StageDetect,
			Success: true,
			Message: fmt.Sprintf("detected %d opportunities", len(opps)),
			Data:    opps,
		})
	}

	signed, halted := o.runLanes(ctx, report, opps)
	if halted || len(signed) == 0 {
		return report
	}

	protected := Execute(ctx, o.shieldStage, signed)
	o.observe(protected.Stage, protected.Err, protected.Elapsed)
	if protected.Err != nil {
		o.fail(report, StageShield, "", protected.Err)
		return report
	}
	batch := protected.Value
	report.Append(types.StageResult{
		Stage:   StageShield,
		Success: true,
		Message: shieldMessage(batch, len(signed)),
		Data:    batch.Commitment,
	})

	o.broadcastAll(ctx, report, signed, batch.Payloads)
	return report
}

// runLanes scores, plans and signs every opportunity on a bounded worker
// pool. The returned transactions keep opportunity order.
func (o *Orchestrator) runLanes(ctx context.Context, report *Report, opps []types.Opportunity) ([]types.SignedTransaction, bool) {
	laneCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var halted atomic.Bool
	slots := make([]*types.SignedTransaction, len(opps))

	var g errgroup.Group
	g.SetLimit(o.maxConcurrent)
	for i, opp := range opps {
		g.Go(func() error {
			tx, action := o.runLane(laneCtx, report, opp)
			if action == StopRound {
				halted.Store(true)
				cancel()
			}
			slots[i] = tx
			return nil
		})
	}
	_ = g.Wait()

	signed := make([]types.SignedTransaction, 0, len(slots))
	for _, tx := range slots {
		if tx != nil {
			signed = append(signed, *tx)
		}
	}
	return signed, halted.Load()
}

func (o *Orchestrator) runLane(ctx context.Context, report *Report, opp types.Opportunity) (*types.SignedTransaction, Action) {
	if err := ctx.Err(); err != nil {
		o.fail(report, StageScore, opp.ID, types.NewError(types.KindCancelled, StageScore, err))
		return nil, StopRound
	}

	scored := Execute(ctx, o.scoreStage, opp)
	o.observe(scored.Stage, scored.Err, scored.Elapsed)
	if scored.Err != nil {
		o.fail(report, StageScore, opp.ID, scored.Err)
		return nil, Decide(types.KindOf(scored.Err))
	}
	verdict := scored.Value
	if verdict.Source == types.ScoreSourceFallback {
		o.deps.Metrics.FallbackUsed()
	}
	if !verdict.Approved {
		report.Append(types.StageResult{
			Stage:         StageScore,
			OpportunityID: opp.ID,
			Success:       true,
			Message:       "rejected",
			Data:          verdict,
		})
		return nil, StopLane
	}
	report.Append(types.StageResult{
		Stage:         StageScore,
		OpportunityID: opp.ID,
		Success:       true,
		Message:       fmt.Sprintf("approved by %s", verdict.Source),
		Data:          verdict,
	})

	planned := Execute(ctx, o.planStage, opp)
	o.observe(planned.Stage, planned.Err, planned.Elapsed)
	if planned.Err != nil {
		o.fail(report, StagePlan, opp.ID, planned.Err)
		return nil, Decide(types.KindOf(planned.Err))
	}
	plan := planned.Value
	o.deps.Metrics.SetNonce(plan.Nonce)
	report.Append(types.StageResult{
		Stage:         StagePlan,
		OpportunityID: opp.ID,
		Success:       true,
		Message:       fmt.Sprintf("planned with %s at nonce %d", plan.LoanProvider, plan.Nonce),
		Data: map[string]interface{}{
			"loanProvider": plan.LoanProvider,
			"nonce":        plan.Nonce,
			"gasLimit":     plan.GasLimit,
			"gasPrice":     plan.GasPrice.String(),
			"deadline":     plan.Deadline,
		},
	})

	signedTx := Execute(ctx, o.signStage, plan)
	o.observe(signedTx.Stage, signedTx.Err, signedTx.Elapsed)
	if signedTx.Err != nil {
		o.fail(report, StageSign, opp.ID, signedTx.Err)
		return nil, Decide(types.KindOf(signedTx.Err))
	}
	tx := signedTx.Value
	report.Append(types.StageResult{
		Stage:         StageSign,
		OpportunityID: opp.ID,
		Success:       true,
		Message:       "signed",
		Data:          map[string]interface{}{"signatureHash": tx.SignatureHash},
	})
	return &tx, Continue
}

func (o *Orchestrator) broadcastAll(ctx context.Context, report *Report, txs []types.SignedTransaction, payloads []shield.ProviderPayload) {
	var g errgroup.Group
	g.SetLimit(o.maxConcurrent)
	for i, tx := range txs {
		payload := shield.PassThrough(tx)
		if i < len(payloads) {
			payload = payloads[i]
		}
		g.Go(func() error {
			sent := Execute(ctx, o.broadcastStage, delivery{tx: tx, payload: payload})
			o.observe(sent.Stage, sent.Err, sent.Elapsed)
			o.deps.Metrics.RecordBroadcast(o.deps.Broadcaster.Mode(), sent.Value)
			if sent.Err != nil {
				o.fail(report, StageBroadcast, tx.OpportunityID, sent.Err, sent.Value)
				return nil
			}
			report.Append(types.StageResult{
				Stage:         StageBroadcast,
				OpportunityID: tx.OpportunityID,
				Success:       true,
				Message:       fmt.Sprintf("confirmed via %s broadcaster", o.deps.Broadcaster.Mode()),
				Data:          sent.Value,
			})
			return nil
		})
	}
	_ = g.Wait()
}

// fail records a failed stage. data is attached when given.
func (o *Orchestrator) fail(report *Report, stage, oppID string, err error, data ...interface{}) {
	kind := types.KindOf(err)
	result := types.StageResult{
		Stage:         stage,
		OpportunityID: oppID,
		Success:       false,
		Message:       failureMessage(kind),
		Kind:          kind,
		Error:         err.Error(),
	}
	if len(data) > 0 {
		result.Data = data[0]
	}
	report.Append(result)

	fields := []zap.Field{zap.String("stage", stage), zap.String("kind", kind.String()), zap.Error(err)}
	if oppID != "" {
		fields = append(fields, zap.String("opportunity", oppID))
	}
	if kind == types.KindNoOpportunity {
		o.logger.Info("No opportunity this round", fields...)
		return
	}
	o.logger.Error("Stage failed", fields...)
}

func (o *Orchestrator) observe(stage string, err error, elapsed time.Duration) {
	o.deps.Metrics.ObserveStage(stage, err == nil, elapsed)
}

func failureMessage(kind types.ErrorKind) string {
	switch kind {
	case types.KindQuoteUnavailable:
		return "no venue returned a quote"
	case types.KindNoOpportunity:
		return "no opportunity above threshold"
	case types.KindRelaySubmission:
		return "rejected by relay"
	case types.KindReceiptTimeout:
		return "unconfirmed: no receipt before timeout"
	case types.KindTransactionReverted:
		return "reverted on chain"
	case types.KindCancelled:
		return "cancelled"
	case types.KindInternal:
		return "internal error"
	}
	return "failed"
}

func shieldMessage(batch shield.Batch, n int) string {
	if batch.Commitment.Empty() {
		return fmt.Sprintf("shield disabled, %d transactions passed through", n)
	}
	return fmt.Sprintf("committed %d transactions under root %s", n, batch.Commitment.Root.Hex())
}
