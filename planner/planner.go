package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/flashloan"
	"github.com/michaelpento.lv/arbpipeline/gas"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Planner turns approved opportunities into execution plans.
type Planner struct {
	settlement common.Address
	loans      *flashloan.Manager
	gas        *gas.Oracle
	nonces     *NonceSequencer
	window     time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a planner targeting the settlement contract.
func New(settlement common.Address, loans *flashloan.Manager, oracle *gas.Oracle, nonces *NonceSequencer, window time.Duration, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		settlement: settlement,
		loans:      loans,
		gas:        oracle,
		nonces:     nonces,
		window:     window,
		logger:     logger,
		now:        time.Now,
	}
}

// BuildPlan selects a loan provider, encodes the settlement call, prices gas
// and assigns the next nonce. Failures are PlanningFailure errors.
func (p *Planner) BuildPlan(ctx context.Context, opp types.Opportunity) (types.ExecutionPlan, error) {
	if opp.GasEstimate == 0 {
		return types.ExecutionPlan{}, types.NewError(types.KindPlanningFailure, "plan",
			fmt.Errorf("opportunity %s has no gas estimate", opp.ID))
	}

	provider, err := p.loans.Select(opp)
	if err != nil {
		return types.ExecutionPlan{}, types.NewError(types.KindPlanningFailure, "select loan provider", err)
	}

	data, err := EncodeSettlement(opp.InputAmount, opp.Path, opp.Venues)
	if err != nil {
		return types.ExecutionPlan{}, types.NewError(types.KindPlanningFailure, "encode settlement", err)
	}

	gasPrice := p.gas.GasPrice(ctx)
	nonce := p.nonces.Next(ctx)

	plan := types.ExecutionPlan{
		Opportunity:  opp,
		LoanProvider: provider.Name(),
		LoanPool:     provider.Pool(),
		To:           p.settlement,
		EncodedCall:  data,
		GasLimit:     opp.GasEstimate,
		GasPrice:     gasPrice,
		Nonce:        nonce,
		Deadline:     p.now().Add(p.window),
	}

	p.logger.Info("Built execution plan",
		zap.String("opportunity", opp.ID),
		zap.String("loanProvider", plan.LoanProvider),
		zap.Uint64("nonce", nonce),
		zap.String("gasPrice", gasPrice.String()),
		zap.Uint64("gasLimit", plan.GasLimit))
	return plan, nil
}
