package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/michaelpento.lv/arbpipeline/types"
)

// Stage names as they appear in reports and metrics.
const (
	StageQuotes    = "quotes"
	StageDetect    = "detect"
	StageScore     = "score"
	StagePlan      = "plan"
	StageSign      = "sign"
	StageShield    = "shield"
	StageBroadcast = "broadcast"
)

// Stage is one step of the pipeline.
type Stage[In, Out any] interface {
	Name() string
	Run(ctx context.Context, in In) (Out, error)
}

type stageFunc[In, Out any] struct {
	name string
	fn   func(context.Context, In) (Out, error)
}

// NewStage adapts fn into a Stage.
func NewStage[In, Out any](name string, fn func(context.Context, In) (Out, error)) Stage[In, Out] {
	return stageFunc[In, Out]{name: name, fn: fn}
}

func (s stageFunc[In, Out]) Name() string { return s.name }

func (s stageFunc[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	return s.fn(ctx, in)
}

// Outcome is what running a stage produced.
type Outcome[Out any] struct {
	Stage   string
	Value   Out
	Err     error
	Elapsed time.Duration
}

// Execute runs stage. A panic is converted into an Internal error.
func Execute[In, Out any](ctx context.Context, stage Stage[In, Out], in In) (outcome Outcome[Out]) {
	outcome.Stage = stage.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			var zero Out
			outcome.Value = zero
			outcome.Err = types.NewError(types.KindInternal, stage.Name(),
				fmt.Errorf("stage panicked: %v\n%s", r, debug.Stack()))
		}
		outcome.Elapsed = time.Since(start)
	}()

	outcome.Value, outcome.Err = stage.Run(ctx, in)
	return outcome
}

// Action is what the orchestrator does after a failed stage.
type Action int

const (
	// Continue proceeds with whatever the stage produced.
	Continue Action = iota
	// StopLane abandons the current opportunity only.
	StopLane
	// StopRound abandons every remaining stage of the round.
	StopRound
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case StopLane:
		return "stop-lane"
	case StopRound:
		return "stop-round"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

var policy = map[types.ErrorKind]Action{
	types.KindQuoteUnavailable:    Continue,
	types.KindScoringUnavailable:  Continue,
	types.KindNoOpportunity:       StopRound,
	types.KindShieldFailure:       StopRound,
	types.KindCancelled:           StopRound,
	types.KindPlanningFailure:     StopLane,
	types.KindSigningFailure:      StopLane,
	types.KindRelaySubmission:     StopLane,
	types.KindReceiptTimeout:      StopLane,
	types.KindTransactionReverted: StopLane,
	types.KindInternal:            StopLane,
}

// Decide looks up the action for a failure of the given kind. Unknown kinds
// stop the lane.
func Decide(kind types.ErrorKind) Action {
	if action, ok := policy[kind]; ok {
		return action
	}
	return StopLane
}
