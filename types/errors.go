package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can decide whether to
// continue, degrade, or stop.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConfigInvalid
	KindQuoteUnavailable
	KindNoOpportunity
	KindScoringUnavailable
	KindPlanningFailure
	KindSigningFailure
	KindShieldFailure
	KindRelaySubmission
	KindReceiptTimeout
	KindTransactionReverted
	KindCancelled
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindNone:                "",
	KindConfigInvalid:       "ConfigInvalid",
	KindQuoteUnavailable:    "QuoteUnavailable",
	KindNoOpportunity:       "NoOpportunity",
	KindScoringUnavailable:  "ScoringUnavailable",
	KindPlanningFailure:     "PlanningFailure",
	KindSigningFailure:      "SigningFailure",
	KindShieldFailure:       "ShieldFailure",
	KindRelaySubmission:     "RelaySubmissionError",
	KindReceiptTimeout:      "ReceiptTimeout",
	KindTransactionReverted: "TransactionReverted",
	KindCancelled:           "Cancelled",
	KindInternal:            "Internal",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON reports.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PipelineError carries an ErrorKind through error wrapping.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches any PipelineError of the same kind, so the sentinels below work
// with errors.Is regardless of Op and Err.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrConfigInvalid       = &PipelineError{Kind: KindConfigInvalid}
	ErrQuoteUnavailable    = &PipelineError{Kind: KindQuoteUnavailable}
	ErrNoOpportunity       = &PipelineError{Kind: KindNoOpportunity}
	ErrScoringUnavailable  = &PipelineError{Kind: KindScoringUnavailable}
	ErrPlanningFailure     = &PipelineError{Kind: KindPlanningFailure}
	ErrSigningFailure      = &PipelineError{Kind: KindSigningFailure}
	ErrShieldFailure       = &PipelineError{Kind: KindShieldFailure}
	ErrRelaySubmission     = &PipelineError{Kind: KindRelaySubmission}
	ErrReceiptTimeout      = &PipelineError{Kind: KindReceiptTimeout}
	ErrTransactionReverted = &PipelineError{Kind: KindTransactionReverted}
	ErrCancelled           = &PipelineError{Kind: KindCancelled}
)

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) error {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
