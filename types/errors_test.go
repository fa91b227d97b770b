package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwraps(t *testing.T) {
	base := NewError(KindReceiptTimeout, "wait receipt", errors.New("60s elapsed"))
	wrapped := fmt.Errorf("broadcast: %w", base)

	assert.Equal(t, KindReceiptTimeout, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrReceiptTimeout))
	assert.False(t, errors.Is(wrapped, ErrRelaySubmission))
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestPipelineErrorMessage(t *testing.T) {
	tests := []struct {
		err  *PipelineError
		want string
	}{
		{&PipelineError{Kind: KindSigningFailure, Op: "sign", Err: errors.New("bad key")}, "sign: SigningFailure: bad key"},
		{&PipelineError{Kind: KindShieldFailure, Err: errors.New("empty")}, "ShieldFailure: empty"},
		{&PipelineError{Kind: KindCancelled, Op: "wait"}, "wait: Cancelled"},
		{ErrNoOpportunity, "NoOpportunity"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestErrorKindText(t *testing.T) {
	text, err := KindRelaySubmission.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "RelaySubmissionError", string(text))
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindQuoteUnavailable, "fetch", cause)
	assert.ErrorIs(t, err, cause)
}
