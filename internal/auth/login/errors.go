package login

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrFlowExpired is wrapped by a *FlowError when finish is called after the flow's expiry.
	ErrFlowExpired = errors.New("login flow expired")

	// ErrFlowConsumed is wrapped by a *FlowError when the flow was never issued or was already finished.
	ErrFlowConsumed = errors.New("login flow already used or unknown")

	// ErrFlowRejected is wrapped by a *FlowError when the code or the exchange was refused.
	ErrFlowRejected = errors.New("login flow rejected")

	// ErrProvider matches any *ProviderError.
	ErrProvider = errors.New("identity provider failure")
)

// FlowError reports a login flow that cannot complete. The caller must begin a new flow.
type FlowError struct {
	FlowID uuid.UUID
	Reason string
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("login flow %s: %s", e.FlowID, e.Reason)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// ProviderError reports a transport or availability failure talking to the identity provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return "identity provider " + e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Rejection is a structured refusal returned by the identity provider,
// for example an invalid code or a denied authorization.
type Rejection struct {
	Code        string
	Description string
}

func (r *Rejection) Error() string {
	if r.Description == "" {
		return r.Code
	}
	return r.Code + ": " + r.Description
}
