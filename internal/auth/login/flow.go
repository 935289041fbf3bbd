// Package login drives the device-code login against the identity provider.
//
// A flow is handed to the caller as a plain value. The caller shows the user
// code, the user authorizes out of band, and the caller redeems the one-time
// code with Finish. Each flow can be finished at most once.
package login

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/credentials"
)

// State is the lifecycle position of a flow.
type State string

const (
	StatePending    State = "pending"
	StateAuthorized State = "authorized"
	StateExpired    State = "expired"
	StateFailed     State = "failed"
)

// Flow is one in-progress login attempt.
type Flow struct {
	ID                      uuid.UUID     `json:"id"`
	DeviceCode              string        `json:"device_code"`
	UserCode                string        `json:"user_code"`
	VerificationURI         string        `json:"verification_uri"`
	VerificationURIComplete string        `json:"verification_uri_complete,omitempty"`
	IssuedAt                time.Time     `json:"issued_at"`
	ExpiresAt               time.Time     `json:"expires_at"`
	Interval                time.Duration `json:"interval"`
	State                   State         `json:"state"`
}

// Expired reports whether the flow can no longer be finished at now.
func (f Flow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// DeviceAuthorization is the provider's answer to a device-code request.
type DeviceAuthorization struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               time.Duration
	Interval                time.Duration
}

// TokenGrant is the provider's answer to a code exchange or refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time // zero when the provider only sent ExpiresIn
	ExpiresIn    time.Duration
	Profile      credentials.Profile
}

// Provider is the external identity provider. Structured refusals are
// returned as *Rejection; every other error is treated as transport failure.
type Provider interface {
	DeviceCode(ctx context.Context) (*DeviceAuthorization, error)
	Exchange(ctx context.Context, code, deviceCode string) (*TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}
