package login

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"go.uber.org/zap"
)

const (
	// DefaultFlowLifetime applies when the provider omits expires_in.
	DefaultFlowLifetime = 15 * time.Minute
	// DefaultPollInterval applies when the provider omits interval (RFC 8628 §3.2).
	DefaultPollInterval = 5 * time.Second
)

// CredentialWriter receives the credentials of a finished login.
type CredentialWriter interface {
	Upsert(ctx context.Context, c credentials.Credentials) error
}

// Engine issues and finishes login flows.
type Engine struct {
	provider Provider
	store    CredentialWriter
	log      *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	flows map[uuid.UUID]*tracked // issued flows until their expiry passes
}

type tracked struct {
	flow  Flow
	state State
	// claimed is set while a Finish call is exchanging the code.
	claimed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine that stores finished logins in store.
func NewEngine(provider Provider, store CredentialWriter, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		store:    store,
		log:      log.Named("login"),
		now:      time.Now,
		flows:    make(map[uuid.UUID]*tracked),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin requests a device code and returns a pending flow.
// No credentials are touched.
func (e *Engine) Begin(ctx context.Context) (Flow, error) {
	da, err := e.provider.DeviceCode(ctx)
	if err != nil {
		e.log.Warn("⚠️ Device code request failed", zap.Error(err))
		return Flow{}, &ProviderError{Op: "device code", Err: err}
	}
	if da.DeviceCode == "" || da.UserCode == "" || da.VerificationURI == "" {
		return Flow{}, &ProviderError{Op: "device code", Err: errors.New("incomplete device authorization response")}
	}

	lifetime := da.ExpiresIn
	if lifetime <= 0 {
		lifetime = DefaultFlowLifetime
	}
	interval := da.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	now := e.now().UTC()
	flow := Flow{
		ID:                      uuid.New(),
		DeviceCode:              da.DeviceCode,
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		IssuedAt:                now,
		ExpiresAt:               now.Add(lifetime),
		Interval:                interval,
		State:                   StatePending,
	}

	e.mu.Lock()
	e.pruneLocked(now)
	e.flows[flow.ID] = &tracked{flow: flow, state: StatePending}
	e.mu.Unlock()

	e.log.Info("🔐 Login flow started",
		zap.String("flow", flow.ID.String()),
		zap.String("user_code", flow.UserCode),
		zap.Time("expires_at", flow.ExpiresAt))
	return flow, nil
}

// Finish redeems code for the given flow, stores the resulting credentials
// as the active account and returns them.
//
// Expiry is checked locally before the provider is contacted. The flow is
// retired by the first Finish call that reaches it, whether or not the
// exchange succeeds.
func (e *Engine) Finish(ctx context.Context, code string, flow Flow) (*credentials.Credentials, error) {
	now := e.now()
	if flow.Expired(now) {
		e.expire(flow, now)
		e.log.Info("⌛ Login flow expired", zap.String("flow", flow.ID.String()))
		return nil, &FlowError{FlowID: flow.ID, Reason: "expired", Err: ErrFlowExpired}
	}

	if err := e.claim(flow, now); err != nil {
		return nil, err
	}
	creds, err := e.exchange(ctx, code, flow)
	if err != nil {
		e.settle(flow.ID, StateFailed)
		return nil, err
	}
	e.settle(flow.ID, StateAuthorized)
	return creds, nil
}

func (e *Engine) exchange(ctx context.Context, code string, flow Flow) (*credentials.Credentials, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &FlowError{FlowID: flow.ID, Reason: "empty code", Err: ErrFlowRejected}
	}
	if credentials.IsOfflineToken(code) {
		return nil, &FlowError{FlowID: flow.ID, Reason: "offline token is not a login code", Err: ErrFlowRejected}
	}

	grant, err := e.provider.Exchange(ctx, code, flow.DeviceCode)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			e.log.Info("🚫 Login rejected by provider", zap.String("flow", flow.ID.String()), zap.String("reason", rej.Error()))
			return nil, &FlowError{FlowID: flow.ID, Reason: rej.Error(), Err: errors.Wrap(ErrFlowRejected, rej.Error())}
		}
		e.log.Warn("⚠️ Code exchange failed", zap.String("flow", flow.ID.String()), zap.Error(err))
		return nil, &ProviderError{Op: "exchange", Err: err}
	}
	if grant.AccessToken == "" || grant.Profile.ID == uuid.Nil {
		return nil, &ProviderError{Op: "exchange", Err: errors.New("token response without access token or profile id")}
	}

	creds := credentials.Credentials{
		Profile:      grant.Profile,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Expires:      GrantExpiry(grant, e.now()),
		Active:       true,
	}
	if err := e.store.Upsert(ctx, creds); err != nil {
		return nil, err
	}

	e.log.Info("✅ Login finished",
		zap.String("flow", flow.ID.String()),
		zap.String("account", creds.ID().String()),
		zap.String("username", creds.Profile.Name))
	return &creds, nil
}

// Status reports the state of a flow this engine issued. Flows are forgotten
// once their expiry passes and a later Begin prunes them.
func (e *Engine) Status(id uuid.UUID) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.flows[id]
	if !ok {
		return "", false
	}
	switch {
	case t.claimed:
		return StatePending, true
	case t.state == StatePending && t.flow.Expired(e.now()):
		return StateExpired, true
	}
	return t.state, true
}

// Pending returns the number of flows that can still be finished.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	n := 0
	for _, t := range e.flows {
		if t.state == StatePending && !t.claimed && !t.flow.Expired(now) {
			n++
		}
	}
	return n
}

// claim reserves a pending flow for one Finish call. The flow keeps reporting
// pending until settle records the outcome of the exchange.
// The issued copy is authoritative: a caller cannot extend a flow by editing
// the value it holds.
func (e *Engine) claim(flow Flow, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.flows[flow.ID]
	if !ok {
		return &FlowError{FlowID: flow.ID, Reason: "unknown flow", Err: ErrFlowConsumed}
	}
	if t.flow.DeviceCode != flow.DeviceCode {
		return &FlowError{FlowID: flow.ID, Reason: "flow does not match the issued one", Err: ErrFlowRejected}
	}
	if t.claimed {
		return &FlowError{FlowID: flow.ID, Reason: "already in progress", Err: ErrFlowConsumed}
	}
	if t.state != StatePending {
		return &FlowError{FlowID: flow.ID, Reason: "already used (" + string(t.state) + ")", Err: ErrFlowConsumed}
	}
	if t.flow.Expired(now) {
		t.state = StateExpired
		return &FlowError{FlowID: flow.ID, Reason: "expired", Err: ErrFlowExpired}
	}
	t.claimed = true
	return nil
}

// expire retires the issued flow matching flow once its own expiry has
// passed. A copy that does not match the issued one changes nothing.
func (e *Engine) expire(flow Flow, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.flows[flow.ID]
	if !ok || t.claimed || t.state != StatePending {
		return
	}
	if t.flow.DeviceCode == flow.DeviceCode && t.flow.Expired(now) {
		t.state = StateExpired
	}
}

// settle records the outcome of a claimed flow. Unknown ids are ignored.
func (e *Engine) settle(id uuid.UUID, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.flows[id]; ok {
		t.claimed = false
		t.state = state
	}
}

func (e *Engine) pruneLocked(now time.Time) {
	for id, t := range e.flows {
		if t.flow.Expired(now) {
			delete(e.flows, id)
		}
	}
}

// GrantExpiry resolves the absolute expiry of a grant received at now.
func GrantExpiry(g *TokenGrant, now time.Time) time.Time {
	if !g.Expiry.IsZero() {
		return g.Expiry.UTC()
	}
	if g.ExpiresIn > 0 {
		return now.Add(g.ExpiresIn).UTC()
	}
	// No lifetime advertised: treat as immediately due for refresh.
	return now.UTC()
}
