// Package accounts is the entry point the launcher uses to log in, list,
// switch, remove and create accounts.
package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/pysugar/launcher-accounts/internal/auth/token"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"github.com/pysugar/launcher-accounts/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the handle obtained once at startup. Every operation goes
// through it; Close releases the database.
type Service struct {
	db        *gorm.DB
	store     *credentials.Store
	engine    *login.Engine
	selector  *Selector
	offline   *OfflineFactory
	refresher *token.Refresher
	log       *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

type serviceOptions struct {
	now         func() time.Time
	loginOpts   []login.Option
	refreshOpts []token.Option
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithClock replaces time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithLoginOptions passes options to the login engine.
func WithLoginOptions(opts ...login.Option) Option {
	return func(o *serviceOptions) { o.loginOpts = append(o.loginOpts, opts...) }
}

// WithRefreshOptions passes options to the token refresher.
func WithRefreshOptions(opts ...token.Option) Option {
	return func(o *serviceOptions) { o.refreshOpts = append(o.refreshOpts, opts...) }
}

// NewService wires the components over an opened and migrated database.
func NewService(database *gorm.DB, provider login.Provider, log *zap.Logger, opts ...Option) *Service {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	store := credentials.NewStore(database, log)
	offline := NewOfflineFactory(store, log)
	offline.now = o.now

	return &Service{
		db:        database,
		store:     store,
		engine:    login.NewEngine(provider, store, log, append([]login.Option{login.WithClock(o.now)}, o.loginOpts...)...),
		selector:  NewSelector(store, log),
		offline:   offline,
		refresher: token.NewRefresher(store, provider, log, append([]token.Option{token.WithClock(o.now)}, o.refreshOpts...)...),
		log:       log.Named("accounts"),
	}
}

// BeginLogin starts a device-code login.
func (s *Service) BeginLogin(ctx context.Context) (login.Flow, error) {
	return s.engine.Begin(ctx)
}

// FinishLogin redeems code for flow and stores the account as active.
func (s *Service) FinishLogin(ctx context.Context, code string, flow login.Flow) (*credentials.Credentials, error) {
	return s.engine.Finish(ctx, code, flow)
}

// LoginStatus reports the state of a flow started by BeginLogin.
func (s *Service) LoginStatus(id uuid.UUID) (login.State, bool) {
	return s.engine.Status(id)
}

// GetDefaultUser returns the id of the active account. The boolean is false
// when no account is stored.
func (s *Service) GetDefaultUser(ctx context.Context) (uuid.UUID, bool, error) {
	active, err := s.store.GetActive(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	if active == nil {
		return uuid.Nil, false, nil
	}
	return active.ID(), true, nil
}

// SetDefaultUser makes id the active account.
func (s *Service) SetDefaultUser(ctx context.Context, id uuid.UUID) error {
	return s.selector.SetDefault(ctx, id)
}

// RemoveUser deletes id. Unknown ids are ignored.
func (s *Service) RemoveUser(ctx context.Context, id uuid.UUID) error {
	return s.selector.RemoveUser(ctx, id)
}

// ListUsers returns every stored account ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]credentials.Credentials, error) {
	return s.store.GetAll(ctx)
}

// CreateOfflineCredentials creates an offline account and makes it active.
func (s *Service) CreateOfflineCredentials(ctx context.Context, username string) (*credentials.Credentials, error) {
	return s.offline.Create(ctx, username)
}

// ActiveCredentials returns the active account with a usable access token,
// refreshing it when it is about to expire.
func (s *Service) ActiveCredentials(ctx context.Context) (*credentials.Credentials, error) {
	return s.refresher.ActiveCredentials(ctx)
}

// Refresher exposes the background refresher so callers can Start it.
func (s *Service) Refresher() *token.Refresher {
	return s.refresher
}

// Close releases the database. Further calls return the first result.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = db.Close(s.db)
		s.log.Info("👋 Account service closed")
	})
	return s.closeErr
}
