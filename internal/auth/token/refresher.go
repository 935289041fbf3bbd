// Package token keeps stored online credentials fresh.
package token

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultInterval = 15 * time.Minute
	DefaultMargin   = 20 * time.Minute
)

// Source trades a refresh token for a new grant. login.Provider satisfies it.
type Source interface {
	Refresh(ctx context.Context, refreshToken string) (*login.TokenGrant, error)
}

// Refresher renews online credentials that are close to expiry.
// Offline accounts are never touched.
type Refresher struct {
	store     *credentials.Store
	source    Source
	log       *zap.Logger
	interval  time.Duration
	margin    time.Duration
	permanent func(error) bool
	now       func() time.Time

	group singleflight.Group
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithInterval sets how often Start scans the store.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMargin sets how close to expiry a token must be to get refreshed.
func WithMargin(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.margin = d
		}
	}
}

// WithPermanent sets the classifier for errors that require a new login.
func WithPermanent(fn func(error) bool) Option {
	return func(r *Refresher) { r.permanent = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a refresher over store.
func NewRefresher(store *credentials.Store, source Source, log *zap.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		store:    store,
		source:   source,
		log:      log.Named("refresh"),
		interval: DefaultInterval,
		margin:   DefaultMargin,
		permanent: func(err error) bool {
			var rej *login.Rejection
			return errors.As(err, &rej)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start scans the store every interval until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.log.Info("🛑 Token refresh loop stopped")
				return
			case <-ticker.C:
				if _, err := r.RefreshExpiring(ctx); err != nil {
					r.log.Warn("⚠️ Refresh pass finished with errors", zap.Error(err))
				}
			}
		}
	}()
	r.log.Info("🔄 Token refresh loop started", zap.Duration("interval", r.interval), zap.Duration("margin", r.margin))
}

// RefreshExpiring refreshes every online record expiring within the margin
// and returns how many were renewed. Failures of single records are combined
// into the returned error; the remaining records are still processed.
func (r *Refresher) RefreshExpiring(ctx context.Context) (int, error) {
	all, err := r.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	now := r.now()
	var (
		refreshed int
		combined  error
	)
	for _, c := range all {
		if !r.due(c, now) {
			continue
		}
		if _, err := r.refresh(ctx, c.ID()); err != nil {
			combined = errors.CombineErrors(combined, err)
			continue
		}
		refreshed++
	}
	return refreshed, combined
}

// ActiveCredentials returns the active record, refreshing it first when it is
// about to expire. A failed refresh still returns the stored record while its
// token has not expired yet. It returns nil when the store is empty.
func (r *Refresher) ActiveCredentials(ctx context.Context) (*credentials.Credentials, error) {
	active, err := r.store.GetActive(ctx)
	if err != nil || active == nil {
		return active, err
	}
	now := r.now()
	if !r.due(*active, now) {
		return active, nil
	}

	fresh, err := r.refresh(ctx, active.ID())
	if err != nil {
		if active.Expires.After(now) {
			return active, nil
		}
		return nil, err
	}
	return fresh, nil
}

func (r *Refresher) due(c credentials.Credentials, now time.Time) bool {
	return !c.Offline() && c.RefreshToken != "" && c.ExpiresWithin(now, r.margin)
}

// refresh renews one record. Concurrent calls for the same id share a result.
func (r *Refresher) refresh(ctx context.Context, id uuid.UUID) (*credentials.Credentials, error) {
	v, err, _ := r.group.Do(id.String(), func() (interface{}, error) {
		return r.refreshOne(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*credentials.Credentials), nil
}

func (r *Refresher) refreshOne(ctx context.Context, id uuid.UUID) (*credentials.Credentials, error) {
	current, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Offline() {
		return current, nil
	}

	grant, err := r.source.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if r.permanent(err) {
			r.log.Error("🔒 Refresh token rejected, re-login required",
				zap.String("account", id.String()),
				zap.String("username", current.Profile.Name),
				zap.Error(err))
		} else {
			r.log.Warn("⏳ Transient refresh failure, will retry",
				zap.String("account", id.String()),
				zap.Error(err))
		}
		return nil, errors.Wrapf(err, "refresh %s", id)
	}

	// The provider call ran outside any transaction; re-read so a concurrent
	// login, removal or default switch is not overwritten.
	var saved *credentials.Credentials
	err = r.store.Transaction(ctx, func(tx *credentials.Store) error {
		latest, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if latest.RefreshToken != current.RefreshToken {
			r.log.Info("↪️ Record changed during refresh, keeping newer tokens", zap.String("account", id.String()))
			saved = latest
			return nil
		}

		latest.AccessToken = grant.AccessToken
		if grant.RefreshToken != "" {
			latest.RefreshToken = grant.RefreshToken
		}
		latest.Expires = login.GrantExpiry(grant, r.now())
		if grant.Profile.ID == id {
			latest.Profile = grant.Profile
		}
		if err := tx.Upsert(ctx, *latest); err != nil {
			return err
		}
		saved = latest
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("✅ Refreshed token",
		zap.String("account", id.String()),
		zap.Time("expires", saved.Expires))
	return saved, nil
}
