package token

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"github.com/pysugar/launcher-accounts/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	err   error
	calls atomic.Int32
	// before runs inside Refresh, after the record was read.
	before func()
}

func (s *fakeSource) Refresh(ctx context.Context, refreshToken string) (*login.TokenGrant, error) {
	s.calls.Add(1)
	if s.before != nil {
		s.before()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &login.TokenGrant{
		AccessToken:  "new-access",
		RefreshToken: "new-" + refreshToken,
		ExpiresIn:    time.Hour,
	}, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRefresher(t *testing.T, src *fakeSource) (*Refresher, *credentials.Store) {
	t.Helper()
	store := credentials.NewStore(dbtest.Open(t), zap.NewNop())
	r := NewRefresher(store, src, zap.NewNop(),
		WithMargin(10*time.Minute),
		WithClock(func() time.Time { return testNow }))
	return r, store
}

func online(name string, expires time.Time, active bool) credentials.Credentials {
	return credentials.Credentials{
		Profile:      credentials.Profile{ID: uuid.New(), Name: name},
		AccessToken:  "access-" + name,
		RefreshToken: "refresh-" + name,
		Expires:      expires,
		Active:       active,
	}
}

func offline(t *testing.T, name string, active bool) credentials.Credentials {
	t.Helper()
	tok, err := credentials.NewOfflineToken()
	require.NoError(t, err)
	return credentials.Credentials{
		Profile:      credentials.Profile{ID: uuid.New(), Name: name},
		AccessToken:  tok,
		RefreshToken: tok,
		Expires:      testNow.Add(-time.Hour),
		Active:       active,
	}
}

func TestRefreshExpiring(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	r, store := newTestRefresher(t, src)

	expiring := online("Steve", testNow.Add(5*time.Minute), true)
	fresh := online("Alex", testNow.Add(2*time.Hour), false)
	off := offline(t, "Local", false)
	for _, c := range []credentials.Credentials{expiring, fresh, off} {
		require.NoError(t, store.Upsert(ctx, c))
	}

	n, err := r.RefreshExpiring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, src.calls.Load())

	got, err := store.Get(ctx, expiring.ID())
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "new-refresh-Steve", got.RefreshToken)
	assert.True(t, got.Expires.Equal(testNow.Add(time.Hour)))
	assert.True(t, got.Active)

	untouched, err := store.Get(ctx, off.ID())
	require.NoError(t, err)
	assert.Equal(t, off.AccessToken, untouched.AccessToken)
}

func TestRefreshExpiring_KeepsActiveFlag(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRefresher(t, &fakeSource{})

	active := online("Steve", testNow.Add(2*time.Hour), true)
	inactive := online("Alex", testNow.Add(time.Minute), false)
	require.NoError(t, store.Upsert(ctx, active))
	require.NoError(t, store.Upsert(ctx, inactive))

	_, err := r.RefreshExpiring(ctx)
	require.NoError(t, err)

	got, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.ID(), got.ID())
}

func TestRefreshExpiring_PermanentFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: &login.Rejection{Code: "invalid_grant"}}
	r, store := newTestRefresher(t, src)

	c := online("Steve", testNow.Add(-time.Minute), true)
	require.NoError(t, store.Upsert(ctx, c))

	n, err := r.RefreshExpiring(ctx)
	assert.Equal(t, 0, n)
	require.Error(t, err)
	var rej *login.Rejection
	assert.True(t, errors.As(err, &rej))

	got, err := store.Get(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.AccessToken, got.AccessToken)
	assert.True(t, got.Active)
}

func TestRefresh_DoesNotOverwriteNewerLogin(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	r, store := newTestRefresher(t, src)

	c := online("Steve", testNow.Add(time.Minute), true)
	require.NoError(t, store.Upsert(ctx, c))

	relogin := c
	relogin.AccessToken = "relogin-access"
	relogin.RefreshToken = "relogin-refresh"
	relogin.Expires = testNow.Add(3 * time.Hour)
	src.before = func() { require.NoError(t, store.Upsert(ctx, relogin)) }

	_, err := r.RefreshExpiring(ctx)
	require.NoError(t, err)

	got, err := store.Get(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, "relogin-access", got.AccessToken)
	assert.Equal(t, "relogin-refresh", got.RefreshToken)
}

func TestActiveCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		r, _ := newTestRefresher(t, &fakeSource{})
		got, err := r.ActiveCredentials(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("refreshes when due", func(t *testing.T) {
		src := &fakeSource{}
		r, store := newTestRefresher(t, src)
		require.NoError(t, store.Upsert(ctx, online("Steve", testNow.Add(time.Minute), true)))

		got, err := r.ActiveCredentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new-access", got.AccessToken)
	})

	t.Run("stale but valid on transient failure", func(t *testing.T) {
		src := &fakeSource{err: errors.New("connection reset")}
		r, store := newTestRefresher(t, src)
		require.NoError(t, store.Upsert(ctx, online("Steve", testNow.Add(time.Minute), true)))

		got, err := r.ActiveCredentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-Steve", got.AccessToken)
	})

	t.Run("expired and refresh fails", func(t *testing.T) {
		src := &fakeSource{err: errors.New("connection reset")}
		r, store := newTestRefresher(t, src)
		require.NoError(t, store.Upsert(ctx, online("Steve", testNow.Add(-time.Minute), true)))

		_, err := r.ActiveCredentials(ctx)
		require.Error(t, err)
	})

	t.Run("offline is never refreshed", func(t *testing.T) {
		src := &fakeSource{}
		r, store := newTestRefresher(t, src)
		off := offline(t, "Local", true)
		require.NoError(t, store.Upsert(ctx, off))

		got, err := r.ActiveCredentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, off.AccessToken, got.AccessToken)
		assert.Zero(t, src.calls.Load())
	})
}

func TestActiveCredentials_ConcurrentCallersShareRefresh(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	src := &fakeSource{before: func() { <-release }}
	r, store := newTestRefresher(t, src)
	require.NoError(t, store.Upsert(ctx, online("Steve", testNow.Add(time.Minute), true)))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.ActiveCredentials(ctx)
			assert.NoError(t, err)
			assert.Equal(t, "new-access", got.AccessToken)
		}()
	}
	// Give every caller time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
}

func TestStart_StopsWithContext(t *testing.T) {
	src := &fakeSource{}
	r, store := newTestRefresher(t, src)
	r.interval = 10 * time.Millisecond
	require.NoError(t, store.Upsert(context.Background(), online("Steve", testNow.Add(time.Minute), true)))

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.Eventually(t, func() bool { return src.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
