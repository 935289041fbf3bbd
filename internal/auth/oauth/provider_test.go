package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestProvider(t *testing.T, mux *http.ServeMux) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	p := NewProvider(Config{
		ClientID:      "launcher",
		DeviceAuthURL: srv.URL + "/devicecode",
		TokenURL:      srv.URL + "/token",
		ProfileURL:    srv.URL + "/profile",
	}, srv.Client(), zap.NewNop())
	return p, srv
}

func TestDeviceCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "launcher", r.PostForm.Get("client_id"))
		assert.Equal(t, "XboxLive.signin offline_access", r.PostForm.Get("scope"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"device_code":      "dc-1",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://login.example/device",
			"expires_in":       900,
			"interval":         5,
		})
	})
	p, _ := newTestProvider(t, mux)

	da, err := p.DeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dc-1", da.DeviceCode)
	assert.Equal(t, "ABCD-1234", da.UserCode)
	assert.Equal(t, "https://login.example/device", da.VerificationURI)
	assert.Equal(t, 5*time.Second, da.Interval)
	assert.InDelta(t, float64(900*time.Second), float64(da.ExpiresIn), float64(2*time.Second))
}

func TestDeviceCode_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client"})
	})
	p, _ := newTestProvider(t, mux)

	_, err := p.DeviceCode(context.Background())
	var rej *login.Rejection
	require.True(t, errors.As(err, &rej), "got %v", err)
}

func TestExchange_EmbeddedProfile(t *testing.T) {
	id := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "one-time", r.PostForm.Get("code"))
		assert.Equal(t, "dc-1", r.PostForm.Get("device_code"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  "at",
			"token_type":    "Bearer",
			"refresh_token": "rt",
			"expires_in":    3600,
			"profile":       map[string]string{"id": id.String(), "name": "Steve", "skin_url": "https://skins.example/steve.png"},
		})
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		t.Error("profile endpoint should not be called when the token embeds a profile")
	})
	p, _ := newTestProvider(t, mux)

	grant, err := p.Exchange(context.Background(), "one-time", "dc-1")
	require.NoError(t, err)
	assert.Equal(t, "at", grant.AccessToken)
	assert.Equal(t, "rt", grant.RefreshToken)
	assert.Equal(t, id, grant.Profile.ID)
	assert.Equal(t, "Steve", grant.Profile.Name)
	assert.Equal(t, "https://skins.example/steve.png", grant.Profile.SkinURL)
	assert.WithinDuration(t, time.Now().Add(time.Hour), grant.Expiry, 5*time.Second)
}

func TestExchange_ProfileEndpoint(t *testing.T) {
	id := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		// Undashed ids are accepted too.
		writeJSON(w, http.StatusOK, map[string]string{"id": id.String()[:8] + id.String()[9:13] + id.String()[14:18] + id.String()[19:23] + id.String()[24:], "name": "Alex"})
	})
	p, _ := newTestProvider(t, mux)

	grant, err := p.Exchange(context.Background(), "one-time", "dc-1")
	require.NoError(t, err)
	assert.Equal(t, id, grant.Profile.ID)
	assert.Equal(t, "Alex", grant.Profile.Name)
}

func TestExchange_NoGameProfileIsRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "at", "token_type": "Bearer"})
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	p, _ := newTestProvider(t, mux)

	_, err := p.Exchange(context.Background(), "one-time", "dc-1")
	var rej *login.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "no_profile", rej.Code)
}

func TestExchange_InvalidGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "code already redeemed",
		})
	})
	p, _ := newTestProvider(t, mux)

	_, err := p.Exchange(context.Background(), "one-time", "dc-1")
	var rej *login.Rejection
	require.True(t, errors.As(err, &rej), "got %v", err)
	assert.Equal(t, "invalid_grant", rej.Code)
	assert.Equal(t, "code already redeemed", rej.Description)
	assert.True(t, IsPermanent(err))
}

func TestExchange_ServerErrorIsTransport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	p, _ := newTestProvider(t, mux)

	_, err := p.Exchange(context.Background(), "one-time", "dc-1")
	require.Error(t, err)
	var rej *login.Rejection
	assert.False(t, errors.As(err, &rej))
}

func TestExchange_Unreachable(t *testing.T) {
	p, srv := newTestProvider(t, http.NewServeMux())
	srv.Close()

	_, err := p.Exchange(context.Background(), "one-time", "dc-1")
	require.Error(t, err)
	var rej *login.Rejection
	assert.False(t, errors.As(err, &rej))
}

func TestRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "at-new",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	p, _ := newTestProvider(t, mux)

	grant, err := p.Refresh(context.Background(), "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "at-new", grant.AccessToken)
	assert.Equal(t, "rt-old", grant.RefreshToken)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "invalid grant", err: &login.Rejection{Code: "invalid_grant"}, permanent: true},
		{name: "revoked", err: &login.Rejection{Code: "bad_request", Description: "Token has been expired or revoked"}, permanent: true},
		{name: "slow down", err: &login.Rejection{Code: "slow_down"}, permanent: false},
		{name: "timeout", err: errors.New("context deadline exceeded"), permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.permanent, IsPermanent(tt.err))
		})
	}
}

func TestOAuthConfigDefaults(t *testing.T) {
	cfg := Config{ClientID: " id "}.OAuthConfig()
	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, DefaultTokenURL, cfg.Endpoint.TokenURL)
	assert.Equal(t, DefaultDeviceAuthURL, cfg.Endpoint.DeviceAuthURL)
	assert.Equal(t, DefaultScopes, cfg.Scopes)
}
