// Package oauth implements the login.Provider contract on top of
// golang.org/x/oauth2: RFC 8628 device authorization, a single-shot code
// exchange and refresh-token grants.
package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"github.com/pysugar/launcher-accounts/internal/util"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var _ login.Provider = (*Provider)(nil)

// Provider talks to the identity provider. It keeps no per-flow state.
type Provider struct {
	oauth      *oauth2.Config
	profileURL string
	httpClient *http.Client
	log        *zap.Logger
}

// NewProvider builds a provider. A nil httpClient gets a 30s-timeout client.
func NewProvider(cfg Config, httpClient *http.Client, log *zap.Logger) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{
		oauth:      cfg.OAuthConfig(),
		profileURL: cfg.ProfileURL,
		httpClient: httpClient,
		log:        log.Named("oauth"),
	}
}

func (p *Provider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// DeviceCode requests a device and user code.
func (p *Provider) DeviceCode(ctx context.Context) (*login.DeviceAuthorization, error) {
	resp, err := p.oauth.DeviceAuth(p.context(ctx))
	if err != nil {
		return nil, classify(err)
	}

	da := &login.DeviceAuthorization{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Interval:                time.Duration(resp.Interval) * time.Second,
	}
	if !resp.Expiry.IsZero() {
		da.ExpiresIn = time.Until(resp.Expiry).Round(time.Second)
	}
	return da, nil
}

// Exchange redeems the one-time code issued for deviceCode. It makes exactly
// one token request and never polls.
func (p *Provider) Exchange(ctx context.Context, code, deviceCode string) (*login.TokenGrant, error) {
	ctx = p.context(ctx)
	tok, err := p.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("device_code", deviceCode))
	if err != nil {
		return nil, classify(err)
	}

	profile, err := p.profile(ctx, tok)
	if err != nil {
		return nil, err
	}
	return grantFromToken(tok, profile), nil
}

// Refresh trades a refresh token for a new access token. The profile of the
// returned grant is filled only when the provider embeds one.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*login.TokenGrant, error) {
	tok, err := p.oauth.TokenSource(p.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classify(err)
	}
	profile, _ := embeddedProfile(tok)
	grant := grantFromToken(tok, profile)
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

func grantFromToken(tok *oauth2.Token, profile credentials.Profile) *login.TokenGrant {
	g := &login.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Profile:      profile,
	}
	if tok.ExpiresIn > 0 {
		g.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	}
	return g
}

type profilePayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SkinURL string `json:"skin_url"`
}

func (pp profilePayload) toProfile() (credentials.Profile, error) {
	id, err := uuid.Parse(pp.ID)
	if err != nil {
		return credentials.Profile{}, errors.Wrapf(err, "profile id %q", pp.ID)
	}
	return credentials.Profile{ID: id, Name: pp.Name, SkinURL: pp.SkinURL}, nil
}

// embeddedProfile reads the "profile" object some providers return next to the tokens.
func embeddedProfile(tok *oauth2.Token) (credentials.Profile, bool) {
	raw, ok := tok.Extra("profile").(map[string]interface{})
	if !ok {
		return credentials.Profile{}, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return credentials.Profile{}, false
	}
	var pp profilePayload
	if err := json.Unmarshal(b, &pp); err != nil {
		return credentials.Profile{}, false
	}
	profile, err := pp.toProfile()
	if err != nil {
		return credentials.Profile{}, false
	}
	return profile, true
}

func (p *Provider) profile(ctx context.Context, tok *oauth2.Token) (credentials.Profile, error) {
	if profile, ok := embeddedProfile(tok); ok {
		return profile, nil
	}
	if p.profileURL == "" {
		return credentials.Profile{}, errors.New("token response carries no profile and no profile URL is configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return credentials.Profile{}, errors.Wrap(err, "build profile request")
	}
	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return credentials.Profile{}, errors.Wrap(err, "fetch profile")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.log.Warn("⚠️ Profile lookup failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", util.TruncateBytes(body)))
		if resp.StatusCode == http.StatusNotFound {
			return credentials.Profile{}, &login.Rejection{Code: "no_profile", Description: "account has no game profile"}
		}
		return credentials.Profile{}, errors.Newf("profile lookup returned %d", resp.StatusCode)
	}

	var pp profilePayload
	if err := json.NewDecoder(resp.Body).Decode(&pp); err != nil {
		return credentials.Profile{}, errors.Wrap(err, "decode profile")
	}
	return pp.toProfile()
}

// classify turns structured OAuth errors into rejections and leaves
// everything else as a transport failure.
func classify(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if re.ErrorCode == "" && (status < 400 || status >= 500) {
		return err
	}

	rej := &login.Rejection{Code: re.ErrorCode, Description: re.ErrorDescription}
	if rej.Code == "" {
		rej.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return rej
}

// IsPermanent reports whether err means the refresh token is no longer usable
// and the user has to log in again.
func IsPermanent(err error) bool {
	var rej *login.Rejection
	if !errors.As(err, &rej) {
		return false
	}
	switch rej.Code {
	case "invalid_grant", "invalid_client", "unauthorized_client", "access_denied", "expired_token":
		return true
	}
	return strings.Contains(strings.ToLower(rej.Description), "revoked")
}
