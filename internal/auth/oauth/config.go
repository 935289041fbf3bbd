package oauth

import (
	"strings"

	"golang.org/x/oauth2"
)

// Default endpoints of the Microsoft consumer tenant, which fronts game account sign-in.
const (
	DefaultAuthURL       = "https://login.microsoftonline.com/consumers/oauth2/v2.0/authorize"
	DefaultDeviceAuthURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	DefaultTokenURL      = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{
	"XboxLive.signin",
	"offline_access",
}

// Config describes the identity provider endpoints and client identity.
type Config struct {
	ClientID      string
	ClientSecret  string
	AuthURL       string
	DeviceAuthURL string
	TokenURL      string
	// ProfileURL is queried with the new access token when the token
	// response does not embed a "profile" object.
	ProfileURL string
	Scopes     []string
}

// OAuthConfig returns the oauth2 configuration for the provider, filling in defaults.
func (c Config) OAuthConfig() *oauth2.Config {
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       orDefault(c.AuthURL, DefaultAuthURL),
			DeviceAuthURL: orDefault(c.DeviceAuthURL, DefaultDeviceAuthURL),
			TokenURL:      orDefault(c.TokenURL, DefaultTokenURL),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
