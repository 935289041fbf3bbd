// Package credentials persists launcher accounts and guarantees that at most
// one of them, and exactly one whenever any exist, is the active account.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/db/models"
)

// offlineTokenPrefix marks tokens minted locally for offline accounts.
// No identity provider issues tokens with this shape.
const offlineTokenPrefix = "offline."

// Profile is the display identity of an account.
type Profile struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	SkinURL string    `json:"skin_url,omitempty"`
}

// Credentials is one stored account.
type Credentials struct {
	Profile      Profile   `json:"profile"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expires      time.Time `json:"expires"`
	Active       bool      `json:"active"`
}

// ID returns the account identifier.
func (c Credentials) ID() uuid.UUID {
	return c.Profile.ID
}

// Offline reports whether the account was synthesized locally.
func (c Credentials) Offline() bool {
	return IsOfflineToken(c.AccessToken)
}

// ExpiresWithin reports whether the access token expires before now+d.
func (c Credentials) ExpiresWithin(now time.Time, d time.Duration) bool {
	return c.Expires.Before(now.Add(d))
}

// NewOfflineToken returns an unguessable local-only token.
func NewOfflineToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate offline token")
	}
	return offlineTokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// IsOfflineToken reports whether s was produced by NewOfflineToken.
func IsOfflineToken(s string) bool {
	return strings.HasPrefix(s, offlineTokenPrefix)
}

func toRow(c Credentials) models.Credential {
	row := models.Credential{
		ID:           c.Profile.ID.String(),
		Username:     c.Profile.Name,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expires:      c.Expires.UTC(),
		Active:       c.Active,
	}
	if c.Profile.SkinURL != "" {
		skin := c.Profile.SkinURL
		row.SkinURL = &skin
	}
	return row
}

func fromRow(row models.Credential) (Credentials, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "row %q has malformed id", row.ID)
	}
	c := Credentials{
		Profile:      Profile{ID: id, Name: row.Username},
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		Expires:      row.Expires.UTC(),
		Active:       row.Active,
	}
	if row.SkinURL != nil {
		c.Profile.SkinURL = *row.SkinURL
	}
	return c, nil
}
