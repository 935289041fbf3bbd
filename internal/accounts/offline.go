package accounts

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"go.uber.org/zap"
)

const (
	// MaxUsernameLength matches the game's own limit for player names.
	MaxUsernameLength = 16
	// OfflineLifetime keeps offline tokens out of refresh logic.
	OfflineLifetime = 100 * 365 * 24 * time.Hour
)

// CredentialUpserter stores a record and enforces the single-active rule.
type CredentialUpserter interface {
	Upsert(ctx context.Context, c credentials.Credentials) error
}

// OfflineFactory creates accounts that never talk to the identity provider.
type OfflineFactory struct {
	store CredentialUpserter
	log   *zap.Logger
	now   func() time.Time
}

func NewOfflineFactory(store CredentialUpserter, log *zap.Logger) *OfflineFactory {
	return &OfflineFactory{store: store, log: log.Named("offline"), now: time.Now}
}

// Create stores a new active offline account for username and returns it.
func (f *OfflineFactory) Create(ctx context.Context, username string) (*credentials.Credentials, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	access, err := credentials.NewOfflineToken()
	if err != nil {
		return nil, err
	}
	refresh, err := credentials.NewOfflineToken()
	if err != nil {
		return nil, err
	}

	c := credentials.Credentials{
		Profile:      credentials.Profile{ID: uuid.New(), Name: name},
		AccessToken:  access,
		RefreshToken: refresh,
		Expires:      f.now().Add(OfflineLifetime).UTC(),
		Active:       true,
	}
	if err := f.store.Upsert(ctx, c); err != nil {
		return nil, err
	}

	f.log.Info("👤 Offline account created", zap.String("id", c.ID().String()), zap.String("username", name))
	return &c, nil
}

// NormalizeUsername trims username and validates the result.
func NormalizeUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return "", errors.Wrap(ErrInvalidUsername, "username is empty")
	}
	if n := utf8.RuneCountInString(name); n > MaxUsernameLength {
		return "", errors.Wrapf(ErrInvalidUsername, "username has %d characters, at most %d allowed", n, MaxUsernameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errors.Wrap(ErrInvalidUsername, "username contains control characters")
		}
	}
	return name, nil
}
