package accounts

import (
	"context"

	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"go.uber.org/zap"
)

// Selector switches and removes the active account.
type Selector struct {
	store *credentials.Store
	log   *zap.Logger
}

func NewSelector(store *credentials.Store, log *zap.Logger) *Selector {
	return &Selector{store: store, log: log.Named("selector")}
}

// SetDefault makes id the active account. It fails with a
// *credentials.NotFoundError when id is not stored. Selecting the account
// that is already active leaves every record as it was.
func (s *Selector) SetDefault(ctx context.Context, id uuid.UUID) error {
	return s.store.Transaction(ctx, func(tx *credentials.Store) error {
		target, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if !target.Active {
			s.log.Info("🔀 Switching active account", zap.String("id", id.String()), zap.String("username", target.Profile.Name))
		}
		target.Active = true
		return tx.Upsert(ctx, *target)
	})
}

// RemoveUser deletes id. Unknown ids are a no-op. When the active account is
// removed the remaining account with the smallest id becomes active.
func (s *Selector) RemoveUser(ctx context.Context, id uuid.UUID) error {
	return s.store.Transaction(ctx, func(tx *credentials.Store) error {
		removed, err := tx.Remove(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			s.log.Debug("Remove of unknown account ignored", zap.String("id", id.String()))
			return nil
		}

		active, err := tx.GetActive(ctx)
		if err != nil {
			return err
		}
		fields := []zap.Field{zap.String("id", id.String())}
		if active != nil {
			fields = append(fields, zap.String("active", active.ID().String()))
		}
		s.log.Info("🗑️ Account removed", fields...)
		return nil
	})
}
