package credentials

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the persistent mapping from account id to Credentials.
//
// Every mutating method runs in a single storage transaction and leaves the
// table with zero active rows when it is empty and exactly one otherwise.
// When no row is active the one with the smallest id is promoted.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewStore wraps an opened and migrated database.
func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log.Named("store")}
}

// Transaction runs fn against a Store bound to one storage transaction.
// Calls made through the Store passed to fn join that transaction; nested
// Transaction calls become savepoints. Errors returned by fn are passed
// through unchanged after rollback.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&Store{db: tx, log: s.log})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return storeErr("commit", err)
}

// Upsert inserts c or replaces the stored record with the same id. When c is
// active every other record is deactivated within the same transaction.
func (s *Store) Upsert(ctx context.Context, c Credentials) error {
	if c.ID() == uuid.Nil {
		return &StoreError{Op: "upsert", Err: errors.New("credentials have no id")}
	}
	row := toRow(c)

	return s.Transaction(ctx, func(tx *Store) error {
		if row.Active {
			err := tx.db.Model(&models.Credential{}).
				Where("id <> ? AND active = ?", row.ID, true).
				Update("active", false).Error
			if err != nil {
				return storeErr("upsert", err)
			}
		}

		var existing models.Credential
		err := tx.db.Where("id = ?", row.ID).Limit(1).Find(&existing).Error
		if err != nil {
			return storeErr("upsert", err)
		}
		if existing.ID != "" {
			row.CreatedAt = existing.CreatedAt
		}
		if err := tx.db.Save(&row).Error; err != nil {
			return storeErr("upsert", err)
		}

		return tx.ensureActive(ctx)
	})
}

// GetAll returns every record ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]Credentials, error) {
	var rows []models.Credential
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("get all", err)
	}
	return fromRows(rows)
}

// Get returns the record for id, or a *NotFoundError.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Credentials, error) {
	var rows []models.Credential
	if err := s.db.WithContext(ctx).Where("id = ?", id.String()).Limit(1).Find(&rows).Error; err != nil {
		return nil, storeErr("get", err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{ID: id}
	}
	c, err := fromRow(rows[0])
	if err != nil {
		return nil, storeErr("get", err)
	}
	return &c, nil
}

// GetActive returns the active record, or nil when the store is empty.
// A non-empty store without exactly one active record yields ErrInvariant.
// Both reads run in one transaction so a concurrent write cannot land between
// them.
func (s *Store) GetActive(ctx context.Context) (*Credentials, error) {
	var active *Credentials
	err := s.Transaction(ctx, func(tx *Store) error {
		var rows []models.Credential
		if err := tx.db.Where("active = ?", true).Order("id ASC").Find(&rows).Error; err != nil {
			return storeErr("get active", err)
		}
		if len(rows) == 1 {
			c, err := fromRow(rows[0])
			if err != nil {
				return storeErr("get active", err)
			}
			active = &c
			return nil
		}

		total, err := tx.count(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 && total == 0 {
			return nil
		}
		return tx.invariantViolation("get active", int64(len(rows)), total)
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// Remove deletes the record for id and reports whether it existed. Removing
// the active record promotes the remaining record with the smallest id.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	var removed bool
	err := s.Transaction(ctx, func(tx *Store) error {
		result := tx.db.Where("id = ?", id.String()).Delete(&models.Credential{})
		if result.Error != nil {
			return storeErr("remove", result.Error)
		}
		removed = result.RowsAffected > 0
		if !removed {
			return nil
		}
		return tx.ensureActive(ctx)
	})
	return removed, err
}

// ensureActive restores the single-active rule after a write.
// It must run on a transaction-bound Store.
func (s *Store) ensureActive(ctx context.Context) error {
	var active int64
	if err := s.db.WithContext(ctx).Model(&models.Credential{}).Where("active = ?", true).Count(&active).Error; err != nil {
		return storeErr("check active", err)
	}
	if active == 1 {
		return nil
	}
	if active > 1 {
		total, err := s.count(ctx)
		if err != nil {
			return err
		}
		return s.invariantViolation("check active", active, total)
	}

	var first []models.Credential
	if err := s.db.WithContext(ctx).Order("id ASC").Limit(1).Find(&first).Error; err != nil {
		return storeErr("promote", err)
	}
	if len(first) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Credential{}).Where("id = ?", first[0].ID).Update("active", true).Error
	if err != nil {
		return storeErr("promote", err)
	}
	s.log.Info("⭐ Promoted account to active", zap.String("id", first[0].ID), zap.String("username", first[0].Username))
	return nil
}

func (s *Store) count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Credential{}).Count(&total).Error; err != nil {
		return 0, storeErr("count", err)
	}
	return total, nil
}

func (s *Store) invariantViolation(op string, active, total int64) error {
	s.log.Error("❌ Credential store invariant violated", zap.Int64("active", active), zap.Int64("total", total))
	return &StoreError{Op: op, Err: errors.Wrapf(ErrInvariant, "%d active of %d records", active, total)}
}

func fromRows(rows []models.Credential) ([]Credentials, error) {
	out := make([]Credentials, 0, len(rows))
	for _, row := range rows {
		c, err := fromRow(row)
		if err != nil {
			return nil, storeErr("decode", err)
		}
		out = append(out, c)
	}
	return out, nil
}
