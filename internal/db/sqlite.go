package db

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebarez/sqlite"
	"github.com/pysugar/launcher-accounts/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const apiKeySetting = "api_key"

// InitDB opens the SQLite database at dbPath and runs migrations.
//
// The pool is capped at a single connection, which serializes every gorm
// transaction against the credentials table.
func InitDB(dbPath string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(withPragmas(dbPath)), &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dbPath)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.AutoMigrate(&models.Credential{}, &models.Setting{}); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}

	// Generate the local API key on first run
	if _, err := EnsureAPIKey(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withPragmas(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// EnsureAPIKey returns the stored API key, generating one if none exists yet.
func EnsureAPIKey(db *gorm.DB, log *zap.Logger) (string, error) {
	var setting models.Setting
	err := db.Where("key = ?", apiKeySetting).First(&setting).Error
	if err == nil {
		return setting.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errors.Wrap(err, "load api key")
	}

	apiKey, err := newAPIKey()
	if err != nil {
		return "", err
	}
	if err := db.Create(&models.Setting{Key: apiKeySetting, Value: apiKey}).Error; err != nil {
		return "", errors.Wrap(err, "store api key")
	}
	log.Info("🔑 Generated new local API key", zap.String("api_key", apiKey))
	return apiKey, nil
}

// GetAPIKey retrieves the API key. Empty when none has been generated.
func GetAPIKey(db *gorm.DB) string {
	var setting models.Setting
	db.Where("key = ?", apiKeySetting).Limit(1).Find(&setting)
	return setting.Value
}

// RegenerateAPIKey replaces the API key with a fresh one.
func RegenerateAPIKey(db *gorm.DB, log *zap.Logger) (string, error) {
	apiKey, err := newAPIKey()
	if err != nil {
		return "", err
	}
	result := db.Model(&models.Setting{}).Where("key = ?", apiKeySetting).Update("value", apiKey)
	if result.Error != nil {
		return "", errors.Wrap(result.Error, "store api key")
	}
	if result.RowsAffected == 0 {
		if err := db.Create(&models.Setting{Key: apiKeySetting, Value: apiKey}).Error; err != nil {
			return "", errors.Wrap(err, "store api key")
		}
	}
	log.Info("🔑 Regenerated local API key")
	return apiKey, nil
}

// newAPIKey builds "lk-<32 hex chars>".
func newAPIKey() (string, error) {
	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", errors.Wrap(err, "generate api key")
	}
	return "lk-" + hex.EncodeToString(keyBytes), nil
}
