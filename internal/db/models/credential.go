package models

import "time"

// Credential stores the identity and tokens of one launcher account.
// At most one row has Active set; the credentials store keeps it that way.
type Credential struct {
	ID           string  `gorm:"primaryKey"` // profile UUID
	Username     string  `gorm:"not null"`
	SkinURL      *string // nil until the profile is resolved
	AccessToken  string  `gorm:"not null"`
	RefreshToken string
	Expires      time.Time `gorm:"not null"` // UTC
	Active       bool      `gorm:"not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName pins the table name used by raw queries in the store.
func (Credential) TableName() string {
	return "credentials"
}
