package models

import "time"

// Setting is a key/value pair owned by the launcher itself, like the local API key.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
