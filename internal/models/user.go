package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account record. The email address is stored envelope-encrypted
// with a deterministic hash kept alongside for lookups; the plaintext only
// exists in memory after decryption.
type User struct {
	UserBucket     int        `json:"-" db:"user_bucket"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Email          string     `json:"email,omitempty" db:"-"`
	EmailHash      string     `json:"-" db:"email_hash"`
	EmailEncrypted []byte     `json:"-" db:"email_encrypted"`
	EmailKeyID     string     `json:"-" db:"email_key_id"`
	Username       string     `json:"username" db:"username"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	LastLogin      *time.Time `json:"last_login,omitempty" db:"last_login"`
}
