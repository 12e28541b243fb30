package models

import (
	"crypto/sha1" //nolint:gosec // legacy import format, not used for new passwords
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// NoExtension is the sentinel value for a user without a linked
// extension. It is the one default-extension value that may be shared
// by any number of users.
const NoExtension = "none"

// User represents a user account owned by exactly one directory.
// The password representation is driver-specific: Argon2id hashed for
// the internal driver, legacy sha1/bcrypt for imported accounts, and
// empty for delegating drivers (LDAP/AD) that never store credentials
// locally.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// DirectoryID is the owning directory.
	DirectoryID uint64 `gorm:"column:auth;not null;index"`
	// Username is unique within the owning directory.
	Username string `gorm:"size:100;not null;index"`
	// Password is the stored credential in its driver-specific form.
	Password string `gorm:"size:255"`
	// Description is a short free-form note about the account.
	Description string `gorm:"size:255"`
	// DefaultExtension is the linked extension, or NoExtension.
	// Non-sentinel values are unique across all users.
	DefaultExtension string `gorm:"size:20;not null;default:none"`
	// ExternalID is the backend identifier for synced accounts
	// (DN for LDAP/AD, mailbox for voicemail imports).
	ExternalID string `gorm:"size:255;index"`

	// Contact fields.
	DisplayName string `gorm:"size:100"`
	FName       string `gorm:"size:100"`
	LName       string `gorm:"size:100"`
	Title       string `gorm:"size:100"`
	Company     string `gorm:"size:100"`
	Department  string `gorm:"size:100"`
	Email       string `gorm:"size:255;index"`
	CellPhone   string `gorm:"size:50"`
	WorkPhone   string `gorm:"size:50"`
	HomePhone   string `gorm:"size:50"`

	// Locale fields, resolvable with group fallback through the
	// settings resolver.
	Language       string `gorm:"size:20"`
	Timezone       string `gorm:"size:50"`
	DateFormat     string `gorm:"size:20"`
	TimeFormat     string `gorm:"size:20"`
	DateTimeFormat string `gorm:"size:30"`

	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the User model.
func (User) TableName() string {
	return "userman_users"
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
// This is the storage format for all internal-directory passwords.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the stored
// credential. It understands the Argon2id format used for passwords
// hashed by this system plus the two legacy formats that bulk imports
// may carry: bcrypt and hex-encoded sha1.
func (u *User) VerifyPassword(password string) bool {
	switch {
	case strings.HasPrefix(u.Password, "$argon2id$"):
		match, err := argon2id.ComparePasswordAndHash(password, u.Password)
		if err != nil {
			log.Error().Msgf("failed to verify password: %v", err)
			return false
		}

		return match
	case strings.HasPrefix(u.Password, "$2a$") || strings.HasPrefix(u.Password, "$2b$") || strings.HasPrefix(u.Password, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
	default:
		// Imported accounts from releases that stored sha1 hex.
		sum := sha1.Sum([]byte(password)) //nolint:gosec // legacy import format
		digest := hex.EncodeToString(sum[:])

		return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(u.Password))) == 1
	}
}
