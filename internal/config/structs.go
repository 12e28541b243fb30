package config

import (
	"time"

	"github.com/alexscott/userman/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode bool // enable dev mode for development
	DB      DB
	Log     logger.Log
	Mail    Mail
	Userman Userman
}

// Mail holds the outbound notification settings used for welcome and
// password-reset emails.
type Mail struct {
	Host string // smtp relay host
	Port int    // smtp relay port
	From string `validate:"omitempty,email"` // envelope sender
}

// Userman holds module-wide behavior settings.
type Userman struct {
	// Brand is substituted for %brand% in email templates.
	Brand string
	// HostURL is the base URL embedded in password reset links.
	HostURL string `validate:"omitempty,url"`
	// TokenExpiry is how long issued password reset tokens stay valid.
	TokenExpiry time.Duration
	// SyncInterval is the period of the recurring directory sync job.
	SyncInterval time.Duration
}
