package userman

import "errors"

// ErrTokenNotFound is returned for unknown or expired reset tokens.
var ErrTokenNotFound = errors.New("reset token not found or expired")
