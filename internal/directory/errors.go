package directory

import "errors"

var (
	// ErrValidation is returned for blank required fields or malformed
	// identifiers passed programmatically. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrLockedDirectory is returned when a create/update operation is
	// routed to a locked directory.
	ErrLockedDirectory = errors.New("directory is locked")

	// ErrUnknownDirectory is returned when an operation references a
	// directory id absent from the registry.
	ErrUnknownDirectory = errors.New("unknown directory")

	// ErrConfig is returned when a driver rejects its configuration at
	// directory add/update time. The operation aborts before persistence.
	ErrConfig = errors.New("invalid directory configuration")

	// ErrDriver is returned when the underlying backend fails.
	ErrDriver = errors.New("directory driver failure")

	// ErrUserNotFound is returned when a user cannot be found in any
	// queried directory.
	ErrUserNotFound = errors.New("user not found")

	// ErrGroupNotFound is returned when a group cannot be found in any
	// queried directory.
	ErrGroupNotFound = errors.New("group not found")
)
