package models

import "time"

// Directory represents a configured identity source. Each directory is
// backed by one driver (internal store, LDAP, Active Directory,
// imported voicemail accounts) and owns a subset of users and groups.
type Directory struct {
	// ID is the unique identifier for the directory.
	ID uint64 `gorm:"primaryKey"`
	// Name is the administrator-facing display name.
	Name string `gorm:"size:100;not null"`
	// Driver is the driver type tag this directory is backed by
	// (e.g. "internal", "ldap", "msad", "voicemail").
	Driver string `gorm:"size:50;not null"`
	// Active indicates whether the directory participates in lookups
	// and credential checks.
	Active bool
	// Locked forbids create/update operations routed to this directory.
	// Read operations and credential checks still work while locked.
	Locked bool
	// Default marks the directory that receives unscoped add
	// operations. At most one directory has this set at any time.
	Default bool
	// Order is the display and credential-resolution order. Lower
	// values win when two active directories own the same username.
	Order int `gorm:"column:sort_order;not null;default:0"`
	// CreatedAt is the timestamp when the directory was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the directory was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Directory model.
func (Directory) TableName() string {
	return "userman_directories"
}

// DirectoryConfig is one driver-specific configuration entry for a
// directory. The full config of a directory is the set of its rows,
// treated as an opaque blob by everything except the owning driver.
type DirectoryConfig struct {
	// DirectoryID is the owning directory.
	DirectoryID uint64 `gorm:"primaryKey;column:directory_id"`
	// Key is the configuration key within the directory's blob.
	Key string `gorm:"primaryKey;size:100"`
	// Val is the configuration value.
	Val string `gorm:"size:2048"`
}

// TableName specifies the database table name for the DirectoryConfig model.
func (DirectoryConfig) TableName() string {
	return "userman_directory_config"
}
