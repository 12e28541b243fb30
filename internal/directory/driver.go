// Package directory implements the identity-directory federation core:
// the driver capability contract every directory backend implements,
// the registry owning the configured directories and their driver
// instances, and the aggregate view unioning all directories.
package directory

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
)

// Config is the driver-specific configuration blob of one directory,
// persisted as key/value rows and treated as opaque outside the driver.
type Config map[string]string

// Bool reads a config key as a boolean flag ("1", "true", "yes").
func (c Config) Bool(key string) bool {
	switch c[key] {
	case "1", "true", "yes":
		return true
	}

	return false
}

// Driver is the capability contract every directory backend implements.
// A driver is an immutable-config object: configuration changes produce
// a new instance through a registry reload, never mutate a live one.
//
// Lookup methods return ErrUserNotFound/ErrGroupNotFound when no entity
// matches. Mutating methods return a Status value; backend failures are
// reported as a failed Status rather than an error so that UI and
// automation callers share one contract.
type Driver interface {
	// Directory returns the directory row this driver was built for.
	Directory() models.Directory

	AllUsers() ([]models.User, error)
	AllGroups() ([]models.Group, error)
	// DefaultGroups returns the groups new users are auto-added to.
	DefaultGroups() ([]models.Group, error)

	UserByID(id uint64) (*models.User, error)
	UserByUsername(username string) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	UserByDefaultExtension(ext string) (*models.User, error)
	GroupByID(gid uint64) (*models.Group, error)
	GroupByName(groupname string) (*models.Group, error)
	// GroupsByUserID returns the user's groups in ascending priority order.
	GroupsByUserID(uid uint64) ([]models.Group, error)

	// AddUser creates a user. With encrypt false the password is stored
	// verbatim as a pre-hashed legacy credential.
	AddUser(username, password, defaultExt, description string, extra map[string]string, encrypt bool) Status
	// UpdateUser updates a user. Drivers that do not support username
	// changes keep prevUsername. An empty password leaves the stored
	// credential untouched.
	UpdateUser(uid uint64, prevUsername, username, defaultExt, description string, extra map[string]string, password string) Status
	DeleteUserByID(id uint64) Status

	AddGroup(groupname, description string, users []uint64, extra map[string]string) Status
	// UpdateGroup updates a group. A nil users slice leaves membership
	// untouched; an empty non-nil slice clears it.
	UpdateGroup(gid uint64, prevGroupname, groupname, description string, users []uint64, extra map[string]string) Status
	DeleteGroupByID(gid uint64) Status

	// CheckCredentials verifies a username/password pair against this
	// directory's backend.
	CheckCredentials(username, password string) bool

	// Permissions advertises the driver's capability map.
	Permissions() Permissions
}

// Syncer is implemented by federated drivers that pull remote state.
// The registry invokes Sync after the owning directory's configuration
// changes, and the recurring sync job invokes it for every active
// directory.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Factory constructs a driver for one directory from its persisted
// config. A factory must reject a config blob it cannot operate with.
type Factory func(db *gorm.DB, dir models.Directory, cfg Config) (Driver, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterDriver makes a driver type available under its tag. It is
// typically called from driver package init functions.
func RegisterDriver(tag string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[tag] = f
}

// DriverTags returns the registered driver type tags.
func DriverTags() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	tags := make([]string, 0, len(factories))
	for tag := range factories {
		tags = append(tags, tag)
	}

	return tags
}

func newDriver(db *gorm.DB, dir models.Directory, cfg Config) (Driver, error) {
	factoryMu.RLock()
	f, ok := factories[dir.Driver]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no driver registered for type %q", ErrConfig, dir.Driver)
	}

	drv, err := f(db, dir, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s driver rejected its config: %v", ErrConfig, dir.Driver, err)
	}

	return drv, nil
}
