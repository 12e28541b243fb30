// Package internaldir implements the built-in relational directory
// driver. It owns its users and groups outright: passwords are hashed
// with Argon2id and every capability is supported.
package internaldir

import (
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/directory/drivers/localstore"
)

func init() { //nolint: gochecknoinits
	directory.RegisterDriver(directory.InternalDriverTag, New)
}

// Driver is the built-in relational store driver.
type Driver struct {
	*localstore.Store

	db  *gorm.DB
	dir models.Directory
	cfg directory.Config
}

// New constructs the driver. The internal driver accepts any config
// blob; the only key it reads is default-groups.
func New(db *gorm.DB, dir models.Directory, cfg directory.Config) (directory.Driver, error) {
	return &Driver{
		Store: localstore.New(db, dir.ID),
		db:    db,
		dir:   dir,
		cfg:   cfg,
	}, nil
}

// Directory returns the directory row this driver was built for.
func (d *Driver) Directory() models.Directory {
	return d.dir
}

// Permissions advertises full capability.
func (d *Driver) Permissions() directory.Permissions {
	return directory.AllPermissions()
}

// DefaultGroups returns the groups named by the default-groups config
// entry, which new users are automatically added to.
func (d *Driver) DefaultGroups() ([]models.Group, error) {
	return d.GroupsByIDList(d.cfg["default-groups"])
}

// AddUser creates a user in this directory. With encrypt false the
// password is stored verbatim, assumed to be a pre-hashed legacy
// credential from an import.
func (d *Driver) AddUser(username, password, defaultExt, description string, extra map[string]string, encrypt bool) directory.Status {
	taken, err := d.UsernameTaken(username, 0)
	if err != nil {
		return directory.Fail("failed to check username: %v", err)
	}

	if taken {
		return directory.Fail("username %q already exists in this directory", username)
	}

	if defaultExt == "" {
		defaultExt = models.NoExtension
	}

	inUse, err := d.ExtensionInUse(defaultExt, 0)
	if err != nil {
		return directory.Fail("failed to check extension: %v", err)
	}

	if inUse {
		return directory.Fail("extension %q is already linked to another user", defaultExt)
	}

	stored := password
	if encrypt {
		stored = models.HashPassword(password)
	}

	user := models.User{
		DirectoryID:      d.dir.ID,
		Username:         username,
		Password:         stored,
		Description:      description,
		DefaultExtension: defaultExt,
	}
	localstore.ApplyExtra(&user, extra)

	if err := d.db.Create(&user).Error; err != nil {
		return directory.Fail("failed to create user: %v", err)
	}

	return directory.OK(user.ID)
}

// UpdateUser updates a user. An empty password keeps the stored
// credential; a non-empty one is re-hashed.
func (d *Driver) UpdateUser(uid uint64, prevUsername, username, defaultExt, description string, extra map[string]string, password string) directory.Status {
	user, err := d.UserByID(uid)
	if err != nil {
		return directory.Fail("user %d not found in this directory", uid)
	}

	if username == "" {
		username = prevUsername
	}

	taken, err := d.UsernameTaken(username, uid)
	if err != nil {
		return directory.Fail("failed to check username: %v", err)
	}

	if taken {
		return directory.Fail("username %q already exists in this directory", username)
	}

	if defaultExt == "" {
		defaultExt = models.NoExtension
	}

	inUse, err := d.ExtensionInUse(defaultExt, uid)
	if err != nil {
		return directory.Fail("failed to check extension: %v", err)
	}

	if inUse {
		return directory.Fail("extension %q is already linked to another user", defaultExt)
	}

	user.Username = username
	user.DefaultExtension = defaultExt
	user.Description = description

	if password != "" {
		user.Password = models.HashPassword(password)
	}

	localstore.ApplyExtra(user, extra)

	if err := d.db.Save(user).Error; err != nil {
		return directory.Fail("failed to update user: %v", err)
	}

	return directory.OK(uid)
}

// DeleteUserByID removes a user row. Deleting an already-deleted id is
// a non-fatal "already gone" success so retried cascades stay safe.
func (d *Driver) DeleteUserByID(id uint64) directory.Status {
	res := d.db.Where("auth = ?", d.dir.ID).Delete(&models.User{}, id)
	if res.Error != nil {
		return directory.Fail("failed to delete user: %v", res.Error)
	}

	if res.RowsAffected == 0 {
		return directory.OKMessage(id, "user %d already gone", id)
	}

	return directory.OK(id)
}

// AddGroup creates a group in this directory.
func (d *Driver) AddGroup(groupname, description string, users []uint64, extra map[string]string) directory.Status {
	if _, err := d.GroupByName(groupname); err == nil {
		return directory.Fail("group %q already exists in this directory", groupname)
	}

	group := models.Group{
		DirectoryID: d.dir.ID,
		Groupname:   groupname,
		Description: description,
		Users:       localstore.FilterMembers(users),
	}
	localstore.ApplyGroupExtra(&group, extra)

	if err := d.db.Create(&group).Error; err != nil {
		return directory.Fail("failed to create group: %v", err)
	}

	return directory.OK(group.ID)
}

// UpdateGroup updates a group. A nil users slice leaves membership as
// it is; a non-nil slice replaces it after filtering faulty entries.
func (d *Driver) UpdateGroup(gid uint64, prevGroupname, groupname, description string, users []uint64, extra map[string]string) directory.Status {
	group, err := d.GroupByID(gid)
	if err != nil {
		return directory.Fail("group %d not found in this directory", gid)
	}

	if groupname == "" {
		groupname = prevGroupname
	}

	group.Groupname = groupname
	group.Description = description

	if users != nil {
		group.Users = localstore.FilterMembers(users)
	}

	localstore.ApplyGroupExtra(group, extra)

	if err := d.db.Save(group).Error; err != nil {
		return directory.Fail("failed to update group: %v", err)
	}

	return directory.OK(gid)
}

// DeleteGroupByID removes a group row, idempotently.
func (d *Driver) DeleteGroupByID(gid uint64) directory.Status {
	res := d.db.Where("auth = ?", d.dir.ID).Delete(&models.Group{}, gid)
	if res.Error != nil {
		return directory.Fail("failed to delete group: %v", res.Error)
	}

	if res.RowsAffected == 0 {
		return directory.OKMessage(gid, "group %d already gone", gid)
	}

	return directory.OK(gid)
}

// CheckCredentials verifies the password against the stored hash.
func (d *Driver) CheckCredentials(username, password string) bool {
	user, err := d.UserByUsername(username)
	if err != nil {
		return false
	}

	return user.VerifyPassword(password)
}
