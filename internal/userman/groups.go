package userman

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/alexscott/userman/internal/directory"
)

// AddGroup creates a group in the default directory.
func (u *Userman) AddGroup(groupname, description string, users []uint64, extra map[string]string) (directory.Status, error) {
	dir, err := u.registry.DefaultDirectory()
	if err != nil {
		return directory.Status{}, err
	}

	return u.AddGroupByDirectory(dir.ID, groupname, description, users, extra)
}

// AddGroupByDirectory creates a group in the named directory. On a
// locked directory the operation still passes when the directory
// permits local groups.
func (u *Userman) AddGroupByDirectory(dirID uint64, groupname, description string, users []uint64, extra map[string]string) (directory.Status, error) {
	if groupname == "" {
		return directory.Status{}, fmt.Errorf("%w: groupname must not be blank", directory.ErrValidation)
	}

	if err := u.checkWritable(dirID, true); err != nil {
		return directory.Status{}, err
	}

	drv, err := u.driverByID(dirID)
	if err != nil {
		return directory.Status{}, err
	}

	if !drv.Permissions().Can(directory.PermAddGroup) {
		return directory.Fail("directory %d does not support adding groups", dirID), nil
	}

	return drv.AddGroup(groupname, description, users, extra), nil
}

// UpdateGroup updates a group through its owning directory's driver.
// A nil users slice leaves the membership untouched.
func (u *Userman) UpdateGroup(gid uint64, prevGroupname, groupname, description string, users []uint64, extra map[string]string) (directory.Status, error) {
	group, err := u.aggregate().GroupByID(gid)
	if err != nil {
		return directory.Status{}, err
	}

	if err := u.checkWritable(group.DirectoryID, group.Local); err != nil {
		return directory.Status{}, err
	}

	drv, err := u.driverByID(group.DirectoryID)
	if err != nil {
		return directory.Status{}, err
	}

	if !drv.Permissions().Can(directory.PermModifyGroup) {
		return directory.Fail("directory %d does not support modifying groups", group.DirectoryID), nil
	}

	return drv.UpdateGroup(gid, prevGroupname, groupname, description, users, extra), nil
}

// DeleteGroupByGID removes a group and its settings. Deleting an
// already-gone id is not an error.
func (u *Userman) DeleteGroupByGID(gid uint64) (directory.Status, error) {
	status := u.aggregate().DeleteGroupByID(gid)
	if !status.Status {
		return status, nil
	}

	if err := u.groupSettings.DeleteOwner(gid); err != nil {
		log.Warn().Err(err).Uint64("gid", gid).Msg("failed to delete group settings")
	}

	u.callHooks(ActionDelGroup, gid)

	return status, nil
}
