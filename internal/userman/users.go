package userman

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/settings"
)

// AddUser creates a user in the default directory.
func (u *Userman) AddUser(username, password, defaultExt, description string, extra map[string]string, encrypt bool) (directory.Status, error) {
	dir, err := u.registry.DefaultDirectory()
	if err != nil {
		return directory.Status{}, err
	}

	return u.AddUserByDirectory(dir.ID, username, password, defaultExt, description, extra, encrypt)
}

// AddUserByDirectory creates a user in the named directory and enrolls
// it in the directory's default groups.
func (u *Userman) AddUserByDirectory(dirID uint64, username, password, defaultExt, description string, extra map[string]string, encrypt bool) (directory.Status, error) {
	if username == "" || password == "" {
		return directory.Status{}, fmt.Errorf("%w: username and password must not be blank", directory.ErrValidation)
	}

	if err := u.checkWritable(dirID, false); err != nil {
		return directory.Status{}, err
	}

	drv, err := u.driverByID(dirID)
	if err != nil {
		return directory.Status{}, err
	}

	if !drv.Permissions().Can(directory.PermAddUser) {
		return directory.Fail("directory %d does not support adding users", dirID), nil
	}

	status := drv.AddUser(username, password, defaultExt, description, extra, encrypt)
	if !status.Status {
		return status, nil
	}

	u.enrollInDefaultGroups(drv, status.ID)

	return status, nil
}

// enrollInDefaultGroups appends a fresh user to the directory's
// configured default groups and to any group flagged default via its
// shared-module setting. Failures are logged, the user stays created.
func (u *Userman) enrollInDefaultGroups(drv directory.Driver, uid uint64) {
	groups, err := drv.DefaultGroups()
	if err != nil {
		log.Warn().Err(err).Uint64("uid", uid).Msg("failed to load default groups")

		groups = nil
	}

	seen := make(map[uint64]bool, len(groups))
	for i := range groups {
		seen[groups[i].ID] = true
	}

	flagged, err := u.groupSettings.OwnersWithSetting(settings.ModuleGlobal, "default")
	if err != nil {
		log.Warn().Err(err).Uint64("uid", uid).Msg("failed to scan default-flagged groups")
	}

	dirID := drv.Directory().ID

	for gid, val := range flagged {
		if seen[gid] || !val.True() {
			continue
		}

		group, errGet := drv.GroupByID(gid)
		if errGet != nil || group.DirectoryID != dirID {
			continue
		}

		groups = append(groups, *group)
	}

	for i := range groups {
		if err := u.addMember(groups[i].ID, uid); err != nil {
			log.Warn().Err(err).Uint64("uid", uid).Uint64("gid", groups[i].ID).
				Msg("failed to enroll user in default group")
		}
	}
}

// UpdateUser updates a user through its owning directory's driver.
// A non-nil groups slice additionally reconciles the user's
// memberships to exactly that set; nil leaves memberships alone.
func (u *Userman) UpdateUser(uid uint64, prevUsername, username, defaultExt, description string, extra map[string]string, password string, groups []uint64) (directory.Status, error) {
	user, err := u.aggregate().UserByID(uid)
	if err != nil {
		return directory.Status{}, err
	}

	if err := u.checkWritable(user.DirectoryID, false); err != nil {
		return directory.Status{}, err
	}

	drv, err := u.driverByID(user.DirectoryID)
	if err != nil {
		return directory.Status{}, err
	}

	if !drv.Permissions().Can(directory.PermModifyUser) {
		return directory.Fail("directory %d does not support modifying users", user.DirectoryID), nil
	}

	if password != "" && !drv.Permissions().Can(directory.PermChangePassword) {
		return directory.Fail("directory %d does not support password changes", user.DirectoryID), nil
	}

	status := drv.UpdateUser(uid, prevUsername, username, defaultExt, description, extra, password)
	if !status.Status {
		return status, nil
	}

	if groups != nil {
		if err := u.reconcileMemberships(uid, groups); err != nil {
			return status, err
		}
	}

	return status, nil
}

// DeleteUserByID removes a user, their group memberships, their
// settings and their reset token. Deleting an already-gone id is not
// an error. Cleanup steps log and continue so a partial failure never
// strands the remaining references.
func (u *Userman) DeleteUserByID(uid uint64) (directory.Status, error) {
	status := u.aggregate().DeleteUserByID(uid)
	if !status.Status {
		return status, nil
	}

	if err := u.reconcileMemberships(uid, nil); err != nil {
		log.Warn().Err(err).Uint64("uid", uid).Msg("failed to remove user from groups")
	}

	if err := u.userSettings.DeleteOwner(uid); err != nil {
		log.Warn().Err(err).Uint64("uid", uid).Msg("failed to delete user settings")
	}

	if err := u.dropTokensOf(uid); err != nil {
		log.Warn().Err(err).Uint64("uid", uid).Msg("failed to drop reset tokens")
	}

	u.callHooks(ActionDelUser, uid)

	return status, nil
}

// MoveUserToDirectory reassigns a user to another directory. The
// source must allow removal and the destination must allow additions
// and be unlocked.
func (u *Userman) MoveUserToDirectory(uid, destID uint64) (directory.Status, error) {
	user, err := u.aggregate().UserByID(uid)
	if err != nil {
		return directory.Status{}, err
	}

	if user.DirectoryID == destID {
		return directory.OKMessage(uid, "user %d already lives in directory %d", uid, destID), nil
	}

	src, err := u.driverByID(user.DirectoryID)
	if err != nil {
		return directory.Status{}, err
	}

	if !src.Permissions().Can(directory.PermRemoveUser) {
		return directory.Fail("directory %d does not allow moving users away", user.DirectoryID), nil
	}

	if err := u.checkWritable(destID, false); err != nil {
		return directory.Status{}, err
	}

	dest, err := u.driverByID(destID)
	if err != nil {
		return directory.Status{}, err
	}

	if !dest.Permissions().Can(directory.PermAddUser) {
		return directory.Fail("directory %d does not support adding users", destID), nil
	}

	err = u.db.Model(&models.User{}).Where("id = ?", uid).
		Update("auth", destID).Error
	if err != nil {
		return directory.Status{}, fmt.Errorf("failed to move user: %w", err)
	}

	return directory.OK(uid), nil
}

// reconcileMemberships rewrites the user's group memberships to the
// wanted set. Membership lives on the group rows regardless of driver,
// so this works uniformly across directories.
func (u *Userman) reconcileMemberships(uid uint64, wanted []uint64) error {
	want := make(map[uint64]bool, len(wanted))
	for _, gid := range wanted {
		if gid != 0 {
			want[gid] = true
		}
	}

	var groups []models.Group
	if err := u.db.Find(&groups).Error; err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	for i := range groups {
		group := &groups[i]

		changed := false

		switch {
		case want[group.ID] && !group.HasMember(uid):
			group.AddMember(uid)

			changed = true
		case !want[group.ID] && group.HasMember(uid):
			group.RemoveMember(uid)

			changed = true
		}

		if !changed {
			continue
		}

		if err := u.db.Save(group).Error; err != nil {
			return fmt.Errorf("failed to update group %d membership: %w", group.ID, err)
		}
	}

	return nil
}

// addMember appends a user to one group row.
func (u *Userman) addMember(gid, uid uint64) error {
	var group models.Group
	if err := u.db.First(&group, gid).Error; err != nil {
		return fmt.Errorf("failed to load group %d: %w", gid, err)
	}

	if group.HasMember(uid) {
		return nil
	}

	group.AddMember(uid)

	return u.db.Save(&group).Error
}
