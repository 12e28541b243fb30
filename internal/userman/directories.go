package userman

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
)

// AddDirectory configures a new directory.
func (u *Userman) AddDirectory(driverTag, name string, enabled bool, cfg directory.Config) (uint64, error) {
	return u.registry.AddDirectory(driverTag, name, enabled, cfg)
}

// UpdateDirectory reconfigures a directory and reloads its driver.
func (u *Userman) UpdateDirectory(id uint64, name string, enabled bool, cfg directory.Config) (uint64, error) {
	return u.registry.UpdateDirectory(id, name, enabled, cfg)
}

// DeleteDirectoryByID removes a directory after cascading over its
// users and groups through the regular delete operations, so lifecycle
// hooks and settings cleanup fire per entity. Individual failures are
// logged and the cascade continues; the final purge drops whatever
// rows remain.
func (u *Userman) DeleteDirectoryByID(id uint64) error {
	if _, err := u.registry.DirectoryByID(id); err != nil {
		return err
	}

	var users []models.User
	if err := u.db.Where("auth = ?", id).Find(&users).Error; err != nil {
		return fmt.Errorf("failed to list directory users: %w", err)
	}

	for i := range users {
		if status, err := u.DeleteUserByID(users[i].ID); err != nil || !status.Status {
			log.Warn().Err(err).Uint64("uid", users[i].ID).Uint64("directory", id).
				Str("status", status.Message).Msg("cascade user delete failed")
		}
	}

	var groups []models.Group
	if err := u.db.Where("auth = ?", id).Find(&groups).Error; err != nil {
		return fmt.Errorf("failed to list directory groups: %w", err)
	}

	for i := range groups {
		if status, err := u.DeleteGroupByGID(groups[i].ID); err != nil || !status.Status {
			log.Warn().Err(err).Uint64("gid", groups[i].ID).Uint64("directory", id).
				Str("status", status.Message).Msg("cascade group delete failed")
		}
	}

	// Any rows the drivers could not remove go with the directory.
	if err := u.db.Where("auth = ?", id).Delete(&models.User{}).Error; err != nil {
		log.Warn().Err(err).Uint64("directory", id).Msg("failed to purge leftover users")
	}

	if err := u.db.Where("auth = ?", id).Delete(&models.Group{}).Error; err != nil {
		log.Warn().Err(err).Uint64("directory", id).Msg("failed to purge leftover groups")
	}

	return u.registry.PurgeDirectory(id)
}

// LockDirectory stops create/update operations on the directory.
func (u *Userman) LockDirectory(id uint64) error {
	return u.registry.Lock(id)
}

// UnlockDirectory re-enables mutation immediately.
func (u *Userman) UnlockDirectory(id uint64) error {
	return u.registry.Unlock(id)
}

// SetDefaultDirectory flags one directory as the default target.
func (u *Userman) SetDefaultDirectory(id uint64) error {
	return u.registry.SetDefault(id)
}

// DefaultDirectory returns the default directory, creating the
// built-in one when nothing is configured yet.
func (u *Userman) DefaultDirectory() (*models.Directory, error) {
	return u.registry.DefaultDirectory()
}

// AllDirectories lists directories in display order.
func (u *Userman) AllDirectories() ([]models.Directory, error) {
	return u.registry.AllDirectories()
}
