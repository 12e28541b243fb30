package userman

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ownerRow is the join result picking the directory that owns a
// username among the active ones.
type ownerRow struct {
	UID         uint64
	DirectoryID uint64
}

// CheckCredentials verifies a username/password pair. The username is
// resolved to its owning directory by joining active directories in
// display order; only the first match's driver is consulted, so a
// shadowed duplicate in a later directory never authenticates.
func (u *Userman) CheckCredentials(username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	var owner ownerRow

	err := u.db.
		Table("userman_users AS u").
		Select("u.id AS uid, d.id AS directory_id").
		Joins("JOIN userman_directories AS d ON d.id = u.auth").
		Where("u.username = ? AND d.active = ?", username, true).
		Order("d.sort_order, d.id").
		Limit(1).
		Scan(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to resolve username owner: %w", err)
	}

	if owner.UID == 0 {
		return false, nil
	}

	drv, err := u.driverByID(owner.DirectoryID)
	if err != nil {
		return false, nil
	}

	return drv.CheckCredentials(username, password), nil
}
