package directory

import (
	"sort"

	"github.com/alexscott/userman/internal/db/models"
)

// Aggregate is the virtual directory unioning users and groups across
// all configured directories. It has no persisted identity of its own
// and is rebuilt on every registry reload so it can never drift from
// the live driver set.
//
// Lookups iterate directories in display order, so when two directories
// both own a matching entity the lower-ordered directory wins.
type Aggregate struct {
	snap *Snapshot
}

func newAggregate(snap *Snapshot) *Aggregate {
	return &Aggregate{snap: snap}
}

// activeDrivers returns the snapshot's drivers in display order.
func (a *Aggregate) activeDrivers() []Driver {
	drivers := make([]Driver, 0, len(a.snap.drivers))

	for _, dir := range a.snap.directories {
		if drv, ok := a.snap.drivers[dir.ID]; ok {
			drivers = append(drivers, drv)
		}
	}

	return drivers
}

// AllUsers unions every directory's users.
func (a *Aggregate) AllUsers() ([]models.User, error) {
	var all []models.User

	for _, drv := range a.activeDrivers() {
		users, err := drv.AllUsers()
		if err != nil {
			return nil, err
		}

		all = append(all, users...)
	}

	return all, nil
}

// AllGroups unions every directory's groups.
func (a *Aggregate) AllGroups() ([]models.Group, error) {
	var all []models.Group

	for _, drv := range a.activeDrivers() {
		groups, err := drv.AllGroups()
		if err != nil {
			return nil, err
		}

		all = append(all, groups...)
	}

	return all, nil
}

// DefaultGroups unions every directory's auto-assignment groups.
func (a *Aggregate) DefaultGroups() ([]models.Group, error) {
	var all []models.Group

	for _, drv := range a.activeDrivers() {
		groups, err := drv.DefaultGroups()
		if err != nil {
			return nil, err
		}

		all = append(all, groups...)
	}

	return all, nil
}

// UserByID resolves a user regardless of owning directory.
func (a *Aggregate) UserByID(id uint64) (*models.User, error) {
	for _, drv := range a.activeDrivers() {
		user, err := drv.UserByID(id)
		if err == nil {
			return user, nil
		}
	}

	return nil, ErrUserNotFound
}

// UserByUsername resolves a user by username, first directory wins.
func (a *Aggregate) UserByUsername(username string) (*models.User, error) {
	for _, drv := range a.activeDrivers() {
		user, err := drv.UserByUsername(username)
		if err == nil {
			return user, nil
		}
	}

	return nil, ErrUserNotFound
}

// UserByEmail resolves a user by email, first directory wins.
func (a *Aggregate) UserByEmail(email string) (*models.User, error) {
	for _, drv := range a.activeDrivers() {
		user, err := drv.UserByEmail(email)
		if err == nil {
			return user, nil
		}
	}

	return nil, ErrUserNotFound
}

// UserByDefaultExtension resolves a user by linked extension.
func (a *Aggregate) UserByDefaultExtension(ext string) (*models.User, error) {
	for _, drv := range a.activeDrivers() {
		user, err := drv.UserByDefaultExtension(ext)
		if err == nil {
			return user, nil
		}
	}

	return nil, ErrUserNotFound
}

// GroupByID resolves a group regardless of owning directory.
func (a *Aggregate) GroupByID(gid uint64) (*models.Group, error) {
	for _, drv := range a.activeDrivers() {
		group, err := drv.GroupByID(gid)
		if err == nil {
			return group, nil
		}
	}

	return nil, ErrGroupNotFound
}

// GroupByName resolves a group by name, first directory wins.
func (a *Aggregate) GroupByName(groupname string) (*models.Group, error) {
	for _, drv := range a.activeDrivers() {
		group, err := drv.GroupByName(groupname)
		if err == nil {
			return group, nil
		}
	}

	return nil, ErrGroupNotFound
}

// GroupsByUserID returns every group containing the user across all
// directories, in ascending priority order. This is the order the
// settings resolver walks.
func (a *Aggregate) GroupsByUserID(uid uint64) ([]models.Group, error) {
	var all []models.Group

	for _, drv := range a.activeDrivers() {
		groups, err := drv.GroupsByUserID(uid)
		if err != nil {
			return nil, err
		}

		all = append(all, groups...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}

		return all[i].ID < all[j].ID
	})

	return all, nil
}

// DeleteUserByID routes deletion to the directory owning the user.
// Deleting an id no directory owns is an "already gone" success so the
// cascade saga stays idempotent.
func (a *Aggregate) DeleteUserByID(id uint64) Status {
	for _, drv := range a.activeDrivers() {
		if _, err := drv.UserByID(id); err == nil {
			return drv.DeleteUserByID(id)
		}
	}

	return OKMessage(id, "user %d already gone", id)
}

// DeleteGroupByID routes deletion to the directory owning the group.
func (a *Aggregate) DeleteGroupByID(gid uint64) Status {
	for _, drv := range a.activeDrivers() {
		if _, err := drv.GroupByID(gid); err == nil {
			return drv.DeleteGroupByID(gid)
		}
	}

	return OKMessage(gid, "group %d already gone", gid)
}
