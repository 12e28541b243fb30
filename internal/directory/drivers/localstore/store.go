// Package localstore provides the relational row access shared by all
// drivers that keep their users and groups in the local tables: the
// internal driver owns its rows outright, while federated drivers
// (LDAP, AD, voicemail) mirror remote state into the same tables under
// their own directory id.
package localstore

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
)

// Store scopes user/group row access to one directory.
type Store struct {
	db    *gorm.DB
	dirID uint64
}

// New returns a store scoped to the given directory id.
func New(db *gorm.DB, dirID uint64) *Store {
	return &Store{db: db, dirID: dirID}
}

// DB exposes the underlying handle for driver-specific queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// DirectoryID returns the directory this store is scoped to.
func (s *Store) DirectoryID() uint64 {
	return s.dirID
}

func (s *Store) users() *gorm.DB {
	return s.db.Model(&models.User{}).Where("auth = ?", s.dirID)
}

func (s *Store) groups() *gorm.DB {
	return s.db.Model(&models.Group{}).Where("auth = ?", s.dirID)
}

// AllUsers returns the directory's users ordered by username.
func (s *Store) AllUsers() ([]models.User, error) {
	var users []models.User
	if err := s.users().Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// AllGroups returns the directory's groups ordered by priority.
func (s *Store) AllGroups() ([]models.Group, error) {
	var groups []models.Group
	if err := s.groups().Order("priority, id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	return groups, nil
}

// UserByID returns the user if this directory owns it.
func (s *Store) UserByID(id uint64) (*models.User, error) {
	var user models.User

	err := s.users().Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// UserByUsername returns the user owning username in this directory.
func (s *Store) UserByUsername(username string) (*models.User, error) {
	var user models.User

	err := s.users().Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// UserByEmail returns the first user with the given email.
func (s *Store) UserByEmail(email string) (*models.User, error) {
	var user models.User

	err := s.users().Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// UserByDefaultExtension returns the user linked to the extension.
// The NoExtension sentinel never matches.
func (s *Store) UserByDefaultExtension(ext string) (*models.User, error) {
	if ext == models.NoExtension {
		return nil, directory.ErrUserNotFound
	}

	var user models.User

	err := s.users().Where("default_extension = ?", ext).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GroupByID returns the group if this directory owns it.
func (s *Store) GroupByID(gid uint64) (*models.Group, error) {
	var group models.Group

	err := s.groups().Where("id = ?", gid).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrGroupNotFound
		}

		return nil, fmt.Errorf("failed to query group: %w", err)
	}

	return &group, nil
}

// GroupByName returns the group named groupname in this directory.
func (s *Store) GroupByName(groupname string) (*models.Group, error) {
	var group models.Group

	err := s.groups().Where("groupname = ?", groupname).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrGroupNotFound
		}

		return nil, fmt.Errorf("failed to query group: %w", err)
	}

	return &group, nil
}

// GroupsByUserID returns the directory's groups containing uid, sorted
// by ascending priority. Membership lives in a serialized id list, so
// the filter happens here rather than in SQL.
func (s *Store) GroupsByUserID(uid uint64) ([]models.Group, error) {
	groups, err := s.AllGroups()
	if err != nil {
		return nil, err
	}

	var member []models.Group

	for i := range groups {
		if groups[i].HasMember(uid) {
			member = append(member, groups[i])
		}
	}

	sort.SliceStable(member, func(i, j int) bool {
		if member[i].Priority != member[j].Priority {
			return member[i].Priority < member[j].Priority
		}

		return member[i].ID < member[j].ID
	})

	return member, nil
}

// GroupsByIDList resolves a config-style comma-separated gid list to
// the directory's groups, silently dropping unknown ids.
func (s *Store) GroupsByIDList(list string) ([]models.Group, error) {
	var groups []models.Group

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		gid, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			continue
		}

		group, err := s.GroupByID(gid)
		if err != nil {
			continue
		}

		groups = append(groups, *group)
	}

	return groups, nil
}

// ExtensionInUse reports whether a non-sentinel extension is already
// linked to a user other than excludeUID, across all directories.
func (s *Store) ExtensionInUse(ext string, excludeUID uint64) (bool, error) {
	if ext == models.NoExtension || ext == "" {
		return false, nil
	}

	var count int64

	err := s.db.Model(&models.User{}).
		Where("default_extension = ? AND id <> ?", ext, excludeUID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check extension use: %w", err)
	}

	return count > 0, nil
}

// UsernameTaken reports whether username already exists in this
// directory on a user other than excludeUID.
func (s *Store) UsernameTaken(username string, excludeUID uint64) (bool, error) {
	var count int64

	err := s.users().Where("username = ? AND id <> ?", username, excludeUID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}

	return count > 0, nil
}

// FilterMembers drops zero/duplicate user ids from a membership list.
func FilterMembers(users []uint64) []uint64 {
	if users == nil {
		return nil
	}

	seen := make(map[uint64]struct{}, len(users))
	out := make([]uint64, 0, len(users))

	for _, uid := range users {
		if uid == 0 {
			continue
		}

		if _, dup := seen[uid]; dup {
			continue
		}

		seen[uid] = struct{}{}
		out = append(out, uid)
	}

	return out
}

// ApplyExtra writes recognized extra-data keys onto the user row.
// Unknown keys are ignored, matching the loose contract bulk importers
// rely on.
func ApplyExtra(user *models.User, extra map[string]string) {
	for key, val := range extra {
		switch key {
		case "displayname":
			user.DisplayName = val
		case "fname":
			user.FName = val
		case "lname":
			user.LName = val
		case "title":
			user.Title = val
		case "company":
			user.Company = val
		case "department":
			user.Department = val
		case "email":
			user.Email = val
		case "cell":
			user.CellPhone = val
		case "work":
			user.WorkPhone = val
		case "home":
			user.HomePhone = val
		case "language":
			user.Language = val
		case "timezone":
			user.Timezone = val
		case "dateformat":
			user.DateFormat = val
		case "timeformat":
			user.TimeFormat = val
		case "datetimeformat":
			user.DateTimeFormat = val
		}
	}
}

// ApplyGroupExtra writes recognized extra-data keys onto the group row.
func ApplyGroupExtra(group *models.Group, extra map[string]string) {
	for key, val := range extra {
		switch key {
		case "priority":
			if p, err := strconv.Atoi(val); err == nil {
				group.Priority = p
			}
		case "local":
			group.Local = val == "1" || val == "true"
		case "language":
			group.Language = val
		case "timezone":
			group.Timezone = val
		case "dateformat":
			group.DateFormat = val
		case "timeformat":
			group.TimeFormat = val
		case "datetimeformat":
			group.DateTimeFormat = val
		}
	}
}
