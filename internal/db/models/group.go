package models

import "time"

// Group represents a user group owned by exactly one directory.
// Membership is stored as a list of user ids on the group row itself,
// matching the way delegating drivers sync remote group state in one
// write. Group settings take precedence by ascending Priority when the
// settings resolver walks a user's groups.
type Group struct {
	// ID is the unique identifier for the group.
	ID uint64 `gorm:"primaryKey"`
	// DirectoryID is the owning directory.
	DirectoryID uint64 `gorm:"column:auth;not null;index"`
	// Groupname is the group's name, unique within the directory.
	Groupname string `gorm:"size:100;not null;index"`
	// Description provides a human-readable explanation of the group's purpose.
	Description string `gorm:"size:255"`
	// Priority orders this group's settings against the user's other
	// groups. Lower values win.
	Priority int `gorm:"not null;default:0"`
	// Local marks a group that stays editable while its directory is
	// otherwise locked, when the directory config allows local groups.
	Local bool
	// Users holds the member user ids.
	Users []uint64 `gorm:"serializer:json;column:users"`
	// ExternalID is the backend identifier for synced groups (DN for
	// LDAP/AD). Empty for locally created groups.
	ExternalID string `gorm:"size:255;index"`

	// Locale fields, consulted by the settings resolver when the user
	// row leaves them empty.
	Language       string `gorm:"size:20"`
	Timezone       string `gorm:"size:50"`
	DateFormat     string `gorm:"size:20"`
	TimeFormat     string `gorm:"size:20"`
	DateTimeFormat string `gorm:"size:30"`

	// CreatedAt is the timestamp when the group was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the group was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Group model.
func (Group) TableName() string {
	return "userman_groups"
}

// HasMember reports whether uid is in the group's member list.
func (g *Group) HasMember(uid uint64) bool {
	for _, m := range g.Users {
		if m == uid {
			return true
		}
	}

	return false
}

// AddMember appends uid to the member list if not already present.
// It reports whether the list changed.
func (g *Group) AddMember(uid uint64) bool {
	if g.HasMember(uid) {
		return false
	}

	g.Users = append(g.Users, uid)

	return true
}

// RemoveMember removes uid from the member list.
// It reports whether the list changed.
func (g *Group) RemoveMember(uid uint64) bool {
	for i, m := range g.Users {
		if m == uid {
			g.Users = append(g.Users[:i], g.Users[i+1:]...)
			return true
		}
	}

	return false
}
