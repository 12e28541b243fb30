// Package models contains database model definitions.
package models

// SettingTypeJSONArray is the type tag marking a setting value stored
// as a JSON-encoded string array. Rows without the tag hold scalars.
const SettingTypeJSONArray = "json-arr"

// UserSetting is one typed key/value entry scoped to a user and a
// module namespace.
type UserSetting struct {
	UID    uint64 `gorm:"primaryKey;column:uid"`
	Module string `gorm:"primaryKey;size:100"`
	Key    string `gorm:"primaryKey;size:100"`
	Val    string `gorm:"size:2048"`
	Type   string `gorm:"size:20"`
}

// TableName specifies the database table name for the UserSetting model.
func (UserSetting) TableName() string {
	return "userman_users_settings"
}

// GroupSetting is one typed key/value entry scoped to a group and a
// module namespace.
type GroupSetting struct {
	GID    uint64 `gorm:"primaryKey;column:gid"`
	Module string `gorm:"primaryKey;size:100"`
	Key    string `gorm:"primaryKey;size:100"`
	Val    string `gorm:"size:2048"`
	Type   string `gorm:"size:20"`
}

// TableName specifies the database table name for the GroupSetting model.
func (GroupSetting) TableName() string {
	return "userman_groups_settings"
}

// GlobalSetting is the single-row module-wide settings blob. All
// module-agnostic state that is not relational (including the password
// reset token map) lives inside Data as one JSON object.
type GlobalSetting struct {
	ID   string `gorm:"primaryKey;size:50"`
	Data []byte `gorm:"type:blob"`
}

// TableName specifies the database table name for the GlobalSetting model.
func (GlobalSetting) TableName() string {
	return "userman_data"
}
