package directory

// Permission names advertised by drivers. Every driver reports the
// seven fixed capabilities; drivers may declare extra flags (such as
// PermLocalGroups) beyond the fixed set.
const (
	PermAddUser        = "addUser"
	PermRemoveUser     = "removeUser"
	PermModifyUser     = "modifyUser"
	PermAddGroup       = "addGroup"
	PermRemoveGroup    = "removeGroup"
	PermModifyGroup    = "modifyGroup"
	PermChangePassword = "changePassword"

	// PermLocalGroups marks a directory whose local groups stay
	// editable while the directory itself is read-only or locked.
	PermLocalGroups = "localgroups"
)

// Permissions is a driver's capability map.
type Permissions map[string]bool

// Can reports whether the named capability is advertised and enabled.
func (p Permissions) Can(name string) bool {
	return p[name]
}

// AllPermissions returns a fully-enabled fixed capability set.
// Drivers start from this or from NoPermissions and adjust.
func AllPermissions() Permissions {
	return Permissions{
		PermAddUser:        true,
		PermRemoveUser:     true,
		PermModifyUser:     true,
		PermAddGroup:       true,
		PermRemoveGroup:    true,
		PermModifyGroup:    true,
		PermChangePassword: true,
	}
}

// NoPermissions returns a fully-disabled fixed capability set.
func NoPermissions() Permissions {
	return Permissions{
		PermAddUser:        false,
		PermRemoveUser:     false,
		PermModifyUser:     false,
		PermAddGroup:       false,
		PermRemoveGroup:    false,
		PermModifyGroup:    false,
		PermChangePassword: false,
	}
}
