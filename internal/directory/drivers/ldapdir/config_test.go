package ldapdir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
)

func TestParseSettings(t *testing.T) {
	t.Run("host required", func(t *testing.T) {
		_, err := parseSettings(directory.Config{})
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		s, err := parseSettings(directory.Config{"host": "ldap.example.com"})
		require.NoError(t, err)

		assert.Equal(t, 389, s.Port)
		assert.Equal(t, 10, s.Timeout)
		assert.Equal(t, "(uid={username})", s.UserFilter)
		assert.Equal(t, "(objectClass=groupOfNames)", s.GroupFilter)
		assert.Equal(t, "uid", s.UsernameAttr)
		assert.Equal(t, "mail", s.EmailAttr)
		assert.Equal(t, "member", s.GroupMemberAttr)
		assert.False(t, s.UseSSL)
		assert.False(t, s.LocalGroups)
	})

	t.Run("explicit values win", func(t *testing.T) {
		s, err := parseSettings(directory.Config{
			"host":        "ad.example.com",
			"port":        "636",
			"usessl":      "true",
			"timeout":     "30",
			"userfilter":  "(sAMAccountName={username})",
			"localgroups": "1",
		})
		require.NoError(t, err)

		assert.Equal(t, 636, s.Port)
		assert.True(t, s.UseSSL)
		assert.Equal(t, 30, s.Timeout)
		assert.Equal(t, "(sAMAccountName={username})", s.UserFilter)
		assert.True(t, s.LocalGroups)
	})

	t.Run("bad numbers rejected", func(t *testing.T) {
		_, err := parseSettings(directory.Config{"host": "x", "port": "abc"})
		assert.Error(t, err)

		_, err = parseSettings(directory.Config{"host": "x", "timeout": "later"})
		assert.Error(t, err)
	})
}

func TestPermissions(t *testing.T) {
	dir := models.Directory{ID: 1, Driver: Tag}

	drv, err := New(nil, dir, directory.Config{"host": "ldap.example.com"})
	require.NoError(t, err)

	perms := drv.Permissions()
	assert.True(t, perms.Can(directory.PermModifyUser), "locally stored fields stay editable")
	assert.False(t, perms.Can(directory.PermAddUser))
	assert.False(t, perms.Can(directory.PermRemoveUser))
	assert.False(t, perms.Can(directory.PermChangePassword))
	assert.False(t, perms.Can(directory.PermAddGroup))

	t.Run("localgroups extra", func(t *testing.T) {
		drv, err := New(nil, dir, directory.Config{"host": "ldap.example.com", "localgroups": "1"})
		require.NoError(t, err)

		perms := drv.Permissions()
		assert.True(t, perms.Can(directory.PermLocalGroups))
		assert.True(t, perms.Can(directory.PermAddGroup))
	})
}
