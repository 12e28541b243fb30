package internaldir

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
)

func testDriver(t *testing.T, id uint64, cfg directory.Config) (*Driver, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Group{}))

	drv, err := New(db, models.Directory{ID: id, Name: "Internal", Driver: directory.InternalDriverTag}, cfg)
	require.NoError(t, err)

	return drv.(*Driver), db
}

func TestAddUser(t *testing.T) {
	drv, _ := testDriver(t, 1, nil)

	status := drv.AddUser("alice", "secret", "1001", "first", nil, true)
	require.True(t, status.Status, status.Message)

	t.Run("password is hashed", func(t *testing.T) {
		user, err := drv.UserByID(status.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "secret", user.Password)
		assert.True(t, user.VerifyPassword("secret"))
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		dup := drv.AddUser("alice", "other", "", "", nil, true)
		assert.False(t, dup.Status)
	})

	t.Run("in-use extension rejected", func(t *testing.T) {
		clash := drv.AddUser("bob", "pw", "1001", "", nil, true)
		assert.False(t, clash.Status)
	})

	t.Run("none extension never clashes", func(t *testing.T) {
		a := drv.AddUser("carol", "pw", "", "", nil, true)
		require.True(t, a.Status, a.Message)

		b := drv.AddUser("dave", "pw", "", "", nil, true)
		assert.True(t, b.Status, b.Message)
	})

	t.Run("legacy import stored verbatim", func(t *testing.T) {
		legacy := drv.AddUser("eve", "5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8", "", "", nil, false)
		require.True(t, legacy.Status, legacy.Message)

		assert.True(t, drv.CheckCredentials("eve", "password"), "sha1 import verifies against the plain password")
	})

	t.Run("extra fields applied", func(t *testing.T) {
		status := drv.AddUser("frank", "pw", "", "", map[string]string{
			"email": "frank@example.com",
			"fname": "Frank",
		}, true)
		require.True(t, status.Status, status.Message)

		user, err := drv.UserByEmail("frank@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Frank", user.FName)
	})
}

func TestUpdateUser(t *testing.T) {
	drv, _ := testDriver(t, 1, nil)

	status := drv.AddUser("alice", "secret", "1001", "", nil, true)
	require.True(t, status.Status)

	uid := status.ID

	t.Run("empty username keeps previous", func(t *testing.T) {
		up := drv.UpdateUser(uid, "alice", "", "1001", "moved", nil, "")
		require.True(t, up.Status, up.Message)

		user, err := drv.UserByID(uid)
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "moved", user.Description)
	})

	t.Run("empty password keeps credential", func(t *testing.T) {
		up := drv.UpdateUser(uid, "alice", "alice", "1001", "", nil, "")
		require.True(t, up.Status)

		assert.True(t, drv.CheckCredentials("alice", "secret"))
	})

	t.Run("new password re-hashed", func(t *testing.T) {
		up := drv.UpdateUser(uid, "alice", "alice", "1001", "", nil, "rotated")
		require.True(t, up.Status)

		assert.True(t, drv.CheckCredentials("alice", "rotated"))
		assert.False(t, drv.CheckCredentials("alice", "secret"))
	})

	t.Run("own extension is not a clash", func(t *testing.T) {
		up := drv.UpdateUser(uid, "alice", "alice", "1001", "", nil, "")
		assert.True(t, up.Status, up.Message)
	})

	t.Run("unknown user", func(t *testing.T) {
		up := drv.UpdateUser(99999, "x", "x", "", "", nil, "")
		assert.False(t, up.Status)
	})
}

func TestDeleteIdempotence(t *testing.T) {
	drv, _ := testDriver(t, 1, nil)

	status := drv.AddUser("alice", "secret", "", "", nil, true)
	require.True(t, status.Status)

	first := drv.DeleteUserByID(status.ID)
	assert.True(t, first.Status)
	assert.Empty(t, first.Message)

	second := drv.DeleteUserByID(status.ID)
	assert.True(t, second.Status)
	assert.Contains(t, second.Message, "already gone")
}

func TestGroups(t *testing.T) {
	drv, _ := testDriver(t, 1, nil)

	a := drv.AddUser("alice", "pw", "", "", nil, true)
	require.True(t, a.Status)

	status := drv.AddGroup("Admins", "administrators", []uint64{a.ID, 0, a.ID}, map[string]string{"priority": "1"})
	require.True(t, status.Status, status.Message)

	t.Run("members filtered and deduplicated", func(t *testing.T) {
		group, err := drv.GroupByID(status.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint64{a.ID}, group.Users)
		assert.Equal(t, 1, group.Priority)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		dup := drv.AddGroup("Admins", "", nil, nil)
		assert.False(t, dup.Status)
	})

	t.Run("nil users leaves membership", func(t *testing.T) {
		up := drv.UpdateGroup(status.ID, "Admins", "Admins", "renamed", nil, nil)
		require.True(t, up.Status)

		group, err := drv.GroupByID(status.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint64{a.ID}, group.Users)
	})

	t.Run("non-nil users replaces membership", func(t *testing.T) {
		up := drv.UpdateGroup(status.ID, "Admins", "Admins", "", []uint64{}, nil)
		require.True(t, up.Status)

		group, err := drv.GroupByID(status.ID)
		require.NoError(t, err)
		assert.Empty(t, group.Users)
	})
}

func TestDirectoryScoping(t *testing.T) {
	drv1, db := testDriver(t, 1, nil)

	drv2raw, err := New(db, models.Directory{ID: 2, Name: "Other"}, nil)
	require.NoError(t, err)

	drv2 := drv2raw.(*Driver)

	a := drv1.AddUser("alice", "pw", "1001", "", nil, true)
	require.True(t, a.Status)

	t.Run("same username allowed in another directory", func(t *testing.T) {
		b := drv2.AddUser("alice", "pw2", "", "", nil, true)
		assert.True(t, b.Status, b.Message)
	})

	t.Run("extensions are unique across directories", func(t *testing.T) {
		c := drv2.AddUser("bob", "pw", "1001", "", nil, true)
		assert.False(t, c.Status)
	})

	t.Run("lookups stay scoped", func(t *testing.T) {
		_, err := drv2.UserByID(a.ID)
		assert.Error(t, err)

		del := drv2.DeleteUserByID(a.ID)
		assert.True(t, del.Status)
		assert.Contains(t, del.Message, "already gone", "foreign rows are untouchable")

		_, err = drv1.UserByID(a.ID)
		assert.NoError(t, err)
	})
}

func TestDefaultGroups(t *testing.T) {
	drv, _ := testDriver(t, 1, directory.Config{})

	status := drv.AddGroup("All Users", "", nil, nil)
	require.True(t, status.Status)

	t.Run("no config yields none", func(t *testing.T) {
		groups, err := drv.DefaultGroups()
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("configured list resolves", func(t *testing.T) {
		drv.cfg = directory.Config{"default-groups": fmt.Sprintf("%d", status.ID)}

		groups, err := drv.DefaultGroups()
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "All Users", groups[0].Groupname)
	})
}
