package voicemaildir

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
)

const voicemailConf = `
[general]
format = wav49

; office mailboxes
[default]
101 => 1234,Alice Example,alice@example.com
102 => 4321,Bob Example,bob@example.com
103 => 0000

[support]
201 => 9999,Support Desk,support@example.com
`

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Group{}))

	return db
}

func writeConf(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voicemail.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func testDriver(t *testing.T, db *gorm.DB, cfg directory.Config) *Driver {
	t.Helper()

	dir := models.Directory{ID: 7, Name: "Voicemail", Driver: Tag, Active: true}

	drv, err := New(db, dir, cfg)
	require.NoError(t, err)

	return drv.(*Driver)
}

func TestParse(t *testing.T) {
	t.Run("default context", func(t *testing.T) {
		boxes, err := Parse(bufio.NewScanner(strings.NewReader(voicemailConf)), "default")
		require.NoError(t, err)
		require.Len(t, boxes, 3)

		assert.Equal(t, Mailbox{Number: "101", Pin: "1234", Name: "Alice Example", Email: "alice@example.com"}, boxes[0])
		assert.Equal(t, Mailbox{Number: "103", Pin: "0000"}, boxes[2])
	})

	t.Run("other context", func(t *testing.T) {
		boxes, err := Parse(bufio.NewScanner(strings.NewReader(voicemailConf)), "support")
		require.NoError(t, err)
		require.Len(t, boxes, 1)
		assert.Equal(t, "201", boxes[0].Number)
	})

	t.Run("unknown context", func(t *testing.T) {
		boxes, err := Parse(bufio.NewScanner(strings.NewReader(voicemailConf)), "missing")
		require.NoError(t, err)
		assert.Empty(t, boxes)
	})
}

func TestNew(t *testing.T) {
	db := testDB(t)
	dir := models.Directory{ID: 7, Driver: Tag}

	t.Run("requires file", func(t *testing.T) {
		_, err := New(db, dir, directory.Config{})
		assert.Error(t, err)
	})

	t.Run("rejects general context", func(t *testing.T) {
		_, err := New(db, dir, directory.Config{"file": "x", "context": "general"})
		assert.Error(t, err)
	})
}

func TestSync(t *testing.T) {
	db := testDB(t)
	path := writeConf(t, voicemailConf)
	drv := testDriver(t, db, directory.Config{"file": path})

	require.NoError(t, drv.Sync(context.Background()))

	users, err := drv.AllUsers()
	require.NoError(t, err)
	require.Len(t, users, 3)

	alice, err := drv.UserByUsername("101")
	require.NoError(t, err)
	assert.Equal(t, "Alice Example", alice.DisplayName)
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.Equal(t, "101", alice.DefaultExtension)
	assert.Equal(t, "101", alice.ExternalID)

	t.Run("removed mailbox is pruned", func(t *testing.T) {
		trimmed := strings.Replace(voicemailConf, "102 => 4321,Bob Example,bob@example.com\n", "", 1)
		require.NoError(t, os.WriteFile(path, []byte(trimmed), 0o600))

		require.NoError(t, drv.Sync(context.Background()))

		users, err := drv.AllUsers()
		require.NoError(t, err)
		assert.Len(t, users, 2)

		_, err = drv.UserByUsername("102")
		assert.Error(t, err)
	})

	t.Run("resync keeps changed pin", func(t *testing.T) {
		status := drv.UpdateUser(alice.ID, "101", "", "101", "", nil, "5678")
		require.True(t, status.Status, status.Message)

		require.NoError(t, drv.Sync(context.Background()))

		assert.True(t, drv.CheckCredentials("101", "5678"))
		assert.False(t, drv.CheckCredentials("101", "1234"))
	})
}

func TestCheckCredentials(t *testing.T) {
	db := testDB(t)
	drv := testDriver(t, db, directory.Config{"file": writeConf(t, voicemailConf)})

	require.NoError(t, drv.Sync(context.Background()))

	assert.True(t, drv.CheckCredentials("103", "0000"))
	assert.False(t, drv.CheckCredentials("103", "1111"))
	assert.False(t, drv.CheckCredentials("999", "0000"))
	assert.False(t, drv.CheckCredentials("103", ""))
}

func TestMutations(t *testing.T) {
	db := testDB(t)
	drv := testDriver(t, db, directory.Config{"file": writeConf(t, voicemailConf), "localgroups": "true"})

	require.NoError(t, drv.Sync(context.Background()))

	t.Run("add user refused", func(t *testing.T) {
		status := drv.AddUser("300", "pw", "300", "", nil, true)
		assert.False(t, status.Status)
	})

	t.Run("local group lifecycle", func(t *testing.T) {
		user, err := drv.UserByUsername("101")
		require.NoError(t, err)

		status := drv.AddGroup("Voicemail Users", "imported accounts", []uint64{user.ID}, nil)
		require.True(t, status.Status, status.Message)

		groups, err := drv.GroupsByUserID(user.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.True(t, groups[0].Local)

		status = drv.DeleteGroupByID(groups[0].ID)
		assert.True(t, status.Status)

		status = drv.DeleteGroupByID(groups[0].ID)
		assert.True(t, status.Status, "delete is idempotent")
	})

	t.Run("permissions", func(t *testing.T) {
		perms := drv.Permissions()
		assert.True(t, perms.Can(directory.PermModifyUser))
		assert.True(t, perms.Can(directory.PermChangePassword))
		assert.True(t, perms.Can(directory.PermAddGroup))
		assert.False(t, perms.Can(directory.PermAddUser))
	})
}
