package userman

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/config"
	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	_ "github.com/alexscott/userman/internal/directory/drivers/internaldir"
	"github.com/alexscott/userman/internal/directory/drivers/ldapdir"
	"github.com/alexscott/userman/internal/directory/drivers/voicemaildir"
	"github.com/alexscott/userman/internal/settings"
)

// fakeMailer records sent messages instead of delivering them.
type fakeMailer struct {
	sent []fakeMail
}

type fakeMail struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

func (m *fakeMailer) Send(to, subject, body string, html bool) error {
	m.sent = append(m.sent, fakeMail{To: to, Subject: subject, Body: body, HTML: html})

	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Mail: config.Mail{Host: "localhost", Port: 25, From: "pbx@example.com"},
		Userman: config.Userman{
			Brand:       "TestPBX",
			HostURL:     "https://pbx.example.com",
			TokenExpiry: 24 * time.Hour,
		},
	}
}

func newTestUserman(t *testing.T) (*Userman, *gorm.DB, *fakeMailer) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Directory{}, &models.DirectoryConfig{},
		&models.User{}, &models.Group{},
		&models.UserSetting{}, &models.GroupSetting{}, &models.GlobalSetting{},
	))

	mailer := &fakeMailer{}

	u, err := New(db, testConfig(), mailer)
	require.NoError(t, err)

	return u, db, mailer
}

func addUser(t *testing.T, u *Userman, dirID uint64, username, password string) uint64 {
	t.Helper()

	status, err := u.AddUserByDirectory(dirID, username, password, "", "", nil, true)
	require.NoError(t, err)
	require.True(t, status.Status, status.Message)

	return status.ID
}

func TestDefaultDirectoryBootstrap(t *testing.T) {
	u, _, _ := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)
	assert.True(t, dir.Default)
	assert.Equal(t, directory.InternalDriverTag, dir.Driver)

	t.Run("stable on repeat", func(t *testing.T) {
		again, err := u.DefaultDirectory()
		require.NoError(t, err)
		assert.Equal(t, dir.ID, again.ID)
	})

	t.Run("bootstrap group exists", func(t *testing.T) {
		group, err := u.aggregate().GroupByName(directory.BootstrapGroupName)
		require.NoError(t, err)
		assert.Equal(t, dir.ID, group.DirectoryID)
	})

	t.Run("exactly one default after set-default", func(t *testing.T) {
		otherID, err := u.AddDirectory(directory.InternalDriverTag, "Second", true, nil)
		require.NoError(t, err)

		require.NoError(t, u.SetDefaultDirectory(otherID))

		dirs, err := u.AllDirectories()
		require.NoError(t, err)

		defaults := 0
		for _, d := range dirs {
			if d.Default {
				defaults++
			}
		}

		assert.Equal(t, 1, defaults)
	})
}

func TestAddUser(t *testing.T) {
	u, _, _ := newTestUserman(t)

	t.Run("blank credentials rejected", func(t *testing.T) {
		_, err := u.AddUser("", "secret", "", "", nil, true)
		assert.ErrorIs(t, err, directory.ErrValidation)

		_, err = u.AddUser("alice", "", "", "", nil, true)
		assert.ErrorIs(t, err, directory.ErrValidation)
	})

	t.Run("lands in default directory and group", func(t *testing.T) {
		status, err := u.AddUser("alice", "secret", "1001", "first user", nil, true)
		require.NoError(t, err)
		require.True(t, status.Status, status.Message)

		user, err := u.UserByUsername("alice")
		require.NoError(t, err)

		dir, err := u.DefaultDirectory()
		require.NoError(t, err)
		assert.Equal(t, dir.ID, user.DirectoryID)

		groups, err := u.GroupsByUserID(user.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, directory.BootstrapGroupName, groups[0].Groupname)
	})

	t.Run("default-flagged group enrolls too", func(t *testing.T) {
		dir, err := u.DefaultDirectory()
		require.NoError(t, err)

		status, err := u.AddGroupByDirectory(dir.ID, "Flagged", "", nil, nil)
		require.NoError(t, err)
		require.True(t, status.Status, status.Message)

		require.NoError(t, u.GroupSettings().Set(status.ID, settings.ModuleGlobal, "default", true))

		uid := addUser(t, u, dir.ID, "bob", "secret")

		groups, err := u.GroupsByUserID(uid)
		require.NoError(t, err)
		assert.Len(t, groups, 2)
	})
}

func TestUpdateUserMembershipReconciliation(t *testing.T) {
	u, _, _ := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)

	uid := addUser(t, u, dir.ID, "carol", "secret")

	g1, err := u.AddGroupByDirectory(dir.ID, "Sales", "", nil, nil)
	require.NoError(t, err)
	g2, err := u.AddGroupByDirectory(dir.ID, "Support", "", nil, nil)
	require.NoError(t, err)

	t.Run("nil leaves memberships alone", func(t *testing.T) {
		before, err := u.GroupsByUserID(uid)
		require.NoError(t, err)

		status, err := u.UpdateUser(uid, "carol", "carol", "", "updated", nil, "", nil)
		require.NoError(t, err)
		require.True(t, status.Status, status.Message)

		after, err := u.GroupsByUserID(uid)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("explicit set replaces memberships", func(t *testing.T) {
		status, err := u.UpdateUser(uid, "carol", "carol", "", "", nil, "", []uint64{g1.ID, g2.ID})
		require.NoError(t, err)
		require.True(t, status.Status, status.Message)

		groups, err := u.GroupsByUserID(uid)
		require.NoError(t, err)
		require.Len(t, groups, 2, "bootstrap membership dropped, two explicit ones set")

		status, err = u.UpdateUser(uid, "carol", "carol", "", "", nil, "", []uint64{g2.ID})
		require.NoError(t, err)
		require.True(t, status.Status)

		groups, err = u.GroupsByUserID(uid)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "Support", groups[0].Groupname)
	})
}

func TestLockGating(t *testing.T) {
	u, db, _ := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)

	require.NoError(t, u.LockDirectory(dir.ID))

	t.Run("add rejected without side effect", func(t *testing.T) {
		_, err := u.AddUserByDirectory(dir.ID, "dave", "secret", "", "", nil, true)
		assert.ErrorIs(t, err, directory.ErrLockedDirectory)

		var count int64
		require.NoError(t, db.Model(&models.User{}).Where("username = ?", "dave").Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("unlock takes effect immediately", func(t *testing.T) {
		require.NoError(t, u.UnlockDirectory(dir.ID))

		addUser(t, u, dir.ID, "dave", "secret")
	})

	t.Run("update gated too", func(t *testing.T) {
		user, err := u.UserByUsername("dave")
		require.NoError(t, err)

		require.NoError(t, u.LockDirectory(dir.ID))

		_, err = u.UpdateUser(user.ID, "dave", "dave", "", "x", nil, "", nil)
		assert.ErrorIs(t, err, directory.ErrLockedDirectory)
	})
}

func TestCheckCredentialsDirectoryOrder(t *testing.T) {
	u, _, _ := newTestUserman(t)

	dirA, err := u.DefaultDirectory()
	require.NoError(t, err)

	dirBID, err := u.AddDirectory(directory.InternalDriverTag, "Second", true, nil)
	require.NoError(t, err)

	addUser(t, u, dirA.ID, "alice", "first-pw")
	addUser(t, u, dirBID, "alice", "second-pw")

	ok, err := u.CheckCredentials("alice", "first-pw")
	require.NoError(t, err)
	assert.True(t, ok, "first directory by order owns the username")

	ok, err = u.CheckCredentials("alice", "second-pw")
	require.NoError(t, err)
	assert.False(t, ok, "shadowed duplicate never authenticates")

	t.Run("unknown user", func(t *testing.T) {
		ok, err := u.CheckCredentials("nobody", "pw")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("inactive directory skipped", func(t *testing.T) {
		_, err := u.UpdateDirectory(dirA.ID, dirA.Name, false, nil)
		require.NoError(t, err)

		ok, err := u.CheckCredentials("alice", "second-pw")
		require.NoError(t, err)
		assert.True(t, ok, "ownership falls to the next active directory")
	})
}

func TestDeleteUser(t *testing.T) {
	u, db, _ := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)

	uid := addUser(t, u, dir.ID, "erin", "secret")
	require.NoError(t, u.UserSettings().Set(uid, settings.ModuleGlobal, "pbx_admin", true))

	var delUserCalls []uint64

	u.RegisterHook(ActionDelUser, func(id uint64) {
		delUserCalls = append(delUserCalls, id)
	})

	status, err := u.DeleteUserByID(uid)
	require.NoError(t, err)
	require.True(t, status.Status)

	t.Run("hook fired", func(t *testing.T) {
		assert.Equal(t, []uint64{uid}, delUserCalls)
	})

	t.Run("memberships and settings removed", func(t *testing.T) {
		groups, err := u.AllGroups()
		require.NoError(t, err)

		for _, g := range groups {
			assert.False(t, g.HasMember(uid))
		}

		var count int64
		require.NoError(t, db.Model(&models.UserSetting{}).Where("uid = ?", uid).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("repeat delete is already gone", func(t *testing.T) {
		status, err := u.DeleteUserByID(uid)
		require.NoError(t, err)
		assert.True(t, status.Status)
		assert.Contains(t, status.Message, "already gone")
	})
}

func TestDeleteDirectoryCascade(t *testing.T) {
	u, db, _ := newTestUserman(t)

	// Keep a default directory around so the doomed one is not it.
	_, err := u.DefaultDirectory()
	require.NoError(t, err)

	dirID, err := u.AddDirectory(directory.InternalDriverTag, "Doomed", true, nil)
	require.NoError(t, err)

	uid := addUser(t, u, dirID, "frank", "secret")

	status, err := u.AddGroupByDirectory(dirID, "Doomed Group", "", []uint64{uid}, nil)
	require.NoError(t, err)
	require.True(t, status.Status)

	require.NoError(t, u.UserSettings().Set(uid, settings.ModuleGlobal, "k", "v"))
	require.NoError(t, u.GroupSettings().Set(status.ID, settings.ModuleGlobal, "k", "v"))

	require.NoError(t, u.DeleteDirectoryByID(dirID))

	var users, groups, userSettings, groupSettings, configs int64
	require.NoError(t, db.Model(&models.User{}).Where("auth = ?", dirID).Count(&users).Error)
	require.NoError(t, db.Model(&models.Group{}).Where("auth = ?", dirID).Count(&groups).Error)
	require.NoError(t, db.Model(&models.UserSetting{}).Where("uid = ?", uid).Count(&userSettings).Error)
	require.NoError(t, db.Model(&models.GroupSetting{}).Where("gid = ?", status.ID).Count(&groupSettings).Error)
	require.NoError(t, db.Model(&models.DirectoryConfig{}).Where("directory_id = ?", dirID).Count(&configs).Error)

	assert.Zero(t, users)
	assert.Zero(t, groups)
	assert.Zero(t, userSettings)
	assert.Zero(t, groupSettings)
	assert.Zero(t, configs)

	_, err = u.Registry().DirectoryByID(dirID)
	assert.ErrorIs(t, err, directory.ErrUnknownDirectory)
}

func TestResetTokens(t *testing.T) {
	u, _, _ := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)

	uid := addUser(t, u, dir.ID, "grace", "old-pw")

	token, err := u.GenerateToken(uid, time.Hour, false)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("reissue without force returns same token", func(t *testing.T) {
		again, err := u.GenerateToken(uid, time.Hour, false)
		require.NoError(t, err)
		assert.Equal(t, token, again)
	})

	t.Run("force replaces", func(t *testing.T) {
		fresh, err := u.GenerateToken(uid, time.Hour, true)
		require.NoError(t, err)
		assert.NotEqual(t, token, fresh)

		_, err = u.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenNotFound)

		token = fresh
	})

	t.Run("validate resolves user without consuming", func(t *testing.T) {
		user, err := u.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, uid, user.ID)

		_, err = u.ValidateToken(token)
		require.NoError(t, err)
	})

	t.Run("reset consumes and changes password", func(t *testing.T) {
		status, err := u.ResetPasswordWithToken(token, "new-pw")
		require.NoError(t, err)
		require.True(t, status.Status, status.Message)

		ok, err := u.CheckCredentials("grace", "new-pw")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = u.CheckCredentials("grace", "old-pw")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = u.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("expired tokens are pruned on read", func(t *testing.T) {
		expiring, err := u.GenerateToken(uid, time.Minute, true)
		require.NoError(t, err)

		u.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		tokens, err := u.Tokens()
		require.NoError(t, err)
		assert.NotContains(t, tokens, expiring)
	})

	t.Run("reset all", func(t *testing.T) {
		u.now = time.Now

		_, err := u.GenerateToken(uid, time.Hour, true)
		require.NoError(t, err)

		require.NoError(t, u.ResetAllTokens())

		tokens, err := u.Tokens()
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})
}

func TestWelcomeEmail(t *testing.T) {
	u, _, mailer := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)

	uidNoMail := addUser(t, u, dir.ID, "henry", "secret")

	status, err := u.AddUserByDirectory(dir.ID, "irene", "secret", "", "",
		map[string]string{"email": "irene@example.com"}, true)
	require.NoError(t, err)
	require.True(t, status.Status)

	t.Run("missing address", func(t *testing.T) {
		assert.Error(t, u.SendWelcomeEmail(uidNoMail, "secret"))
	})

	t.Run("template substitution", func(t *testing.T) {
		var welcomed []uint64

		u.RegisterHook(ActionWelcome, func(id uint64) { welcomed = append(welcomed, id) })

		require.NoError(t, u.SendWelcomeEmail(status.ID, "secret"))

		require.Len(t, mailer.sent, 1)
		mail := mailer.sent[0]
		assert.Equal(t, "irene@example.com", mail.To)
		assert.Contains(t, mail.Subject, "TestPBX")
		assert.Contains(t, mail.Body, "irene")
		assert.Contains(t, mail.Body, "https://pbx.example.com/reset?token=")
		assert.NotContains(t, mail.Body, "%brand%")
		assert.Equal(t, []uint64{status.ID}, welcomed)
	})

	t.Run("send to all skips addressless users", func(t *testing.T) {
		mailer.sent = nil

		require.NoError(t, u.SendWelcomeEmailToAll())
		assert.Len(t, mailer.sent, 1)
	})
}

func TestUpdateLDAPUserLocalFields(t *testing.T) {
	u, db, _ := newTestUserman(t)

	// Port 1 on loopback refuses instantly, so the post-add sync
	// attempt fails fast without a server.
	dirID, err := u.AddDirectory(ldapdir.Tag, "Corp LDAP", true,
		directory.Config{"host": "127.0.0.1", "port": "1"})
	require.NoError(t, err)

	user := models.User{
		DirectoryID:      dirID,
		ExternalID:       "uid=ken,dc=example,dc=com",
		Username:         "ken",
		DefaultExtension: models.NoExtension,
	}
	require.NoError(t, db.Create(&user).Error)

	status, err := u.UpdateUser(user.ID, "ken", "ken", "2001", "synced account", nil, "", nil)
	require.NoError(t, err)
	require.True(t, status.Status, status.Message)

	got, err := u.UserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "2001", got.DefaultExtension)
	assert.Equal(t, "synced account", got.Description)

	t.Run("password change still refused", func(t *testing.T) {
		status, err := u.UpdateUser(user.ID, "ken", "ken", "2001", "", nil, "new-pw", nil)
		require.NoError(t, err)
		assert.False(t, status.Status)
	})
}

func TestUpdateVoicemailPin(t *testing.T) {
	u, _, _ := newTestUserman(t)

	path := filepath.Join(t.TempDir(), "voicemail.conf")
	require.NoError(t, os.WriteFile(path, []byte("[default]\n101 => 1234,Alice Example,alice@example.com\n"), 0o600))

	_, err := u.AddDirectory(voicemaildir.Tag, "Voicemail", true, directory.Config{"file": path})
	require.NoError(t, err)

	user, err := u.UserByUsername("101")
	require.NoError(t, err)

	status, err := u.UpdateUser(user.ID, "101", "101", "101", "", nil, "9999", nil)
	require.NoError(t, err)
	require.True(t, status.Status, status.Message)

	ok, err := u.CheckCredentials("101", "9999")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.CheckCredentials("101", "1234")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetPasswordLockedDirectory(t *testing.T) {
	u, _, _ := newTestUserman(t)

	dir, err := u.DefaultDirectory()
	require.NoError(t, err)

	uid := addUser(t, u, dir.ID, "kate", "old-pw")

	token, err := u.GenerateToken(uid, time.Hour, false)
	require.NoError(t, err)

	require.NoError(t, u.LockDirectory(dir.ID))

	_, err = u.ResetPasswordWithToken(token, "new-pw")
	assert.ErrorIs(t, err, directory.ErrLockedDirectory)

	t.Run("token is spent regardless", func(t *testing.T) {
		_, err := u.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("password unchanged", func(t *testing.T) {
		require.NoError(t, u.UnlockDirectory(dir.ID))

		ok, err := u.CheckCredentials("kate", "old-pw")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMoveUserToDirectory(t *testing.T) {
	u, _, _ := newTestUserman(t)

	dirA, err := u.DefaultDirectory()
	require.NoError(t, err)

	dirBID, err := u.AddDirectory(directory.InternalDriverTag, "Second", true, nil)
	require.NoError(t, err)

	uid := addUser(t, u, dirA.ID, "judy", "secret")

	status, err := u.MoveUserToDirectory(uid, dirBID)
	require.NoError(t, err)
	require.True(t, status.Status, status.Message)

	user, err := u.UserByID(uid)
	require.NoError(t, err)
	assert.Equal(t, dirBID, user.DirectoryID)

	t.Run("already there", func(t *testing.T) {
		status, err := u.MoveUserToDirectory(uid, dirBID)
		require.NoError(t, err)
		assert.True(t, status.Status)
	})

	t.Run("locked destination", func(t *testing.T) {
		require.NoError(t, u.LockDirectory(dirA.ID))

		_, err := u.MoveUserToDirectory(uid, dirA.ID)
		assert.ErrorIs(t, err, directory.ErrLockedDirectory)
	})
}
