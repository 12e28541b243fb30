// Package ldapdir implements the LDAP directory driver. The remote
// server is authoritative: Sync mirrors its users and groups into the
// local tables under this directory's id, and credential checks bind
// against the server. Account mutation is limited to the locally
// stored fields; local groups are allowed when the directory config
// enables them.
package ldapdir

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/directory/drivers/localstore"
)

// Tag is the driver type tag for plain LDAP directories.
const Tag = "ldap"

func init() { //nolint: gochecknoinits
	directory.RegisterDriver(Tag, New)
}

// Driver is the LDAP directory driver.
type Driver struct {
	*localstore.Store

	db       *gorm.DB
	dir      models.Directory
	settings Settings
}

// New constructs the driver, rejecting config blobs without a host.
func New(db *gorm.DB, dir models.Directory, cfg directory.Config) (directory.Driver, error) {
	settings, err := parseSettings(cfg)
	if err != nil {
		return nil, err
	}

	return &Driver{
		Store:    localstore.New(db, dir.ID),
		db:       db,
		dir:      dir,
		settings: settings,
	}, nil
}

// Directory returns the directory row this driver was built for.
func (d *Driver) Directory() models.Directory {
	return d.dir
}

// Permissions advertises local-field modification only. Accounts are
// created and credentialed on the server; the localgroups extra is
// raised when the config permits locally managed groups.
func (d *Driver) Permissions() directory.Permissions {
	perms := directory.NoPermissions()
	perms[directory.PermModifyUser] = true

	if d.settings.LocalGroups {
		perms[directory.PermLocalGroups] = true
		perms[directory.PermAddGroup] = true
		perms[directory.PermRemoveGroup] = true
		perms[directory.PermModifyGroup] = true
	}

	return perms
}

// DefaultGroups returns the groups listed in the default-groups config
// entry. LDAP directories rarely set one; synced users usually get
// their memberships from the server.
func (d *Driver) DefaultGroups() ([]models.Group, error) {
	return nil, nil
}

// connect establishes a connection to the LDAP server.
func (d *Driver) connect() (*ldap.Conn, error) {
	hostPort := net.JoinHostPort(d.settings.Host, strconv.Itoa(d.settings.Port))

	var ldapURL string
	if d.settings.UseSSL {
		ldapURL = "ldaps://" + hostPort
	} else {
		ldapURL = "ldap://" + hostPort
	}

	var tlsConfig *tls.Config
	if d.settings.UseSSL || d.settings.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: d.settings.SkipVerify, //nolint:gosec // skipping verifying tls is ok
			ServerName:         d.settings.Host,
		}
	}

	conn, err := ldap.DialURL(ldapURL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if !d.settings.UseSSL && d.settings.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			if errClose := conn.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("failed to close LDAP connection")
			}

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	if d.settings.Timeout > 0 {
		conn.SetTimeout(time.Duration(d.settings.Timeout) * time.Second)
	}

	return conn, nil
}

func (d *Driver) bindService(conn *ldap.Conn) error {
	if d.settings.BindDN == "" {
		return nil
	}

	if err := conn.Bind(d.settings.BindDN, d.settings.BindPassword); err != nil {
		return fmt.Errorf("failed to bind with service account: %w", err)
	}

	return nil
}

// searchUserEntry searches LDAP for the given username and returns a single entry.
func (d *Driver) searchUserEntry(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	userFilter := strings.ReplaceAll(d.settings.UserFilter, "{username}", ldap.EscapeFilter(username))
	searchRequest := ldap.NewSearchRequest(
		d.settings.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // Size limit
		d.settings.Timeout,
		false,
		userFilter,
		d.userAttributes(),
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search for user: %w", err)
	}

	switch len(searchResult.Entries) {
	case 0:
		return nil, directory.ErrUserNotFound
	case 1:
		return searchResult.Entries[0], nil
	default:
		return nil, fmt.Errorf("%w: multiple entries for %q", directory.ErrDriver, username)
	}
}

func (d *Driver) userAttributes() []string {
	return []string{
		d.settings.UsernameAttr,
		d.settings.EmailAttr,
		d.settings.FirstNameAttr,
		d.settings.LastNameAttr,
		d.settings.DisplayNameAttr,
		"dn",
	}
}

// CheckCredentials searches for the username and binds as the found
// entry. A bind failure of any kind is reported as a plain refusal.
func (d *Driver) CheckCredentials(username, password string) bool {
	if password == "" {
		// An empty password would turn the bind into an anonymous
		// bind, which most servers accept.
		return false
	}

	conn, err := d.connect()
	if err != nil {
		log.Warn().Err(err).Uint64("directory", d.dir.ID).Msg("ldap credential check failed to connect")
		return false
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close LDAP connection")
		}
	}()

	if err = d.bindService(conn); err != nil {
		log.Warn().Err(err).Uint64("directory", d.dir.ID).Msg("ldap service bind failed")
		return false
	}

	entry, err := d.searchUserEntry(conn, username)
	if err != nil {
		return false
	}

	return conn.Bind(entry.DN, password) == nil
}

// AddUser is rejected: the remote server owns account creation.
func (d *Driver) AddUser(_, _, _, _ string, _ map[string]string, _ bool) directory.Status {
	return directory.Fail("this directory does not support adding users")
}

// UpdateUser updates only the locally stored fields (linked extension,
// description, contact overrides). The username is owned by the remote
// server and silently retained.
func (d *Driver) UpdateUser(uid uint64, prevUsername, _, defaultExt, description string, extra map[string]string, _ string) directory.Status {
	user, err := d.UserByID(uid)
	if err != nil {
		return directory.Fail("user %d not found in this directory", uid)
	}

	if defaultExt == "" {
		defaultExt = models.NoExtension
	}

	inUse, err := d.ExtensionInUse(defaultExt, uid)
	if err != nil {
		return directory.Fail("failed to check extension: %v", err)
	}

	if inUse {
		return directory.Fail("extension %q is already linked to another user", defaultExt)
	}

	user.Username = prevUsername
	user.DefaultExtension = defaultExt
	user.Description = description
	localstore.ApplyExtra(user, extra)

	if err := d.db.Save(user).Error; err != nil {
		return directory.Fail("failed to update user: %v", err)
	}

	return directory.OK(uid)
}

// DeleteUserByID removes the local mirror row. The account reappears on
// the next sync if it still exists remotely.
func (d *Driver) DeleteUserByID(id uint64) directory.Status {
	res := d.db.Where("auth = ?", d.dir.ID).Delete(&models.User{}, id)
	if res.Error != nil {
		return directory.Fail("failed to delete user: %v", res.Error)
	}

	if res.RowsAffected == 0 {
		return directory.OKMessage(id, "user %d already gone", id)
	}

	return directory.OK(id)
}

// AddGroup creates a local group when the config permits them.
func (d *Driver) AddGroup(groupname, description string, users []uint64, extra map[string]string) directory.Status {
	if !d.settings.LocalGroups {
		return directory.Fail("this directory does not support adding groups")
	}

	if _, err := d.GroupByName(groupname); err == nil {
		return directory.Fail("group %q already exists in this directory", groupname)
	}

	group := models.Group{
		DirectoryID: d.dir.ID,
		Groupname:   groupname,
		Description: description,
		Local:       true,
		Users:       localstore.FilterMembers(users),
	}
	localstore.ApplyGroupExtra(&group, extra)

	if err := d.db.Create(&group).Error; err != nil {
		return directory.Fail("failed to create group: %v", err)
	}

	return directory.OK(group.ID)
}

// UpdateGroup mutates local groups only; synced groups are owned by
// the server and refreshed on sync.
func (d *Driver) UpdateGroup(gid uint64, prevGroupname, groupname, description string, users []uint64, extra map[string]string) directory.Status {
	group, err := d.GroupByID(gid)
	if err != nil {
		return directory.Fail("group %d not found in this directory", gid)
	}

	if !group.Local {
		return directory.Fail("group %q is managed by the LDAP server", group.Groupname)
	}

	if groupname == "" {
		groupname = prevGroupname
	}

	group.Groupname = groupname
	group.Description = description

	if users != nil {
		group.Users = localstore.FilterMembers(users)
	}

	localstore.ApplyGroupExtra(group, extra)

	if err := d.db.Save(group).Error; err != nil {
		return directory.Fail("failed to update group: %v", err)
	}

	return directory.OK(gid)
}

// DeleteGroupByID removes local groups; synced groups come back on the
// next sync, so deleting them is refused.
func (d *Driver) DeleteGroupByID(gid uint64) directory.Status {
	group, err := d.GroupByID(gid)
	if err != nil {
		return directory.OKMessage(gid, "group %d already gone", gid)
	}

	if !group.Local && !d.settings.LocalGroups {
		return directory.Fail("group %q is managed by the LDAP server", group.Groupname)
	}

	if err := d.db.Delete(&models.Group{}, gid).Error; err != nil {
		return directory.Fail("failed to delete group: %v", err)
	}

	return directory.OK(gid)
}

// Sync mirrors the server's users and groups into the local tables.
// Local groups are preserved; synced rows vanished from the server are
// removed.
func (d *Driver) Sync(ctx context.Context) error {
	conn, err := d.connect()
	if err != nil {
		return err
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close LDAP connection")
		}
	}()

	if err = d.bindService(conn); err != nil {
		return err
	}

	dnToUID, err := d.syncUsers(ctx, conn)
	if err != nil {
		return err
	}

	return d.syncGroups(ctx, conn, dnToUID)
}

// syncUsers upserts every entry matching the user filter and prunes
// mirror rows whose DN disappeared. Returns the DN to local id map for
// group membership resolution.
func (d *Driver) syncUsers(ctx context.Context, conn *ldap.Conn) (map[string]uint64, error) {
	filter := strings.ReplaceAll(d.settings.UserFilter, "{username}", "*")
	searchRequest := ldap.NewSearchRequest(
		d.settings.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		d.settings.Timeout,
		false,
		filter,
		d.userAttributes(),
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search for users: %w", err)
	}

	dnToUID := make(map[string]uint64, len(searchResult.Entries))
	seen := make(map[string]struct{}, len(searchResult.Entries))

	for _, entry := range searchResult.Entries {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		username := entry.GetAttributeValue(d.settings.UsernameAttr)
		if username == "" {
			continue
		}

		seen[entry.DN] = struct{}{}

		uid, errUpsert := d.upsertUser(entry, username)
		if errUpsert != nil {
			log.Error().Err(errUpsert).Str("dn", entry.DN).Msg("failed to sync ldap user")
			continue
		}

		dnToUID[entry.DN] = uid
	}

	if err = d.pruneUsers(seen); err != nil {
		return nil, err
	}

	return dnToUID, nil
}

func (d *Driver) upsertUser(entry *ldap.Entry, username string) (uint64, error) {
	var found models.User

	err := d.db.Where("auth = ? AND external_id = ?", d.dir.ID, entry.DN).First(&found).Error

	user := &found
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = &models.User{
			DirectoryID:      d.dir.ID,
			ExternalID:       entry.DN,
			DefaultExtension: models.NoExtension,
		}
	} else if err != nil {
		return 0, fmt.Errorf("failed to query synced user: %w", err)
	}

	user.Username = username
	user.Email = entry.GetAttributeValue(d.settings.EmailAttr)
	user.FName = entry.GetAttributeValue(d.settings.FirstNameAttr)
	user.LName = entry.GetAttributeValue(d.settings.LastNameAttr)
	user.DisplayName = entry.GetAttributeValue(d.settings.DisplayNameAttr)

	if err := d.db.Save(user).Error; err != nil {
		return 0, fmt.Errorf("failed to save synced user: %w", err)
	}

	return user.ID, nil
}

func (d *Driver) pruneUsers(seen map[string]struct{}) error {
	var users []models.User
	if err := d.db.Where("auth = ?", d.dir.ID).Find(&users).Error; err != nil {
		return fmt.Errorf("failed to list mirror users: %w", err)
	}

	for i := range users {
		if _, ok := seen[users[i].ExternalID]; ok {
			continue
		}

		if err := d.db.Delete(&models.User{}, users[i].ID).Error; err != nil {
			log.Error().Err(err).Uint64("uid", users[i].ID).Msg("failed to prune synced user")
		}
	}

	return nil
}

func (d *Driver) syncGroups(ctx context.Context, conn *ldap.Conn, dnToUID map[string]uint64) error {
	if d.settings.GroupBaseDN == "" {
		return nil
	}

	searchRequest := ldap.NewSearchRequest(
		d.settings.GroupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		d.settings.Timeout,
		false,
		d.settings.GroupFilter,
		[]string{d.settings.GroupNameAttr, d.settings.GroupMemberAttr, "dn"},
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return fmt.Errorf("failed to search for groups: %w", err)
	}

	seen := make(map[string]struct{}, len(searchResult.Entries))

	for _, entry := range searchResult.Entries {
		if err = ctx.Err(); err != nil {
			return err
		}

		name := entry.GetAttributeValue(d.settings.GroupNameAttr)
		if name == "" {
			continue
		}

		seen[entry.DN] = struct{}{}

		var members []uint64

		for _, memberDN := range entry.GetAttributeValues(d.settings.GroupMemberAttr) {
			if uid, ok := dnToUID[memberDN]; ok {
				members = append(members, uid)
			}
		}

		if err = d.upsertGroup(entry.DN, name, members); err != nil {
			log.Error().Err(err).Str("dn", entry.DN).Msg("failed to sync ldap group")
		}
	}

	return d.pruneGroups(seen)
}

func (d *Driver) upsertGroup(dn, name string, members []uint64) error {
	var group models.Group

	err := d.db.Where("auth = ? AND external_id = ?", d.dir.ID, dn).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		group = models.Group{DirectoryID: d.dir.ID, ExternalID: dn}
	} else if err != nil {
		return fmt.Errorf("failed to query synced group: %w", err)
	}

	group.Groupname = name
	group.Users = members

	if err := d.db.Save(&group).Error; err != nil {
		return fmt.Errorf("failed to save synced group: %w", err)
	}

	return nil
}

func (d *Driver) pruneGroups(seen map[string]struct{}) error {
	var groups []models.Group
	if err := d.db.Where("auth = ? AND local = ?", d.dir.ID, false).Find(&groups).Error; err != nil {
		return fmt.Errorf("failed to list mirror groups: %w", err)
	}

	for i := range groups {
		if _, ok := seen[groups[i].ExternalID]; ok {
			continue
		}

		if err := d.db.Delete(&models.Group{}, groups[i].ID).Error; err != nil {
			log.Error().Err(err).Uint64("gid", groups[i].ID).Msg("failed to prune synced group")
		}
	}

	return nil
}
