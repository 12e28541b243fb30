// Package voicemaildir implements the voicemail-import directory
// driver. Accounts originate from an Asterisk voicemail.conf mailbox
// section: Sync parses the file and mirrors each mailbox as a user
// whose username and linked extension are the mailbox number and whose
// credential is the mailbox pin. Pin changes are the one supported
// mutation.
package voicemaildir

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/directory/drivers/localstore"
)

// Tag is the driver type tag for voicemail-import directories.
const Tag = "voicemail"

func init() { //nolint: gochecknoinits
	directory.RegisterDriver(Tag, New)
}

const defaultContext = "default"

// Mailbox is one parsed voicemail.conf entry.
type Mailbox struct {
	Number string
	Pin    string
	Name   string
	Email  string
}

// Driver is the voicemail-import directory driver.
type Driver struct {
	*localstore.Store

	db      *gorm.DB
	dir     models.Directory
	file    string
	context string
	cfg     directory.Config
}

// New constructs the driver. The config requires the voicemail.conf
// path; the mailbox context defaults to "default".
func New(db *gorm.DB, dir models.Directory, cfg directory.Config) (directory.Driver, error) {
	file := cfg["file"]
	if file == "" {
		return nil, fmt.Errorf("voicemail config requires a file path")
	}

	vmContext := cfg["context"]
	if vmContext == "" {
		vmContext = defaultContext
	}

	if vmContext == "general" {
		return nil, fmt.Errorf("voicemail context %q is not importable", vmContext)
	}

	return &Driver{
		Store:   localstore.New(db, dir.ID),
		db:      db,
		dir:     dir,
		file:    file,
		context: vmContext,
		cfg:     cfg,
	}, nil
}

// Directory returns the directory row this driver was built for.
func (d *Driver) Directory() models.Directory {
	return d.dir
}

// Permissions advertises local-field updates and pin changes. Mailbox
// creation stays in voicemail.conf.
func (d *Driver) Permissions() directory.Permissions {
	perms := directory.NoPermissions()
	perms[directory.PermModifyUser] = true
	perms[directory.PermChangePassword] = true

	if d.cfg.Bool("localgroups") {
		perms[directory.PermLocalGroups] = true
		perms[directory.PermAddGroup] = true
		perms[directory.PermRemoveGroup] = true
		perms[directory.PermModifyGroup] = true
	}

	return perms
}

// DefaultGroups returns the groups listed in the default-groups config
// entry.
func (d *Driver) DefaultGroups() ([]models.Group, error) {
	return d.GroupsByIDList(d.cfg["default-groups"])
}

// AddUser is rejected: mailboxes are created in voicemail.conf.
func (d *Driver) AddUser(_, _, _, _ string, _ map[string]string, _ bool) directory.Status {
	return directory.Fail("this directory does not support adding users")
}

// UpdateUser updates the locally stored fields and, when a password is
// supplied, the mailbox pin. The mailbox number doubles as the
// username and is retained.
func (d *Driver) UpdateUser(uid uint64, prevUsername, _, defaultExt, description string, extra map[string]string, password string) directory.Status {
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

	if password != "" {
		user.Password = password
	}

	localstore.ApplyExtra(user, extra)

	if err := d.db.Save(user).Error; err != nil {
		return directory.Fail("failed to update user: %v", err)
	}

	return directory.OK(uid)
}

// DeleteUserByID removes the imported row, idempotently. The account
// reappears on the next sync if the mailbox still exists.
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
	if !d.cfg.Bool("localgroups") {
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

// UpdateGroup mutates local groups only.
func (d *Driver) UpdateGroup(gid uint64, prevGroupname, groupname, description string, users []uint64, extra map[string]string) directory.Status {
	group, err := d.GroupByID(gid)
	if err != nil {
		return directory.Fail("group %d not found in this directory", gid)
	}

	if !group.Local {
		return directory.Fail("group %q is not locally managed", group.Groupname)
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

// DeleteGroupByID removes a local group, idempotently.
func (d *Driver) DeleteGroupByID(gid uint64) directory.Status {
	group, err := d.GroupByID(gid)
	if err != nil {
		return directory.OKMessage(gid, "group %d already gone", gid)
	}

	if !group.Local {
		return directory.Fail("group %q is not locally managed", group.Groupname)
	}

	if err := d.db.Delete(&models.Group{}, gid).Error; err != nil {
		return directory.Fail("failed to delete group: %v", err)
	}

	return directory.OK(gid)
}

// CheckCredentials compares the supplied pin against the stored one.
// Imports may carry plain, sha1-hex or bcrypt pins; hashed forms go
// through the standard verifier.
func (d *Driver) CheckCredentials(username, password string) bool {
	user, err := d.UserByUsername(username)
	if err != nil {
		return false
	}

	if strings.HasPrefix(user.Password, "$") {
		return user.VerifyPassword(password)
	}

	if len(user.Password) == 40 {
		// sha1 hex import
		return user.VerifyPassword(password)
	}

	return subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1
}

// Sync parses the voicemail file and mirrors its mailboxes. Mailboxes
// removed from the file are pruned.
func (d *Driver) Sync(ctx context.Context) error {
	boxes, err := ParseFile(d.file, d.context)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(boxes))

	for _, box := range boxes {
		if err = ctx.Err(); err != nil {
			return err
		}

		seen[box.Number] = struct{}{}

		if errUpsert := d.upsertMailbox(box); errUpsert != nil {
			log.Error().Err(errUpsert).Str("mailbox", box.Number).Msg("failed to import mailbox")
		}
	}

	return d.prune(seen)
}

func (d *Driver) upsertMailbox(box Mailbox) error {
	var found models.User

	err := d.db.Where("auth = ? AND external_id = ?", d.dir.ID, box.Number).First(&found).Error

	user := &found
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = &models.User{
			DirectoryID:      d.dir.ID,
			ExternalID:       box.Number,
			Username:         box.Number,
			Password:         box.Pin,
			DefaultExtension: box.Number,
			Description:      "Imported from voicemail",
		}
	} else if err != nil {
		return fmt.Errorf("failed to query mailbox user: %w", err)
	} else {
		// A locally changed pin wins over the file on resync.
		if user.Password == "" {
			user.Password = box.Pin
		}
	}

	user.DisplayName = box.Name
	user.Email = box.Email

	if err := d.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save mailbox user: %w", err)
	}

	return nil
}

func (d *Driver) prune(seen map[string]struct{}) error {
	var users []models.User
	if err := d.db.Where("auth = ?", d.dir.ID).Find(&users).Error; err != nil {
		return fmt.Errorf("failed to list imported users: %w", err)
	}

	for i := range users {
		if _, ok := seen[users[i].ExternalID]; ok {
			continue
		}

		if err := d.db.Delete(&models.User{}, users[i].ID).Error; err != nil {
			log.Error().Err(err).Uint64("uid", users[i].ID).Msg("failed to prune imported user")
		}
	}

	return nil
}

// ParseFile reads the mailbox entries of one context from an Asterisk
// voicemail configuration file.
func ParseFile(path, vmContext string) ([]Mailbox, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from directory config
	if err != nil {
		return nil, fmt.Errorf("failed to open voicemail file: %w", err)
	}

	defer func() {
		if errClose := f.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close voicemail file")
		}
	}()

	return Parse(bufio.NewScanner(f), vmContext)
}

// Parse scans voicemail configuration lines for the given context.
// Entries look like:
//
//	101 => 1234,John Doe,john@example.com
func Parse(scanner *bufio.Scanner, vmContext string) ([]Mailbox, error) {
	var (
		boxes     []Mailbox
		inContext bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inContext = strings.Trim(line, "[]") == vmContext
			continue
		}

		if !inContext {
			continue
		}

		number, rest, found := strings.Cut(line, "=>")
		if !found {
			continue
		}

		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}

		fields := strings.Split(rest, ",")

		box := Mailbox{Number: number}
		if len(fields) > 0 {
			box.Pin = strings.TrimSpace(fields[0])
		}

		if len(fields) > 1 {
			box.Name = strings.TrimSpace(fields[1])
		}

		if len(fields) > 2 {
			box.Email = strings.TrimSpace(fields[2])
		}

		boxes = append(boxes, box)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read voicemail file: %w", err)
	}

	return boxes, nil
}
