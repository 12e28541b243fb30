// Package msaddir implements the Active Directory driver. AD speaks
// LDAP, so this driver is the ldapdir driver with AD-specific defaults
// for attribute names and filters; explicit config keys still win.
package msaddir

import (
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/directory/drivers/ldapdir"
)

// Tag is the driver type tag for Active Directory directories.
const Tag = "msad"

func init() { //nolint: gochecknoinits
	directory.RegisterDriver(Tag, New)
}

// adDefaults maps config keys to their Active Directory defaults.
var adDefaults = map[string]string{
	"userfilter":      "(&(objectCategory=person)(objectClass=user)(sAMAccountName={username}))",
	"groupfilter":     "(objectCategory=group)",
	"usernameattr":    "sAMAccountName",
	"emailattr":       "mail",
	"fnameattr":       "givenName",
	"lnameattr":       "sn",
	"displaynameattr": "displayName",
	"groupnameattr":   "cn",
	"groupmemberattr": "member",
}

// New constructs the driver by filling AD defaults into the config and
// delegating to the LDAP driver.
func New(db *gorm.DB, dir models.Directory, cfg directory.Config) (directory.Driver, error) {
	merged := make(directory.Config, len(cfg)+len(adDefaults))

	for key, val := range adDefaults {
		merged[key] = val
	}

	for key, val := range cfg {
		if val != "" {
			merged[key] = val
		}
	}

	return ldapdir.New(db, dir, merged)
}
