package ldapdir

import (
	"fmt"
	"strconv"

	"github.com/alexscott/userman/internal/directory"
)

// Settings holds LDAP directory configuration parsed from the
// directory's config blob.
type Settings struct {
	// Host is the LDAP server hostname or IP address.
	Host string
	// Port is the LDAP server port (typically 389 for LDAP, 636 for LDAPS).
	Port int
	// UseSSL enables LDAPS (LDAP over SSL/TLS) on port 636.
	UseSSL bool
	// UseTLS enables StartTLS to upgrade an LDAP connection to TLS.
	UseTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the distinguished name to bind with for performing searches.
	BindDN string
	// BindPassword is the password for the bind DN.
	BindPassword string
	// BaseDN is the base distinguished name for user searches.
	BaseDN string
	// UserFilter is the LDAP filter for finding users (e.g., "(uid={username})").
	// The {username} placeholder is replaced with the actual username.
	UserFilter string
	// GroupBaseDN is the base distinguished name for group searches.
	GroupBaseDN string
	// GroupFilter is the LDAP filter for enumerating groups.
	GroupFilter string
	// GroupMemberAttr is the LDAP attribute for group membership
	// (e.g., "member", "uniqueMember").
	GroupMemberAttr string
	// UsernameAttr is the LDAP attribute containing the username
	// (e.g., "uid", "sAMAccountName").
	UsernameAttr string
	// EmailAttr is the LDAP attribute containing the email address.
	EmailAttr string
	// FirstNameAttr is the LDAP attribute containing the given name.
	FirstNameAttr string
	// LastNameAttr is the LDAP attribute containing the surname.
	LastNameAttr string
	// DisplayNameAttr is the LDAP attribute containing the display name.
	DisplayNameAttr string
	// GroupNameAttr is the LDAP attribute containing the group name.
	GroupNameAttr string
	// Timeout is the connection timeout in seconds.
	Timeout int
	// LocalGroups permits locally created groups inside this directory
	// to stay editable even while the directory is locked.
	LocalGroups bool
}

const (
	defaultPort    = 389
	defaultTimeout = 10
)

// parseSettings reads the directory config blob. Host is the one
// required key; everything else falls back to sensible LDAP defaults.
func parseSettings(cfg directory.Config) (Settings, error) {
	if cfg["host"] == "" {
		return Settings{}, fmt.Errorf("ldap config requires a host")
	}

	s := Settings{
		Host:            cfg["host"],
		Port:            defaultPort,
		UseSSL:          cfg.Bool("usessl"),
		UseTLS:          cfg.Bool("usetls"),
		SkipVerify:      cfg.Bool("skipverify"),
		BindDN:          cfg["binddn"],
		BindPassword:    cfg["bindpassword"],
		BaseDN:          cfg["basedn"],
		UserFilter:      cfg["userfilter"],
		GroupBaseDN:     cfg["groupbasedn"],
		GroupFilter:     cfg["groupfilter"],
		GroupMemberAttr: cfg["groupmemberattr"],
		UsernameAttr:    cfg["usernameattr"],
		EmailAttr:       cfg["emailattr"],
		FirstNameAttr:   cfg["fnameattr"],
		LastNameAttr:    cfg["lnameattr"],
		DisplayNameAttr: cfg["displaynameattr"],
		GroupNameAttr:   cfg["groupnameattr"],
		Timeout:         defaultTimeout,
		LocalGroups:     cfg.Bool("localgroups"),
	}

	if cfg["port"] != "" {
		port, err := strconv.Atoi(cfg["port"])
		if err != nil {
			return Settings{}, fmt.Errorf("ldap config port %q is not numeric", cfg["port"])
		}

		s.Port = port
	}

	if cfg["timeout"] != "" {
		timeout, err := strconv.Atoi(cfg["timeout"])
		if err != nil {
			return Settings{}, fmt.Errorf("ldap config timeout %q is not numeric", cfg["timeout"])
		}

		s.Timeout = timeout
	}

	// Set defaults
	if s.UserFilter == "" {
		s.UserFilter = "(uid={username})"
	}

	if s.GroupFilter == "" {
		s.GroupFilter = "(objectClass=groupOfNames)"
	}

	if s.UsernameAttr == "" {
		s.UsernameAttr = "uid"
	}

	if s.EmailAttr == "" {
		s.EmailAttr = "mail"
	}

	if s.FirstNameAttr == "" {
		s.FirstNameAttr = "givenName"
	}

	if s.LastNameAttr == "" {
		s.LastNameAttr = "sn"
	}

	if s.DisplayNameAttr == "" {
		s.DisplayNameAttr = "cn"
	}

	if s.GroupNameAttr == "" {
		s.GroupNameAttr = "cn"
	}

	if s.GroupMemberAttr == "" {
		s.GroupMemberAttr = "member"
	}

	return s, nil
}
