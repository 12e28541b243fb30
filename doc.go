// Command userman manages federated identity directories for a PBX.
// It keeps users and groups across internal, LDAP, Active Directory
// and voicemail-imported directories, verifies credentials against the
// directory owning a username, and resolves effective per-user
// settings with user-over-group precedence.
package main
