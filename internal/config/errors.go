package config

import (
	"errors"
)

var (
	// ErrEmptyDBName error if config db.name is empty.
	ErrEmptyDBName = errors.New("toml config db.name can not be empty")

	// ErrEmptyDBHost error if config db.host is empty.
	ErrEmptyDBHost = errors.New("toml config db.host can not be empty")
)
