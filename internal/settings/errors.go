package settings

import "errors"

var (
	// ErrDBNil is returned when a store is used without a database
	// handle.
	ErrDBNil = errors.New("db must not be nil")
	// ErrInvalidKey is returned for locale lookups outside the fixed
	// key set.
	ErrInvalidKey = errors.New("not a valid locale key")
	// ErrValueType is returned when Set is handed a value it cannot
	// store.
	ErrValueType = errors.New("cannot store value")
)
