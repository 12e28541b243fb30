// Package settings implements the typed per-entity key/value store and
// the effective-value resolution engine on top of it. Settings are
// scoped by owner id and a module namespace; the "global" module is the
// shared namespace.
package settings

import (
	"sync"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alexscott/userman/internal/db/models"
)

// ModuleGlobal is the reserved shared module namespace.
const ModuleGlobal = "global"

// row is the storage shape shared by the user and group tables.
type row struct {
	Owner  uint64
	Module string
	Key    string
	Val    string
	Type   string
}

// backend adapts one of the two settings tables to the store.
type backend interface {
	all(db *gorm.DB) ([]row, error)
	put(db *gorm.DB, r row) error
	delete(db *gorm.DB, owner uint64, module, key string) error
	deleteOwner(db *gorm.DB, owner uint64) error
}

// Store is a cached settings table scoped to one owner kind.
// The cache holds the whole table and is dropped, not patched, on any
// write. Reads within one logical operation therefore hit the database
// at most once.
type Store struct {
	db      *gorm.DB
	backend backend

	mu    sync.Mutex
	cache map[uint64]map[string]map[string]Value
}

// NewUserStore returns the store over per-user settings.
func NewUserStore(db *gorm.DB) *Store {
	return &Store{db: db, backend: userBackend{}}
}

// NewGroupStore returns the store over per-group settings.
func NewGroupStore(db *gorm.DB) *Store {
	return &Store{db: db, backend: groupBackend{}}
}

func (s *Store) load() (map[uint64]map[string]map[string]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		return s.cache, nil
	}

	if s.db == nil {
		return nil, ErrDBNil
	}

	rows, err := s.backend.all(s.db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load settings")
	}

	cache := make(map[uint64]map[string]map[string]Value)

	for _, r := range rows {
		val, errDecode := FromRow(r.Val, r.Type)
		if errDecode != nil {
			return nil, errors.Wrapf(errDecode, "setting %d/%s/%s", r.Owner, r.Module, r.Key)
		}

		byModule, ok := cache[r.Owner]
		if !ok {
			byModule = make(map[string]map[string]Value)
			cache[r.Owner] = byModule
		}

		byKey, ok := byModule[r.Module]
		if !ok {
			byKey = make(map[string]Value)
			byModule[r.Module] = byKey
		}

		byKey[r.Key] = val
	}

	s.cache = cache

	return cache, nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// Get returns the stored value for (owner, module, key). A missing row
// yields Absent, not an error.
func (s *Store) Get(owner uint64, module, key string) (Value, error) {
	cache, err := s.load()
	if err != nil {
		return Absent(), err
	}

	return cache[owner][module][key], nil
}

// Set stores a value. Booleans normalize to "0"/"1", arrays are stored
// with the JSON-array type tag, and nil (or an Absent value) deletes
// the row instead of writing one.
func (s *Store) Set(owner uint64, module, key string, value any) error {
	if s.db == nil {
		return ErrDBNil
	}

	val, err := FromAny(value)
	if err != nil {
		return err
	}

	if !val.Present() {
		return s.Delete(owner, module, key)
	}

	stored, typ, err := val.Row()
	if err != nil {
		return err
	}

	if err := s.backend.put(s.db, row{Owner: owner, Module: module, Key: key, Val: stored, Type: typ}); err != nil {
		return errors.Wrapf(err, "failed to store setting %s/%s", module, key)
	}

	s.invalidate()

	return nil
}

// Delete removes a row, idempotently.
func (s *Store) Delete(owner uint64, module, key string) error {
	if s.db == nil {
		return ErrDBNil
	}

	if err := s.backend.delete(s.db, owner, module, key); err != nil {
		return errors.Wrapf(err, "failed to delete setting %s/%s", module, key)
	}

	s.invalidate()

	return nil
}

// DeleteOwner removes every setting the owner has, idempotently. Used
// by entity deletion cascades.
func (s *Store) DeleteOwner(owner uint64) error {
	if s.db == nil {
		return ErrDBNil
	}

	if err := s.backend.deleteOwner(s.db, owner); err != nil {
		return errors.Wrapf(err, "failed to delete settings of owner %d", owner)
	}

	s.invalidate()

	return nil
}

// AllByOwner returns every setting of the owner grouped by module then
// key.
func (s *Store) AllByOwner(owner uint64) (map[string]map[string]Value, error) {
	cache, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]Value, len(cache[owner]))

	for module, byKey := range cache[owner] {
		cp := make(map[string]Value, len(byKey))
		for key, val := range byKey {
			cp[key] = val
		}

		out[module] = cp
	}

	return out, nil
}

// AllByOwnerModule returns the owner's settings within one module.
func (s *Store) AllByOwnerModule(owner uint64, module string) (map[string]Value, error) {
	cache, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]Value, len(cache[owner][module]))
	for key, val := range cache[owner][module] {
		out[key] = val
	}

	return out, nil
}

// OwnersWithSetting returns the owner ids whose (module, key) value is
// present, for feature scans such as finding default groups.
func (s *Store) OwnersWithSetting(module, key string) (map[uint64]Value, error) {
	cache, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]Value)

	for owner, byModule := range cache {
		if val, ok := byModule[module][key]; ok {
			out[owner] = val
		}
	}

	return out, nil
}

type userBackend struct{}

func (userBackend) all(db *gorm.DB) ([]row, error) {
	var recs []models.UserSetting
	if err := db.Find(&recs).Error; err != nil {
		return nil, err
	}

	rows := make([]row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, row{Owner: r.UID, Module: r.Module, Key: r.Key, Val: r.Val, Type: r.Type})
	}

	return rows, nil
}

func (userBackend) put(db *gorm.DB, r row) error {
	rec := models.UserSetting{UID: r.Owner, Module: r.Module, Key: r.Key, Val: r.Val, Type: r.Type}

	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (userBackend) delete(db *gorm.DB, owner uint64, module, key string) error {
	return db.Where("uid = ? AND module = ? AND `key` = ?", owner, module, key).
		Delete(&models.UserSetting{}).Error
}

func (userBackend) deleteOwner(db *gorm.DB, owner uint64) error {
	return db.Where("uid = ?", owner).Delete(&models.UserSetting{}).Error
}

type groupBackend struct{}

func (groupBackend) all(db *gorm.DB) ([]row, error) {
	var recs []models.GroupSetting
	if err := db.Find(&recs).Error; err != nil {
		return nil, err
	}

	rows := make([]row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, row{Owner: r.GID, Module: r.Module, Key: r.Key, Val: r.Val, Type: r.Type})
	}

	return rows, nil
}

func (groupBackend) put(db *gorm.DB, r row) error {
	rec := models.GroupSetting{GID: r.Owner, Module: r.Module, Key: r.Key, Val: r.Val, Type: r.Type}

	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (groupBackend) delete(db *gorm.DB, owner uint64, module, key string) error {
	return db.Where("gid = ? AND module = ? AND `key` = ?", owner, module, key).
		Delete(&models.GroupSetting{}).Error
}

func (groupBackend) deleteOwner(db *gorm.DB, owner uint64) error {
	return db.Where("gid = ?", owner).Delete(&models.GroupSetting{}).Error
}
