package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
)

// InternalDriverTag is the driver type of the built-in relational
// store. The default-directory fallback chain promotes or creates a
// directory of this type when no directory is flagged default.
const InternalDriverTag = "internal"

// BootstrapGroupName is the group created alongside a bootstrapped
// internal directory and auto-assigned to new users.
const BootstrapGroupName = "All Users"

// Registry is the single source of truth for which directories exist,
// their order, and their instantiated driver objects.
//
// Drivers are immutable-config objects, so any directory mutation
// triggers a full reload: the registry builds a fresh Snapshot and
// swaps it in. Operations capture a snapshot at call start and complete
// against it; a concurrent reload only affects subsequently-started
// operations.
type Registry struct {
	db *gorm.DB

	mu   sync.RWMutex
	snap *Snapshot
}

// Snapshot is one immutable view of the configured directories and
// their driver instances.
type Snapshot struct {
	directories []models.Directory
	drivers     map[uint64]Driver
	aggregate   *Aggregate
}

// Directories returns the directories in display order.
func (s *Snapshot) Directories() []models.Directory {
	return s.directories
}

// Driver returns the instantiated driver for an active directory.
func (s *Snapshot) Driver(id uint64) (Driver, bool) {
	d, ok := s.drivers[id]
	return d, ok
}

// Aggregate returns the virtual union view over all drivers in this
// snapshot.
func (s *Snapshot) Aggregate() *Aggregate {
	return s.aggregate
}

// NewRegistry builds a registry and performs the initial driver load.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	r := &Registry{db: db}
	if err := r.Reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// Snapshot returns the current immutable driver set.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snap
}

// Reload re-instantiates every active directory's driver from persisted
// config and rebuilds the aggregate view. Not incremental: any single
// directory mutation pays for a full reload, trading efficiency for
// correctness simplicity.
func (r *Registry) Reload() error {
	var dirs []models.Directory
	if err := r.db.Order("sort_order, id").Find(&dirs).Error; err != nil {
		return fmt.Errorf("failed to load directories: %w", err)
	}

	drivers := make(map[uint64]Driver, len(dirs))

	for _, dir := range dirs {
		if !dir.Active {
			continue
		}

		cfg, err := r.configByID(dir.ID)
		if err != nil {
			return err
		}

		drv, err := newDriver(r.db, dir, cfg)
		if err != nil {
			// Config was validated at add/update time. A failure here
			// means the driver set changed underneath us; skip the
			// directory rather than failing every other one.
			log.Error().Err(err).Uint64("directory", dir.ID).Str("driver", dir.Driver).
				Msg("skipping directory: driver instantiation failed")

			continue
		}

		drivers[dir.ID] = drv
	}

	snap := &Snapshot{directories: dirs, drivers: drivers}
	snap.aggregate = newAggregate(snap)

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()

	return nil
}

// AddDirectory inserts a directory row, persists its config and reloads
// all drivers. The driver validates the config shape before anything is
// persisted; rejection surfaces as ErrConfig.
func (r *Registry) AddDirectory(driverTag, name string, enabled bool, cfg Config) (uint64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: directory name can not be blank", ErrValidation)
	}

	dir := models.Directory{Name: name, Driver: driverTag, Active: enabled}

	// Probe the driver before touching the database.
	if _, err := newDriver(r.db, dir, cfg); err != nil {
		return 0, err
	}

	var maxOrder int

	err := r.db.Model(&models.Directory{}).Select("COALESCE(MAX(sort_order), -1)").Scan(&maxOrder).Error
	if err != nil {
		return 0, fmt.Errorf("failed to determine directory order: %w", err)
	}

	dir.Order = maxOrder + 1

	if err := r.db.Create(&dir).Error; err != nil {
		return 0, fmt.Errorf("failed to insert directory: %w", err)
	}

	if err := r.writeConfig(dir.ID, cfg); err != nil {
		return 0, err
	}

	if err := r.Reload(); err != nil {
		return 0, err
	}

	r.syncDirectory(dir.ID)

	return dir.ID, nil
}

// UpdateDirectory updates name, enabled state and config of an existing
// directory, then reloads. Reload is mandatory because drivers are
// immutable-config objects. A nil cfg keeps the stored config; an
// empty non-nil cfg clears it.
func (r *Registry) UpdateDirectory(id uint64, name string, enabled bool, cfg Config) (uint64, error) {
	dir, err := r.DirectoryByID(id)
	if err != nil {
		return 0, err
	}

	if cfg == nil {
		if cfg, err = r.configByID(id); err != nil {
			return 0, err
		}
	}

	probe := *dir
	probe.Name = name
	probe.Active = enabled

	if _, err = newDriver(r.db, probe, cfg); err != nil {
		return 0, err
	}

	updates := map[string]any{"name": name, "active": enabled}
	if err = r.db.Model(&models.Directory{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return 0, fmt.Errorf("failed to update directory: %w", err)
	}

	if err = r.writeConfig(id, cfg); err != nil {
		return 0, err
	}

	if err = r.Reload(); err != nil {
		return 0, err
	}

	r.syncDirectory(id)

	return id, nil
}

// PurgeDirectory removes the directory row and its config and reloads.
// Cascading deletion of owned users and groups is the orchestrator's
// job and must happen before this call.
func (r *Registry) PurgeDirectory(id uint64) error {
	if err := r.db.Where("directory_id = ?", id).Delete(&models.DirectoryConfig{}).Error; err != nil {
		return fmt.Errorf("failed to purge directory config: %w", err)
	}

	if err := r.db.Delete(&models.Directory{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}

	return r.Reload()
}

// Lock marks a directory as rejecting create/update operations. The
// flag is read directly from the row on every gate check, so no reload
// is needed and unlocking takes effect immediately.
func (r *Registry) Lock(id uint64) error {
	return r.setLocked(id, true)
}

// Unlock clears the locked flag.
func (r *Registry) Unlock(id uint64) error {
	return r.setLocked(id, false)
}

func (r *Registry) setLocked(id uint64, locked bool) error {
	res := r.db.Model(&models.Directory{}).Where("id = ?", id).Update("locked", locked)
	if res.Error != nil {
		return fmt.Errorf("failed to update directory lock: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrUnknownDirectory, id)
	}

	return nil
}

// SetDefault atomically clears the default flag on all directories then
// sets it on id.
func (r *Registry) SetDefault(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Directory{}).Where("`default` = ?", true).
			Update("default", false).Error; err != nil {
			return fmt.Errorf("failed to clear default flags: %w", err)
		}

		res := tx.Model(&models.Directory{}).Where("id = ?", id).Update("default", true)
		if res.Error != nil {
			return fmt.Errorf("failed to set default flag: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id %d", ErrUnknownDirectory, id)
		}

		return nil
	})
}

// DefaultDirectory returns the directory flagged default. If none is
// flagged, it falls back to the oldest internal-type directory and
// promotes it; if none exists at all, it bootstraps a fresh internal
// directory with its default group.
func (r *Registry) DefaultDirectory() (*models.Directory, error) {
	var dir models.Directory

	err := r.db.Where("`default` = ?", true).First(&dir).Error
	if err == nil {
		return &dir, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query default directory: %w", err)
	}

	err = r.db.Where("driver = ?", InternalDriverTag).Order("sort_order, id").First(&dir).Error
	if err == nil {
		if errSet := r.SetDefault(dir.ID); errSet != nil {
			return nil, errSet
		}

		dir.Default = true

		return &dir, nil
	}

	id, err := r.AddDirectory(InternalDriverTag, "PBX Internal Directory", true, Config{})
	if err != nil {
		return nil, err
	}

	if err = r.SetDefault(id); err != nil {
		return nil, err
	}

	if err = r.AddDefaultGroupToDirectory(id); err != nil {
		log.Error().Err(err).Uint64("directory", id).Msg("unable to create default group")
	}

	return r.DirectoryByID(id)
}

// AddDefaultGroupToDirectory creates the bootstrap group containing all
// of the directory's users and records it as the directory's
// default-groups config entry. A directory that already has groups is
// left untouched.
func (r *Registry) AddDefaultGroupToDirectory(id uint64) error {
	snap := r.Snapshot()

	drv, ok := snap.Driver(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownDirectory, id)
	}

	groups, err := drv.AllGroups()
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	if len(groups) > 0 {
		return nil
	}

	users, err := drv.AllUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	members := make([]uint64, 0, len(users))
	for _, u := range users {
		members = append(members, u.ID)
	}

	status := drv.AddGroup(BootstrapGroupName,
		"This group was created on install and is automatically assigned to new users.", members, nil)
	if !status.Status {
		return fmt.Errorf("%w: %s", ErrDriver, status.Message)
	}

	cfg, err := r.configByID(id)
	if err != nil {
		return err
	}

	cfg["default-groups"] = fmt.Sprintf("%d", status.ID)

	dir, err := r.DirectoryByID(id)
	if err != nil {
		return err
	}

	_, err = r.UpdateDirectory(id, dir.Name, dir.Active, cfg)

	return err
}

// DirectoryByID returns the directory row.
func (r *Registry) DirectoryByID(id uint64) (*models.Directory, error) {
	var dir models.Directory

	err := r.db.First(&dir, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownDirectory, id)
		}

		return nil, fmt.Errorf("failed to query directory: %w", err)
	}

	return &dir, nil
}

// AllDirectories returns all directories in display order.
func (r *Registry) AllDirectories() ([]models.Directory, error) {
	var dirs []models.Directory
	if err := r.db.Order("sort_order, id").Find(&dirs).Error; err != nil {
		return nil, fmt.Errorf("failed to load directories: %w", err)
	}

	return dirs, nil
}

// ConfigByID returns a directory's persisted config blob.
func (r *Registry) ConfigByID(id uint64) (Config, error) {
	return r.configByID(id)
}

func (r *Registry) configByID(id uint64) (Config, error) {
	var rows []models.DirectoryConfig
	if err := r.db.Where("directory_id = ?", id).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load directory config: %w", err)
	}

	cfg := make(Config, len(rows))
	for _, row := range rows {
		cfg[row.Key] = row.Val
	}

	return cfg, nil
}

func (r *Registry) writeConfig(id uint64, cfg Config) error {
	if err := r.db.Where("directory_id = ?", id).Delete(&models.DirectoryConfig{}).Error; err != nil {
		return fmt.Errorf("failed to clear directory config: %w", err)
	}

	for key, val := range cfg {
		row := models.DirectoryConfig{DirectoryID: id, Key: key, Val: val}
		if err := r.db.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to persist directory config: %w", err)
		}
	}

	return nil
}

// syncDirectory invokes the driver's sync hook, if it has one, after a
// configuration change. Failures are logged, not fatal: the directory
// stays configured and the recurring sync job will retry.
func (r *Registry) syncDirectory(id uint64) {
	drv, ok := r.Snapshot().Driver(id)
	if !ok {
		return
	}

	syncer, ok := drv.(Syncer)
	if !ok {
		return
	}

	if err := syncer.Sync(context.Background()); err != nil {
		log.Warn().Err(err).Uint64("directory", id).Msg("directory sync after config change failed")
	}
}
