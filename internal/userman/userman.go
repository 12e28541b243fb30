// Package userman is the entity lifecycle orchestrator. It fronts the
// directory registry, the settings stores and the resolution engine
// with validation, locked-directory gating, capability checks, hook
// fan-out and the credential/token flows.
package userman

import (
	"time"

	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/config"
	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/settings"
)

// Userman bundles the module's moving parts behind one API.
type Userman struct {
	db       *gorm.DB
	registry *directory.Registry

	userSettings  *settings.Store
	groupSettings *settings.Store
	resolver      *settings.Resolver

	mailer Mailer
	cfg    *config.Config

	hooks *hookSet

	// now is the token clock, swappable in tests.
	now func() time.Time
}

// New wires the orchestrator. The registry performs its initial driver
// load here, so a failing directory config surfaces at startup.
func New(db *gorm.DB, cfg *config.Config, mailer Mailer) (*Userman, error) {
	registry, err := directory.NewRegistry(db)
	if err != nil {
		return nil, err
	}

	u := &Userman{
		db:            db,
		registry:      registry,
		userSettings:  settings.NewUserStore(db),
		groupSettings: settings.NewGroupStore(db),
		mailer:        mailer,
		cfg:           cfg,
		hooks:         newHookSet(),
		now:           time.Now,
	}
	u.resolver = settings.NewResolver(u.userSettings, u.groupSettings, aggregateView{registry})

	return u, nil
}

// Registry exposes the directory registry for callers that manage
// directories directly.
func (u *Userman) Registry() *directory.Registry {
	return u.registry
}

// Resolver exposes the effective-setting resolution engine.
func (u *Userman) Resolver() *settings.Resolver {
	return u.resolver
}

// UserSettings is the per-user settings store.
func (u *Userman) UserSettings() *settings.Store {
	return u.userSettings
}

// GroupSettings is the per-group settings store.
func (u *Userman) GroupSettings() *settings.Store {
	return u.groupSettings
}

// aggregate returns the union view of the current snapshot.
func (u *Userman) aggregate() *directory.Aggregate {
	return u.registry.Snapshot().Aggregate()
}

// aggregateView adapts the registry to the resolver's lookup needs,
// always reading through the latest snapshot.
type aggregateView struct {
	registry *directory.Registry
}

func (v aggregateView) UserByID(id uint64) (*models.User, error) {
	return v.registry.Snapshot().Aggregate().UserByID(id)
}

func (v aggregateView) GroupsByUserID(uid uint64) ([]models.Group, error) {
	return v.registry.Snapshot().Aggregate().GroupsByUserID(uid)
}

// UserByID resolves a user through the aggregate view.
func (u *Userman) UserByID(id uint64) (*models.User, error) {
	return u.aggregate().UserByID(id)
}

// UserByUsername resolves a user through the aggregate view.
func (u *Userman) UserByUsername(username string) (*models.User, error) {
	return u.aggregate().UserByUsername(username)
}

// GroupByID resolves a group through the aggregate view.
func (u *Userman) GroupByID(gid uint64) (*models.Group, error) {
	return u.aggregate().GroupByID(gid)
}

// AllUsers lists users across all active directories.
func (u *Userman) AllUsers() ([]models.User, error) {
	return u.aggregate().AllUsers()
}

// AllGroups lists groups across all active directories.
func (u *Userman) AllGroups() ([]models.Group, error) {
	return u.aggregate().AllGroups()
}

// GroupsByUserID lists a user's groups in ascending priority order.
func (u *Userman) GroupsByUserID(uid uint64) ([]models.Group, error) {
	return u.aggregate().GroupsByUserID(uid)
}
