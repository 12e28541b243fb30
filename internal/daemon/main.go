// Package daemon wires the database, the directory registry and the
// orchestrator into a runnable service.
package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/config"
	"github.com/alexscott/userman/internal/db/dsn"
	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/userman"

	// Register the built-in directory drivers.
	_ "github.com/alexscott/userman/internal/directory/drivers/internaldir"
	_ "github.com/alexscott/userman/internal/directory/drivers/ldapdir"
	_ "github.com/alexscott/userman/internal/directory/drivers/msaddir"
	_ "github.com/alexscott/userman/internal/directory/drivers/voicemaildir"
)

// Daemon holds the running service.
type Daemon struct {
	cfg     *config.Config
	userman *userman.Userman
}

// New opens the database, migrates the schema, seeds the bootstrap
// state and constructs the orchestrator.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	dbDriver := gormmysql.Open(dsn.Create(cfg))

	db, err := gorm.Open(dbDriver, &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	if err = db.AutoMigrate(
		&models.Directory{},
		&models.DirectoryConfig{},
		&models.User{},
		&models.Group{},
		&models.UserSetting{},
		&models.GroupSetting{},
		&models.GlobalSetting{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	um, err := userman.New(db, cfg, userman.NewSMTPMailer(cfg.Mail))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize directories")
	}

	seed(cfg, um)

	return &Daemon{cfg: cfg, userman: um}
}

// Userman exposes the orchestrator to the CLI commands.
func (d *Daemon) Userman() *userman.Userman {
	return d.userman
}

// Run performs an initial directory sync, then keeps syncing on the
// configured interval until the context ends.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.cfg.Userman.SyncInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	if err := d.userman.SyncAllDirectories(ctx); err != nil {
		log.Warn().Err(err).Msg("initial directory sync incomplete")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.userman.SyncAllDirectories(ctx); err != nil {
				log.Warn().Err(err).Msg("directory sync incomplete")
			}
		}
	}
}
