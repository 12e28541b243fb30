package userman

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alexscott/userman/internal/directory"
)

// SyncAllDirectories runs the sync hook of every active directory
// whose driver has one. Directories are synced sequentially in display
// order; a failing directory is logged and the run continues. The
// returned error aggregates the per-directory failures.
func (u *Userman) SyncAllDirectories(ctx context.Context) error {
	runID := uuid.NewString()
	snap := u.registry.Snapshot()

	logRun := log.With().Str("run", runID).Logger()
	logRun.Info().Msg("directory sync started")

	var errs []error

	for _, dir := range snap.Directories() {
		if !dir.Active {
			continue
		}

		drv, ok := snap.Driver(dir.ID)
		if !ok {
			continue
		}

		syncer, ok := drv.(directory.Syncer)
		if !ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		logDir := logRun.With().Uint64("directory", dir.ID).Str("name", dir.Name).Logger()
		logDir.Info().Msg("syncing directory")

		if err := syncer.Sync(ctx); err != nil {
			logDir.Error().Err(err).Msg("directory sync failed")
			errs = append(errs, fmt.Errorf("directory %d (%s): %w", dir.ID, dir.Name, err))

			continue
		}

		logDir.Info().Msg("directory synced")
	}

	logRun.Info().Int("failures", len(errs)).Msg("directory sync finished")

	return errors.Join(errs...)
}
