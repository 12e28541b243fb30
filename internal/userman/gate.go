package userman

import (
	"fmt"

	"github.com/alexscott/userman/internal/directory"
)

// driverByID returns the directory's driver from the current snapshot.
func (u *Userman) driverByID(id uint64) (directory.Driver, error) {
	drv, ok := u.registry.Snapshot().Driver(id)
	if !ok {
		return nil, fmt.Errorf("%w: no active driver for id %d", directory.ErrUnknownDirectory, id)
	}

	return drv, nil
}

// checkWritable enforces the locked-directory gate. The locked flag is
// read from the directory row, not the snapshot, so an unlock takes
// effect immediately without a reload. Local-group operations pass the
// gate when the directory config enables them and the driver
// advertises the capability.
func (u *Userman) checkWritable(id uint64, localGroupOp bool) error {
	dir, err := u.registry.DirectoryByID(id)
	if err != nil {
		return err
	}

	if !dir.Locked {
		return nil
	}

	if localGroupOp {
		drv, errDrv := u.driverByID(id)
		if errDrv != nil {
			return fmt.Errorf("%w: %q", directory.ErrLockedDirectory, dir.Name)
		}

		cfg, errCfg := u.registry.ConfigByID(id)
		if errCfg != nil {
			return errCfg
		}

		if cfg.Bool("localgroups") && drv.Permissions().Can(directory.PermLocalGroups) {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", directory.ErrLockedDirectory, dir.Name)
}
