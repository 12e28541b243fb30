package daemon

import (
	"github.com/rs/zerolog/log"

	"github.com/alexscott/userman/internal/config"
	"github.com/alexscott/userman/internal/uniuri"
	"github.com/alexscott/userman/internal/userman"
)

// seed guarantees the default directory exists and creates the initial
// admin account when the user table is still empty. The generated
// password is logged once; it is not recoverable later.
func seed(_ *config.Config, um *userman.Userman) {
	dir, err := um.DefaultDirectory()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to ensure default directory")
	}

	users, err := um.AllUsers()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list users")
	}

	if len(users) > 0 {
		return
	}

	password := uniuri.New()

	status, err := um.AddUserByDirectory(dir.ID, "admin", password, "", "Initial administrator", nil, true)
	if err != nil || !status.Status {
		log.Fatal().Err(err).Str("status", status.Message).Msg("failed to seed admin user")
	}

	if err := um.UserSettings().Set(status.ID, "global", "pbx_admin", true); err != nil {
		log.Warn().Err(err).Msg("failed to flag seeded admin")
	}

	log.Info().Str("username", "admin").Str("password", password).
		Msg("seeded initial admin user")
}
