// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/alexscott/userman/internal/config"
	"github.com/alexscott/userman/internal/daemon"
	"github.com/alexscott/userman/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "userman",
	Short: "userman manages federated identity directories for a PBX",
	Long: `userman manages users, groups and their settings across multiple
identity directories (internal store, LDAP, Active Directory, imported
voicemail boxes) and resolves effective per-user settings.`,
	Args: cobra.OnlyValidArgs,
}

var (
	cfg        config.Config
	configPath string
	devMode    bool
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration directory")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Enable dev mode")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the configuration and starts the daemon wiring. It is
// the shared PreRun of every command that touches the database.
func setup(_ *cobra.Command, _ []string) {
	var err error

	if cfg, err = config.ReadConfig(configPath); err != nil {
		panic(err)
	}

	cfg = config.Defaults(cfg)

	if devMode {
		cfg.DevMode = true
	}

	if err = logger.Init(cfg.Log); err != nil {
		panic(err)
	}
}

// newDaemon builds the service after setup ran.
func newDaemon() *daemon.Daemon {
	return daemon.New(&cfg)
}
