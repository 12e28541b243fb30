package app

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alexscott/userman/internal/directory"
)

func init() { //nolint: gochecknoinits
	directoryAddCmd.Flags().StringVar(&dirDriver, "type", directory.InternalDriverTag, "Driver type")
	directoryAddCmd.Flags().BoolVar(&dirEnabled, "enabled", true, "Enable the directory")
	directoryAddCmd.Flags().StringToStringVar(&dirConfig, "config", nil, "Driver config as key=value pairs")

	directoryUpdateCmd.Flags().StringVar(&dirName, "name", "", "New display name")
	directoryUpdateCmd.Flags().BoolVar(&dirEnabled, "enabled", true, "Enable the directory")
	directoryUpdateCmd.Flags().StringToStringVar(&dirConfig, "config", nil, "Driver config as key=value pairs")

	directoryCmd.AddCommand(
		directoryAddCmd,
		directoryUpdateCmd,
		directoryDeleteCmd,
		directoryLockCmd,
		directoryUnlockCmd,
		directoryListCmd,
		directorySetDefaultCmd,
	)
	rootCmd.AddCommand(directoryCmd)
}

var (
	dirDriver  string
	dirName    string
	dirEnabled bool
	dirConfig  map[string]string
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage identity directories",
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid id", arg)
	}

	return id, nil
}

var directoryAddCmd = &cobra.Command{
	Use:    "add <name>",
	Short:  "Add a directory",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := newDaemon().Userman().AddDirectory(dirDriver, args[0], dirEnabled, dirConfig)
		if err != nil {
			return err
		}

		cmd.Printf("directory %d created\n", id)

		return nil
	},
}

var directoryUpdateCmd = &cobra.Command{
	Use:    "update <id>",
	Short:  "Update a directory's name, state or config",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		um := newDaemon().Userman()

		dir, err := um.Registry().DirectoryByID(id)
		if err != nil {
			return err
		}

		name := dirName
		if name == "" {
			name = dir.Name
		}

		// An untouched flag keeps the stored state. The nil config of
		// an omitted --config keeps the stored config too.
		enabled := dirEnabled
		if !cmd.Flags().Changed("enabled") {
			enabled = dir.Active
		}

		if _, err = um.UpdateDirectory(id, name, enabled, dirConfig); err != nil {
			return err
		}

		cmd.Printf("directory %d updated\n", id)

		return nil
	},
}

var directoryDeleteCmd = &cobra.Command{
	Use:    "delete <id>",
	Short:  "Delete a directory and everything it owns",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		if err = newDaemon().Userman().DeleteDirectoryByID(id); err != nil {
			return err
		}

		cmd.Printf("directory %d deleted\n", id)

		return nil
	},
}

var directoryLockCmd = &cobra.Command{
	Use:    "lock <id>",
	Short:  "Lock a directory against create/update operations",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return newDaemon().Userman().LockDirectory(id)
	},
}

var directoryUnlockCmd = &cobra.Command{
	Use:    "unlock <id>",
	Short:  "Unlock a directory",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return newDaemon().Userman().UnlockDirectory(id)
	},
}

var directorySetDefaultCmd = &cobra.Command{
	Use:    "set-default <id>",
	Short:  "Make a directory the default target for new users",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return newDaemon().Userman().SetDefaultDirectory(id)
	},
}

var directoryListCmd = &cobra.Command{
	Use:    "list",
	Short:  "List configured directories in display order",
	PreRun: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dirs, err := newDaemon().Userman().AllDirectories()
		if err != nil {
			return err
		}

		for _, d := range dirs {
			flags := ""
			if d.Default {
				flags += " default"
			}

			if d.Locked {
				flags += " locked"
			}

			if !d.Active {
				flags += " disabled"
			}

			cmd.Printf("%d\t%s\t%s%s\n", d.ID, d.Driver, d.Name, flags)
		}

		return nil
	},
}
