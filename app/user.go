package app

import (
	"github.com/spf13/cobra"
)

func init() { //nolint: gochecknoinits
	userAddCmd.Flags().Uint64Var(&userDirID, "directory", 0, "Directory id (0 = default directory)")
	userAddCmd.Flags().StringVar(&userExt, "extension", "", "Linked extension")
	userAddCmd.Flags().StringVar(&userDescr, "description", "", "Description")
	userAddCmd.Flags().StringToStringVar(&userExtra, "extra", nil, "Extra fields as key=value pairs (email, fname, ...)")

	userUpdateCmd.Flags().StringVar(&userName, "username", "", "New username")
	userUpdateCmd.Flags().StringVar(&userExt, "extension", "", "Linked extension")
	userUpdateCmd.Flags().StringVar(&userDescr, "description", "", "Description")
	userUpdateCmd.Flags().StringVar(&userPassword, "password", "", "New password")
	userUpdateCmd.Flags().StringToStringVar(&userExtra, "extra", nil, "Extra fields as key=value pairs")
	userUpdateCmd.Flags().UintSliceVar(&userGroups, "groups", nil, "Replace group memberships with this id set")

	userCmd.AddCommand(userAddCmd, userUpdateCmd, userDeleteCmd, userListCmd, userCheckCmd)
	rootCmd.AddCommand(userCmd)
}

var (
	userDirID    uint64
	userName     string
	userExt      string
	userDescr    string
	userPassword string
	userExtra    map[string]string
	userGroups   []uint
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:    "add <username> <password>",
	Short:  "Add a user",
	Args:   cobra.ExactArgs(2),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		um := newDaemon().Userman()

		dirID := userDirID
		if dirID == 0 {
			dir, err := um.DefaultDirectory()
			if err != nil {
				return err
			}

			dirID = dir.ID
		}

		status, err := um.AddUserByDirectory(dirID, args[0], args[1], userExt, userDescr, userExtra, true)
		if err != nil {
			return err
		}

		if !status.Status {
			cmd.PrintErrln(status.Message)
			return nil
		}

		cmd.Printf("user %d created\n", status.ID)

		return nil
	},
}

var userUpdateCmd = &cobra.Command{
	Use:    "update <id>",
	Short:  "Update a user",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		um := newDaemon().Userman()

		user, err := um.UserByID(id)
		if err != nil {
			return err
		}

		// Omitted flags keep the stored values.
		username := flagOr(cmd, "username", userName, user.Username)
		ext := flagOr(cmd, "extension", userExt, user.DefaultExtension)
		descr := flagOr(cmd, "description", userDescr, user.Description)

		// Only an explicit --groups flag touches memberships.
		var groups []uint64
		if cmd.Flags().Changed("groups") {
			groups = make([]uint64, 0, len(userGroups))
			for _, gid := range userGroups {
				groups = append(groups, uint64(gid))
			}
		}

		status, err := um.UpdateUser(id, user.Username, username, ext, descr, userExtra, userPassword, groups)
		if err != nil {
			return err
		}

		if !status.Status {
			cmd.PrintErrln(status.Message)
			return nil
		}

		cmd.Printf("user %d updated\n", id)

		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:    "delete <id>",
	Short:  "Delete a user",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		status, err := newDaemon().Userman().DeleteUserByID(id)
		if err != nil {
			return err
		}

		cmd.Println(statusLine(status.Message, "user deleted"))

		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:    "list",
	Short:  "List users across all active directories",
	PreRun: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		users, err := newDaemon().Userman().AllUsers()
		if err != nil {
			return err
		}

		for _, u := range users {
			cmd.Printf("%d\t%d\t%s\t%s\n", u.ID, u.DirectoryID, u.Username, u.DefaultExtension)
		}

		return nil
	},
}

var userCheckCmd = &cobra.Command{
	Use:    "check <username> <password>",
	Short:  "Verify a credential pair against the owning directory",
	Args:   cobra.ExactArgs(2),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := newDaemon().Userman().CheckCredentials(args[0], args[1])
		if err != nil {
			return err
		}

		if ok {
			cmd.Println("credentials valid")
		} else {
			cmd.Println("credentials invalid")
		}

		return nil
	},
}

func statusLine(message, fallback string) string {
	if message != "" {
		return message
	}

	return fallback
}

// flagOr returns the flag's bound value when it was set on the command
// line and the stored value otherwise, so an omitted flag never clears
// a field.
func flagOr(cmd *cobra.Command, flag, set, stored string) string {
	if cmd.Flags().Changed(flag) {
		return set
	}

	return stored
}
