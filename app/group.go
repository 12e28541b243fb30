package app

import (
	"github.com/spf13/cobra"

	"github.com/alexscott/userman/internal/directory"
)

func init() { //nolint: gochecknoinits
	groupAddCmd.Flags().Uint64Var(&groupDirID, "directory", 0, "Directory id (0 = default directory)")
	groupAddCmd.Flags().StringVar(&groupDescr, "description", "", "Description")
	groupAddCmd.Flags().UintSliceVar(&groupUsers, "users", nil, "Initial member ids")
	groupAddCmd.Flags().StringToStringVar(&groupExtra, "extra", nil, "Extra fields as key=value pairs (priority, ...)")

	groupUpdateCmd.Flags().StringVar(&groupName, "name", "", "New group name")
	groupUpdateCmd.Flags().StringVar(&groupDescr, "description", "", "Description")
	groupUpdateCmd.Flags().UintSliceVar(&groupUsers, "users", nil, "Replace membership with this id set")
	groupUpdateCmd.Flags().StringToStringVar(&groupExtra, "extra", nil, "Extra fields as key=value pairs")

	groupCmd.AddCommand(groupAddCmd, groupUpdateCmd, groupDeleteCmd, groupListCmd)
	rootCmd.AddCommand(groupCmd)
}

var (
	groupDirID uint64
	groupName  string
	groupDescr string
	groupUsers []uint
	groupExtra map[string]string
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

func toUint64s(in []uint) []uint64 {
	if in == nil {
		return nil
	}

	out := make([]uint64, 0, len(in))
	for _, v := range in {
		out = append(out, uint64(v))
	}

	return out
}

var groupAddCmd = &cobra.Command{
	Use:    "add <name>",
	Short:  "Add a group",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		um := newDaemon().Userman()

		var (
			status directory.Status
			err    error
		)

		if groupDirID == 0 {
			status, err = um.AddGroup(args[0], groupDescr, toUint64s(groupUsers), groupExtra)
		} else {
			status, err = um.AddGroupByDirectory(groupDirID, args[0], groupDescr, toUint64s(groupUsers), groupExtra)
		}

		if err != nil {
			return err
		}

		if !status.Status {
			cmd.PrintErrln(status.Message)
			return nil
		}

		cmd.Printf("group %d created\n", status.ID)

		return nil
	},
}

var groupUpdateCmd = &cobra.Command{
	Use:    "update <id>",
	Short:  "Update a group",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		um := newDaemon().Userman()

		group, err := um.GroupByID(id)
		if err != nil {
			return err
		}

		name := groupName
		if name == "" {
			name = group.Groupname
		}

		var users []uint64
		if cmd.Flags().Changed("users") {
			users = toUint64s(groupUsers)
			if users == nil {
				users = []uint64{}
			}
		}

		status, err := um.UpdateGroup(id, group.Groupname, name, groupDescr, users, groupExtra)
		if err != nil {
			return err
		}

		if !status.Status {
			cmd.PrintErrln(status.Message)
			return nil
		}

		cmd.Printf("group %d updated\n", id)

		return nil
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:    "delete <id>",
	Short:  "Delete a group",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		status, err := newDaemon().Userman().DeleteGroupByGID(id)
		if err != nil {
			return err
		}

		cmd.Println(statusLine(status.Message, "group deleted"))

		return nil
	},
}

var groupListCmd = &cobra.Command{
	Use:    "list",
	Short:  "List groups across all active directories",
	PreRun: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		groups, err := newDaemon().Userman().AllGroups()
		if err != nil {
			return err
		}

		for _, g := range groups {
			cmd.Printf("%d\t%d\t%s\t%d members\n", g.ID, g.DirectoryID, g.Groupname, len(g.Users))
		}

		return nil
	},
}
