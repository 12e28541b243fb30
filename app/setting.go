package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexscott/userman/internal/settings"
)

func init() { //nolint: gochecknoinits
	settingGetCmd.Flags().BoolVar(&settingDetailed, "detailed", false, "Also report which group supplied the value")

	settingSetCmd.Flags().StringVar(&settingScope, "scope", "user", "Owner scope: user or group")
	settingSetCmd.Flags().BoolVar(&settingArray, "array", false, "Treat the value as a comma separated list")
	settingSetCmd.Flags().BoolVar(&settingDelete, "delete", false, "Remove the setting instead of writing it")

	settingCmd.AddCommand(settingGetCmd, settingSetCmd)
	rootCmd.AddCommand(settingCmd)
}

var (
	settingDetailed bool
	settingScope    string
	settingArray    bool
	settingDelete   bool
)

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read and write per-entity settings",
}

var settingGetCmd = &cobra.Command{
	Use:    "get <uid> <module> <key>",
	Short:  "Resolve the effective value of a setting for a user",
	Args:   cobra.ExactArgs(3),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := parseID(args[0])
		if err != nil {
			return err
		}

		resolver := newDaemon().Userman().Resolver()

		res, err := resolver.CombinedSettingDetailed(uid, args[1], args[2])
		if err != nil {
			return err
		}

		switch {
		case !res.Value.Present():
			cmd.Println("(absent)")
		case res.Value.IsArray():
			cmd.Println(strings.Join(res.Value.Strings(), ","))
		default:
			cmd.Println(res.Value.String())
		}

		if settingDetailed && res.Value.Present() {
			if res.GroupID == settings.UserWins {
				cmd.Println("source: user setting")
			} else {
				cmd.Printf("source: group %d (%s)\n", res.GroupID, res.GroupName)
			}
		}

		return nil
	},
}

var settingSetCmd = &cobra.Command{
	Use:    "set <owner> <module> <key> [value]",
	Short:  "Write or delete a setting for a user or group",
	Args:   cobra.RangeArgs(3, 4),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseID(args[0])
		if err != nil {
			return err
		}

		um := newDaemon().Userman()

		store := um.UserSettings()
		if settingScope == "group" {
			store = um.GroupSettings()
		} else if settingScope != "user" {
			return fmt.Errorf("unknown scope %q", settingScope)
		}

		module, key := args[1], args[2]

		if settingDelete {
			return store.Delete(owner, module, key)
		}

		if len(args) < 4 {
			return fmt.Errorf("a value is required unless --delete is set")
		}

		var value any = args[3]
		if settingArray {
			value = strings.Split(args[3], ",")
		}

		return store.Set(owner, module, key, value)
	},
}
