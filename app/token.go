package app

import (
	"time"

	"github.com/spf13/cobra"
)

func init() { //nolint: gochecknoinits
	tokenIssueCmd.Flags().BoolVar(&tokenForce, "force", false, "Replace an existing unexpired token")
	tokenIssueCmd.Flags().DurationVar(&tokenValid, "valid", 0, "Validity period (default from config)")

	tokenCmd.AddCommand(tokenIssueCmd, tokenValidateCmd, tokenResetPasswordCmd, tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}

var (
	tokenForce bool
	tokenValid time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage password reset tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:    "issue <uid>",
	Short:  "Issue a password reset token for a user",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := parseID(args[0])
		if err != nil {
			return err
		}

		validFor := tokenValid
		if validFor == 0 {
			validFor = cfg.Userman.TokenExpiry
		}

		token, err := newDaemon().Userman().GenerateToken(uid, validFor, tokenForce)
		if err != nil {
			return err
		}

		cmd.Println(token)

		return nil
	},
}

var tokenValidateCmd = &cobra.Command{
	Use:    "validate <token>",
	Short:  "Show the user a token belongs to without consuming it",
	Args:   cobra.ExactArgs(1),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := newDaemon().Userman().ValidateToken(args[0])
		if err != nil {
			return err
		}

		cmd.Printf("%d\t%s\n", user.ID, user.Username)

		return nil
	},
}

var tokenResetPasswordCmd = &cobra.Command{
	Use:    "reset-password <token> <password>",
	Short:  "Set a new password and consume the token",
	Args:   cobra.ExactArgs(2),
	PreRun: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newDaemon().Userman().ResetPasswordWithToken(args[0], args[1])
		if err != nil {
			return err
		}

		if !status.Status {
			cmd.PrintErrln(status.Message)
			return nil
		}

		cmd.Println("password updated")

		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:    "clear",
	Short:  "Revoke all outstanding reset tokens",
	PreRun: setup,
	RunE: func(_ *cobra.Command, _ []string) error {
		return newDaemon().Userman().ResetAllTokens()
	},
}
