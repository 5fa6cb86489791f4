package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List other registered participants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireCredentials(); err != nil {
			return err
		}
		users, err := newAPIClient().Users()
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", u.ID, u.DisplayName)
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Upload an image and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireCredentials(); err != nil {
			return err
		}
		url, err := newAPIClient().Upload(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd, uploadCmd)
}
