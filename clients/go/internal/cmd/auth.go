package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eldtechnologies/chatrelay/clients/go/chat"
)

var (
	email    string
	password string
)

var registerCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := passwordValue(cmd)
		if err != nil {
			return err
		}
		creds, err := newAPIClient().Register(args[0], email, pw)
		if err != nil {
			return err
		}
		if err := chat.SaveCredentials(configDir(), creds); err != nil {
			return fmt.Errorf("caching credentials: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered as %s (%s)\n", creds.User.DisplayName, creds.User.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with an existing account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := passwordValue(cmd)
		if err != nil {
			return err
		}
		creds, err := newAPIClient().Login(email, pw)
		if err != nil {
			return err
		}
		if err := chat.SaveCredentials(configDir(), creds); err != nil {
			return fmt.Errorf("caching credentials: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", creds.User.DisplayName)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the cached session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		if client.Token != "" {
			if err := client.Logout(); err != nil {
				logger.Warn().Err(err).Msg("server logout failed")
			}
		}
		return chat.ClearCredentials(configDir())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireCredentials(); err != nil {
			return err
		}
		me, err := newAPIClient().Me()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", me.ID, me.DisplayName)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&email, "email", "", "Account email")
		c.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
		cobra.CheckErr(c.MarkFlagRequired("email"))
	}
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)
}

// passwordValue returns the password from the flag, CHATRELAY_PASSWORD,
// or a prompt.
func passwordValue(cmd *cobra.Command) (string, error) {
	if password != "" {
		return password, nil
	}
	if pw := viper.GetString("password"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
