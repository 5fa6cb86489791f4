package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eldtechnologies/chatrelay/clients/go/chat"
)

const applicationName = "chatrelay"

var (
	verbose bool
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Command line participant for a chatrelay server",
	Long: `chatrelay registers or signs in to a chatrelay server and joins its
shared room. Credentials are cached in the config directory so later
commands reuse the session.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().
			Timestamp().
			Logger()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Server base URL")
	rootCmd.PersistentFlags().Duration("reconnect-interval", chat.DefaultReconnectInterval, "Wait between reconnect attempts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cobra.CheckErr(viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server")))
	cobra.CheckErr(viper.BindPFlag("reconnect_interval", rootCmd.PersistentFlags().Lookup("reconnect-interval")))
}

func configDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		configHome = filepath.Join(home, ".config")
	}

	return filepath.Clean(filepath.Join(configHome, applicationName))
}

func initConfig() {
	viper.AddConfigPath(configDir())
	viper.SetConfigType("json")
	viper.SetConfigName("config")

	viper.SetEnvPrefix(applicationName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	viper.AutomaticEnv()

	// Silently ignore missing config file
	_ = viper.ReadInConfig()
}

// newAPIClient returns a client for the configured server, signed in with
// the cached session when one exists.
func newAPIClient() *chat.APIClient {
	client := chat.NewAPIClient(viper.GetString("server"))
	if creds, err := chat.LoadCredentials(configDir()); err == nil {
		client.Token = creds.Token
	}
	return client
}

// requireCredentials loads the cached session or explains how to get one.
func requireCredentials() (*chat.Credentials, error) {
	creds, err := chat.LoadCredentials(configDir())
	if err != nil {
		return nil, fmt.Errorf("not signed in, run `chatrelay login` or `chatrelay register` first")
	}
	return creds, nil
}
