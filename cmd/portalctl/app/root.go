// Package app provides the portalctl commands.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PatonaIM/teamified-accounts-sub013/ratelimit"
)

const envPrefix = "PORTAL"

// NewRootCmd creates the portalctl root command. Every flag can also be set
// through a PORTAL_-prefixed environment variable (dashes become
// underscores) or the optional config file.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Sign in to the Teamified portal and run the auth gateway",
		Long: `portalctl drives the portal sign-in flow from a terminal and can run the
rate-limiting gateway that fronts the portal's authentication endpoints.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			slog.SetDefault(newLogger())
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a portalctl config file (yaml, json or toml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("supabase-url", "", "Supabase project URL")
	flags.String("supabase-anon-key", "", "Supabase anonymous API key")
	flags.String("api-url", "", "Portal API base URL")
	flags.String("app-origin", "", "Origin of the hosting application")
	flags.String("callback-url", defaultCallbackURL, "Local sign-in callback URL")
	flags.String("storage-dir", "", "Directory for the durable token store")
	flags.Bool("cross-app-sessions", false, "Use the cookie-aware token store")
	flags.String("redis-url", "", "Shared rate-limit store (defaults to REDIS_URL)")

	for _, name := range []string{
		"config", "debug", "supabase-url", "supabase-anon-key", "api-url", "app-origin",
		"callback-url", "storage-dir", "cross-app-sessions", "redis-url",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newStatusCmd())

	return rootCmd
}

func initConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if viper.GetString("redis-url") == "" {
		viper.SetDefault("redis-url", ratelimit.ConfigFromEnv().RedisURL)
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
