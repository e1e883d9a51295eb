package app

import (
	"log/slog"

	"github.com/spf13/viper"

	portalauth "github.com/PatonaIM/teamified-accounts-sub013"
	"github.com/PatonaIM/teamified-accounts-sub013/supabase"
)

const defaultCallbackURL = "http://127.0.0.1:8765/auth/callback"

func loadConfig() portalauth.Config {
	cfg := portalauth.DefaultConfig()
	cfg.SupabaseURL = viper.GetString("supabase-url")
	cfg.SupabaseAnonKey = viper.GetString("supabase-anon-key")
	cfg.PortalAPIURL = viper.GetString("api-url")
	cfg.AppOrigin = viper.GetString("app-origin")
	cfg.CallbackURL = viper.GetString("callback-url")
	cfg.StorageDir = viper.GetString("storage-dir")
	cfg.CrossAppSessions = viper.GetBool("cross-app-sessions")
	return cfg
}

// newOrchestrator builds an orchestrator around an explicit Supabase client
// so the login command can serve its callback handler.
func newOrchestrator(cfg portalauth.Config) (*portalauth.Orchestrator, *supabase.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := slog.Default()
	sb, err := supabase.New(supabase.Config{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}

	orch, err := portalauth.New().
		WithConfig(cfg).
		WithIdentityProvider(sb).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return orch, sb, nil
}
