// Package cli wires the userdesk engine to a terminal surface: configuration
// loading, logger setup and the user-management commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/pkg/config"
	"github.com/userdesk/userdesk/pkg/logger"
)

type cfgCtxKey struct{}

// RootCmd builds the userdesk command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "userdesk",
		Short:         "Admin user management from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("base-url", "", "API base URL (default from USERDESK_CLIENT_BASE_URL)")
	flags.String("api-key", "", "API key (default from USERDESK_CLIENT_API_KEY)")
	flags.String("env-file", ".env", "Environment file to load before reading config")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("json", false, "Log in JSON format")
	flags.Bool("debug", false, "Log HTTP requests and responses")
	flags.Int("page-size", 0, "Users per fetched page")

	root.AddCommand(
		ListCmd(),
		CreateCmd(),
		BanCmd(),
		UnbanCmd(),
		RemoveCmd(),
		BrowseCmd(),
	)
	return root
}

// setup loads the env file and configuration, initializes logging and stores
// both on the command context.
func setup(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile != "" {
		if _, statErr := os.Stat(envFile); statErr == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}
	override, err := flagOverrides(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cmd.Context(), override)
	if err != nil {
		return err
	}
	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Runtime.LogLevel),
		Output: cmd.ErrOrStderr(),
		JSON:   cfg.Runtime.LogJSON,
	})
	core.SetStrictInvariants(cfg.Runtime.StrictInvariants)
	ctx := logger.ContextWithLogger(cmd.Context(), log)
	ctx = context.WithValue(ctx, cfgCtxKey{}, cfg)
	cmd.SetContext(ctx)
	return nil
}

// flagOverrides turns explicitly set flags into a config override tree.
func flagOverrides(cmd *cobra.Command) (*config.Config, error) {
	override := &config.Config{}
	flags := cmd.Flags()
	var err error
	if override.Client.BaseURL, err = flags.GetString("base-url"); err != nil {
		return nil, fmt.Errorf("failed to get base-url flag: %w", err)
	}
	if override.Client.APIKey, err = flags.GetString("api-key"); err != nil {
		return nil, fmt.Errorf("failed to get api-key flag: %w", err)
	}
	if override.Runtime.LogLevel, err = flags.GetString("log-level"); err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	if override.Runtime.LogJSON, err = flags.GetBool("json"); err != nil {
		return nil, fmt.Errorf("failed to get json flag: %w", err)
	}
	if override.Client.Debug, err = flags.GetBool("debug"); err != nil {
		return nil, fmt.Errorf("failed to get debug flag: %w", err)
	}
	if override.Feed.PageSize, err = flags.GetInt("page-size"); err != nil {
		return nil, fmt.Errorf("failed to get page-size flag: %w", err)
	}
	return override, nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgCtxKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}
