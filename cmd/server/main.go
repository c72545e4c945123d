package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/teamchat-server/internal/app"
	"github.com/vovakirdan/teamchat-server/internal/auth"
	"github.com/vovakirdan/teamchat-server/internal/config"
	applog "github.com/vovakirdan/teamchat-server/internal/log"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "teamchat",
		Short:         "Realtime team chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newTokenCmd(flags))
	return root
}

func loadConfig(flags *rootFlags, overrides config.Config) (*config.Config, error) {
	bootLogger := applog.New("info", "console")

	cfg, path, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	overrides.LogLevel = flags.logLevel
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}
			logger := applog.New(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Str("env", cfg.AppEnv).Msg("starting teamchat server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		userID string
		name   string
		email  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed session token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, config.Config{})
			if err != nil {
				return err
			}
			jwtCfg, err := app.JWTConfig(cfg)
			if err != nil {
				return err
			}

			id := auth.Identity{ID: userID}
			if name != "" {
				id.Name = &name
			}
			if email != "" {
				id.Email = &email
			}
			token, err := auth.GenerateToken(jwtCfg, id)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
