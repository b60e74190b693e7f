package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eaglesoak/portal"
	"github.com/eaglesoak/portal/internal/config"
)

var (
	configPath string
	baseURL    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "portal",
	Short:        "Eagles Oak property portal client",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}

		logger, err = newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides PORTAL_API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		loginCmd, registerCmd, logoutCmd, whoamiCmd,
		listingsCmd, propertyCmd, myListingsCmd, uploadCmd,
		contactCmd, chatCmd, serveCmd, endpointsCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap opens the configured token store and builds the portal. The
// returned cleanup closes the store.
func bootstrap(ctx context.Context) (*portal.Portal, func(), error) {
	tokens, closeStore, err := openTokenStore(ctx, cfg.TokenStore)
	if err != nil {
		return nil, nil, err
	}

	session := portal.DefaultSessionConfig()
	session.ValidateTimeout = cfg.ValidateTimeout

	p, err := portal.New(portal.Config{
		BaseURL:        cfg.BaseURL,
		Tokens:         tokens,
		RequestTimeout: cfg.RequestTimeout,
		Session:        &session,
		Logger:         logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return p, closeStore, nil
}

// withPortal runs fn against a portal whose session has been rehydrated
func withPortal(cmd *cobra.Command, fn func(ctx context.Context, p *portal.Portal) error) error {
	ctx := cmd.Context()
	p, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	p.Initialize(ctx)
	return fn(ctx, p)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
