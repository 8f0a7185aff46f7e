// ABOUTME: Entry point for coven-discord gateway client
// ABOUTME: Holds a gateway session open and answers mentions and application commands

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/2389/coven-discord/internal/config"
	"github.com/2389/coven-discord/internal/gateway"
	"github.com/2389/coven-discord/internal/metrics"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                             _ _                       _
  ___ _____   _____ _ __        __| (_)___  ___ ___  _ __ __| |
 / __/ _ \ \ / / _ \ '_ \ _____ / _' | / __|/ __/ _ \| '__/ _' |
| (_| (_) \ V /  __/ | | |_____| (_| | \__ \ (_| (_) | | | (_| |
 \___\___/ \_/ \___|_| |_|      \__,_|_|___/\___\___/|_|  \__,_|
`

// getConfigPath returns the path to the discord config file.
// Priority: --config flag > COVEN_DISCORD_CONFIG env var > XDG_CONFIG_HOME/coven/discord.yaml > ~/.config/coven/discord.yaml
func getConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("COVEN_DISCORD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "discord.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "discord.yaml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "coven-discord",
		Short:         "Discord gateway client for coven",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), getConfigPath(configFlag))
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to the config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Connect to the gateway and serve until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), getConfigPath(configFlag))
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a new config file interactively",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), getConfigPath(configFlag))
			},
		},
		&cobra.Command{
			Use:   "commands",
			Short: "Print the application commands that get registered",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return printCommands(cmd.OutOrStdout())
			},
		},
	)

	return rootCmd
}

func runServe(ctx context.Context, configPath string) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	if cfg.Discord.GatewayURL != "" {
		fmt.Printf("Gateway:  %s\n", cfg.Discord.GatewayURL)
	} else {
		fmt.Println("Gateway:  discovered at startup")
	}
	green.Print("    ▶ ")
	fmt.Printf("API:      %s\n", cfg.Discord.APIBaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Threads:  %d\n", cfg.Gateway.ThreadFactor)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:  http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var gw *gateway.Gateway
	if reg != nil {
		gw, err = gateway.New(cfg, reg, logger)
	} else {
		gw, err = gateway.New(cfg, nil, logger)
	}
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	if reg != nil {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, reg, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	logger.Info("starting coven-discord",
		"config", configPath,
		"version", version,
		"intents", cfg.Discord.Intents,
	)
	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
