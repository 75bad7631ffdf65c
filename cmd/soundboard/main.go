// Command soundboard is the entry point of the Discord soundboard bot.
//
// Usage:
//
//	soundboard serve     [--config soundboard.yaml] [--env-file .env]
//	soundboard register  registers the slash commands with the guild
//	soundboard voices    prints the speech voices usable with /say
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soundboard/internal/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "soundboard: %v\n", err)
		return 1
	}
	return 0
}

// options holds the persistent flags and the config loaded from them.
type options struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "soundboard",
		Short: "Discord soundboard and speech bot",
		Long: `soundboard plays sound effects and music from local directories into a
Discord voice channel and speaks text with ElevenLabs voices.

Secrets are read from the environment or a .env file:
  ` + config.EnvDiscordToken + `, ` + config.EnvGuildID + `, ` + config.EnvTTSAPIKey,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "soundboard.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with secrets, ignored when missing")

	root.AddCommand(
		newServeCmd(opts),
		newRegisterCmd(opts),
		newVoicesCmd(opts),
	)
	return root
}

// load reads the dotenv file, then the config file, and installs the logger.
func (o *options) load() error {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", o.configPath)
		}
		return err
	}
	o.cfg = cfg

	logLevel.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(logLevel))
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// logLevel is adjusted in place when the config file's log level changes.
var logLevel = new(slog.LevelVar)

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
