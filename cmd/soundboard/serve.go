package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soundboard/internal/catalog"
	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/internal/discord"
	"github.com/MrWong99/soundboard/internal/discord/commands"
	"github.com/MrWong99/soundboard/internal/health"
	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/ledger/postgres"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/speech"
	"github.com/MrWong99/soundboard/pkg/audio"
	discordaudio "github.com/MrWong99/soundboard/pkg/audio/discord"
	"github.com/MrWong99/soundboard/pkg/audio/ffmpeg"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve slash commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.configPath, opts.cfg)
		},
	}
}

func serve(ctx context.Context, configPath string, cfg *config.Config) error {
	slog.Info("soundboard starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		GuildID:        cfg.Discord.GuildID,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := tel.Metrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// ── Catalog ───────────────────────────────────────────────────────────────
	cat := catalog.New(cfg.Paths.Sounds, cfg.Paths.Music)
	if err := cat.Load(); err != nil {
		return err
	}
	slog.Info("catalog loaded", "sounds", cat.Len(catalog.Sound), "music", cat.Len(catalog.Music))

	// ── Providers and tools ───────────────────────────────────────────────────
	provider, err := newTTS(cfg)
	if err != nil {
		return err
	}
	ff, err := ffmpeg.New(ffmpeg.WithBinary(cfg.FFmpeg.Path), ffmpeg.WithBitrate(cfg.FFmpeg.Bitrate))
	if err != nil {
		return err
	}

	var (
		recorder ledger.Recorder = ledger.Nop{}
		store    *postgres.Store
	)
	if dsn := cfg.Archive.PostgresDSN; dsn != "" {
		store, err = postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
		slog.Info("archive ledger connected")
	}

	// ── Discord ───────────────────────────────────────────────────────────────
	router := discord.NewCommandRouter(
		discord.WithTimeout(cfg.Discord.CommandTimeout),
		discord.WithMetrics(metrics),
	)
	bot, err := discord.New(ctx, discord.Config{Token: cfg.Discord.Token, GuildID: cfg.Discord.GuildID}, router)
	if err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	agent := discordaudio.New(bot.Session(), cfg.Discord.GuildID, ff,
		discordaudio.WithLocator(cat),
		discordaudio.WithConnectionGauge(metrics.VoiceConnections),
	)

	pipeline, err := speech.New(provider, ff, agent, speech.Config{
		SpeechDir:       cfg.Paths.Speech,
		ArchiveDir:      cfg.Paths.Archive,
		Stability:       cfg.Speech.Stability,
		SimilarityBoost: cfg.Speech.SimilarityBoost,
		CleanupDelay:    cfg.Speech.CleanupDelay,
	}, speech.WithLedger(recorder), speech.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	board := commands.New(commands.Deps{
		Catalog: cat,
		Agent:   agent,
		Speaker: pipeline,
		Voice:   bot,
		Latency: bot.Latency,
		Metrics: metrics,
		Cues:    cuesFrom(cfg),
	})
	board.Register(router)

	// ── Background work ───────────────────────────────────────────────────────
	janitor := speech.NewJanitor(cfg.Paths.Speech, cfg.Speech.SlotMaxAge, metrics)
	if err := janitor.Start(cfg.Speech.JanitorSchedule); err != nil {
		return err
	}
	slog.Info("speech janitor started", "schedule", cfg.Speech.JanitorSchedule, "next", janitor.Next())

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}
	onChange := func(_, new *config.Config, d config.ConfigDiff) { applyReload(board, d, new) }

	// ── HTTP: metrics and health ──────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		checks := []health.Checker{
			health.Directory("sounds", cfg.Paths.Sounds),
			health.Directory("music", cfg.Paths.Music),
			health.Directory("speech", cfg.Paths.Speech),
			health.Ready("gateway", bot.Ready, "discord gateway not connected"),
		}
		if store != nil {
			checks = append(checks, health.Optional(health.Ping("archive", store)))
		}
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", tel.Handler())
		health.New(checks...).Register(mux)

		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	printStartupSummary(cfg, cat)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Watch(gctx, onChange); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			reloadOnHangup(gctx, watcher, onChange)
			return nil
		})
	}
	if srv != nil {
		g.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("soundboard ready, press Ctrl+C to shut down")
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	janitor.Stop(shutdownCtx)
	if err := agent.Leave(shutdownCtx); err != nil && !errors.Is(err, audio.ErrNotConnected) {
		slog.Warn("voice leave error", "err", err)
	}
	board.Close()

	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

func cuesFrom(cfg *config.Config) commands.Cues {
	return commands.Cues{OnJoin: cfg.Discord.OnJoinSound, OnLeave: cfg.Discord.OnLeaveSound}
}

// applyReload applies the hot-reloadable parts of a config change.
func applyReload(board *commands.Soundboard, d config.ConfigDiff, cfg *config.Config) {
	if d.LogLevelChanged {
		logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.CuesChanged {
		board.SetCues(cuesFrom(cfg))
		slog.Info("voice cues changed", "on_join", cfg.Discord.OnJoinSound, "on_leave", cfg.Discord.OnLeaveSound)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// reloadOnHangup reloads the config file whenever the process receives SIGHUP.
func reloadOnHangup(ctx context.Context, w *config.Watcher, onChange config.ChangeFunc) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := w.Reload(onChange)
			if err != nil {
				slog.Warn("config reload on SIGHUP failed", "err", err)
				continue
			}
			if !changed {
				slog.Info("config unchanged on SIGHUP")
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, cat *catalog.Catalog) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Soundboard startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("TTS", providerLabel(cfg.Providers.TTS))
	printRow("Sounds", fmt.Sprintf("%d", cat.Len(catalog.Sound)))
	printRow("Music", fmt.Sprintf("%d", cat.Len(catalog.Music)))
	printRow("Archive", enabled(cfg.Paths.Archive != ""))
	printRow("Ledger", enabled(cfg.Archive.PostgresDSN != ""))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
