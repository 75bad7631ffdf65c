package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cronlib "github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ValidTTSProviders lists the TTS provider names the bot ships with.
var ValidTTSProviders = []string{"elevenlabs", "coqui"}

// Environment variables that override file values. Secrets are expected to
// arrive this way rather than through the YAML file.
const (
	EnvDiscordToken = "SOUNDBOARD_DISCORD_TOKEN"
	EnvGuildID      = "SOUNDBOARD_GUILD_ID"
	EnvTTSAPIKey    = "ELEVENLABS_API_KEY"
	EnvArchiveDSN   = "SOUNDBOARD_ARCHIVE_POSTGRES_DSN"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":9090"
	DefaultTTSProvider     = "elevenlabs"
	DefaultElevenLabsModel = "eleven_multilingual_v2"
	DefaultSoundsDir       = "sounds"
	DefaultMusicDir        = "music"
	DefaultSpeechDir       = "speech"
	DefaultFFmpegPath      = "ffmpeg"
	DefaultFFmpegBitrate   = "64k"
	DefaultSimilarityBoost = 0.9
	DefaultCleanupDelay    = 5 * time.Second
	DefaultJanitorSchedule = "@every 1m"
	DefaultSlotMaxAge      = 10 * time.Minute
	DefaultCommandTimeout  = 30 * time.Second
)

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %q: %w", path, err)
}

// Load reads the YAML configuration file at path, applies environment
// overrides from the process environment, fills defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies overrides from getenv
// (nil skips them), fills defaults, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if getenv != nil {
		ApplyEnv(cfg, getenv)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and deployment-specific values with non-empty
// environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvDiscordToken); v != "" {
		cfg.Discord.Token = v
	}
	if v := getenv(EnvGuildID); v != "" {
		cfg.Discord.GuildID = v
	}
	if v := getenv(EnvTTSAPIKey); v != "" && (cfg.Providers.TTS.Name == "" || cfg.Providers.TTS.Name == "elevenlabs") {
		cfg.Providers.TTS.APIKey = v
	}
	if v := getenv(EnvArchiveDSN); v != "" {
		cfg.Archive.PostgresDSN = v
	}
}

// ApplyDefaults fills every zero field that has a default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Discord.CommandTimeout, DefaultCommandTimeout)

	setDefault(&cfg.Providers.TTS.Name, DefaultTTSProvider)
	if cfg.Providers.TTS.Name == "elevenlabs" {
		setDefault(&cfg.Providers.TTS.Model, DefaultElevenLabsModel)
	}

	setDefault(&cfg.Paths.Sounds, DefaultSoundsDir)
	setDefault(&cfg.Paths.Music, DefaultMusicDir)
	setDefault(&cfg.Paths.Speech, DefaultSpeechDir)

	setDefault(&cfg.FFmpeg.Path, DefaultFFmpegPath)
	setDefault(&cfg.FFmpeg.Bitrate, DefaultFFmpegBitrate)

	setDefault(&cfg.Speech.SimilarityBoost, DefaultSimilarityBoost)
	setDefault(&cfg.Speech.CleanupDelay, DefaultCleanupDelay)
	setDefault(&cfg.Speech.JanitorSchedule, DefaultJanitorSchedule)
	setDefault(&cfg.Speech.SlotMaxAge, DefaultSlotMaxAge)
}

func setDefault[T comparable](dst *T, def T) {
	var zero T
	if *dst == zero {
		*dst = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, fmt.Errorf("discord.guild_id is required (or set %s)", EnvGuildID))
	}
	if cfg.Discord.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("discord.command_timeout %v must not be negative", cfg.Discord.CommandTimeout))
	}

	// Provider
	errs = append(errs, validateTTS(cfg.Providers.TTS)...)

	// Paths
	if cfg.Paths.Sounds == "" || cfg.Paths.Music == "" || cfg.Paths.Speech == "" {
		errs = append(errs, errors.New("paths.sounds, paths.music, and paths.speech are required"))
	}
	if cfg.Paths.Speech != "" && (cfg.Paths.Speech == cfg.Paths.Sounds || cfg.Paths.Speech == cfg.Paths.Music) {
		errs = append(errs, fmt.Errorf("paths.speech %q must differ from the sound and music directories", cfg.Paths.Speech))
	}

	// Speech
	if s := cfg.Speech.Stability; s != nil && (*s < 0 || *s > 1) {
		errs = append(errs, fmt.Errorf("speech.stability %.2f is out of range [0, 1]", *s))
	}
	if b := cfg.Speech.SimilarityBoost; b < 0 || b > 1 {
		errs = append(errs, fmt.Errorf("speech.similarity_boost %.2f is out of range [0, 1]", b))
	}
	if cfg.Speech.SlotMaxAge < 0 {
		errs = append(errs, fmt.Errorf("speech.slot_max_age %v must not be negative", cfg.Speech.SlotMaxAge))
	}
	if cfg.Speech.JanitorSchedule != "" {
		if _, err := cronlib.ParseStandard(cfg.Speech.JanitorSchedule); err != nil {
			errs = append(errs, fmt.Errorf("speech.janitor_schedule %q is invalid: %w", cfg.Speech.JanitorSchedule, err))
		}
	}

	return errors.Join(errs...)
}

func validateTTS(e ProviderEntry) []error {
	var errs []error
	if !slices.Contains(ValidTTSProviders, e.Name) {
		return append(errs, fmt.Errorf("providers.tts.name %q is invalid; valid values: %v", e.Name, ValidTTSProviders))
	}
	switch e.Name {
	case "elevenlabs":
		if e.APIKey == "" {
			errs = append(errs, fmt.Errorf("providers.tts.api_key is required for elevenlabs (or set %s)", EnvTTSAPIKey))
		}
		if t := e.Option("transport"); t != "" && t != "http" && t != "websocket" {
			errs = append(errs, fmt.Errorf("providers.tts.options.transport %q is invalid; valid values: http, websocket", t))
		}
		if f := e.Option("output_format"); strings.HasPrefix(f, "pcm") || strings.HasPrefix(f, "ulaw") {
			errs = append(errs, fmt.Errorf("providers.tts.options.output_format %q is headerless audio ffmpeg cannot probe; use an mp3 or opus format", f))
		}
	case "coqui":
		if e.BaseURL == "" {
			errs = append(errs, errors.New("providers.tts.base_url is required for coqui"))
		}
		if m := e.Option("api_mode"); m != "" && m != "standard" && m != "xtts" {
			errs = append(errs, fmt.Errorf("providers.tts.options.api_mode %q is invalid; valid values: standard, xtts", m))
		}
	}
	return errs
}
