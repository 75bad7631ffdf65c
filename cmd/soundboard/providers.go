package main

import (
	"log/slog"

	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/pkg/provider/tts"
	"github.com/MrWong99/soundboard/pkg/provider/tts/coqui"
	"github.com/MrWong99/soundboard/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires the built-in TTS factories into reg. Each
// factory receives a config.ProviderEntry and constructs the provider from
// its implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if v := entry.Option("output_format"); v != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(v))
		}
		if v := entry.Option("transport"); v != "" {
			opts = append(opts, elevenlabs.WithTransport(elevenlabs.Transport(v)))
		}
		p, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// coqui is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if v := entry.Option("language"); v != "" {
			opts = append(opts, coqui.WithLanguage(v))
		}
		if v := entry.Option("api_mode"); v != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(v)))
		}
		p, err := coqui.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	for _, name := range reg.TTSNames() {
		slog.Debug("registered provider", "kind", "tts", "name", name)
	}
}

// newTTS builds the configured TTS provider.
func newTTS(cfg *config.Config) (tts.Provider, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, err
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name, "model", cfg.Providers.TTS.Model)
	return p, nil
}
