package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by [Registry.CreateTTS] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TTSFactory builds a provider from its config block.
type TTSFactory func(ProviderEntry) (tts.Provider, error)

// Registry maps providers.tts.name values to factories. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	tts map[string]TTSFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{tts: make(map[string]TTSFactory)}
}

// RegisterTTS registers factory under name, replacing any earlier one. It
// panics on an empty name or a nil factory, which are programming errors.
func (r *Registry) RegisterTTS(name string, factory TTSFactory) {
	if name == "" || factory == nil {
		panic("config: RegisterTTS needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create tts/%q: %w", entry.Name, err)
	}
	return p, nil
}

// TTSNames returns the registered TTS provider names in sorted order.
func (r *Registry) TTSNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for n := range r.tts {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
