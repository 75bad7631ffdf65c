package tts

// CategoryPremade is the voice category ElevenLabs assigns to its built-in voices.
const CategoryPremade = "premade"

// VoiceProfile describes a voice offered by a TTS provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name, as shown in the provider UI.
	Name string

	// Category classifies the voice ("premade", "cloned", "generated", …).
	Category string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Labels holds provider-specific voice attributes (gender, age, accent, etc.).
	Labels map[string]string
}

// VoiceSettings tunes the synthesis of a single request.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0–1.0).
	// Lower values are more expressive, higher values more monotone.
	Stability float64

	// SimilarityBoost controls how closely output matches the original voice (0.0–1.0).
	SimilarityBoost float64
}

// Request is a single synthesis call.
type Request struct {
	VoiceID  string
	Text     string
	Settings VoiceSettings
}

// Audio is the encoded result of a synthesis call.
type Audio struct {
	// Data is the raw encoded audio as returned by the provider.
	Data []byte

	// ContentType is the MIME type reported by the provider (e.g., "audio/mpeg").
	ContentType string

	// Ext is the provider's native file extension, without the dot.
	Ext string
}
