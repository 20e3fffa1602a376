// Package provider defines the capability interfaces implemented by
// vendor backends and the common error type they return. It has no
// dependencies on the rest of the engine so adapter packages and the
// orchestration layer can both import it.
package provider

import "context"

// SpeechToText is the interface for speech-to-text backends.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, language string) (*Transcription, error)
	Name() string // "whisper", "elevenlabs", "deepinfra"
}

// Translator is the interface for text translation backends.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (*Translation, error)
	Name() string // "deepl", "google", "openai"
}

// SpeechSynthesizer is the interface for text-to-speech backends.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language string) (*Synthesis, error)
	Name() string // "elevenlabs", "openai", "google"
}

// Transcription is the common speech-to-text result from any backend.
type Transcription struct {
	Text     string
	Language string  // detected language, or the requested one echoed back
	Duration float64 // audio duration in seconds, 0 if the backend omits it
}

// Translation is the common translation result from any backend.
type Translation struct {
	Text           string
	DetectedSource string // vendor-detected source language, "" if not reported
}

// Synthesis is the common text-to-speech result from any backend.
type Synthesis struct {
	Audio       []byte
	ContentType string // "audio/mpeg" unless the backend says otherwise
}
