// Package pipeline sequences the three translation stages (speech-to-text,
// text translation, speech synthesis), selects between configured backends
// with single-fallback semantics, and enforces the per-stage and end-to-end
// latency budgets and per-stage rate limits.
package pipeline

import "time"

// Stage identifies one step of the translation pipeline.
type Stage string

const (
	StageSTT         Stage = "stt"
	StageTranslation Stage = "translation"
	StageTTS         Stage = "tts"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageSTT, StageTranslation, StageTTS}

// Request is one speech-to-speech translation job. Fields are read-only
// once handed to Process.
type Request struct {
	ID         string // assigned when empty
	Audio      []byte
	SourceLang string
	TargetLang string

	// Per-request backend overrides. Empty means use the configured
	// preference for the stage.
	STTProvider         string
	TranslationProvider string
	TTSProvider         string
}

// StageResult records how one stage produced its payload.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Provider string        `json:"provider"` // backend that produced the payload
	Attempts int           `json:"attempts"` // calls issued across all backends for this stage
	Elapsed  time.Duration `json:"elapsed"`
	Fallback bool          `json:"fallback"` // payload came from the fallback backend
}

// Result is the outcome of a successful pipeline run. It is not retained
// after being returned to the caller.
type Result struct {
	RequestID      string
	SourceLang     string
	TargetLang     string
	Transcript     string
	TranslatedText string
	Audio          []byte
	ContentType    string
	Stages         []StageResult
	Elapsed        time.Duration
}

// StageFor returns the result entry for the given stage, or nil.
func (r *Result) StageFor(stage Stage) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Stage == stage {
			return &r.Stages[i]
		}
	}
	return nil
}
