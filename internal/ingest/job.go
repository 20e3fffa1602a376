// Package ingest accepts translation jobs from MQTT and a watched
// drop directory, runs them through the pipeline on a worker pool, and
// delivers results back to the requester.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/Ajirohack/echo/internal/pipeline"
)

// Job is an asynchronous translation request. Exactly one of
// AudioBase64, AudioKey, or AudioPath must reference the input audio.
type Job struct {
	RequestID  string `json:"request_id,omitempty"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`

	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioKey    string `json:"audio_key,omitempty"`
	AudioPath   string `json:"audio_path,omitempty"`

	// Optional per-job backend overrides.
	STTProvider         string `json:"stt_provider,omitempty"`
	TranslationProvider string `json:"translation_provider,omitempty"`
	TTSProvider         string `json:"tts_provider,omitempty"`

	// ReplyTopic overrides the default result topic for MQTT jobs.
	ReplyTopic string `json:"reply_topic,omitempty"`

	// Set by the accepting listener, not the payload.
	Source     string `json:"-"`
	ResultPath string `json:"-"`
	OutputBase string `json:"-"` // watched jobs also get audio written as {base}.{target}.{ext}
}

// ParseJob decodes and validates a job payload.
func ParseJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	if j.SourceLang == "" || j.TargetLang == "" {
		return nil, fmt.Errorf("job missing source_lang or target_lang")
	}

	refs := 0
	for _, ref := range []string{j.AudioBase64, j.AudioKey, j.AudioPath} {
		if ref != "" {
			refs++
		}
	}
	if refs == 0 {
		return nil, fmt.Errorf("job missing audio reference")
	}
	if refs > 1 {
		return nil, fmt.Errorf("job has multiple audio references")
	}

	return &j, nil
}

// ResultMessage is the job outcome delivered to the reply topic or
// written next to the job file.
type ResultMessage struct {
	RequestID      string                 `json:"request_id"`
	Status         string                 `json:"status"` // "ok" or "error"
	SourceLang     string                 `json:"source_lang,omitempty"`
	TargetLang     string                 `json:"target_lang,omitempty"`
	Transcript     string                 `json:"transcript,omitempty"`
	TranslatedText string                 `json:"translated_text,omitempty"`
	AudioKey       string                 `json:"audio_key,omitempty"`
	AudioURL       string                 `json:"audio_url,omitempty"`
	ContentType    string                 `json:"content_type,omitempty"`
	ElapsedMs      int64                  `json:"elapsed_ms"`
	Stages         []pipeline.StageResult `json:"stages,omitempty"`
	Error          *ResultError           `json:"error,omitempty"`
}

// ResultError describes why a job failed.
type ResultError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}
