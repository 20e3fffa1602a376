// Package tts holds the speech synthesis backends. Each client is a
// thin HTTP wrapper implementing provider.SpeechSynthesizer; retries,
// deadlines, and rate limiting belong to the orchestration layer.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Ajirohack/echo/internal/provider"
)

const elevenLabsTTSBaseURL = "https://api.elevenlabs.io/v1/text-to-speech/"

// ElevenLabsClient calls the ElevenLabs text-to-speech API and returns
// MP3 audio.
type ElevenLabsClient struct {
	apiKey  string
	voiceID string
	model   string // e.g. "eleven_multilingual_v2"
	client  *http.Client
}

// elevenLabsTTSRequest is the JSON request body. The multilingual
// models infer the spoken language from the text itself.
type elevenLabsTTSRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewElevenLabsClient creates an ElevenLabs TTS client.
func NewElevenLabsClient(apiKey, voiceID, model string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Synthesize renders the text with the configured voice. The language
// parameter is unused here; the multilingual models detect it.
func (el *ElevenLabsClient) Synthesize(ctx context.Context, text, language string) (*provider.Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidInput(el.Name(), "empty text")
	}

	payload, err := json.Marshal(elevenLabsTTSRequest{
		Text:    text,
		ModelID: el.model,
	})
	if err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("marshal request: %w", err))
	}

	endpoint := elevenLabsTTSBaseURL + el.voiceID + "?output_format=mp3_44100_128"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("elevenlabs request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(el.Name(), resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, provider.Failure(el.Name(), fmt.Errorf("empty audio in response"))
	}

	return &provider.Synthesis{
		Audio:       body,
		ContentType: "audio/mpeg",
	}, nil
}
