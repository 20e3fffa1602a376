package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Ajirohack/echo/internal/audio"
	"github.com/Ajirohack/echo/internal/provider"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API (scribe).
type ElevenLabsClient struct {
	apiKey string
	model  string // "scribe_v1" or "scribe_v2"
	client *http.Client
}

// elevenLabsResponse is the JSON response from the ElevenLabs STT API.
type elevenLabsResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

// NewElevenLabsClient creates an ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Transcribe sends the audio to the ElevenLabs STT API.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioData []byte, language string) (*provider.Transcription, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio."+audio.Detect(audioData).Ext)
	if err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("write audio data: %w", err))
	}
	w.WriteField("model_id", el.model)
	if language != "" {
		w.WriteField("language_code", language)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, elevenLabsSTTEndpoint, &buf)
	if err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
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

	var result elevenLabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(el.Name(), fmt.Errorf("decode response: %w", err))
	}

	lang := result.LanguageCode
	if lang == "" {
		lang = language
	}
	return &provider.Transcription{
		Text:     strings.TrimSpace(result.Text),
		Language: lang,
	}, nil
}
