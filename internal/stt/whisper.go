// Package stt holds the speech-to-text backends. Each client is a thin
// HTTP wrapper implementing provider.SpeechToText; retries, deadlines,
// and rate limiting belong to the orchestration layer.
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

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions
// endpoint: api.openai.com or a self-hosted Whisper server.
type WhisperClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// whisperResponse is the verbose_json response shape.
type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewWhisperClient creates a Whisper HTTP client. apiKey may be empty
// for self-hosted servers that skip auth.
func NewWhisperClient(baseURL, apiKey, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (wc *WhisperClient) Name() string { return "whisper" }

// Transcribe sends the audio as multipart/form-data and returns the
// transcript with the detected language.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioData []byte, language string) (*provider.Transcription, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio."+audio.Detect(audioData).Ext)
	if err != nil {
		return nil, provider.Failure(wc.Name(), fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, provider.Failure(wc.Name(), fmt.Errorf("write audio data: %w", err))
	}
	if wc.model != "" {
		w.WriteField("model", wc.model)
	}
	if language != "" {
		w.WriteField("language", language)
	}
	w.WriteField("response_format", "verbose_json")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return nil, provider.Failure(wc.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if wc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+wc.apiKey)
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, provider.Failure(wc.Name(), fmt.Errorf("whisper request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(wc.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(wc.Name(), resp.StatusCode, string(body))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(wc.Name(), fmt.Errorf("decode response: %w", err))
	}

	lang := result.Language
	if lang == "" {
		lang = language
	}
	return &provider.Transcription{
		Text:     strings.TrimSpace(result.Text),
		Language: lang,
		Duration: result.Duration,
	}, nil
}
