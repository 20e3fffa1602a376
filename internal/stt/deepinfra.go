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

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper
// models.
type DeepInfraClient struct {
	apiKey string
	model  string // e.g. "openai/whisper-large-v3-turbo"
	client *http.Client
}

// deepInfraResponse is the JSON response from the DeepInfra inference API.
type deepInfraResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewDeepInfraClient creates a DeepInfra inference client.
func NewDeepInfraClient(apiKey, model string, timeout time.Duration) *DeepInfraClient {
	return &DeepInfraClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (di *DeepInfraClient) Name() string { return "deepinfra" }

// Transcribe sends the audio to DeepInfra's inference endpoint for the
// configured model. DeepInfra uses form field "audio", not "file".
func (di *DeepInfraClient) Transcribe(ctx context.Context, audioData []byte, language string) (*provider.Transcription, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", "audio."+audio.Detect(audioData).Ext)
	if err != nil {
		return nil, provider.Failure(di.Name(), fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, provider.Failure(di.Name(), fmt.Errorf("write audio data: %w", err))
	}
	if language != "" {
		w.WriteField("language", language)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deepInfraBaseURL+di.model, &buf)
	if err != nil {
		return nil, provider.Failure(di.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+di.apiKey)

	resp, err := di.client.Do(req)
	if err != nil {
		return nil, provider.Failure(di.Name(), fmt.Errorf("deepinfra request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(di.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(di.Name(), resp.StatusCode, string(body))
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(di.Name(), fmt.Errorf("decode response: %w", err))
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
