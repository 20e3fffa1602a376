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

// OpenAIClient calls the OpenAI speech endpoint and returns MP3 audio.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string // e.g. "tts-1-hd"
	voice   string // e.g. "alloy"
	client  *http.Client
}

// speechRequest is the JSON request body for /v1/audio/speech.
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// NewOpenAIClient creates an OpenAI TTS client.
func NewOpenAIClient(baseURL, apiKey, model, voice string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		voice:   voice,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (oc *OpenAIClient) Name() string { return "openai" }

// Synthesize renders the text with the configured model and voice. The
// voices are multilingual, so the language parameter is unused.
func (oc *OpenAIClient) Synthesize(ctx context.Context, text, language string) (*provider.Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidInput(oc.Name(), "empty text")
	}

	payload, err := json.Marshal(speechRequest{
		Model:          oc.model,
		Input:          text,
		Voice:          oc.voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oc.baseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+oc.apiKey)

	resp, err := oc.client.Do(req)
	if err != nil {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("openai request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(oc.Name(), resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("empty audio in response"))
	}

	return &provider.Synthesis{
		Audio:       body,
		ContentType: "audio/mpeg",
	}, nil
}
