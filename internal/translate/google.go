package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ajirohack/echo/internal/provider"
)

const googleTranslateEndpoint = "https://translation.googleapis.com/language/translate/v2"

// GoogleClient calls the Google Cloud Translation v2 REST API with an
// API key.
type GoogleClient struct {
	apiKey string
	client *http.Client
}

// googleTranslateResponse is the JSON response from the v2 endpoint.
type googleTranslateResponse struct {
	Data googleTranslateData `json:"data"`
}

// googleTranslateData wraps the translations list.
type googleTranslateData struct {
	Translations []googleTranslation `json:"translations"`
}

// googleTranslation is a single translation entry.
type googleTranslation struct {
	TranslatedText         string `json:"translatedText"`
	DetectedSourceLanguage string `json:"detectedSourceLanguage"`
}

// NewGoogleClient creates a Google Translation client.
func NewGoogleClient(apiKey string, timeout time.Duration) *GoogleClient {
	return &GoogleClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (g *GoogleClient) Name() string { return "google" }

// Translate sends the text form-encoded. format=text keeps Google from
// HTML-escaping the result.
func (g *GoogleClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (*provider.Translation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidInput(g.Name(), "empty text")
	}

	form := url.Values{}
	form.Set("q", text)
	form.Set("target", targetLang)
	form.Set("format", "text")
	if sourceLang != "" {
		form.Set("source", sourceLang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTranslateEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("google translate request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(g.Name(), resp.StatusCode, string(body))
	}

	var result googleTranslateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("decode response: %w", err))
	}
	if len(result.Data.Translations) == 0 {
		return nil, provider.Failure(g.Name(), fmt.Errorf("empty translations in response"))
	}

	detected := strings.ToLower(result.Data.Translations[0].DetectedSourceLanguage)
	if detected == "" {
		detected = sourceLang
	}
	return &provider.Translation{
		Text:           result.Data.Translations[0].TranslatedText,
		DetectedSource: detected,
	}, nil
}
