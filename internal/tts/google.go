package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Ajirohack/echo/internal/provider"
)

const googleTTSEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

// GoogleClient calls the Google Cloud Text-to-Speech REST API with an
// API key.
type GoogleClient struct {
	apiKey string
	client *http.Client
}

// googleTTSRequest is the JSON request for text:synthesize.
type googleTTSRequest struct {
	Input       googleTTSInput       `json:"input"`
	Voice       googleTTSVoice       `json:"voice"`
	AudioConfig googleTTSAudioConfig `json:"audioConfig"`
}

type googleTTSInput struct {
	Text string `json:"text"`
}

type googleTTSVoice struct {
	LanguageCode string `json:"languageCode"`
}

type googleTTSAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

// googleTTSResponse carries base64-encoded audio.
type googleTTSResponse struct {
	AudioContent string `json:"audioContent"`
}

// voiceLocales maps ISO-639-1 codes to the BCP-47 locales Google's
// voice catalog is keyed by. Unknown codes pass through and let the
// API pick a voice by prefix match.
var voiceLocales = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
	"es": "es-ES",
	"de": "de-DE",
	"it": "it-IT",
	"nl": "nl-NL",
	"pt": "pt-PT",
	"ru": "ru-RU",
	"zh": "cmn-CN",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"ar": "ar-XA",
}

// NewGoogleClient creates a Google TTS client.
func NewGoogleClient(apiKey string, timeout time.Duration) *GoogleClient {
	return &GoogleClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (g *GoogleClient) Name() string { return "google" }

// Synthesize renders the text with the default voice for the target
// language's locale and returns decoded MP3 audio.
func (g *GoogleClient) Synthesize(ctx context.Context, text, language string) (*provider.Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidInput(g.Name(), "empty text")
	}

	payload, err := json.Marshal(googleTTSRequest{
		Input:       googleTTSInput{Text: text},
		Voice:       googleTTSVoice{LanguageCode: voiceLocale(language)},
		AudioConfig: googleTTSAudioConfig{AudioEncoding: "MP3"},
	})
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTTSEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("google tts request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(g.Name(), resp.StatusCode, string(body))
	}

	var result googleTTSResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("decode response: %w", err))
	}

	audio, err := base64.StdEncoding.DecodeString(result.AudioContent)
	if err != nil {
		return nil, provider.Failure(g.Name(), fmt.Errorf("decode audio content: %w", err))
	}
	if len(audio) == 0 {
		return nil, provider.Failure(g.Name(), fmt.Errorf("empty audio in response"))
	}

	return &provider.Synthesis{
		Audio:       audio,
		ContentType: "audio/mpeg",
	}, nil
}

// voiceLocale resolves a language code to a voice catalog locale.
func voiceLocale(code string) string {
	if locale, ok := voiceLocales[code]; ok {
		return locale
	}
	return code
}
