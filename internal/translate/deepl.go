// Package translate holds the text translation backends. Each client is
// a thin HTTP wrapper implementing provider.Translator; retries,
// deadlines, and rate limiting belong to the orchestration layer.
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

// DeepLClient calls the DeepL v2 translation API. The base URL selects
// the free or pro tier (api-free.deepl.com vs api.deepl.com).
type DeepLClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// deepLResponse is the JSON response from the DeepL translate endpoint.
type deepLResponse struct {
	Translations []deepLTranslation `json:"translations"`
}

// deepLTranslation is a single translation entry from DeepL.
type deepLTranslation struct {
	DetectedSourceLanguage string `json:"detected_source_language"`
	Text                   string `json:"text"`
}

// NewDeepLClient creates a DeepL HTTP client.
func NewDeepLClient(baseURL, apiKey string, timeout time.Duration) *DeepLClient {
	return &DeepLClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (dl *DeepLClient) Name() string { return "deepl" }

// Translate sends the text as a form-encoded request. DeepL expects
// uppercase language codes and reports the detected source the same way.
func (dl *DeepLClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (*provider.Translation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidInput(dl.Name(), "empty text")
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", strings.ToUpper(targetLang))
	if sourceLang != "" {
		form.Set("source_lang", strings.ToUpper(sourceLang))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dl.baseURL+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, provider.Failure(dl.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+dl.apiKey)

	resp, err := dl.client.Do(req)
	if err != nil {
		return nil, provider.Failure(dl.Name(), fmt.Errorf("deepl request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Failure(dl.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromStatus(dl.Name(), resp.StatusCode, string(body))
	}

	var result deepLResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(dl.Name(), fmt.Errorf("decode response: %w", err))
	}
	if len(result.Translations) == 0 {
		return nil, provider.Failure(dl.Name(), fmt.Errorf("empty translations in response"))
	}

	detected := strings.ToLower(result.Translations[0].DetectedSourceLanguage)
	if detected == "" {
		detected = sourceLang
	}
	return &provider.Translation{
		Text:           result.Translations[0].Text,
		DetectedSource: detected,
	}, nil
}
