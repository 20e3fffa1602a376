package translate

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

// OpenAIClient translates through the chat completions endpoint with a
// fixed instruction prompt. Useful as a fallback when the dedicated
// translation APIs are down.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// chatMessage is a single conversation turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the chat completions response we read.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// chatChoice wraps the generated message.
type chatChoice struct {
	Message chatMessage `json:"message"`
}

// langNames maps ISO-639-1 codes to English names for the prompt.
// Unknown codes are passed through verbatim.
var langNames = map[string]string{
	"en": "English",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
	"nl": "Dutch",
	"pt": "Portuguese",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
}

// NewOpenAIClient creates a chat-based translation client.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (oc *OpenAIClient) Name() string { return "openai" }

// Translate prompts the model to emit only the translated text.
// Temperature is pinned low so repeated requests stay consistent.
func (oc *OpenAIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (*provider.Translation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidInput(oc.Name(), "empty text")
	}

	system := fmt.Sprintf(
		"You are a translation engine. Translate the user's text from %s to %s. Respond with only the translated text, no explanations and no quotes.",
		langName(sourceLang), langName(targetLang),
	)
	payload, err := json.Marshal(chatRequest{
		Model: oc.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oc.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
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

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return nil, provider.Failure(oc.Name(), fmt.Errorf("empty choices in response"))
	}

	return &provider.Translation{
		Text:           strings.TrimSpace(result.Choices[0].Message.Content),
		DetectedSource: sourceLang,
	}, nil
}

// langName resolves a code to its English name for the prompt.
func langName(code string) string {
	if name, ok := langNames[code]; ok {
		return name
	}
	return code
}
