package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OpenAICompatProvider implements the chat-completions shape shared by
// Groq and OpenRouter (and, generically, any other OpenAI-API-compatible
// endpoint an operator points it at via config).
type OpenAICompatProvider struct {
	ProviderName string
	BaseURL      string
	APIKey       string
	Model        string
	HTTPClient   *http.Client
}

// NewGroqProvider returns the priority-2 fallback from §4.9.
func NewGroqProvider(apiKey string) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		ProviderName: "groq",
		BaseURL:      "https://api.groq.com/openai/v1/chat/completions",
		APIKey:       apiKey,
		Model:        "llama-3.3-70b-versatile",
		HTTPClient:   http.DefaultClient,
	}
}

// NewOpenRouterProvider returns the priority-3 fallback from §4.9.
func NewOpenRouterProvider(apiKey string) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		ProviderName: "openrouter",
		BaseURL:      "https://openrouter.ai/api/v1/chat/completions",
		APIKey:       apiKey,
		Model:        "deepseek/deepseek-r1",
		HTTPClient:   http.DefaultClient,
	}
}

func (p *OpenAICompatProvider) Name() string     { return p.ProviderName }
func (p *OpenAICompatProvider) Configured() bool { return p.APIKey != "" }

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAICompatProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if !p.Configured() {
		return Response{}, ErrNoAPIKey
	}

	ctx, cancel := callWithTimeout(ctx, DefaultTimeout)
	defer cancel()

	body := chatCompletionRequest{
		Model:       p.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("%s: marshal request: %w", p.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%s: build request: %w", p.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%s: read response: %w", p.Name(), err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("%s: decode response: %w", p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return Response{}, &httpStatusError{provider: p.Name(), status: resp.StatusCode, body: msg}
	}

	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: empty response", p.Name())
	}

	return Response{
		Provider: p.Name(),
		Model:    p.Model,
		RawText:  parsed.Choices[0].Message.Content,
	}, nil
}
