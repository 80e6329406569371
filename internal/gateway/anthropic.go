package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicOptions configures the AI completer.
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicCompleter implements Completer against the Anthropic messages API.
type AnthropicCompleter struct {
	httpClient *http.Client
	apiKey     string
	model      string
	maxTokens  int
}

// NewAnthropicCompleter builds the AI gateway.
func NewAnthropicCompleter(opts AnthropicOptions) *AnthropicCompleter {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &AnthropicCompleter{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     opts.APIKey,
		model:      opts.Model,
		maxTokens:  maxTokens,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete returns free text for prompt.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []anthropicMessage{{Role: "user", Content: prompt}}
	return a.call(ctx, system, messages)
}

// CompleteJSON asks for a JSON object and decodes it into out. The response
// is prefilled with "{" so the model continues the object instead of
// prefacing it with prose.
func (a *AnthropicCompleter) CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error {
	messages := []anthropicMessage{
		{Role: "user", Content: prompt + "\n\nRespond with a single JSON object and nothing else."},
		{Role: "assistant", Content: "{"},
	}
	text, err := a.call(ctx, system, messages)
	if err != nil {
		return err
	}
	raw := "{" + text
	// tolerate trailing prose after the object
	if end := lastBalancedBrace(raw); end > 0 {
		raw = raw[:end]
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode AI response: %w", err)
	}
	return nil
}

func (a *AnthropicCompleter) call(ctx context.Context, system string, messages []anthropicMessage) (string, error) {
	reqBody := anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    system,
		Messages:  messages,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode AI request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("failed to build AI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("AI request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded anthropicResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode AI response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return "", fmt.Errorf("AI returned %d: %s: %s", resp.StatusCode, decoded.Error.Type, decoded.Error.Message)
		}
		return "", fmt.Errorf("AI returned %d", resp.StatusCode)
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("AI returned empty response")
	}
	return text, nil
}

// lastBalancedBrace returns the index just past the brace that closes the
// object opened at position 0, or -1 if the object never closes.
func lastBalancedBrace(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			depth++
		case r == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
