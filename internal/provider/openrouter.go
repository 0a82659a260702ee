// Package provider translates assembled payloads into model-provider
// wire calls. OpenRouter speaks the OpenAI chat-completions dialect, so
// one invoker covers every model routed through it.
package provider

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

	"github.com/rs/zerolog/log"

	"github.com/patternforge/patternforge/pkg/models"
)

// Invoker sends an assembled payload to a model and returns the raw
// response text.
type Invoker interface {
	Invoke(ctx context.Context, payload *models.Payload) (*Response, error)
}

// Response is the provider-neutral result of one model invocation.
type Response struct {
	Content string     `json:"content"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
}

// TokenUsage reports token accounting when the provider supplies it.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Error carries the provider's HTTP status and message body.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: status %d: %s", e.Status, e.Message)
}

const defaultEndpoint = "https://openrouter.ai/api/v1"

// OpenRouter invokes models through the OpenRouter chat-completions API.
type OpenRouter struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewOpenRouter creates an invoker. endpoint may be empty for the public
// API; timeout bounds each invocation on top of the request context.
func NewOpenRouter(endpoint, apiKey string, timeout time.Duration) *OpenRouter {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OpenRouter{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or multimodal content parts
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Invoke implements Invoker.
func (o *OpenRouter) Invoke(ctx context.Context, payload *models.Payload) (*Response, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openrouter: api key not configured")
	}
	cfg := payload.ModelConfig
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("openrouter: payload for %s names no model", payload.PatternID)
	}

	body, err := json.Marshal(o.buildRequest(payload))
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	url := o.endpoint + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Status: resp.StatusCode, Message: "response contains no choices"}
	}

	log.Debug().
		Str("pattern", payload.PatternID).
		Str("model", parsed.Model).
		Int64("tokens", parsed.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Model invocation complete")

	return &Response{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}

// buildRequest maps the payload onto the chat-completions shape. Custom
// parameters land on the top-level request object, letting patterns set
// provider knobs the engine does not model.
func (o *OpenRouter) buildRequest(payload *models.Payload) map[string]any {
	cfg := payload.ModelConfig

	messages := []chatMessage{{
		Role:    "system",
		Content: strings.Join(payload.Instructions, "\n\n"),
	}}
	for _, turn := range payload.History {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	// A payload whose history does not already end with the user's turn
	// still needs one; one-shot runs carry their request entirely in the
	// instruction blocks.
	if len(payload.History) == 0 || payload.History[len(payload.History)-1].Role != models.RoleUser {
		messages = append(messages, chatMessage{Role: "user", Content: "Proceed as instructed."})
	}
	if len(payload.Attachments) > 0 {
		messages[len(messages)-1] = withAttachments(messages[len(messages)-1], payload.Attachments)
	}

	req := map[string]any{
		"model":    cfg.ModelName,
		"messages": messages,
	}
	if cfg.Temperature != nil {
		req["temperature"] = *cfg.Temperature
	}
	if cfg.MaxTokens != nil {
		req["max_tokens"] = *cfg.MaxTokens
	}
	if len(cfg.StopSequences) > 0 {
		req["stop"] = cfg.StopSequences
	}
	for k, v := range cfg.CustomParameters {
		req[k] = v
	}
	return req
}

// withAttachments rewrites a plain-text message into multimodal content
// parts carrying the attachments.
func withAttachments(msg chatMessage, attachments []models.Attachment) chatMessage {
	text, _ := msg.Content.(string)
	parts := []map[string]any{{"type": "text", "text": text}}

	for _, att := range attachments {
		switch att.Kind {
		case models.MediaImage:
			url := att.URL
			if url == "" {
				url = fmt.Sprintf("data:%s;base64,%s", att.MIMEType,
					base64.StdEncoding.EncodeToString(att.Data))
			}
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": url},
			})
		case models.MediaPDF:
			data := att.URL
			if data == "" {
				data = fmt.Sprintf("data:%s;base64,%s", att.MIMEType,
					base64.StdEncoding.EncodeToString(att.Data))
			}
			parts = append(parts, map[string]any{
				"type": "file",
				"file": map[string]any{"filename": att.Name, "file_data": data},
			})
		}
	}
	return chatMessage{Role: msg.Role, Content: parts}
}
