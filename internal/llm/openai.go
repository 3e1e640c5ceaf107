package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultClassificationConfidence is assigned when the model's JSON
	// omits an explicit confidence field.
	DefaultClassificationConfidence = 0.85

	// classifyTemperature keeps classification decisions consistent.
	classifyTemperature = 0.2

	// historyWindow bounds how many prior turns are sent as context.
	historyWindow = 6
)

// ProviderConfig configures the OpenAI-compatible chat provider.
type ProviderConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIProvider implements Provider against any OpenAI-compatible
// chat-completions endpoint (OpenAI, OpenRouter, local gateways).
type OpenAIProvider struct {
	config ProviderConfig
	client *http.Client
}

// NewOpenAIProvider creates the chat provider.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai" }

// Classify labels text for the given task kind by prompting the chat model
// and parsing the JSON object in its reply.
func (p *OpenAIProvider) Classify(ctx context.Context, req *ClassifyRequest) (*Classification, error) {
	template := TemplateFor(req.Kind)
	if template == "" {
		return nil, fmt.Errorf("no prompt template for task kind %q", req.Kind)
	}

	vars := map[string]string{
		"user_input":     req.Text,
		"recent_context": historyContext(req.History),
	}
	for k, v := range req.Vars {
		vars[k] = v
	}

	content, err := p.chat(ctx, Render(template, vars), classifyTemperature)
	if err != nil {
		return nil, err
	}

	return parseClassification(req.Kind, content)
}

// Generate renders a prompt template and returns the model's reply.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	prompt := Render(req.Template, req.Vars)
	temperature := p.config.Temperature
	if req.Strict {
		prompt = "Respond conservatively. Include explicit safety caveats where relevant and avoid any content that could be unsafe or irresponsible.\n\n" + prompt
		temperature = 0.2
	}
	return p.chat(ctx, prompt, temperature)
}

// chat performs one chat-completions round trip.
func (p *OpenAIProvider) chat(ctx context.Context, prompt string, temperature float64) (string, error) {
	if p.config.Endpoint == "" {
		return "", ErrUnavailable
	}

	chatReq := chatCompletionRequest{
		Model:       p.config.Model,
		Temperature: temperature,
		MaxTokens:   p.config.MaxTokens,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return "", fmt.Errorf("chat error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// historyContext flattens the bounded history window into prompt context.
func historyContext(history []Turn) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var sb strings.Builder
	for _, turn := range history {
		content := turn.Content
		if len(content) > 150 {
			content = content[:150]
		}
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseClassification maps a raw model reply onto a Classification for the
// given task kind.
func parseClassification(kind TaskKind, content string) (*Classification, error) {
	raw := ExtractJSON(content)
	if raw == "" {
		// Query-kind prompts reply with a bare category word.
		if kind == TaskQueryKind {
			word := strings.ToLower(strings.TrimSpace(content))
			if word != "" {
				return &Classification{Label: firstWord(word), Confidence: DefaultClassificationConfidence}, nil
			}
		}
		return nil, fmt.Errorf("no JSON object in classifier response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("parse classifier JSON: %w", err)
	}

	c := &Classification{
		Confidence: DefaultClassificationConfidence,
		Fields:     make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		c.Fields[k] = stringify(v)
	}
	if conf, ok := fields["confidence"].(float64); ok {
		c.Confidence = conf
	}
	if rationale, ok := fields["rationale"].(string); ok {
		c.Rationale = rationale
	} else if explanation, ok := fields["explanation"].(string); ok {
		c.Rationale = explanation
	}

	switch kind {
	case TaskIntent:
		if label, ok := fields["intent"].(string); ok {
			c.Label = strings.ToLower(strings.TrimSpace(label))
		}
	case TaskExtraction:
		c.Label = "extraction"
	case TaskSafetyInput, TaskSafetyOutput:
		if safe, ok := fields["is_safe"].(bool); ok && safe {
			c.Label = "safe"
		} else {
			c.Label = "unsafe"
		}
	case TaskDestination:
		if sensitive, ok := fields["is_sensitive"].(bool); ok && sensitive {
			c.Label = "sensitive"
		} else {
			c.Label = "not_sensitive"
		}
	case TaskQueryKind:
		if label, ok := fields["category"].(string); ok {
			c.Label = strings.ToLower(strings.TrimSpace(label))
		}
	}

	if c.Label == "" {
		return nil, fmt.Errorf("classifier response missing label for kind %q", kind)
	}
	return c, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return strings.Trim(fields[0], ".,:")
	}
	return s
}

// chatCompletionRequest is the wire request for /chat/completions.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}
