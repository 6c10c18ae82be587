package convogen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ──────────────────────────────────────────────
// Language Model Gateway — opaque text completion
// ──────────────────────────────────────────────

// Params tunes a single generation call.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Gateway is the opaque text-completion collaborator. Implementations
// must tolerate being asked for plain text; callers are responsible for
// extracting any structured content defensively.
type Gateway interface {
	Generate(ctx context.Context, model, prompt string, params Params) (string, error)
}

// GatewayFunc adapts a plain function to Gateway. Used pervasively in
// tests to fake the model.
type GatewayFunc func(ctx context.Context, model, prompt string, params Params) (string, error)

func (f GatewayFunc) Generate(ctx context.Context, model, prompt string, params Params) (string, error) {
	return f(ctx, model, prompt, params)
}

// HTTPGatewayConfig configures the OpenAI-compatible HTTP gateway.
type HTTPGatewayConfig struct {
	EndpointURL string        // chat-completions endpoint
	APIKey      string        // optional bearer token
	Timeout     time.Duration // per-call, default 120s
}

// DefaultHTTPGatewayConfig returns production-ready defaults pointing at
// a local OpenAI-compatible server.
func DefaultHTTPGatewayConfig() HTTPGatewayConfig {
	return HTTPGatewayConfig{
		EndpointURL: "http://localhost:11434/v1/chat/completions",
		Timeout:     120 * time.Second,
	}
}

// HTTPGateway calls any OpenAI-compatible chat-completions API.
type HTTPGateway struct {
	config HTTPGatewayConfig
	client *http.Client
	log    *logrus.Entry
}

// NewHTTPGateway creates a gateway. A nil logger discards gateway logs.
func NewHTTPGateway(config HTTPGatewayConfig, log *logrus.Entry) *HTTPGateway {
	def := DefaultHTTPGatewayConfig()
	if config.EndpointURL == "" {
		config.EndpointURL = def.EndpointURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if log == nil {
		log = discardLogger()
	}
	return &HTTPGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends one blocking completion round trip. The configured
// timeout applies on top of any caller-provided context deadline; a
// timeout surfaces as an ordinary error and is treated by the loop the
// same as any other generation failure.
func (g *HTTPGateway) Generate(ctx context.Context, model, prompt string, params Params) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", g.config.EndpointURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("endpoint returned no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	g.log.WithFields(logrus.Fields{
		"model":       model,
		"prompt_len":  len(prompt),
		"reply_len":   len(text),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("completion")

	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// discardLogger returns a logrus entry that writes nowhere.
func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
