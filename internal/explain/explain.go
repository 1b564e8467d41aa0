// Package explain asks a remote generative model for a natural-language
// explanation of a credit profile.
package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned when the endpoint settings are incomplete.
	// It is raised before any network call.
	ErrNotConfigured = errors.New("explanation endpoint not configured")

	// ErrInvocationFailed covers transport errors, non-2xx responses and timeouts.
	ErrInvocationFailed = errors.New("explanation invocation failed")

	// ErrEmptyResponse is returned when the model answered without any text.
	ErrEmptyResponse = errors.New("explanation response contained no text")
)

// AnthropicVersion is the protocol tag sent with every Bedrock request.
const AnthropicVersion = "bedrock-2023-05-31"

// Request is a single prompt sent to the model.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature *float64
}

// Explainer produces explanation text for a prompt.
type Explainer interface {
	Explain(ctx context.Context, req Request) (string, error)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type envelope struct {
	AnthropicVersion string    `json:"anthropic_version"`
	Messages         []message `json:"messages"`
	System           string    `json:"system,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      *float64  `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type response struct {
	Content []contentBlock `json:"content"`
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(envelope{
		AnthropicVersion: AnthropicVersion,
		Messages:         []message{{Role: "user", Content: req.Prompt}},
		System:           req.System,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
	})
}

// decodeResponse returns the first text block that is not blank.
func decodeResponse(body []byte) (string, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrInvocationFailed, err)
	}
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		if text := strings.TrimSpace(block.Text); text != "" {
			return text, nil
		}
	}
	return "", ErrEmptyResponse
}
