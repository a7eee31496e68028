package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// Endpoint holds the OpenAI-compatible API settings for one provider. All
// three supported providers expose chat completions behind this API shape.
type Endpoint struct {
	BaseURL string
	Model   string
}

// Completer executes chat completions against OpenAI-compatible endpoints.
// Clients are built per call: the secret comes from credential resolution,
// not from configuration.
type Completer struct {
	endpoints map[domain.Provider]Endpoint
	logger    *zap.Logger
}

// NewCompleter creates a completion provider over the given endpoint table.
func NewCompleter(endpoints map[domain.Provider]Endpoint, logger *zap.Logger) *Completer {
	return &Completer{endpoints: endpoints, logger: logger}
}

// Complete sends one single-message chat completion with the given secret.
func (c *Completer) Complete(ctx context.Context, p domain.Provider, secret, prompt string) (domain.Completion, error) {
	ep, ok := c.endpoints[p]
	if !ok {
		return domain.Completion{}, fmt.Errorf("completion endpoint for %s: %w", p, domain.ErrNotFound)
	}

	clientCfg := openai.DefaultConfig(secret)
	clientCfg.BaseURL = ep.BaseURL
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: ep.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return domain.Completion{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return domain.Completion{}, &domain.ProviderError{
			StatusCode: http.StatusBadGateway,
			Body:       "empty completion response",
		}
	}

	totalTokens := int64(resp.Usage.TotalTokens)
	return domain.Completion{
		Text:        resp.Choices[0].Message.Content,
		TokensUsed:  totalTokens,
		TokensKnown: totalTokens > 0,
	}, nil
}

// parseAPIError converts go-openai errors into domain.ProviderError so the
// orchestrator can tell quota exhaustion from generic failures.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := extractDetail(reqErr.Body)
		if body == "" {
			body = string(reqErr.Body)
		}
		return &domain.ProviderError{StatusCode: reqErr.HTTPStatusCode, Body: body}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	return &domain.ProviderError{StatusCode: 0, Body: err.Error()}
}

// extractDetail extracts the "detail" field from a JSON error body, used by
// some OpenAI-compatible gateways instead of the standard error envelope.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
