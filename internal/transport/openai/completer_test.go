package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// chatCompletionResponse mirrors the OpenAI-compatible chat completion response.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func chatResponse(text string, totalTokens int) chatCompletionResponse {
	resp := chatCompletionResponse{ID: "chatcmpl-1", Object: "chat.completion", Model: "test-model"}
	resp.Choices = append(resp.Choices, struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}{FinishReason: "stop"})
	resp.Choices[0].Message.Role = "assistant"
	resp.Choices[0].Message.Content = text
	resp.Usage.TotalTokens = totalTokens
	return resp
}

func newCompleterForServer(serverURL string) *Completer {
	return NewCompleter(map[domain.Provider]Endpoint{
		domain.ProviderOpenAI: {BaseURL: serverURL, Model: "test-model"},
	}, zap.NewNop())
}

func TestCompleter_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("the answer", 57))
	}))
	defer server.Close()

	c := newCompleterForServer(server.URL)

	result, err := c.Complete(context.Background(), domain.ProviderOpenAI, "test-key", "the question")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Text != "the answer" {
		t.Errorf("Text = %q, want %q", result.Text, "the answer")
	}
	if !result.TokensKnown || result.TokensUsed != 57 {
		t.Errorf("usage = {%d, known=%t}, want {57, true}", result.TokensUsed, result.TokensKnown)
	}
}

func TestCompleter_CompleteTokensUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("no usage reported", 0))
	}))
	defer server.Close()

	c := newCompleterForServer(server.URL)

	result, err := c.Complete(context.Background(), domain.ProviderOpenAI, "test-key", "hi")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.TokensKnown {
		t.Error("TokensKnown = true with zero-usage response, want false")
	}
}

func TestCompleter_CompleteProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "insufficient_quota: billing hard limit reached", "type": "insufficient_quota"}}`))
	}))
	defer server.Close()

	c := newCompleterForServer(server.URL)

	_, err := c.Complete(context.Background(), domain.ProviderOpenAI, "test-key", "hi")

	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Complete error = %v, want ProviderError", err)
	}
	if perr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", perr.StatusCode)
	}
	if !perr.QuotaExhausted() {
		t.Error("QuotaExhausted() = false for a 429, want true")
	}
}

func TestCompleter_UnknownProvider(t *testing.T) {
	c := newCompleterForServer("http://localhost:1")

	_, err := c.Complete(context.Background(), domain.ProviderGitHub, "key", "hi")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Complete error = %v, want ErrNotFound", err)
	}
}
