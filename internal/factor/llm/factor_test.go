package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func fakeBackend(t *testing.T, label string, reply string) *modelBackend {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: reply}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	clientCfg := openai.DefaultConfig("test-key")
	clientCfg.BaseURL = srv.URL + "/v1"
	breaker, err := NewCircuitBreaker(DefaultCircuitBreakerConfig(), nil, NewCircuitBreakerMetrics(label))
	if err != nil {
		t.Fatalf("constructing circuit breaker: %v", err)
	}
	return &modelBackend{client: openai.NewClientWithConfig(clientCfg), model: "gpt-test", breaker: breaker}
}

func TestInferDeniesUnlistedLabel(t *testing.T) {
	state := &InstanceState{allowed: map[string]bool{}, backends: map[string]*modelBackend{}}
	if _, err := state.Infer(t.Context(), "gpt", "hello"); err == nil {
		t.Fatalf("expected Infer to deny a model label not in this component's allow-list")
	} else if ierr, ok := err.(*Error); !ok || ierr.Kind != AccessDenied {
		t.Fatalf("expected an AccessDenied *Error, got %#v", err)
	}
}

func TestInferUnconfiguredLabelErrors(t *testing.T) {
	state := &InstanceState{allowed: map[string]bool{"gpt": true}, backends: map[string]*modelBackend{}}
	if _, err := state.Infer(t.Context(), "gpt", "hello"); err == nil {
		t.Fatalf("expected Infer to error for an allowed label with no backend configured")
	} else if ierr, ok := err.(*Error); !ok || ierr.Kind != NoSuchModel {
		t.Fatalf("expected a NoSuchModel *Error, got %#v", err)
	}
}

func TestInferReturnsCompletionFromBackend(t *testing.T) {
	backend := fakeBackend(t, "gpt", "hello from the model")
	state := &InstanceState{
		allowed:  map[string]bool{"gpt": true},
		backends: map[string]*modelBackend{"gpt": backend},
	}

	got, err := state.Infer(t.Context(), "gpt", "hi")
	if err != nil {
		t.Fatalf("unexpected error from Infer: %v", err)
	}
	if got != "hello from the model" {
		t.Fatalf("expected the backend's completion content, got %q", got)
	}
}
