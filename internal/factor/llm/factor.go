// Package llm implements the fermyon:spin/llm factor: per-component
// AI-model allow-list gated inference calls proxied to an OpenAI-
// compatible backend via sashabaranov/go-openai, each label's upstream
// guarded by its own CircuitBreaker so a flaky inference backend fails
// fast instead of stalling every guest that shares it.
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wasmfactors/runtime/internal/factors"
)

const Name = "llm_compute"

type ErrorKind int

const (
	AccessDenied ErrorKind = iota
	NoSuchModel
	Unavailable
)

type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// modelBackend pairs one label's OpenAI-compatible client with its
// circuit breaker.
type modelBackend struct {
	client  *openai.Client
	model   string
	breaker *CircuitBreaker
}

// AppState holds one modelBackend per configured label and the
// per-component allow-list.
type AppState struct {
	backends    map[string]*modelBackend
	allowedByID map[string]map[string]bool
}

type InstanceBuilder struct {
	allowed  map[string]bool
	backends map[string]*modelBackend
}

type InstanceState struct {
	allowed  map[string]bool
	backends map[string]*modelBackend
}

// Infer runs a completion against label's backend, subject to the
// allow-list and the label's circuit breaker.
func (s *InstanceState) Infer(ctx context.Context, label, prompt string) (string, error) {
	if !s.allowed[label] {
		return "", &Error{Kind: AccessDenied, Msg: fmt.Sprintf("ai model %q not allowed for this component", label)}
	}
	backend, ok := s.backends[label]
	if !ok {
		return "", &Error{Kind: NoSuchModel, Msg: fmt.Sprintf("ai model %q is not configured", label)}
	}

	var result string
	err := backend.breaker.Call(ctx, func(ctx context.Context) error {
		resp, err := backend.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    backend.model,
			Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("llm: empty completion response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		if err == ErrCircuitBreakerOpen {
			return "", &Error{Kind: Unavailable, Msg: err.Error()}
		}
		return "", &Error{Kind: Unavailable, Msg: err.Error()}
	}
	return result, nil
}

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	return linker.AddImport("fermyon:spin/llm@2.0.0", "infer", llmStub)
}

func llmStub() uint32 { return 0 }

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	raw, err := appCtx.RuntimeConfig(Name)
	if err != nil {
		return nil, err
	}
	cfg, _ := raw.(map[string]any)

	st := &AppState{backends: map[string]*modelBackend{}, allowedByID: map[string]map[string]bool{}}
	for label, entry := range cfg {
		entryMap, _ := entry.(map[string]any)
		apiKey, _ := entryMap["api_key"].(string)
		model, _ := entryMap["model"].(string)
		if model == "" {
			model = openai.GPT3Dot5Turbo
		}
		clientCfg := openai.DefaultConfig(apiKey)
		if baseURL, ok := entryMap["base_url"].(string); ok && baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
		breaker, err := NewCircuitBreaker(DefaultCircuitBreakerConfig(), nil, NewCircuitBreakerMetrics(label))
		if err != nil {
			return nil, err
		}
		st.backends[label] = &modelBackend{client: openai.NewClientWithConfig(clientCfg), model: model, breaker: breaker}
	}
	for _, id := range appCtx.ComponentIDs() {
		meta, ok := appCtx.ComponentMetadata(id)
		if !ok {
			continue
		}
		allowed := map[string]bool{}
		for _, label := range meta.AIModels {
			allowed[label] = true
		}
		st.allowedByID[id] = allowed
	}
	return st, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	return &InstanceBuilder{allowed: st.allowedByID[prepCtx.ComponentID()], backends: st.backends}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{allowed: b.allowed, backends: b.backends}, nil
}
