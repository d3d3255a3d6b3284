// Package llmclient wraps the OpenAI-compatible chat endpoint per named
// model role (organizer, generator, guard, ...), grounded on the teacher's
// per-provider client resolution and response parsing
// (haivivi-giztoy/go/pkg/cortex/run_openai.go).
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kurame123/confidant/internal/config"
)

// Message is one chat turn.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// ChatRequest is a role-scoped chat completion request. A nil Temperature
// and a zero MaxTokens fall back to the role's configured defaults.
type ChatRequest struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// ChatResponse is the parsed response contract from spec.md §6.
type ChatResponse struct {
	Content          string
	ReasoningContent string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
}

type roleBinding struct {
	client  *openai.Client
	model   string
	temp    float64
	maxTok  int
	timeout time.Duration
}

// Client dispatches chat completions to the provider bound to each named
// role.
type Client struct {
	roles map[config.ModelRole]roleBinding
}

// New builds a Client from daemon configuration, resolving one *openai.Client
// per distinct provider (connections are reused across roles on the same
// provider).
func New(cfg *config.Config) (*Client, error) {
	providerClients := make(map[string]*openai.Client, len(cfg.Providers))
	for name, p := range cfg.Providers {
		opts := []option.RequestOption{option.WithAPIKey(p.APIKey)}
		if p.APIBase != "" {
			opts = append(opts, option.WithBaseURL(p.APIBase))
		}
		client := openai.NewClient(opts...)
		providerClients[name] = &client
	}

	roles := make(map[config.ModelRole]roleBinding, len(cfg.Models))
	for role, binding := range cfg.Models {
		pc, ok := providerClients[binding.Provider]
		if !ok {
			return nil, fmt.Errorf("llmclient: role %q references unresolved provider %q", role, binding.Provider)
		}
		timeout := cfg.Providers[binding.Provider].Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		roles[role] = roleBinding{
			client:  pc,
			model:   binding.Model,
			temp:    binding.Temperature,
			maxTok:  binding.MaxTokens,
			timeout: timeout,
		}
	}

	return &Client{roles: roles}, nil
}

// HasRole reports whether a role is configured (used for the optional
// knowledge-organizer role, §4.1 step 6).
func (c *Client) HasRole(role config.ModelRole) bool {
	_, ok := c.roles[role]
	return ok
}

// ChatComplete calls the chat endpoint bound to role and parses the
// response per spec.md §6: strips a leading <think>...</think> wrapper from
// the content, extracts reasoning_content when present, and reports usage.
func (c *Client) ChatComplete(ctx context.Context, role config.ModelRole, req ChatRequest) (*ChatResponse, error) {
	rb, ok := c.roles[role]
	if !ok {
		return nil, fmt.Errorf("llmclient: role %q not configured", role)
	}

	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	temp := rb.temp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTok := rb.maxTok
	if req.MaxTokens > 0 {
		maxTok = req.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:       rb.model,
		Messages:    buildMessages(req.Messages),
		Temperature: openai.Float(temp),
	}
	if maxTok > 0 {
		params.MaxTokens = openai.Int(int64(maxTok))
	}

	resp, err := rb.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmclient: %s chat completion: %w", role, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llmclient: %s chat completion: no choices returned", role)
	}

	choice := resp.Choices[0]
	content, reasoning := splitThink(choice.Message.Content)

	out := &ChatResponse{
		Content:          content,
		ReasoningContent: reasoning,
		FinishReason:     string(choice.FinishReason),
	}
	out.PromptTokens = int(resp.Usage.PromptTokens)
	out.CompletionTokens = int(resp.Usage.CompletionTokens)
	return out, nil
}

func buildMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// splitThink removes a leading "<think>...</think>" wrapper and returns
// (remaining content, reasoning trace). If no wrapper is present, reasoning
// is empty and content is returned unchanged.
func splitThink(raw string) (content, reasoning string) {
	const open, close = "<think>", "</think>"
	start := strings.Index(raw, open)
	if start != 0 {
		return strings.TrimSpace(raw), ""
	}
	end := strings.Index(raw, close)
	if end < 0 {
		return strings.TrimSpace(raw), ""
	}
	reasoning = strings.TrimSpace(raw[len(open):end])
	content = strings.TrimSpace(raw[end+len(close):])
	return content, reasoning
}
