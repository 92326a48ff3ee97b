package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/anatolykoptev/huddle/internal/metrics"
)

// OpenAI is an OpenAI-compatible streaming provider.
type OpenAI struct {
	name   string
	model  string
	client *openai.Client
}

// Options configures one OpenAI-compatible endpoint.
type Options struct {
	Name    string // metrics label, "primary" or "fallback"
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewOpenAI creates a provider for the given endpoint.
func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	switch {
	case opts.HTTPClient != nil:
		cfg.HTTPClient = opts.HTTPClient
	case opts.Timeout > 0:
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	name := opts.Name
	if name == "" {
		name = "primary"
	}
	return &OpenAI{
		name:   name,
		model:  opts.Model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Chat streams a chat completion. Text deltas go to onDelta; tool calls are
// assembled from their fragments and returned whole.
func (o *OpenAI) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, onDelta DeltaFunc) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		metrics.LLMRequests.WithLabelValues(o.name, metrics.Outcome(err)).Inc()
		if err != nil {
			slog.Error("LLM request failed",
				slog.String("provider", o.name),
				slog.String("model", o.model),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err))
		}
	}()

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fromOpenAIError(o.name, err)
	}
	defer stream.Close()

	var (
		content strings.Builder
		calls   = map[int]*ToolCall{}
		finish  string
	)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, fromOpenAIError(o.name, recvErr)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}
		if d := choice.Delta.Content; d != "" {
			content.WriteString(d)
			if onDelta != nil {
				onDelta(d)
			}
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &ToolCall{}
				calls[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
	}

	out := &Response{Content: content.String(), FinishReason: finish}
	idxs := make([]int, 0, len(calls))
	for i := range calls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		out.ToolCalls = append(out.ToolCalls, *calls[i])
	}

	slog.Debug("LLM response",
		slog.String("provider", o.name),
		slog.String("model", o.model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("content_len", len(out.Content)),
		slog.Int("tool_calls", len(out.ToolCalls)))
	return out, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return out
}
