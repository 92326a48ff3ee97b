package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/huddle/internal/config"
)

// streamChunk builds one chat.completion.chunk payload.
func streamChunk(delta map[string]any, finish string) string {
	choice := map[string]any{"index": 0, "delta": delta}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "test-model",
		"choices": []any{choice},
	})
	return string(b)
}

// sseServer replays the given chunks as an OpenAI stream.
func sseServer(t *testing.T, chunks []string, inspect func(r *http.Request, body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if inspect != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode request: %v", err)
			}
			inspect(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

// openaiErrorBody returns an OpenAI-format error JSON body.
func openaiErrorBody(msg string) []byte {
	return []byte(fmt.Sprintf(`{"error":{"message":%q}}`, msg))
}

func newTestOpenAI(baseURL string) *OpenAI {
	return NewOpenAI(Options{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func configLLM(url, fallbackURL string) config.LLMConfig {
	return config.LLMConfig{URL: url, Model: "test-model", APIKey: "k", FallbackURL: fallbackURL}
}

// --- TestChat_StreamsText ---------------------------------------------------

func TestChat_StreamsText(t *testing.T) {
	srv := sseServer(t, []string{
		streamChunk(map[string]any{"role": "assistant", "content": "Hello"}, ""),
		streamChunk(map[string]any{"content": ", "}, ""),
		streamChunk(map[string]any{"content": "world!"}, ""),
		streamChunk(map[string]any{}, "stop"),
	}, func(r *http.Request, body map[string]any) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if body["stream"] != true {
			t.Errorf("stream = %v, want true", body["stream"])
		}
		if body["model"] != "test-model" {
			t.Errorf("model = %v", body["model"])
		}
	})
	defer srv.Close()

	var deltas []string
	resp, err := newTestOpenAI(srv.URL).Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "ping"}}, nil,
		func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
	if resp.Content != "Hello, world!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if strings.Join(deltas, "|") != "Hello|, |world!" {
		t.Errorf("deltas = %q", deltas)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("ToolCalls = %v, want empty", resp.ToolCalls)
	}
}

// --- TestChat_AssemblesToolCall ---------------------------------------------

func TestChat_AssemblesToolCall(t *testing.T) {
	tc := func(fields map[string]any) map[string]any {
		return map[string]any{"tool_calls": []any{fields}}
	}
	srv := sseServer(t, []string{
		streamChunk(tc(map[string]any{
			"index": 0, "id": "call_1", "type": "function",
			"function": map[string]any{"name": "getUserInfo", "arguments": ""},
		}), ""),
		streamChunk(tc(map[string]any{"index": 0, "function": map[string]any{"arguments": `{"username":`}}), ""),
		streamChunk(tc(map[string]any{"index": 0, "function": map[string]any{"arguments": `"testuser"}`}}), ""),
		streamChunk(tc(map[string]any{
			"index": 1, "id": "call_2", "type": "function",
			"function": map[string]any{"name": "getIndividualLeagueDetails", "arguments": `{"league_id":"L1"}`},
		}), ""),
		streamChunk(map[string]any{}, "tool_calls"),
	}, func(_ *http.Request, body map[string]any) {
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("tools = %v", body["tools"])
		}
		if body["tool_choice"] != "auto" {
			t.Errorf("tool_choice = %v", body["tool_choice"])
		}
	})
	defer srv.Close()

	var deltas int
	defs := []ToolDefinition{{
		Type: "function",
		Function: FunctionDefinition{
			Name:       "getUserInfo",
			Parameters: map[string]any{"type": "object"},
		},
	}}
	resp, err := newTestOpenAI(srv.URL).Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "who is testuser"}}, defs,
		func(string) { deltas++ })
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
	if deltas != 0 {
		t.Errorf("onDelta called %d times for a tool call", deltas)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("len(ToolCalls) = %d, want 2", len(resp.ToolCalls))
	}
	got := resp.ToolCalls[0]
	if got.ID != "call_1" || got.Name != "getUserInfo" || got.Arguments != `{"username":"testuser"}` {
		t.Errorf("ToolCalls[0] = %+v", got)
	}
	if resp.ToolCalls[1].Name != "getIndividualLeagueDetails" {
		t.Errorf("ToolCalls[1] = %+v", resp.ToolCalls[1])
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
}

// --- TestChat_SendsToolHistory ----------------------------------------------

// A stored function result is replayed as an assistant tool_calls message
// followed by a tool message; both must reach the wire unchanged.
func TestChat_SendsToolHistory(t *testing.T) {
	const content = `{"userInfo":{"user_id":"123"},"userLeagues":[]}`
	srv := sseServer(t, []string{streamChunk(map[string]any{"content": "ok"}, "stop")},
		func(_ *http.Request, body map[string]any) {
			msgs, _ := body["messages"].([]any)
			if len(msgs) != 4 {
				t.Errorf("messages = %v", body["messages"])
				return
			}
			asst, _ := msgs[2].(map[string]any)
			calls, _ := asst["tool_calls"].([]any)
			if asst["role"] != "assistant" || len(calls) != 1 {
				t.Errorf("assistant message = %v", asst)
			}
			tool, _ := msgs[3].(map[string]any)
			if tool["role"] != "tool" || tool["tool_call_id"] != "call_9" || tool["content"] != content {
				t.Errorf("tool message = %v", tool)
			}
		})
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "who is testuser"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_9", Name: "getUserInfo", Arguments: `{"username":"testuser"}`}}},
		{Role: RoleTool, Content: content, ToolCallID: "call_9"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
}

// --- TestChat_AuthError -----------------------------------------------------

func TestChat_AuthError(t *testing.T) {
	var hitCount atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write(openaiErrorBody("invalid api key"))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	if err == nil {
		t.Fatal("Chat() expected error, got nil")
	}

	var pe *EndpointError
	if !errors.As(err, &pe) {
		t.Fatalf("error type = %T, want *EndpointError", err)
	}
	if pe.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", pe.StatusCode)
	}
	if !pe.IsAuth() {
		t.Error("IsAuth() = false, want true")
	}
	if pe.Message != "invalid api key" {
		t.Errorf("Message = %q", pe.Message)
	}
	if n := hitCount.Load(); n != 1 {
		t.Errorf("server hit count = %d, want 1", n)
	}
}

// --- TestChat_PlainTextError ------------------------------------------------

func TestChat_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down\nmore"))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	var pe *EndpointError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v (%T), want *EndpointError", err, err)
	}
	if !pe.IsServerError() || !pe.IsTransient() {
		t.Errorf("EndpointError = %+v, want transient 5xx", pe)
	}
	if pe.Message != "upstream down" {
		t.Errorf("Message = %q", pe.Message)
	}
}

// --- TestChat_ContextCanceled -----------------------------------------------

func TestChat_ContextCanceled(t *testing.T) {
	srv := sseServer(t, nil, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestOpenAI(srv.URL).Chat(ctx, []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// --- TestFallback -----------------------------------------------------------

func TestFallback_UsedOnPrimaryError(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(openaiErrorBody("boom"))
	}))
	defer primary.Close()
	secondary := sseServer(t, []string{streamChunk(map[string]any{"content": "from fallback"}, "stop")}, nil)
	defer secondary.Close()

	p := &withFallback{primary: newTestOpenAI(primary.URL), fallback: newTestOpenAI(secondary.URL)}
	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestFallback_NotConfigured(t *testing.T) {
	p := New(configLLM("http://127.0.0.1:1", ""))
	if _, ok := p.(*OpenAI); !ok {
		t.Errorf("New() = %T, want *OpenAI without fallback", p)
	}
	p = New(configLLM("http://127.0.0.1:1", "http://127.0.0.1:2"))
	if _, ok := p.(*withFallback); !ok {
		t.Errorf("New() = %T, want *withFallback", p)
	}
}

// --- TestEndpointError_Methods ----------------------------------------------

// TestEndpointError_Methods verifies the classification helpers across
// status codes and the error codes that change their meaning.
func TestEndpointError_Methods(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		code          string
		wantAuth      bool
		wantRate      bool
		wantServer    bool
		wantTransient bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", true, false, false, false},
		{"forbidden", http.StatusForbidden, "", true, false, false, false},
		{"bad_key_as_400", http.StatusBadRequest, "invalid_api_key", true, false, false, false},
		{"throttled", http.StatusTooManyRequests, "rate_limit_exceeded", false, true, false, true},
		{"quota_exhausted", http.StatusTooManyRequests, "insufficient_quota", false, true, false, false},
		{"internal", http.StatusInternalServerError, "", false, false, true, true},
		{"bad_gateway", http.StatusBadGateway, "", false, false, true, true},
		{"unavailable", http.StatusServiceUnavailable, "", false, false, true, true},
		{"unknown_model", http.StatusNotFound, "model_not_found", false, false, false, false},
		{"bad_request", http.StatusBadRequest, "", false, false, false, false},
	}

	for _, tc := range cases {
		ee := &EndpointError{Endpoint: "primary", StatusCode: tc.status, Code: tc.code}
		t.Run(tc.name, func(t *testing.T) {
			if got := ee.IsAuth(); got != tc.wantAuth {
				t.Errorf("IsAuth() = %v, want %v", got, tc.wantAuth)
			}
			if got := ee.IsRateLimit(); got != tc.wantRate {
				t.Errorf("IsRateLimit() = %v, want %v", got, tc.wantRate)
			}
			if got := ee.IsServerError(); got != tc.wantServer {
				t.Errorf("IsServerError() = %v, want %v", got, tc.wantServer)
			}
			if got := ee.IsTransient(); got != tc.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
		})
	}
}

// --- TestErrorFromBody ------------------------------------------------------

func TestErrorFromBody(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     []byte
		wantMsg  string
		wantCode string
	}{
		{
			name:    "message_only",
			status:  http.StatusUnauthorized,
			body:    []byte(`{"error":{"message":"invalid api key"}}`),
			wantMsg: "invalid api key",
		},
		{
			name:     "string_code_wins_over_type",
			status:   http.StatusTooManyRequests,
			body:     []byte(`{"error":{"message":"You exceeded your current quota","type":"requests","code":"insufficient_quota"}}`),
			wantMsg:  "You exceeded your current quota",
			wantCode: "insufficient_quota",
		},
		{
			name:     "numeric_code_uses_type",
			status:   http.StatusBadRequest,
			body:     []byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error","code":400}}`),
			wantMsg:  "context length exceeded",
			wantCode: "invalid_request_error",
		},
		{
			name:    "plain_text_first_line",
			status:  http.StatusInternalServerError,
			body:    []byte("Internal Server Error\nsome extra details"),
			wantMsg: "Internal Server Error",
		},
		{
			name:    "long_plain_text_truncated",
			status:  http.StatusBadGateway,
			body:    []byte(strings.Repeat("x", maxErrorDetail+50)),
			wantMsg: strings.Repeat("x", maxErrorDetail) + "...",
		},
		{
			name:    "empty_body",
			status:  http.StatusBadGateway,
			body:    []byte(""),
			wantMsg: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ee := errorFromBody("fallback", tc.status, tc.body)
			if ee.StatusCode != tc.status || ee.Endpoint != "fallback" {
				t.Errorf("EndpointError = %+v, want status %d from fallback", ee, tc.status)
			}
			if ee.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", ee.Message, tc.wantMsg)
			}
			if ee.Code != tc.wantCode {
				t.Errorf("Code = %q, want %q", ee.Code, tc.wantCode)
			}
		})
	}
}

func TestEndpointError_Message(t *testing.T) {
	ee := &EndpointError{Endpoint: "primary", StatusCode: 429, Code: "insufficient_quota", Message: "out of credit"}
	want := "primary model endpoint returned HTTP 429 [insufficient_quota]: out of credit"
	if got := ee.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// --- TestChat_QuotaExhausted ------------------------------------------------

func TestChat_QuotaExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	var ee *EndpointError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v (%T), want *EndpointError", err, err)
	}
	if ee.Code != "insufficient_quota" || !ee.IsQuotaExhausted() {
		t.Errorf("EndpointError = %+v, want insufficient_quota", ee)
	}
	if ee.IsTransient() || isTransient(err) {
		t.Error("exhausted quota reported as transient")
	}
	if ee.Endpoint != "primary" {
		t.Errorf("Endpoint = %q, want primary", ee.Endpoint)
	}
}
