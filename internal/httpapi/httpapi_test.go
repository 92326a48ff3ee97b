package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anatolykoptev/huddle/internal/chat"
	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/provider"
	"github.com/anatolykoptev/huddle/internal/session"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

type replyProvider struct {
	reply string
	err   error
}

func (p replyProvider) Chat(_ context.Context, _ []provider.Message, _ []provider.ToolDefinition, onDelta provider.DeltaFunc) (*provider.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	if onDelta != nil {
		onDelta(p.reply)
	}
	return &provider.Response{Content: p.reply, FinishReason: "stop"}, nil
}

func newServer(t *testing.T, p provider.Provider) (*httptest.Server, *chat.Engine) {
	t.Helper()
	e := chat.New(chat.Options{
		Provider:  p,
		Registry:  toolreg.NewRegistry(),
		Store:     conversation.NewMemory(),
		Sessions:  session.NewManager(time.Hour),
		StepDelay: time.Millisecond,
	})
	srv := httptest.NewServer(NewRouter(Options{Engine: e, Version: "test"}))
	t.Cleanup(srv.Close)
	return srv, e
}

func createChat(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/chats", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var body struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ChatID == "" {
		t.Fatal("empty chat_id")
	}
	return body.ChatID
}

// readEvents returns the event names of an SSE body in order, plus the body.
func readEvents(t *testing.T, resp *http.Response) ([]string, string) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, line := range strings.Split(string(raw), "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names, string(raw)
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, replyProvider{reply: "hi"})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newServer(t, replyProvider{reply: "hi"})
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestPostMessage_StreamsAndPersists(t *testing.T) {
	srv, _ := newServer(t, replyProvider{reply: "Hello there"})
	id := createChat(t, srv)

	resp, err := http.Post(srv.URL+"/api/chats/"+id+"/messages", "application/json", strings.NewReader(`{"content":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	names, raw := readEvents(t, resp)
	if len(names) < 2 || names[0] != "fragment" || names[len(names)-1] != "done" {
		t.Fatalf("events = %v\n%s", names, raw)
	}
	if !strings.Contains(raw, "Hello there") {
		t.Errorf("stream missing reply:\n%s", raw)
	}

	get, err := http.Get(srv.URL + "/api/chats/" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	var chatBody struct {
		ChatID    string                 `json:"chat_id"`
		Title     string                 `json:"title"`
		Messages  []conversation.Message `json:"messages"`
		Fragments []map[string]any       `json:"fragments"`
	}
	if err := json.NewDecoder(get.Body).Decode(&chatBody); err != nil {
		t.Fatal(err)
	}
	if chatBody.ChatID != id || chatBody.Title != "hi" {
		t.Errorf("chat = %+v", chatBody)
	}
	if len(chatBody.Messages) != 2 || len(chatBody.Fragments) != 2 {
		t.Fatalf("messages = %d fragments = %d", len(chatBody.Messages), len(chatBody.Fragments))
	}
	if chatBody.Fragments[1]["markdown"] != "Hello there" {
		t.Errorf("fragment = %v", chatBody.Fragments[1])
	}
}

func TestPostMessage_ModelFailureEndsWithError(t *testing.T) {
	srv, e := newServer(t, replyProvider{err: errors.New("boom")})
	id := createChat(t, srv)

	resp, err := http.Post(srv.URL+"/api/chats/"+id+"/messages", "application/json", strings.NewReader(`{"content":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	names, raw := readEvents(t, resp)
	if len(names) == 0 || names[len(names)-1] != "error" {
		t.Fatalf("events = %v\n%s", names, raw)
	}
	st, err := e.Store().Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range st.Messages {
		if m.Role == conversation.RoleAssistant {
			t.Errorf("assistant message committed after failure: %+v", m)
		}
	}
}

func TestPostMessage_BadRequests(t *testing.T) {
	srv, _ := newServer(t, replyProvider{reply: "hi"})
	id := createChat(t, srv)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"invalid json", "/api/chats/" + id + "/messages", `{`, http.StatusBadRequest},
		{"unknown field", "/api/chats/" + id + "/messages", `{"text":"hi"}`, http.StatusBadRequest},
		{"unknown chat", "/api/chats/nope/messages", `{"content":"hi"}`, http.StatusNotFound},
		{"bad purchase", "/api/chats/" + id + "/purchase", `{"symbol":"AAPL","price":0,"amount":1}`, http.StatusBadRequest},
		{"purchase unknown chat", "/api/chats/nope/purchase", `{"symbol":"AAPL","price":1,"amount":1}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tc.path, "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestPostMessage_EmptyContentIsBadRequest(t *testing.T) {
	srv, e := newServer(t, replyProvider{reply: "hi"})
	id := createChat(t, srv)

	for _, body := range []string{`{"content":"   "}`, `{}`} {
		resp, err := http.Post(srv.URL+"/api/chats/"+id+"/messages", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest || errBody["error"] != "empty_message" {
			t.Errorf("body %s: status = %d, error = %q", body, resp.StatusCode, errBody["error"])
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("body %s: content type = %q", body, ct)
		}
	}

	st, err := e.Store().Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 0 {
		t.Errorf("messages = %+v", st.Messages)
	}
}

func TestPostPurchase(t *testing.T) {
	srv, e := newServer(t, replyProvider{reply: "hi"})
	id := createChat(t, srv)

	resp, err := http.Post(srv.URL+"/api/chats/"+id+"/purchase", "application/json",
		strings.NewReader(`{"symbol":"aapl","price":150.5,"amount":10}`))
	if err != nil {
		t.Fatal(err)
	}
	names, raw := readEvents(t, resp)
	if names[len(names)-1] != "done" {
		t.Fatalf("events = %v\n%s", names, raw)
	}
	if !strings.Contains(raw, "You have purchased 10 shares of AAPL") {
		t.Errorf("stream missing note:\n%s", raw)
	}
	st, err := e.Store().Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 2 || st.Messages[0].Name != chat.FunctionStockPurchase {
		t.Errorf("messages = %+v", st.Messages)
	}
}

func TestDeleteChat(t *testing.T) {
	srv, _ := newServer(t, replyProvider{reply: "hi"})
	id := createChat(t, srv)

	del := func() int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/chats/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if got := del(); got != http.StatusNoContent {
		t.Errorf("first delete = %d", got)
	}
	if got := del(); got != http.StatusNotFound {
		t.Errorf("second delete = %d", got)
	}
	resp, err := http.Get(srv.URL + "/api/chats/" + id)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d", resp.StatusCode)
	}
}
