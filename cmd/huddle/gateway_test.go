package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anatolykoptev/huddle/internal/bus"
	"github.com/anatolykoptev/huddle/internal/chat"
	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/provider"
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/session"
	"github.com/anatolykoptev/huddle/internal/stream"
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

func newTestGateway(t *testing.T, p provider.Provider) (*gateway, *bus.Bus) {
	t.Helper()
	e := chat.New(chat.Options{
		Provider:  p,
		Registry:  toolreg.NewRegistry(),
		Store:     conversation.NewMemory(),
		Sessions:  session.NewManager(time.Hour),
		StepDelay: time.Millisecond,
	})
	b := bus.New(10)
	t.Cleanup(b.Close)
	return newGateway(e, b), b
}

func nextOutbound(t *testing.T, b *bus.Bus) bus.Outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message")
	}
	return out
}

func inbound(text string) bus.Inbound {
	return bus.Inbound{Channel: bus.ChannelTelegram, ChatID: "42", SenderID: "7", Text: text}
}

func TestCommand(t *testing.T) {
	cases := []struct {
		in, cmd, rest string
	}{
		{"/start", "/start", ""},
		{"/buy@huddle_bot AAPL 1 2", "/buy", "AAPL 1 2"},
		{"/RESET", "/reset", ""},
		{"hello there", "", "hello there"},
	}
	for _, tc := range cases {
		cmd, rest := command(tc.in)
		if cmd != tc.cmd || rest != tc.rest {
			t.Errorf("command(%q) = %q, %q; want %q, %q", tc.in, cmd, rest, tc.cmd, tc.rest)
		}
	}
}

func TestParsePurchase(t *testing.T) {
	p, err := parsePurchase("aapl $150.25 10")
	if err != nil {
		t.Fatal(err)
	}
	if p.Symbol != "AAPL" || p.Price != 150.25 || p.Amount != 10 {
		t.Errorf("purchase = %+v", p)
	}
	for _, bad := range []string{"", "AAPL 1", "AAPL x 1", "AAPL 1 y", "AAPL 0 1", "AAPL 1 -2"} {
		if _, err := parsePurchase(bad); !errors.Is(err, chat.ErrInvalidPurchase) {
			t.Errorf("parsePurchase(%q) err = %v", bad, err)
		}
	}
}

func TestHandle_MessageReply(t *testing.T) {
	g, b := newTestGateway(t, replyProvider{reply: "Hello **there**"})
	g.handle(context.Background(), inbound("hi"))

	out := nextOutbound(t, b)
	if out.ChatID != "42" || out.Channel != bus.ChannelTelegram {
		t.Errorf("outbound = %+v", out)
	}
	if out.Text != "Hello **there**" {
		t.Errorf("Text = %q", out.Text)
	}
	if !strings.Contains(out.HTML, "<b>there</b>") {
		t.Errorf("HTML = %q", out.HTML)
	}
	if out.Plain != "Hello there" {
		t.Errorf("Plain = %q", out.Plain)
	}

	st, err := g.engine.Store().Get(context.Background(), "telegram-42")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 2 {
		t.Errorf("messages = %+v", st.Messages)
	}
}

func TestHandle_Commands(t *testing.T) {
	g, b := newTestGateway(t, replyProvider{reply: "ok"})
	ctx := context.Background()

	g.handle(ctx, inbound("/start"))
	if out := nextOutbound(t, b); out.Text != greeting {
		t.Errorf("start = %q", out.Text)
	}

	g.handle(ctx, inbound("/buy nope"))
	if out := nextOutbound(t, b); out.Text != buyUsage {
		t.Errorf("bad buy = %q", out.Text)
	}

	g.handle(ctx, inbound("/buy aapl 10 3"))
	if out := nextOutbound(t, b); !strings.Contains(out.Text, "You have purchased 3 shares of AAPL") {
		t.Errorf("buy = %q", out.Text)
	}

	g.handle(ctx, inbound("/reset"))
	if out := nextOutbound(t, b); out.Text != "Chat cleared." {
		t.Errorf("reset = %q", out.Text)
	}
	if _, err := g.engine.Store().Get(ctx, "telegram-42"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("chat survived reset: %v", err)
	}

	g.handle(ctx, inbound("/reset"))
	if out := nextOutbound(t, b); out.Text != "Chat cleared." {
		t.Errorf("second reset = %q", out.Text)
	}
}

func TestHandle_EmptyMessageEndsTurn(t *testing.T) {
	g, b := newTestGateway(t, replyProvider{reply: "unused"})
	g.handle(context.Background(), inbound("   "))
	out := nextOutbound(t, b)
	if out.ChatID != "42" || out.Text != "" || out.HTML != "" {
		t.Errorf("outbound = %+v, want an empty turn end", out)
	}
}

func TestGateway_FullLaneDoesNotBlockOtherChats(t *testing.T) {
	g, b := newTestGateway(t, replyProvider{reply: "pong"})
	busy := bus.Inbound{Channel: bus.ChannelTelegram, ChatID: "1", Text: "queued"}

	// A lane whose worker is running and whose backlog is full.
	g.mu.Lock()
	for range bus.DefaultBuffer {
		g.lanes[chatKey(busy)] = append(g.lanes[chatKey(busy)], busy)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.enqueue(context.Background(), busy)
		g.enqueue(context.Background(), inbound("hi"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full lane")
	}

	if out := nextOutbound(t, b); out.ChatID != "1" || out.Text != busyReply {
		t.Errorf("full lane reply = %+v", out)
	}
	if out := nextOutbound(t, b); out.ChatID != "42" || out.Text != "pong" {
		t.Errorf("other chat reply = %+v", out)
	}
	g.wg.Wait()
}

func TestHandle_ModelFailure(t *testing.T) {
	g, b := newTestGateway(t, replyProvider{err: errors.New("model down")})
	g.handle(context.Background(), inbound("hi"))
	out := nextOutbound(t, b)
	if !strings.Contains(out.Text, "unavailable right now") || strings.Contains(out.Text, "model down") {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestGateway_RunProcessesInOrder(t *testing.T) {
	g, b := newTestGateway(t, replyProvider{reply: "pong"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.run(ctx)
		close(done)
	}()

	b.PublishInbound(inbound("one"))
	b.PublishInbound(inbound("two"))
	for range 2 {
		if out := nextOutbound(t, b); out.Text != "pong" {
			t.Errorf("Text = %q", out.Text)
		}
	}
	cancel()
	<-done

	st, err := g.engine.Store().Get(context.Background(), "telegram-42")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 4 || st.Messages[0].Content != "one" || st.Messages[2].Content != "two" {
		t.Errorf("messages = %+v", st.Messages)
	}
}

func TestPrintTurn(t *testing.T) {
	final := []stream.Event{
		{Fragment: render.New("f1", render.Text{Content: "Hello"})},
	}
	turn := chat.Turn{ChatID: "c1"}

	var text bytes.Buffer
	if err := printTurn(&text, outputText, turn, final, nil); err != nil {
		t.Fatal(err)
	}
	if text.String() != "Hello\n" {
		t.Errorf("text = %q", text.String())
	}

	var js bytes.Buffer
	if err := printTurn(&js, outputJSON, turn, final, nil); err != nil {
		t.Fatal(err)
	}
	var decoded turnOutput
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ChatID != "c1" || len(decoded.Fragments) != 1 || decoded.Fragments[0].Kind != render.KindText {
		t.Errorf("json = %+v", decoded)
	}

	var ym bytes.Buffer
	turnErr := errors.New("late failure")
	if err := printTurn(&ym, outputYAML, turn, final, turnErr); !errors.Is(err, turnErr) {
		t.Errorf("err = %v", err)
	}
	var fromYAML turnOutput
	if err := yaml.Unmarshal(ym.Bytes(), &fromYAML); err != nil {
		t.Fatal(err)
	}
	if fromYAML.Error != "late failure" || fromYAML.Fragments[0].Markdown != "Hello" {
		t.Errorf("yaml = %+v", fromYAML)
	}
}

func TestCheckOutput(t *testing.T) {
	if err := checkOutput("xml"); err == nil {
		t.Error("xml accepted")
	}
	if err := checkOutput(outputYAML); err != nil {
		t.Error(err)
	}
}
