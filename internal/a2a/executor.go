// Package a2a serves the chat engine over the A2A protocol. Each A2A
// context is one chat.
package a2a

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
)

// MessageProcessor runs one turn in chatID and returns its Markdown.
type MessageProcessor interface {
	Process(ctx context.Context, chatID, message string) (string, error)
}

// Executor implements a2asrv.AgentExecutor on top of a MessageProcessor.
type Executor struct {
	proc MessageProcessor
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

func NewExecutor(proc MessageProcessor) *Executor {
	return &Executor{proc: proc}
}

// Execute runs the message text as one turn in the chat named by the
// request's context id.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	content := extractText(reqCtx.Message)
	if content == "" {
		return writeFinal(ctx, queue, reqCtx, a2a.TaskStateFailed, "empty message")
	}

	if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)); err != nil {
		return fmt.Errorf("write working status: %w", err)
	}

	response, err := e.proc.Process(ctx, reqCtx.ContextID, content)
	if err != nil {
		slog.Warn("a2a turn failed", slog.String("context_id", reqCtx.ContextID), slog.Any("error", err))
		text := response
		if text == "" {
			text = err.Error()
		}
		return writeFinal(ctx, queue, reqCtx, a2a.TaskStateFailed, text)
	}
	return writeFinal(ctx, queue, reqCtx, a2a.TaskStateCompleted, response)
}

// Cancel writes a canceled status event.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func writeFinal(ctx context.Context, queue eventqueue.Queue, reqCtx *a2asrv.RequestContext, state a2a.TaskState, text string) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, state,
		a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: text}))
	event.Final = true
	return queue.Write(ctx, event)
}

func extractText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var parts []string
	for _, p := range msg.Parts {
		if tp, ok := p.(a2a.TextPart); ok {
			parts = append(parts, tp.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
