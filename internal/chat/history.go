package chat

import (
	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/provider"
)

// toProvider turns the stored history into a model request. A function
// message becomes the assistant tool call that produced it followed by the
// tool result; the result content is passed through unchanged.
func toProvider(prompt string, history []conversation.Message) []provider.Message {
	out := make([]provider.Message, 0, len(history)+1)
	out = append(out, provider.Message{Role: provider.RoleSystem, Content: prompt})

	for _, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			out = append(out, provider.Message{Role: provider.RoleUser, Content: m.Content})
		case conversation.RoleAssistant:
			out = append(out, provider.Message{Role: provider.RoleAssistant, Content: m.Content})
		case conversation.RoleSystem:
			out = append(out, provider.Message{Role: provider.RoleSystem, Content: m.Content})
		case conversation.RoleFunction:
			id := callID(m)
			args := m.Arguments
			if args == "" {
				args = "{}"
			}
			out = append(out,
				provider.Message{
					Role:      provider.RoleAssistant,
					ToolCalls: []provider.ToolCall{{ID: id, Name: m.Name, Arguments: args}},
				},
				provider.Message{
					Role:       provider.RoleTool,
					Content:    m.Content,
					ToolCallID: id,
				},
			)
		}
	}
	return out
}

// callID is the id pairing a tool call with its result. Messages written
// without one get a stable id derived from the message id.
func callID(m conversation.Message) string {
	if m.ToolCallID != "" {
		return m.ToolCallID
	}
	return "call_" + m.ID
}
