// Package tools exposes the fantasy tools over MCP. Calls go through the
// same registry the chat engine uses, so arguments are validated against the
// same schemas.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/huddle/internal/fantasy"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

// RegisterAll adds every fantasy tool in registry to server.
func RegisterAll(server *mcp.Server, registry *toolreg.Registry) {
	register[UserInfoInput](server, registry, fantasy.ToolUserInfo)
	register[UserLeaguesInput](server, registry, fantasy.ToolUserLeagues)
	register[LeagueInput](server, registry, fantasy.ToolLeagueDetails)
	register[RosterInput](server, registry, fantasy.ToolRoster)
}

// NewServer builds an MCP server carrying the fantasy tools.
func NewServer(name, version string, registry *toolreg.Registry) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	RegisterAll(server, registry)
	return server
}

func register[In any](server *mcp.Server, registry *toolreg.Registry, name string) {
	t, ok := registry.Get(name)
	if !ok {
		return
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        name,
		Description: t.Description(),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Output, error) {
		out, err := Call(ctx, registry, name, input)
		if err != nil {
			return nil, Output{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out.Text}},
		}, out, nil
	})
}

// Call runs one tool outside any chat. Owner lookups made by the call land
// in a throw-away index.
func Call(ctx context.Context, registry *toolreg.Registry, name string, input any) (Output, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return Output{}, fmt.Errorf("encode %s input: %w", name, err)
	}
	res, err := registry.Execute(ctx, name, string(raw))
	if err != nil {
		return Output{}, err
	}
	out := Output{Data: res.Content}
	if res.View != nil {
		out.Text = res.View.Markdown()
	}
	if out.Text == "" {
		out.Text = res.Content
	}
	return out, nil
}

// HTTPHandler serves server over streamable HTTP.
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}
