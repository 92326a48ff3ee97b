package toolreg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/anatolykoptev/huddle/internal/metrics"
	"github.com/anatolykoptev/huddle/internal/provider"
	"github.com/anatolykoptev/huddle/internal/render"
)

// ErrUnknownTool is returned for a function name no tool is registered under.
var ErrUnknownTool = errors.New("unknown tool")

// Result is what a tool hands back to the turn handler.
type Result struct {
	// Content is committed verbatim as the function message and is sent back
	// to the model on later turns. It must be JSON.
	Content string
	View    render.View
}

// Tool is the interface that all model-callable functions implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema object
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Replayer is implemented by tools that can redraw a committed result
// without refetching. arguments is the raw JSON the model called with.
type Replayer interface {
	Replay(arguments, content string) (render.View, error)
}

// ArgumentError reports model arguments that are not valid JSON or do not
// match the tool's parameter schema.
type ArgumentError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds all registered tools.
type Registry struct {
	tools map[string]entry
	mu    sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool, compiling its parameter schema. A later registration
// under the same name replaces the earlier one.
func (r *Registry) Register(t Tool) error {
	schema, err := compile(t.Name(), t.Parameters())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = entry{tool: t, schema: schema}
	return nil
}

func compile(name string, params map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s parameters: %w", name, err)
	}
	url := "https://huddle.invalid/tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return s, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Decode parses raw JSON arguments and validates them against the tool's
// schema. Empty input is treated as {}.
func (r *Registry) Decode(name, raw string) (map[string]any, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &ArgumentError{Tool: name, Reason: "arguments are not valid JSON", Err: err}
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, &ArgumentError{Tool: name, Reason: leafMessage(err), Err: err}
	}
	args, ok := doc.(map[string]any)
	if !ok {
		return nil, &ArgumentError{Tool: name, Reason: "arguments must be an object"}
	}
	return args, nil
}

// leafMessage digs out the most specific schema violation.
func leafMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}

// Execute validates raw arguments and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name, raw string) (res *Result, err error) {
	defer func() {
		metrics.ToolCalls.WithLabelValues(r.metricLabel(name), metrics.Outcome(err)).Inc()
	}()
	args, err := r.Decode(name, raw)
	if err != nil {
		return nil, err
	}
	t, _ := r.Get(name)
	return t.Execute(ctx, args)
}

// UnknownToolLabel is the metric label for names the model made up.
const UnknownToolLabel = "unknown"

// metricLabel keeps tool label values bounded by the registered set.
func (r *Registry) metricLabel(name string) string {
	if _, ok := r.Get(name); ok {
		return name
	}
	return UnknownToolLabel
}

// Replay redraws a committed function result. ok is false when the tool is
// unknown or cannot replay.
func (r *Registry) Replay(name, arguments, content string) (v render.View, ok bool, err error) {
	t, found := r.Get(name)
	if !found {
		return nil, false, nil
	}
	rp, can := t.(Replayer)
	if !can {
		return nil, false, nil
	}
	v, err = rp.Replay(arguments, content)
	return v, true, err
}

// List returns all tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToLLMTools converts all registered tools to OpenAI-compatible tool
// definitions, ordered by name.
func (r *Registry) ToLLMTools() []provider.ToolDefinition {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]provider.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name].tool
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
