// Package tools implements the Tool Registry (C4): a static catalog of
// agent-callable tools with typed, JSON-Schema-validated arguments. Each
// handler follows the four-step contract from spec.md §4.2: append
// started, perform the effect, append completed, return a short string to
// the agent. The Spec/Handler split mirrors the teacher's tagged-variant
// tool dispatch (runtime/agent/tools.ToolSpec) without reflection.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/telemetry"
)

// Spec describes one agent-callable tool: its name, the JSON Schema its
// arguments must satisfy, and the compiled schema used to validate calls
// before the handler runs.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any

	compiled *jsonschema.Schema
}

// Handler performs a tool's effect. It receives the already-validated
// arguments and does not append started/completed events itself: Invoke
// does that on its behalf, so a handler only implements the effect and
// returns the agent-facing summary plus an optional output_data map for the
// completed event.
type Handler func(ctx context.Context, rc *runctx.Context, toolID string, args map[string]any) (summary string, outputData map[string]any, err error)

// Registry is the static catalog of tools available to the agent in a run.
type Registry struct {
	specs    map[string]Spec
	handlers map[string]Handler
	logger   telemetry.Logger
}

// New builds an empty Registry. Use Register to populate it; see
// BuildDefault for the full catalog spec.md §4.2 enumerates.
func New(logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Registry{specs: map[string]Spec{}, handlers: map[string]Handler{}, logger: logger}
}

// Register adds a tool to the catalog, compiling its JSON Schema eagerly so
// malformed schemas fail at startup rather than on first call.
func (r *Registry) Register(spec Spec, handler Handler) error {
	compiled, err := compileSchema(spec.Name, spec.InputSchema)
	if err != nil {
		return fmt.Errorf("register tool %s: %w", spec.Name, err)
	}
	spec.compiled = compiled
	r.specs[spec.Name] = spec
	r.handlers[spec.Name] = handler
	return nil
}

// Definitions returns every registered tool's name/description/schema, for
// handing to the Model Gateway Client as the Request.Tools field.
func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, ToolDefinition{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	return out
}

// ToolDefinition mirrors model.ToolDefinition without importing the model
// package, avoiding an import cycle (the Orchestrator adapts between the
// two).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// InvokeResult is the outcome of a single tool call, ready for the
// Orchestrator to translate into progress events.
type InvokeResult struct {
	ToolID     string
	Summary    string
	OutputData map[string]any
	Err        error
}

// Invoke runs the named tool: it allocates a tool ID, appends the started
// event, validates arguments against the compiled schema, runs the
// handler, and appends the completed event. A schema validation failure or
// handler error is reported on the completed event's output_data rather
// than propagated, per spec.md §7 ("tool-level errors are never fatal").
func (r *Registry) Invoke(ctx context.Context, rc *runctx.Context, name string, args map[string]any) InvokeResult {
	toolID := rc.AllocateToolID()
	rc.AppendEvent(runctx.ToolEvent{
		Phase:     runctx.ToolEventStarted,
		ToolID:    toolID,
		Name:      name,
		Arguments: args,
	})

	spec, ok := r.specs[name]
	if !ok {
		return r.completeWithError(rc, toolID, name, fmt.Sprintf("unknown tool: %s", name))
	}

	if err := validate(spec.compiled, args); err != nil {
		r.logger.Warn(ctx, "tool argument validation failed", "tool", name, "tool_id", toolID, "error", err.Error())
		return r.completeWithError(rc, toolID, name, fmt.Sprintf("invalid arguments: %v", err))
	}

	handler := r.handlers[name]
	summary, outputData, err := handler(ctx, rc, toolID, args)
	if err != nil {
		r.logger.Info(ctx, "tool handler returned error", "tool", name, "tool_id", toolID, "error", err.Error())
		if outputData == nil {
			outputData = map[string]any{}
		}
		outputData["error"] = err.Error()
		summary = outputData["error"].(string)
	}

	rc.AppendEvent(runctx.ToolEvent{
		Phase:      runctx.ToolEventCompleted,
		ToolID:     toolID,
		Name:       name,
		OutputData: outputData,
	})

	return InvokeResult{ToolID: toolID, Summary: summary, OutputData: outputData, Err: err}
}

func (r *Registry) completeWithError(rc *runctx.Context, toolID, name, message string) InvokeResult {
	outputData := map[string]any{"error": message}
	rc.AppendEvent(runctx.ToolEvent{
		Phase:      runctx.ToolEventCompleted,
		ToolID:     toolID,
		Name:       name,
		OutputData: outputData,
	})
	return InvokeResult{ToolID: toolID, Summary: message, OutputData: outputData, Err: fmt.Errorf("%s", message)}
}

// AppendLog appends a log event for an in-flight tool call, used by the
// Sandbox Session Manager's log pump to stream subprocess output tagged to
// the sandbox_run tool call that spawned it.
func AppendLog(rc *runctx.Context, toolID, name, data string) {
	rc.AppendEvent(runctx.ToolEvent{Phase: runctx.ToolEventLog, ToolID: toolID, Name: name, Data: data})
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytesReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	resourceURL := "mem://" + name + ".json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(resourceURL)
}

func validate(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	// jsonschema validates against decoded JSON values (map[string]any,
	// []any, float64, ...), which is exactly the shape tool arguments
	// arrive in after being decoded from the model gateway's JSON payload.
	return schema.Validate(args)
}
