// Package orchestrator implements the Run Orchestrator (C7): it builds the
// LLM input from a project and query, drives the agent turn loop against the
// Model Gateway Client, pumps the Run Context's tool-event log into a
// progress stream at a fixed cadence, and implements the defer/resume state
// machine from spec.md §4.4 and §9. Grounded on the teacher's
// runtime/agent/engine/inmem loop, generalized from Temporal-style durable
// workflow replay to a single cooperative goroutine per run (spec.md §5
// explicitly rules out server-side persistence of the agent's stack).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ideagent/backend/internal/model"
	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/stream"
	"github.com/ideagent/backend/internal/telemetry"
	"github.com/ideagent/backend/internal/token"
	"github.com/ideagent/backend/internal/tools"
)

const (
	maxTurns      = 50
	pumpInterval  = 50 * time.Millisecond
	execResultCap = 100 * 1024

	toolRequestCodeExecution = "request_code_execution"
)

const guidanceFooter = `
You are an agentic coding assistant operating on the project above. Use the
provided tools to inspect and mutate the project and, when you need to
observe the effect of code, call request_code_execution rather than guessing
at output. Make one tool call per turn, wait for its result, and keep going
until the task is complete. When you are done, reply with a final plain-text
answer and no further tool calls.`

// Orchestrator drives one run (or resume) to completion, emitting progress
// events to a Sink as it goes.
type Orchestrator struct {
	model    model.Client
	registry *tools.Registry
	signer   *token.Signer
	logger   telemetry.Logger
}

// New builds an Orchestrator wired to a Model Gateway Client, the Tool
// Registry, and the resume-token signer used to mint fresh tokens on defer.
func New(modelClient model.Client, registry *tools.Registry, signer *token.Signer, logger telemetry.Logger) *Orchestrator {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Orchestrator{model: modelClient, registry: registry, signer: signer, logger: logger}
}

// Run drives a fresh or resumed run to completion against sink, returning
// once the agent produces a final output, defers, or fails. taskID is the
// stream's identifier, used to stamp every emitted Event. Send errors
// (client disconnect) are swallowed: spec.md §7 treats StreamBroken as "pump
// stops; no user-visible error", so the agent task simply runs to
// completion with its output silently dropped.
func (o *Orchestrator) Run(ctx context.Context, taskID string, rc *runctx.Context, sink stream.Sink) {
	stopPump := make(chan struct{})
	pumpFinished := make(chan struct{})
	go o.pumpEvents(ctx, taskID, rc, sink, stopPump, pumpFinished)

	output, err := o.runAgent(ctx, rc)

	close(stopPump)
	<-pumpFinished

	if rc.IsDeferRequested() {
		// The agent exits promptly after a defer; no final output is ever
		// emitted for a deferred run (spec.md §4.4 "Defer/Resume").
		return
	}

	if err != nil {
		sink.Send(stream.New(stream.EventRunLog, taskID, map[string]any{"message": fmt.Sprintf("Exception: %v", shortTrace(err))}))
		sink.Send(stream.NewError(stream.EventRunFailed, taskID, err.Error()))
		return
	}
	if strings.TrimSpace(output) == "" {
		sink.Send(stream.New(stream.EventRunLog, taskID, map[string]any{"message": "No final_output produced"}))
		sink.Send(stream.NewError(stream.EventRunFailed, taskID, "no final output produced"))
		return
	}
	sink.Send(stream.New(stream.EventAgentOutput, taskID, map[string]any{"output": output}))
}

// pumpEvents drains rc's tool-event log every 50ms and translates each entry
// into a progress event, stopping once stopPump is closed and a final
// drain has run (spec.md §5 "The Orchestrator's event pump polls at 50 ms").
func (o *Orchestrator) pumpEvents(ctx context.Context, taskID string, rc *runctx.Context, sink stream.Sink, stopPump <-chan struct{}, pumpFinished chan<- struct{}) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	defer close(pumpFinished)
	from := 0

	drain := func() {
		events, next := rc.EventsFrom(from)
		from = next
		for _, evt := range events {
			o.emit(taskID, rc, sink, evt)
		}
	}

	for {
		select {
		case <-ticker.C:
			drain()
		case <-stopPump:
			drain()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) emit(taskID string, rc *runctx.Context, sink stream.Sink, evt runctx.ToolEvent) {
	switch evt.Phase {
	case runctx.ToolEventStarted:
		sink.Send(stream.New(stream.EventToolActionStarted, taskID, map[string]any{
			"tool_id": evt.ToolID, "name": evt.Name, "arguments": evt.Arguments,
		}))
	case runctx.ToolEventLog:
		sink.Send(stream.New(stream.EventToolActionLog, taskID, map[string]any{
			"tool_id": evt.ToolID, "name": evt.Name, "data": evt.Data,
		}))
	case runctx.ToolEventCompleted:
		outputData := evt.OutputData
		if evt.Name == toolRequestCodeExecution {
			outputData = o.withResumeToken(rc, outputData)
		}
		sink.Send(stream.New(stream.EventToolActionCompleted, taskID, map[string]any{
			"tool_id": evt.ToolID, "name": evt.Name, "output_data": outputData,
		}))
	}
}

// withResumeToken mints a fresh resume token carrying the run's current
// project state and embeds it as output_data.resume_token, per spec.md
// §4.4's description of the request_code_execution completed event.
func (o *Orchestrator) withResumeToken(rc *runctx.Context, outputData map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range outputData {
		out[k] = v
	}
	history := make([]token.HistoryMessage, len(rc.Base.MessageHistory))
	for i, m := range rc.Base.MessageHistory {
		history[i] = token.HistoryMessage{Role: m.Role, Content: m.Content}
	}
	payload := token.RunPayload{
		UserID:         rc.Base.UserID,
		Query:          rc.Base.Query,
		Project:        rc.Project.Files(),
		MessageHistory: history,
		Model:          rc.Base.Model,
	}
	signed, err := o.signer.Sign(payload)
	if err != nil {
		o.logger.Error(context.Background(), "failed to sign resume token", "error", err.Error())
		return out
	}
	out["resume_token"] = signed
	return out
}

// runAgent runs the turn loop against the model gateway, invoking tools
// through the Registry until the agent stops calling tools, a defer is
// requested, or max_turns is exhausted.
func (o *Orchestrator) runAgent(ctx context.Context, rc *runctx.Context) (string, error) {
	messages := []model.Message{
		{Role: "system", Content: buildSystemPrompt(rc)},
		{Role: "user", Content: rc.Base.Query},
	}
	defs := o.registry.Definitions()
	toolDefs := make([]model.ToolDefinition, len(defs))
	for i, d := range defs {
		toolDefs[i] = model.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := o.model.Complete(ctx, model.Request{
			Model:    rc.Base.Model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return "", fmt.Errorf("model gateway: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, model.Message{Role: "assistant", Content: resp.Content})
		for _, call := range resp.ToolCalls {
			result := o.registry.Invoke(ctx, rc, call.Name, call.Payload)
			messages = append(messages, model.Message{Role: "tool", Content: result.Summary})
			if call.Name == toolRequestCodeExecution && rc.IsDeferRequested() {
				return "", nil
			}
		}
	}
	return "", fmt.Errorf("agent exceeded max_turns (%d)", maxTurns)
}

// buildSystemPrompt concatenates the deterministic project rendering, the
// query's previous-conversation block, and the guidance footer, per spec.md
// §4.4 "Input construction".
func buildSystemPrompt(rc *runctx.Context) string {
	var b strings.Builder
	ignored := project.BuildIgnorePredicate(rc.Project)
	b.WriteString(rc.Project.RenderPrompt(func(p string) bool { return !ignored(p) }))

	if len(rc.Base.MessageHistory) > 0 {
		b.WriteString("\nPrevious conversation:\n")
		for _, m := range rc.Base.MessageHistory {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
		}
	}

	b.WriteString(guidanceFooter)
	return b.String()
}

// PrepareResume truncates an incoming execution result to the trailing
// 100KiB before it is handed to runctx.NewResumed, per spec.md §4.4.
func PrepareResume(execResult string) string {
	if len(execResult) <= execResultCap {
		return execResult
	}
	return execResult[len(execResult)-execResultCap:]
}

func shortTrace(err error) string {
	msg := err.Error()
	lines := strings.Split(msg, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	return strings.Join(lines, "\n")
}
