// Package runctx implements the per-run Run Context (C5): the project, the
// ordered tool-event log, sandbox tables, and the defer/resume state machine
// described in spec.md §3 and §9 ("Deferred control flow is modeled as a
// state machine on the RunContext").
package runctx

import (
	"fmt"
	"sync"

	"github.com/ideagent/backend/internal/project"
)

// Phase is the run's position in the Running -> Deferred -> Resumed ->
// Running state machine (spec.md §9).
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhaseDeferred Phase = "deferred"
	PhaseResumed  Phase = "resumed"
)

// ToolEventPhase is one of the three ToolEvent phases from spec.md §3.
type ToolEventPhase string

const (
	ToolEventStarted   ToolEventPhase = "started"
	ToolEventCompleted ToolEventPhase = "completed"
	ToolEventLog       ToolEventPhase = "log"
)

// ToolEvent is one entry in the run's ordered event log.
type ToolEvent struct {
	Phase      ToolEventPhase
	ToolID     string
	Name       string
	Arguments  map[string]any `json:"arguments,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	Data       string         `json:"data,omitempty"`
}

// SandboxTable holds the per-sandbox-name state RunContext owns, as
// enumerated in spec.md §3.
type SandboxTable struct {
	SandboxID       string
	Runtime         string
	ExposedPorts    []int
	Env             map[string]string
	CurrentFileList []string
	CurrentFileMeta map[string]string // path -> "mtime size"
}

// BasePayload carries the original request fields needed to mint a fresh
// resume token, per spec.md §3's RunContext description.
type BasePayload struct {
	UserID         string
	Query          string
	Model          string
	MessageHistory []Message
}

// Message is one turn of prior conversation, rendered into the "Previous
// conversation" prompt block (spec.md §4.4).
type Message struct {
	Role    string
	Content string
}

// Context is the per-run state owned for the lifetime of one stream. It is
// created when a run (or resume) starts and discarded when the stream
// terminates; it is never shared across runs.
type Context struct {
	mu sync.Mutex

	Project *project.Project

	events []ToolEvent

	// execResult is unset until a resume supplies it. An empty string is a
	// valid resume result (spec.md §9 Open Questions) and is distinguished
	// from "not yet resumed" via execResultSet.
	execResult    string
	execResultSet bool

	DeferRequested bool
	Phase          Phase
	Base           BasePayload

	sandboxes      map[string]*SandboxTable
	activeSandbox  string

	nextToolSeq int
}

// New creates a fresh Run Context for a run starting from scratch.
func New(proj *project.Project, base BasePayload) *Context {
	return &Context{
		Project:   proj,
		Phase:     PhaseRunning,
		Base:      base,
		sandboxes: make(map[string]*SandboxTable),
	}
}

// NewResumed creates a Run Context for a resumed run, with ExecResult
// already set from the client-supplied execution result.
func NewResumed(proj *project.Project, base BasePayload, execResult string) *Context {
	c := New(proj, base)
	c.Phase = PhaseResumed
	c.execResult = execResult
	c.execResultSet = true
	return c
}

// ExecResult returns the resume execution result and whether one has been
// set. The zero value ("", false) means this run has not been resumed.
func (c *Context) ExecResult() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execResult, c.execResultSet
}

// AllocateToolID returns the next tc_<N> identifier, where N is the 1-based
// index into the event log at allocation time (spec.md §3). N never repeats:
// if no event was appended since the previous allocation, N is one more than
// the previous N.
func (c *Context) AllocateToolID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.events) + 1
	if n <= c.nextToolSeq {
		n = c.nextToolSeq + 1
	}
	c.nextToolSeq = n
	return fmt.Sprintf("tc_%d", n)
}

// AppendEvent appends one event to the ordered log and returns its index.
// Each tool call has a single writer for its own started/completed events
// (the tool handler) and a single writer for its own log events (the log
// pump); AppendEvent itself is safe for concurrent callers because those
// writers never touch the same ToolID concurrently, but the log slice is
// still guarded by the mutex to protect the concurrent event-pump reader.
func (c *Context) AppendEvent(evt ToolEvent) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return len(c.events) - 1
}

// EventsFrom returns a copy of every event appended at or after index from,
// and the new length, for the Orchestrator's 50ms event pump to drain.
func (c *Context) EventsFrom(from int) ([]ToolEvent, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if from >= len(c.events) {
		return nil, len(c.events)
	}
	out := make([]ToolEvent, len(c.events)-from)
	copy(out, c.events[from:])
	return out, len(c.events)
}

// RequestDefer flips the defer_requested flag, entering the Deferred phase.
func (c *Context) RequestDefer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeferRequested = true
	c.Phase = PhaseDeferred
}

// IsDeferRequested reports whether a defer point has been reached.
func (c *Context) IsDeferRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DeferRequested
}

// --- Sandbox tables ---

// ResolveSandboxName resolves an optional requested name to the run's
// active sandbox, or "default" if none is active (spec.md §4.3 "Naming").
func (c *Context) ResolveSandboxName(requested string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if requested != "" {
		return requested
	}
	if c.activeSandbox != "" {
		return c.activeSandbox
	}
	return "default"
}

// SandboxTable returns (creating if necessary) the table for name.
func (c *Context) SandboxTable(name string) *SandboxTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.sandboxes[name]
	if !ok {
		t = &SandboxTable{Env: map[string]string{}, CurrentFileMeta: map[string]string{}}
		c.sandboxes[name] = t
	}
	return t
}

// SetActiveSandbox marks name as the run's active sandbox.
func (c *Context) SetActiveSandbox(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeSandbox = name
}

// ClearSandbox drops name's table, clearing active_sandbox if it pointed at
// the one being stopped.
func (c *Context) ClearSandbox(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sandboxes, name)
	if c.activeSandbox == name {
		c.activeSandbox = ""
	}
}
