// Package stream implements the Progress Event codec and SSE framing
// described in spec.md §4.5 and §6: a push-based progress channel where
// each event is written as a single framed JSON object.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventType enumerates the progress-event taxonomy from spec.md §6.
type EventType string

const (
	EventRunLog             EventType = "run_log"
	EventRunFailed          EventType = "run_failed"
	EventAgentOutput        EventType = "agent_output"
	EventToolActionStarted  EventType = "progress_update_tool_action_started"
	EventToolActionCompleted EventType = "progress_update_tool_action_completed"
	EventToolActionLog      EventType = "progress_update_tool_action_log"

	EventPlayStarted EventType = "play_started"
	EventPlaySandbox EventType = "play_sandbox"
	EventPlayLog     EventType = "play_log"
	EventPlayPreview EventType = "play_preview"
	EventPlayComplete EventType = "play_complete"
	EventPlayFailed  EventType = "play_failed"
)

// Event is the wire format for one progress update.
type Event struct {
	EventType EventType      `json:"event_type"`
	TaskID    string         `json:"task_id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// New builds an Event stamped with the current time in ISO-8601 UTC.
func New(eventType EventType, taskID string, data map[string]any) Event {
	return Event{
		EventType: eventType,
		TaskID:    taskID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// NewError builds a failure Event carrying an error string.
func NewError(eventType EventType, taskID, errMsg string) Event {
	e := New(eventType, taskID, nil)
	e.Error = errMsg
	return e
}

// Sink is anything that can accept progress events, decoupling the
// Orchestrator and Sandbox Manager from the concrete HTTP writer.
type Sink interface {
	Send(e Event) error
}

// SSEWriter frames events as "data: <json>\n\n" over an http.ResponseWriter,
// flushing after each write so the client observes events as they occur
// (spec.md §4.5 "Wire format").
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for event-stream output: sets the headers spec.md
// §6 requires on every streaming endpoint, and returns a Sink.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Send writes one framed event and flushes immediately. A write error
// (client disconnect) is returned so the caller can stop the pump without
// surfacing a user-visible error (spec.md §7 "StreamBroken").
func (s *SSEWriter) Send(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
