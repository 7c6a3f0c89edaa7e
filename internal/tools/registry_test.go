package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(nil)
	err := r.Register(Spec{
		Name:        "echo",
		Description: "echoes its message argument",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
			"required":   []any{"message"},
		},
	}, func(_ context.Context, _ *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
		msg, _ := args["message"].(string)
		return msg, map[string]any{"echoed": msg}, nil
	})
	require.NoError(t, err)
	return r
}

func newTestRunCtx() *runctx.Context {
	return runctx.New(project.New(nil), runctx.BasePayload{})
}

func TestInvokeAppendsStartedThenCompleted(t *testing.T) {
	r := newTestRegistry(t)
	rc := newTestRunCtx()

	result := r.Invoke(context.Background(), rc, "echo", map[string]any{"message": "hi"})
	require.NoError(t, result.Err)
	assert.Equal(t, "hi", result.Summary)

	events, _ := rc.EventsFrom(0)
	require.Len(t, events, 2)
	assert.Equal(t, runctx.ToolEventStarted, events[0].Phase)
	assert.Equal(t, runctx.ToolEventCompleted, events[1].Phase)
	assert.Equal(t, "hi", events[1].OutputData["echoed"])
}

func TestInvokeRejectsInvalidArguments(t *testing.T) {
	r := newTestRegistry(t)
	rc := newTestRunCtx()

	result := r.Invoke(context.Background(), rc, "echo", map[string]any{})
	require.Error(t, result.Err)
	assert.Contains(t, result.Summary, "invalid arguments")

	events, _ := rc.EventsFrom(0)
	require.Len(t, events, 2)
	assert.Equal(t, runctx.ToolEventCompleted, events[1].Phase)
}

func TestInvokeUnknownToolReportsError(t *testing.T) {
	r := New(nil)
	rc := newTestRunCtx()

	result := r.Invoke(context.Background(), rc, "nonexistent", map[string]any{})
	require.Error(t, result.Err)
	assert.Contains(t, result.Summary, "unknown tool")
}

func TestDefinitionsReturnsEveryRegisteredTool(t *testing.T) {
	r := newTestRegistry(t)
	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
}
