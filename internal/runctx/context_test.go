package runctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideagent/backend/internal/project"
)

func TestAllocateToolIDIncrements(t *testing.T) {
	c := New(project.New(nil), BasePayload{})
	assert.Equal(t, "tc_1", c.AllocateToolID())
	assert.Equal(t, "tc_2", c.AllocateToolID())
}

func TestRequestDeferTransitionsPhase(t *testing.T) {
	c := New(project.New(nil), BasePayload{})
	assert.False(t, c.IsDeferRequested())
	assert.Equal(t, PhaseRunning, c.Phase)

	c.RequestDefer()
	assert.True(t, c.IsDeferRequested())
	assert.Equal(t, PhaseDeferred, c.Phase)
}

func TestNewResumedCarriesExecResult(t *testing.T) {
	c := NewResumed(project.New(nil), BasePayload{}, "exit code 0")
	result, ok := c.ExecResult()
	require.True(t, ok)
	assert.Equal(t, "exit code 0", result)
	assert.Equal(t, PhaseResumed, c.Phase)
}

func TestExecResultDistinguishesEmptyFromUnset(t *testing.T) {
	fresh := New(project.New(nil), BasePayload{})
	_, ok := fresh.ExecResult()
	assert.False(t, ok)

	resumed := NewResumed(project.New(nil), BasePayload{}, "")
	result, ok := resumed.ExecResult()
	assert.True(t, ok)
	assert.Empty(t, result)
}

func TestEventsFromDrainsIncrementally(t *testing.T) {
	c := New(project.New(nil), BasePayload{})
	c.AppendEvent(ToolEvent{Phase: ToolEventStarted, ToolID: "tc_1", Name: "think"})
	c.AppendEvent(ToolEvent{Phase: ToolEventCompleted, ToolID: "tc_1", Name: "think"})

	first, next := c.EventsFrom(0)
	require.Len(t, first, 2)
	assert.Equal(t, 2, next)

	more, next2 := c.EventsFrom(next)
	assert.Empty(t, more)
	assert.Equal(t, 2, next2)

	c.AppendEvent(ToolEvent{Phase: ToolEventStarted, ToolID: "tc_2", Name: "edit_code"})
	tail, next3 := c.EventsFrom(next2)
	require.Len(t, tail, 1)
	assert.Equal(t, "tc_2", tail[0].ToolID)
	assert.Equal(t, 3, next3)
}

func TestResolveSandboxNameDefaultsAndRemembersActive(t *testing.T) {
	c := New(project.New(nil), BasePayload{})
	assert.Equal(t, "default", c.ResolveSandboxName(""))

	c.SetActiveSandbox("build")
	assert.Equal(t, "build", c.ResolveSandboxName(""))
	assert.Equal(t, "other", c.ResolveSandboxName("other"))
}

func TestClearSandboxResetsActive(t *testing.T) {
	c := New(project.New(nil), BasePayload{})
	c.SandboxTable("build")
	c.SetActiveSandbox("build")

	c.ClearSandbox("build")
	assert.Equal(t, "default", c.ResolveSandboxName(""))
}
