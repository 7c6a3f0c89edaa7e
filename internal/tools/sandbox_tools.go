package tools

import (
	"context"
	"fmt"

	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/sandbox"
)

func logSinkFor(rc *runctx.Context, toolID, name string) sandbox.LogSink {
	return func(line string) {
		AppendLog(rc, toolID, name, line)
	}
}

func intsArg(args map[string]any, key string) []int {
	raw, _ := args[key].([]any)
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out
}

func strMapArg(args map[string]any, key string) map[string]string {
	raw, _ := args[key].(map[string]any)
	out := map[string]string{}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func strsArg(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// --- sandbox_create ---

func sandboxCreateSpec() Spec {
	return Spec{
		Name:        "sandbox_create",
		Description: "Create (or recreate) a named ephemeral sandbox and sync the project into it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":       map[string]any{"type": "string"},
				"runtime":    map[string]any{"type": "string"},
				"ports":      map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				"timeout_ms": map[string]any{"type": "integer"},
			},
		},
	}
}

func sandboxCreateHandler(mgr *sandbox.Manager) Handler {
	return func(ctx context.Context, rc *runctx.Context, toolID string, args map[string]any) (string, map[string]any, error) {
		params := sandbox.CreateParams{
			Name:      strArg(args, "name"),
			Runtime:   strArg(args, "runtime"),
			Ports:     intsArg(args, "ports"),
			TimeoutMs: intArg(args, "timeout_ms"),
		}
		result, err := mgr.Create(ctx, rc, rc.Project, params, logSinkFor(rc, toolID, "sandbox_create"))
		if err != nil {
			return "", map[string]any{"error": err.Error()}, err
		}
		out := map[string]any{"sandbox_id": result.SandboxID, "runtime": result.Runtime}
		return toJSON(out), out, nil
	}
}

// --- sandbox_stop ---

func sandboxStopSpec() Spec {
	return Spec{
		Name:        "sandbox_stop",
		Description: "Stop a named sandbox and release its resources.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
		},
	}
}

func sandboxStopHandler(mgr *sandbox.Manager) Handler {
	return func(ctx context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
		if err := mgr.Stop(ctx, rc, strArg(args, "name")); err != nil {
			return "", map[string]any{"error": err.Error()}, err
		}
		out := map[string]any{"stopped": true}
		return toJSON(out), out, nil
	}
}

// --- sandbox_run ---

func sandboxRunSpec() Spec {
	return Spec{
		Name:        "sandbox_run",
		Description: "Run a shell command in a sandbox, optionally detached, waiting for readiness patterns or a timeout.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":            map[string]any{"type": "string"},
				"command":         map[string]any{"type": "string"},
				"cwd":             map[string]any{"type": "string"},
				"env":             map[string]any{"type": "object"},
				"detached":        map[string]any{"type": "boolean"},
				"ready_patterns":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"port":            map[string]any{"type": "integer"},
				"wait_timeout_ms": map[string]any{"type": "integer"},
				"stream_logs":     map[string]any{"type": "boolean"},
			},
			"required": []any{"command"},
		},
	}
}

func sandboxRunHandler(mgr *sandbox.Manager) Handler {
	return func(ctx context.Context, rc *runctx.Context, toolID string, args map[string]any) (string, map[string]any, error) {
		params := sandbox.RunParams{
			Name:          strArg(args, "name"),
			Command:       strArg(args, "command"),
			Cwd:           strArg(args, "cwd"),
			Env:           strMapArg(args, "env"),
			Detached:      boolArg(args, "detached"),
			ReadyPatterns: strsArg(args, "ready_patterns"),
			Port:          intArg(args, "port"),
			WaitTimeoutMs: intArg(args, "wait_timeout_ms"),
			StreamLogs:    boolArg(args, "stream_logs"),
			Auto:          sandbox.DefaultAutoFlags(),
		}
		result, err := mgr.Run(ctx, rc, rc.Project, params, logSinkFor(rc, toolID, "sandbox_run"))
		if err != nil {
			return "", map[string]any{"error": err.Error()}, err
		}
		out := map[string]any{
			"status":        string(result.Status),
			"preview_url":   result.PreviewURL,
			"log":           result.Log,
			"log_truncated": result.LogTruncated,
			"created":       result.Created,
			"updated":       result.Updated,
			"deleted":       result.Deleted,
		}
		if result.ExitCode != nil {
			out["exit_code"] = *result.ExitCode
		}
		return fmt.Sprintf("sandbox_run %s", result.Status), out, nil
	}
}

// --- sandbox_set_env ---

func sandboxSetEnvSpec() Spec {
	return Spec{
		Name:        "sandbox_set_env",
		Description: "Set environment variables for subsequent commands in a named sandbox.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
				"env":  map[string]any{"type": "object"},
			},
			"required": []any{"env"},
		},
	}
}

func sandboxSetEnvHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	name := rc.ResolveSandboxName(strArg(args, "name"))
	table := rc.SandboxTable(name)
	for k, v := range strMapArg(args, "env") {
		table.Env[k] = v
	}
	out := map[string]any{"env": table.Env}
	return toJSON(out), out, nil
}

// --- sandbox_show_preview ---

func sandboxShowPreviewSpec() Spec {
	return Spec{
		Name:        "sandbox_show_preview",
		Description: "Emit a preview URL for the active sandbox so the UI can render it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":   map[string]any{"type": "string", "description": "The full preview URL."},
				"port":  map[string]any{"type": "integer", "description": "Optional port used by the service."},
				"label": map[string]any{"type": "string", "description": "Optional descriptive label (e.g. 'frontend', 'backend')."},
				"name":  map[string]any{"type": "string"},
			},
			"required": []any{"url"},
		},
	}
}

// sandboxShowPreviewHandler is a passthrough, not a lookup: it never
// consults sandbox state, it just echoes the agent-supplied url/port/label
// into output_data so the UI can render a link, per
// original_source/backend/src/agent/tools.py's sandbox_show_preview.
func sandboxShowPreviewHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	name := rc.ResolveSandboxName(strArg(args, "name"))
	url := strArg(args, "url")
	out := map[string]any{"url": url, "name": name}
	if port := intArg(args, "port"); port != 0 {
		out["port"] = port
	}
	if label := strArg(args, "label"); label != "" {
		out["label"] = label
	}
	return toJSON(out), out, nil
}
