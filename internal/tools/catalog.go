package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/sandbox"
	"github.com/ideagent/backend/internal/telemetry"
)

// BuildDefault registers the full tool catalog from spec.md §4.2: the seven
// project-mutation tools, the request_code_execution defer point, think, the
// read-only list_files/read_file pair, and the five sandbox orchestration
// tools.
func BuildDefault(logger telemetry.Logger, mgr *sandbox.Manager) (*Registry, error) {
	r := New(logger)

	type reg struct {
		spec    Spec
		handler Handler
	}
	regs := []reg{
		{editCodeSpec(), editCodeHandler},
		{createFileSpec(), createFileHandler},
		{deleteFileSpec(), deleteFileHandler},
		{renameFileSpec(), renameFileHandler},
		{createFolderSpec(), createFolderHandler},
		{deleteFolderSpec(), deleteFolderHandler},
		{renameFolderSpec(), renameFolderHandler},
		{requestCodeExecutionSpec(), requestCodeExecutionHandler},
		{thinkSpec(), thinkHandler},
		{listFilesSpec(), listFilesHandler},
		{readFileSpec(), readFileHandler},
		{sandboxCreateSpec(), sandboxCreateHandler(mgr)},
		{sandboxStopSpec(), sandboxStopHandler(mgr)},
		{sandboxRunSpec(), sandboxRunHandler(mgr)},
		{sandboxSetEnvSpec(), sandboxSetEnvHandler},
		{sandboxShowPreviewSpec(), sandboxShowPreviewHandler},
	}
	for _, item := range regs {
		if err := r.Register(item.spec, item.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// --- edit_code ---

func editCodeSpec() Spec {
	return Spec{
		Name:        "edit_code",
		Description: "Replace the first occurrence of find within a line range in a file.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path":       map[string]any{"type": "string"},
				"find":            map[string]any{"type": "string"},
				"find_start_line": map[string]any{"type": "integer"},
				"find_end_line":   map[string]any{"type": "integer"},
				"replace":         map[string]any{"type": "string"},
			},
			"required": []any{"file_path", "find", "find_start_line", "find_end_line", "replace"},
		},
	}
}

func editCodeHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	result, err := rc.Project.EditCode(strArg(args, "file_path"), intArg(args, "find_start_line"), intArg(args, "find_end_line"), strArg(args, "find"), strArg(args, "replace"))
	if err != nil {
		return "", editErrOutput(err), err
	}
	out := map[string]any{
		"old_text":     result.OldText,
		"new_text":     result.NewText,
		"full_content": result.FullContent,
	}
	return toJSON(out), out, nil
}

// editErrOutput translates an EditError into the {error, ...} shape spec.md
// §7 requires on the completed event, including total_lines for
// RANGE_INVALID.
func editErrOutput(err error) map[string]any {
	if ee, ok := err.(*project.EditError); ok {
		out := map[string]any{"error": ee.Message}
		if ee.Code == project.ErrRangeInvalid {
			out["total_lines"] = ee.TotalLines
		}
		return out
	}
	return map[string]any{"error": err.Error()}
}

// --- create_file ---

func createFileSpec() Spec {
	return Spec{
		Name:        "create_file",
		Description: "Create a new file with the given content.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{"type": "string"},
				"content":   map[string]any{"type": "string"},
			},
			"required": []any{"file_path", "content"},
		},
	}
}

func createFileHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	if err := rc.Project.CreateFile(strArg(args, "file_path"), strArg(args, "content")); err != nil {
		return "", editErrOutput(err), err
	}
	out := map[string]any{"created": strArg(args, "file_path")}
	return toJSON(out), out, nil
}

// --- delete_file ---

func deleteFileSpec() Spec {
	return Spec{
		Name:        "delete_file",
		Description: "Delete an existing file.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
			"required":   []any{"file_path"},
		},
	}
}

func deleteFileHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	if err := rc.Project.DeleteFile(strArg(args, "file_path")); err != nil {
		return "", editErrOutput(err), err
	}
	out := map[string]any{"deleted": strArg(args, "file_path")}
	return toJSON(out), out, nil
}

// --- rename_file ---

func renameFileSpec() Spec {
	return Spec{
		Name:        "rename_file",
		Description: "Rename (or move) a file, overwriting the destination if present.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"old_path": map[string]any{"type": "string"},
				"new_path": map[string]any{"type": "string"},
			},
			"required": []any{"old_path", "new_path"},
		},
	}
}

func renameFileHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	result, err := rc.Project.RenameFile(strArg(args, "old_path"), strArg(args, "new_path"))
	if err != nil {
		return "", editErrOutput(err), err
	}
	out := map[string]any{"overwritten": result.Overwritten}
	return toJSON(out), out, nil
}

// --- create_folder ---

func createFolderSpec() Spec {
	return Spec{
		Name:        "create_folder",
		Description: "Declare a folder in the project tree (UI-only; adds no file entry).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"folder_path": map[string]any{"type": "string"}},
			"required":   []any{"folder_path"},
		},
	}
}

func createFolderHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	if err := rc.Project.CreateFolder(strArg(args, "folder_path")); err != nil {
		return "", editErrOutput(err), err
	}
	out := map[string]any{"created_folder": strArg(args, "folder_path")}
	return toJSON(out), out, nil
}

// --- delete_folder ---

func deleteFolderSpec() Spec {
	return Spec{
		Name:        "delete_folder",
		Description: "Delete a folder and every file beneath it.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"folder_path": map[string]any{"type": "string"}},
			"required":   []any{"folder_path"},
		},
	}
}

func deleteFolderHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	count := rc.Project.DeleteFolder(strArg(args, "folder_path"))
	out := map[string]any{"deleted_count": count}
	return toJSON(out), out, nil
}

// --- rename_folder ---

func renameFolderSpec() Spec {
	return Spec{
		Name:        "rename_folder",
		Description: "Rename a folder, rewriting the path prefix of every file beneath it. Does not update imports/references.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"old_path": map[string]any{"type": "string"},
				"new_path": map[string]any{"type": "string"},
			},
			"required": []any{"old_path", "new_path"},
		},
	}
}

func renameFolderHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	result := rc.Project.RenameFolder(strArg(args, "old_path"), strArg(args, "new_path"))
	out := map[string]any{"renamed_count": result.RenamedCount}
	return toJSON(out), out, nil
}

// --- request_code_execution (defer point) ---

func requestCodeExecutionSpec() Spec {
	return Spec{
		Name:        "request_code_execution",
		Description: "Request that the client execute pending code and return the result. Pauses the run until resumed.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"response_on_reject": map[string]any{"type": "string"}},
		},
	}
}

// requestCodeExecutionHandler implements the defer/resume contract from
// spec.md §4.4: if ExecResult has not been set, it requests a defer and
// returns the literal "EXECUTION_REQUESTED" string to the agent; once
// resumed, it surfaces the (possibly empty, per spec.md §9 Open Questions)
// execution result instead.
func requestCodeExecutionHandler(_ context.Context, rc *runctx.Context, _ string, _ map[string]any) (string, map[string]any, error) {
	if result, ok := rc.ExecResult(); ok {
		return result, map[string]any{"exec_result": result}, nil
	}
	rc.RequestDefer()
	return "EXECUTION_REQUESTED", map[string]any{"deferred": true}, nil
}

// --- think ---

func thinkSpec() Spec {
	return Spec{
		Name:        "think",
		Description: "Record a thought. Purely journaling; has no side effects on the project.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"thoughts": map[string]any{"type": "string"}},
			"required":   []any{"thoughts"},
		},
	}
}

func thinkHandler(_ context.Context, _ *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	out := map[string]any{"recorded": true}
	_ = strArg(args, "thoughts")
	return "noted", out, nil
}

// --- list_files / read_file (supplemental, read-only) ---

func listFilesSpec() Spec {
	return Spec{
		Name:        "list_files",
		Description: "List every path currently in the project.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func listFilesHandler(_ context.Context, rc *runctx.Context, _ string, _ map[string]any) (string, map[string]any, error) {
	paths := rc.Project.SortedPaths()
	out := map[string]any{"paths": paths}
	return toJSON(out), out, nil
}

func readFileSpec() Spec {
	return Spec{
		Name:        "read_file",
		Description: "Read a file's full content, re-inspecting it outside the initial prompt rendering.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
			"required":   []any{"file_path"},
		},
	}
}

func readFileHandler(_ context.Context, rc *runctx.Context, _ string, args map[string]any) (string, map[string]any, error) {
	content, err := rc.Project.ReadFile(strArg(args, "file_path"))
	if err != nil {
		return "", editErrOutput(err), err
	}
	out := map[string]any{"content": content}
	return content, out, nil
}

func toJSON(v map[string]any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
