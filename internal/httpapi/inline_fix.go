package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ideagent/backend/internal/model"
	"github.com/ideagent/backend/internal/project"
)

type inlineFixRequest struct {
	UserID       string            `json:"user_id"`
	Project      map[string]string `json:"project"`
	FilePath     string            `json:"file_path"`
	StartLine    int               `json:"start_line"`
	EndLine      int               `json:"end_line"`
	Instruction  string            `json:"instruction"`
	SelectedCode string            `json:"selected_code"`
	Model        string            `json:"model"`
}

type inlineFixResponse struct {
	OK              bool           `json:"ok"`
	FilePath        string         `json:"file_path,omitempty"`
	NewFileContent  string         `json:"new_file_content,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// handleInlineFix implements POST /api/inline-fix (C14): a single-shot,
// non-agentic edit — one forced tool call against the model gateway,
// applied directly through the Edit Engine. Grounded on
// original_source/backend/src/api/inline_fix.py.
func (s *Server) handleInlineFix(w http.ResponseWriter, r *http.Request) {
	var req inlineFixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, inlineFixResponse{OK: false, Error: "invalid request body"})
		return
	}

	proj := project.New(req.Project)
	content, ok := proj.Get(req.FilePath)
	if !ok {
		writeJSON(w, http.StatusOK, inlineFixResponse{OK: false, Error: fmt.Sprintf("File not found: %s", req.FilePath)})
		return
	}

	modelID := req.Model
	if modelID == "" {
		modelID = s.cfg.ModelGatewayDefault
	}

	resp, err := s.modelClient.Complete(r.Context(), model.Request{
		Model:      modelID,
		ToolChoice: "required",
		Messages:   buildInlineFixMessages(req, content),
		Tools:      []model.ToolDefinition{inlineFixToolDefinition()},
	})
	if err != nil {
		writeJSON(w, http.StatusOK, inlineFixResponse{OK: false, Error: err.Error()})
		return
	}
	if len(resp.ToolCalls) == 0 {
		writeJSON(w, http.StatusOK, inlineFixResponse{OK: false, Error: "Model did not provide an edit_code tool call."})
		return
	}

	call := resp.ToolCalls[0]
	findStart := intOrDefault(call.Payload, "find_start_line", req.StartLine)
	findEnd := intOrDefault(call.Payload, "find_end_line", req.EndLine)
	find, _ := call.Payload["find"].(string)
	if find == "" {
		find = req.SelectedCode
	}
	replace, _ := call.Payload["replace"].(string)

	result, err := proj.EditCode(req.FilePath, findStart, findEnd, find, replace)
	if err != nil {
		writeJSON(w, http.StatusOK, inlineFixResponse{OK: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, inlineFixResponse{
		OK:             true,
		FilePath:       req.FilePath,
		NewFileContent: result.FullContent,
		Details:        map[string]any{"old_text": result.OldText, "new_text": result.NewText},
	})
}

func buildInlineFixMessages(req inlineFixRequest, content string) []model.Message {
	system := fmt.Sprintf(
		"You are an inline code editor. Apply a precise edit to the file within the given line range.\n"+
			"File: %s\n"+
			"Allowed edit range: lines %d-%d\n"+
			"Rules: only operate within the range; keep surrounding code unchanged; preserve formatting and indentation.\n"+
			"Call the edit_code tool with: find (exact current text in the range), find_start_line, find_end_line, replace (new text).\n"+
			"Use the smallest necessary range.\n",
		req.FilePath, req.StartLine, req.EndLine,
	)
	user := fmt.Sprintf("Instruction: %s\n\nFile contents with line numbers:\n%s", req.Instruction, numberedLines(content))
	if req.SelectedCode != "" {
		user += fmt.Sprintf("\nSelected text (for reference):\n%s\n", req.SelectedCode)
	}
	return []model.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func numberedLines(content string) string {
	var b strings.Builder
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, line)
	}
	return b.String()
}

func inlineFixToolDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        "edit_code",
		Description: "Replace exact text within [find_start_line, find_end_line] of the current file.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"find":            map[string]any{"type": "string", "description": "Exact existing text to replace within the range"},
				"find_start_line": map[string]any{"type": "integer", "minimum": 1},
				"find_end_line":   map[string]any{"type": "integer", "minimum": 1},
				"replace":         map[string]any{"type": "string", "description": "Replacement text (no line numbers)"},
			},
			"required": []string{"find", "find_start_line", "find_end_line", "replace"},
		},
	}
}

func intOrDefault(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
