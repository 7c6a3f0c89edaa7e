// Package project implements the in-memory virtual project: a path->content
// map, the range-scoped edit engine, and the gitignore-style predicate used
// to filter it for sandbox sync, FS snapshots, and LLM context rendering.
package project

import (
	"fmt"
	"sort"
	"strings"
)

// Project is a path->content map. Paths are POSIX-style, project-relative,
// and carry no leading "./". Insertion order is irrelevant; Project never
// tracks folders, which are implied by file paths.
type Project struct {
	files map[string]string
}

// New builds a Project from an initial path->content map, normalizing every
// key the way the wire format hands it to us.
func New(files map[string]string) *Project {
	p := &Project{files: make(map[string]string, len(files))}
	for path, content := range files {
		p.files[normalize(path)] = content
	}
	return p
}

// Clone deep-copies the project into an independent Project.
func (p *Project) Clone() *Project {
	out := &Project{files: make(map[string]string, len(p.files))}
	for k, v := range p.files {
		out.files[k] = v
	}
	return out
}

// Files returns the underlying path->content map. Callers must not mutate
// the returned map directly; use the edit engine operations instead.
func (p *Project) Files() map[string]string { return p.files }

// Get returns a file's content and whether it exists.
func (p *Project) Get(path string) (string, bool) {
	v, ok := p.files[normalize(path)]
	return v, ok
}

// SortedPaths returns every path in lexicographic order, used for
// deterministic prompt rendering.
func (p *Project) SortedPaths() []string {
	paths := make([]string, 0, len(p.files))
	for k := range p.files {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

func normalize(path string) string {
	path = strings.TrimPrefix(path, "./")
	return strings.TrimSuffix(path, "/")
}

// --- Edit Engine errors (C3) ---

// EditErrorCode enumerates the ProjectEditError taxonomy from spec.md §7.
type EditErrorCode string

const (
	ErrFileNotFound   EditErrorCode = "FILE_NOT_FOUND"
	ErrFileExists     EditErrorCode = "FILE_EXISTS"
	ErrRangeInvalid   EditErrorCode = "RANGE_INVALID"
	ErrFindNotInRange EditErrorCode = "FIND_NOT_IN_RANGE"
)

// EditError is a structured tool-level failure. It is never fatal to a run:
// the Tool Registry reports it on the completed event and the agent decides
// how to proceed.
type EditError struct {
	Code    EditErrorCode
	Message string
	// TotalLines is populated for ErrRangeInvalid so the agent can self-correct.
	TotalLines int
}

func (e *EditError) Error() string { return e.Message }

func newEditErr(code EditErrorCode, msg string) *EditError {
	return &EditError{Code: code, Message: msg}
}

// EditResult is the success payload for edit_code: pre-image, post-image,
// and the full post-edit file content.
type EditResult struct {
	OldText     string
	NewText     string
	FullContent string
}

// EditCode replaces the first occurrence of find within lines
// [findStartLine, findEndLine] (1-based, inclusive) of file with replace.
// Every line outside that range is byte-identical after the edit.
func (p *Project) EditCode(filePath string, findStartLine, findEndLine int, find, replace string) (*EditResult, error) {
	path := normalize(filePath)
	content, ok := p.files[path]
	if !ok {
		return nil, newEditErr(ErrFileNotFound, fmt.Sprintf("file not found: %s", path))
	}

	lines := splitLines(content)
	total := len(lines)
	if strings.HasSuffix(content, "\n") {
		// A final newline ends the last line; it does not start another.
		total--
	}
	if findStartLine < 1 || findEndLine < findStartLine || findEndLine > total {
		return nil, &EditError{
			Code:       ErrRangeInvalid,
			Message:    "Line numbers out of range or invalid",
			TotalLines: total,
		}
	}

	// 1-based inclusive slice.
	window := strings.Join(lines[findStartLine-1:findEndLine], "\n")
	idx := strings.Index(window, find)
	if idx < 0 {
		return nil, newEditErr(ErrFindNotInRange, "find text not present in the given line range")
	}

	oldText := find
	newWindow := window[:idx] + replace + window[idx+len(find):]

	before := lines[:findStartLine-1]
	after := lines[findEndLine:]

	newLines := make([]string, 0, len(before)+len(after)+strings.Count(newWindow, "\n")+1)
	newLines = append(newLines, before...)
	newLines = append(newLines, splitLines(newWindow)...)
	newLines = append(newLines, after...)

	newContent := strings.Join(newLines, "\n")
	p.files[path] = newContent

	return &EditResult{OldText: oldText, NewText: replace, FullContent: newContent}, nil
}

// splitLines splits on "\n" without dropping a trailing empty line, so line
// counts match what a 1-based line-numbered rendering would show.
func splitLines(s string) []string {
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}

// CreateFile inserts a new file, failing if the path already exists.
func (p *Project) CreateFile(filePath, content string) error {
	path := normalize(filePath)
	if _, exists := p.files[path]; exists {
		return newEditErr(ErrFileExists, fmt.Sprintf("file already exists: %s", path))
	}
	p.files[path] = content
	return nil
}

// DeleteFile removes a file, failing if it does not exist.
func (p *Project) DeleteFile(filePath string) error {
	path := normalize(filePath)
	if _, exists := p.files[path]; !exists {
		return newEditErr(ErrFileNotFound, fmt.Sprintf("file not found: %s", path))
	}
	delete(p.files, path)
	return nil
}

// RenameResult reports whether the rename overwrote an existing destination.
type RenameResult struct {
	Overwritten bool
}

// RenameFile moves old to new, overwriting silently (and reporting it) if
// new already exists.
func (p *Project) RenameFile(oldPath, newPath string) (*RenameResult, error) {
	oldP := normalize(oldPath)
	newP := normalize(newPath)
	content, exists := p.files[oldP]
	if !exists {
		return nil, newEditErr(ErrFileNotFound, fmt.Sprintf("file not found: %s", oldP))
	}
	_, overwritten := p.files[newP]
	delete(p.files, oldP)
	p.files[newP] = content
	return &RenameResult{Overwritten: overwritten}, nil
}

// CreateFolder is a UI-only declaration: it adds no map entry, and fails
// only when a file already occupies that exact path.
func (p *Project) CreateFolder(folderPath string) error {
	path := normalize(folderPath)
	if _, exists := p.files[path]; exists {
		return newEditErr(ErrFileExists, fmt.Sprintf("a file already exists at %s", path))
	}
	return nil
}

// DeleteFolder removes every path equal to folderPath or nested under it,
// returning the number of files removed.
func (p *Project) DeleteFolder(folderPath string) int {
	prefix := normalize(folderPath) + "/"
	exact := normalize(folderPath)
	removed := 0
	for path := range p.files {
		if path == exact || strings.HasPrefix(path, prefix) {
			delete(p.files, path)
			removed++
		}
	}
	return removed
}

// RenameFolderResult reports how many paths were rewritten.
type RenameFolderResult struct {
	RenamedCount int
}

// RenameFolder rewrites the prefix of every matching path from old to new,
// preserving suffixes. It does not rewrite import statements or references
// inside file content; callers follow up with EditCode for that.
func (p *Project) RenameFolder(oldPath, newPath string) *RenameFolderResult {
	oldExact := normalize(oldPath)
	newExact := normalize(newPath)
	oldPrefix := oldExact + "/"

	type move struct{ from, to string }
	var moves []move
	for path := range p.files {
		switch {
		case path == oldExact:
			moves = append(moves, move{path, newExact})
		case strings.HasPrefix(path, oldPrefix):
			suffix := strings.TrimPrefix(path, oldPrefix)
			moves = append(moves, move{path, newExact + "/" + suffix})
		}
	}
	for _, m := range moves {
		content := p.files[m.from]
		delete(p.files, m.from)
		p.files[m.to] = content
	}
	return &RenameFolderResult{RenamedCount: len(moves)}
}

// ReadFile is the supplemental read-only tool surface recovered from
// original_source/backend/src/agent/tools.py: it lets the agent re-inspect a
// file without relying on the initial prompt rendering. It never mutates
// the project and is not subject to EditError semantics beyond not-found.
func (p *Project) ReadFile(filePath string) (string, error) {
	path := normalize(filePath)
	content, ok := p.files[path]
	if !ok {
		return "", newEditErr(ErrFileNotFound, fmt.Sprintf("file not found: %s", path))
	}
	return content, nil
}

// RenderPrompt deterministically renders the project for the LLM input:
// a sorted path listing, then each file as "FILE: <path>" with every line
// prefixed "[n]" (1-based). Paths matched by keep are included; everything
// else is omitted from the content section but still appears in the listing.
func (p *Project) RenderPrompt(keep func(path string) bool) string {
	var b strings.Builder
	paths := p.SortedPaths()

	b.WriteString("Project files (paths):\n")
	for _, path := range paths {
		b.WriteString("- ")
		b.WriteString(path)
		b.WriteString("\n")
	}

	b.WriteString("\nProject contents (with line numbers):\n")
	for _, path := range paths {
		if keep != nil && !keep(path) {
			continue
		}
		b.WriteString("FILE: ")
		b.WriteString(path)
		b.WriteString("\n")
		for i, line := range splitLines(p.files[path]) {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, line)
		}
	}
	return b.String()
}
