package project

import (
	"path"
	"strings"
)

// defaultIgnorePatterns mirrors the built-in defaults spec.md §4.1 calls
// for: VCS directories, dependency caches, build outputs, and editor state.
var defaultIgnorePatterns = []string{
	".git/",
	".svn/",
	".hg/",
	"node_modules/",
	"vendor/",
	".bundle/",
	"__pycache__/",
	"*.pyc",
	".venv/",
	"dist/",
	"build/",
	".cache/",
	"tmp/",
	"log/",
	"logs/",
	".DS_Store",
	".idea/",
	".vscode/",
}

// ignoreFileNames are always synced regardless of what they themselves
// exclude (spec.md §6 scenario S6).
var ignoreFileNames = []string{".gitignore", ".agentignore"}

// Predicate reports whether a path should be ignored.
type Predicate func(path string) bool

// BuildIgnorePredicate parses the project's own .gitignore and .agentignore
// files plus the built-in defaults into a single gitignore-style matcher.
// The two ignore files themselves are never matched as ignored, regardless
// of what they contain.
func BuildIgnorePredicate(p *Project) Predicate {
	var patterns []string
	patterns = append(patterns, defaultIgnorePatterns...)
	for _, name := range ignoreFileNames {
		if content, ok := p.Get(name); ok {
			patterns = append(patterns, parseIgnoreFile(content)...)
		}
	}
	compiled := make([]globPattern, 0, len(patterns))
	for _, pat := range patterns {
		compiled = append(compiled, compileGlob(pat))
	}
	return func(candidate string) bool {
		candidate = normalize(candidate)
		for _, name := range ignoreFileNames {
			if candidate == name {
				return false
			}
		}
		for _, g := range compiled {
			if g.match(candidate) {
				return true
			}
		}
		return false
	}
}

func parseIgnoreFile(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// globPattern is a compiled gitignore-style entry: anchored (a leading or
// inner "/"), directory-only (trailing "/"), and supporting "**" segments.
type globPattern struct {
	raw        string
	anchored   bool
	dirOnly    bool
	segments   []string // path segments with ** and * wildcards, anchored patterns only use this against the full path
}

func compileGlob(pattern string) globPattern {
	g := globPattern{raw: pattern}
	if strings.HasSuffix(pattern, "/") {
		g.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		g.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	if strings.Contains(pattern, "/") {
		g.anchored = true
	}
	g.segments = strings.Split(pattern, "/")
	return g
}

func (g globPattern) match(candidate string) bool {
	candSegs := strings.Split(candidate, "/")
	if g.anchored {
		return matchSegments(g.segments, candSegs)
	}
	// Unanchored: pattern may match starting at any suffix position of the
	// candidate (gitignore semantics for a bare "name" or "*.ext" entry).
	for start := 0; start <= len(candSegs)-len(nonGlobTail(g.segments)); start++ {
		if matchSegments(g.segments, candSegs[start:]) {
			return true
		}
	}
	// Also allow matching against any single trailing segment for simple
	// one-segment patterns like "*.pyc" or "build".
	if len(g.segments) == 1 {
		for _, seg := range candSegs {
			if matchSegment(g.segments[0], seg) {
				return true
			}
		}
	}
	return false
}

func nonGlobTail(segments []string) []string { return segments }

func matchSegments(pattern, candidate []string) bool {
	return matchSegList(pattern, candidate)
}

// matchSegList matches a pattern segment list against a candidate segment
// list, treating "**" as "zero or more path segments".
func matchSegList(pattern, candidate []string) bool {
	if len(pattern) == 0 {
		return len(candidate) == 0
	}
	head := pattern[0]
	if head == "**" {
		if matchSegList(pattern[1:], candidate) {
			return true
		}
		for i := 0; i < len(candidate); i++ {
			if matchSegList(pattern[1:], candidate[i+1:]) {
				return true
			}
		}
		return false
	}
	if len(candidate) == 0 {
		return false
	}
	if !matchSegment(head, candidate[0]) {
		return false
	}
	// A prefix match (pattern shorter than candidate, no trailing **) is
	// still considered a directory match: "src" matches "src/a.ts" because
	// ignoring a directory ignores everything beneath it.
	if len(pattern) == 1 {
		return true
	}
	return matchSegList(pattern[1:], candidate[1:])
}

func matchSegment(pattern, segment string) bool {
	ok, err := path.Match(pattern, segment)
	if err != nil {
		return pattern == segment
	}
	return ok
}
