package sandbox

import (
	"regexp"
	"strconv"
	"strings"
)

// AutoFlags toggles each heuristic independently, per spec.md §4.3
// ("each individually togglable via auto_* flags").
type AutoFlags struct {
	Python     bool
	Ruby       bool
	Go         bool
	RailsScaff bool
	Readiness  bool
	RailsBind  bool
	AutoAttach bool
}

// DefaultAutoFlags enables every heuristic, matching the documented default
// behavior when a caller does not disable any auto_* flag.
func DefaultAutoFlags() AutoFlags {
	return AutoFlags{Python: true, Ruby: true, Go: true, RailsScaff: true, Readiness: true, RailsBind: true, AutoAttach: true}
}

var (
	pythonIndicator = regexp.MustCompile(`\b(pip3?|python|uvicorn)\b|-m\s+pip`)
	rubyIndicator   = regexp.MustCompile(`\b(gem|bundle|rackup|ruby|sinatra|rails)\b`)
	goIndicator     = regexp.MustCompile(`^\s*go\s+`)
	railsIndicator  = regexp.MustCompile(`\brails\b`)
	railsNewOrGen   = regexp.MustCompile(`\brails\s+(new|generate|g)\b`)
	bundleInstall   = regexp.MustCompile(`\bbundle\s+install\b`)
	portFlag        = regexp.MustCompile(`(?:--port|-p)[\s=](\d+)`)
)

// defaultReadyPatterns returns banner substrings indicating a server is
// ready, inferred from the command when the caller supplied none.
func defaultReadyPatterns(command string) []string {
	switch {
	case strings.Contains(command, "uvicorn"):
		return []string{"Uvicorn running on", "Application startup complete"}
	case strings.Contains(command, "rackup") || strings.Contains(command, "sinatra") || strings.Contains(command, "ruby"):
		return []string{"WEBrick::HTTPServer#start", "Puma starting", "Listening on"}
	case strings.HasPrefix(strings.TrimSpace(command), "go run"):
		return []string{"listening on", "Serving"}
	case railsIndicator.MatchString(command) && strings.Contains(command, "server"):
		return []string{"Listening on", "Puma starting"}
	default:
		return nil
	}
}

// defaultPreviewPort infers the preview port from an explicit --port/-p
// flag, falling back to the per-runtime convention.
func defaultPreviewPort(command string) int {
	if m := portFlag.FindStringSubmatch(command); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	switch {
	case strings.Contains(command, "uvicorn"):
		return 8000
	case strings.Contains(command, "rackup"):
		return 9292
	case strings.Contains(command, "sinatra") || strings.Contains(command, "ruby"):
		return 4567
	case railsIndicator.MatchString(command):
		return 3000
	case strings.HasPrefix(strings.TrimSpace(command), "go run"):
		return 3000
	default:
		return 0
	}
}

// isRailsServer reports whether command starts a Rails server (as opposed
// to `rails new`/`rails generate`, which are scaffolding commands).
func isRailsServer(command string) bool {
	return railsIndicator.MatchString(command) && strings.Contains(command, "server") && !railsNewOrGen.MatchString(command)
}

// isScaffoldCommand reports whether command is an install/scaffold style
// invocation that should auto-attach when requested detached with no
// readiness criteria (spec.md §4.3 "Auto-attach").
func isScaffoldCommand(command string) bool {
	return railsNewOrGen.MatchString(command) || bundleInstall.MatchString(command)
}

// needsBundleExecWrap reports whether a direct ruby/rackup/rails invocation
// (not already `bundle exec ...`) should be wrapped to use Bundler.
func needsBundleExecWrap(command string, hasGemfile bool) bool {
	if !hasGemfile {
		return false
	}
	if strings.Contains(command, "bundle exec") {
		return false
	}
	trimmed := strings.TrimSpace(command)
	return strings.HasPrefix(trimmed, "ruby ") || strings.HasPrefix(trimmed, "rackup") || strings.HasPrefix(trimmed, "rails")
}

func wrapWithBundleExec(command string) string {
	return "bundle exec " + command
}

// classify buckets a command for the ensure-toolchain heuristics.
type commandKind int

const (
	kindOther commandKind = iota
	kindPython
	kindRuby
	kindGo
)

func classify(command string) commandKind {
	switch {
	case pythonIndicator.MatchString(command):
		return kindPython
	case rubyIndicator.MatchString(command):
		return kindRuby
	case goIndicator.MatchString(command):
		return kindGo
	default:
		return kindOther
	}
}

// railsBinPath finds the single project path ending in "/bin/rails", used
// by the Rails scaffolding cwd heuristic. It returns "" unless exactly one
// such path exists.
func railsBinPath(paths []string) string {
	var found string
	count := 0
	for _, p := range paths {
		if strings.HasSuffix(p, "/bin/rails") {
			count++
			found = strings.TrimSuffix(p, "/bin/rails")
		}
	}
	if count == 1 {
		return found
	}
	return ""
}
