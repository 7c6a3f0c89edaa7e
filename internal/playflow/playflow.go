// Package playflow implements the non-agent "play" flow: compile/install and
// run a single entry file in a fresh sandbox, streaming play_* progress
// events. Grounded on
// original_source/backend/src/api/sandbox.py's run_play_flow, reimplemented
// against the Sandbox Session Manager (C6) instead of a raw platform client.
package playflow

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/sandbox"
	"github.com/ideagent/backend/internal/stream"
)

// Params is one play request, already decoded from its resumable token.
type Params struct {
	UserID    string
	Project   map[string]string
	EntryPath string
	Runtime   string
	Env       map[string]string
}

// DetectRuntimeAndCommand infers a sandbox runtime and launch command from
// an entry file's extension (or an explicit runtime override), matching
// original_source's `_detect_runtime_and_command`.
func DetectRuntimeAndCommand(entryPath, runtimeOverride string) (runtime, command string) {
	lower := strings.ToLower(entryPath)
	pybin := `PYBIN=$(command -v python3 || command -v python) && [ -n "$PYBIN" ] && "$PYBIN" ` + entryPath

	if runtimeOverride != "" {
		switch {
		case strings.HasPrefix(runtimeOverride, "python"):
			return runtimeOverride, pybin
		case strings.HasPrefix(runtimeOverride, "node"):
			if strings.HasSuffix(lower, ".ts") || strings.HasSuffix(lower, ".tsx") {
				return runtimeOverride, fmt.Sprintf("(npx -y ts-node %s || npx -y tsx %s || node %s)", entryPath, entryPath, entryPath)
			}
			return runtimeOverride, fmt.Sprintf("(node %s)", entryPath)
		default:
			return runtimeOverride, fmt.Sprintf("(python3 %s || node %s)", entryPath, entryPath)
		}
	}

	switch {
	case strings.HasSuffix(lower, ".py"):
		return "python3.13", pybin
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".mjs"), strings.HasSuffix(lower, ".cjs"):
		return "node22", fmt.Sprintf("(node %s)", entryPath)
	case strings.HasSuffix(lower, ".ts"), strings.HasSuffix(lower, ".tsx"):
		return "node22", fmt.Sprintf("(npx -y tsx %s || npx -y ts-node %s)", entryPath, entryPath)
	case strings.HasSuffix(lower, ".rb"):
		return "ruby3.2", fmt.Sprintf("(ruby %s)", entryPath)
	default:
		return "", ""
	}
}

// fastAPIRunnerSource loads the entry module dynamically and serves it with
// uvicorn, matching original_source's inline runner_code string.
const fastAPIRunnerSource = `import importlib.util, os
entry = os.environ.get('ENTRY_PATH','main.py')
app_var = os.environ.get('APP_VAR','app')
spec = importlib.util.spec_from_file_location('app_module', entry)
mod = importlib.util.module_from_spec(spec)
spec.loader.exec_module(mod)
app = getattr(mod, app_var)
import uvicorn
uvicorn.run(app, host='0.0.0.0', port=int(os.environ.get('PORT','8000')))
`

func isFastAPIEntry(entryPath, content string) bool {
	if !strings.HasSuffix(strings.ToLower(entryPath), ".py") {
		return false
	}
	return strings.Contains(content, "FastAPI(") || strings.Contains(content, "from fastapi") || strings.Contains(content, "import fastapi")
}

// findClosestFile walks up entryPath's directory chain looking for the
// first of names present in the project map.
func findClosestFile(proj map[string]string, entryPath string, names []string) string {
	dir := path.Dir(entryPath)
	for {
		for _, n := range names {
			candidate := n
			if dir != "." && dir != "" {
				candidate = path.Join(dir, n)
			}
			candidate = strings.TrimPrefix(candidate, "./")
			if _, ok := proj[candidate]; ok {
				return candidate
			}
		}
		if dir == "." || dir == "" || dir == "/" {
			return ""
		}
		dir = path.Dir(dir)
	}
}

// Run drives the play flow end to end, emitting play_* events to sink.
// appPort is SANDBOX_APP_PORT (config.Config.SandboxAppPort), used as the
// preview port for a detected FastAPI entry point.
func Run(ctx context.Context, taskID string, mgr *sandbox.Manager, params Params, appPort int, sink stream.Sink) {
	proj := project.New(params.Project)

	runtime, command := DetectRuntimeAndCommand(params.EntryPath, params.Runtime)
	if runtime == "" {
		sink.Send(stream.NewError(stream.EventPlayFailed, taskID, fmt.Sprintf("unsupported entry file: %s", params.EntryPath)))
		return
	}

	content, _ := proj.Get(params.EntryPath)
	fastAPI := isFastAPIEntry(params.EntryPath, content)
	ruby := strings.HasSuffix(strings.ToLower(params.EntryPath), ".rb")
	port := 0
	if fastAPI {
		port = appPort
		_ = proj.CreateFile("run_fastapi.py", fastAPIRunnerSource)
	}

	sink.Send(stream.New(stream.EventPlayStarted, taskID, map[string]any{"entry_path": params.EntryPath, "runtime": runtime}))

	rc := runctx.New(proj, runctx.BasePayload{UserID: params.UserID})
	logSink := func(line string) {
		sink.Send(stream.New(stream.EventPlayLog, taskID, map[string]any{"data": line}))
	}

	createResult, err := mgr.Create(ctx, rc, proj, sandbox.CreateParams{Runtime: runtime}, logSink)
	if err != nil {
		sink.Send(stream.NewError(stream.EventPlayFailed, taskID, err.Error()))
		return
	}
	sink.Send(stream.New(stream.EventPlaySandbox, taskID, map[string]any{"sandbox_id": createResult.SandboxID}))

	if ok := installDependencies(ctx, mgr, rc, proj, params, fastAPI, ruby, logSink, sink, taskID); !ok {
		return
	}

	runParams := sandbox.RunParams{
		Command:       commandFor(command, ruby, fastAPI, params.EntryPath, port),
		Env:           envFor(params.Env, fastAPI, params.EntryPath, port),
		Detached:      true,
		StreamLogs:    true,
		ReadyPatterns: readyPatternsFor(fastAPI),
		Port:          port,
		WaitTimeoutMs: 0,
		Auto:          sandbox.AutoFlags{},
	}

	result, err := mgr.Run(ctx, rc, proj, runParams, logSink)
	if err != nil {
		sink.Send(stream.NewError(stream.EventPlayFailed, taskID, err.Error()))
		return
	}
	if fastAPI && result.PreviewURL != "" {
		sink.Send(stream.New(stream.EventPlayPreview, taskID, map[string]any{"url": result.PreviewURL}))
	}

	sink.Send(stream.New(stream.EventPlayComplete, taskID, map[string]any{
		"status": string(result.Status), "exit_code": result.ExitCode,
	}))
}

// installDependencies runs the per-language dependency-install step before
// the entry file itself executes, returning false (having already emitted
// play_failed) if install failed.
func installDependencies(ctx context.Context, mgr *sandbox.Manager, rc *runctx.Context, proj *project.Project, params Params, fastAPI, ruby bool, logSink sandbox.LogSink, sink stream.Sink, taskID string) bool {
	switch {
	case strings.HasSuffix(strings.ToLower(params.EntryPath), ".py"):
		if req := findClosestFile(params.Project, params.EntryPath, []string{"requirements.txt"}); req != "" {
			sink.Send(stream.New(stream.EventPlayLog, taskID, map[string]any{"data": fmt.Sprintf("Installing Python dependencies from %s...\n", req)}))
			pipCmd := `PYBIN=$(command -v python3 || command -v python); if [ -z "$PYBIN" ]; then echo 'python not found in sandbox'; exit 1; fi; ` +
				`$PYBIN -m ensurepip --upgrade || true; $PYBIN -m pip install --upgrade pip; $PYBIN -m pip install --no-cache-dir -r ` + req
			if res, err := mgr.Run(ctx, rc, proj, sandbox.RunParams{Command: pipCmd, Detached: true, StreamLogs: true}, logSink); err != nil || (res.ExitCode != nil && *res.ExitCode != 0) {
				sink.Send(stream.NewError(stream.EventPlayFailed, taskID, "dependency install failed"))
				return false
			}
		}
		if fastAPI {
			sink.Send(stream.New(stream.EventPlayLog, taskID, map[string]any{"data": "Ensuring FastAPI and Uvicorn are installed...\n"}))
			ensureCmd := `PYBIN=$(command -v python3 || command -v python); if [ -z "$PYBIN" ]; then echo 'python not found in sandbox'; exit 1; fi; ` +
				`$PYBIN -c "import fastapi, uvicorn" || ($PYBIN -m pip install --upgrade pip || true; $PYBIN -m pip install --no-cache-dir fastapi uvicorn)`
			if res, err := mgr.Run(ctx, rc, proj, sandbox.RunParams{Command: ensureCmd, Detached: true, StreamLogs: true}, logSink); err != nil || (res.ExitCode != nil && *res.ExitCode != 0) {
				sink.Send(stream.NewError(stream.EventPlayFailed, taskID, "failed to install fastapi/uvicorn"))
				return false
			}
		}
	case ruby:
		if gemfile := findClosestFile(params.Project, params.EntryPath, []string{"Gemfile"}); gemfile != "" {
			sink.Send(stream.New(stream.EventPlayLog, taskID, map[string]any{"data": fmt.Sprintf("Installing Ruby dependencies from %s via Bundler...\n", gemfile)}))
			bundleCmd := `if ! command -v bundle >/dev/null 2>&1; then gem list -i bundler >/dev/null 2>&1 || gem install --no-document bundler; fi; ` +
				`bundle --version || true; mkdir -p vendor/bundle; bundle config set --local path vendor/bundle; bundle config set --local without 'development:test'; bundle install`
			if res, err := mgr.Run(ctx, rc, proj, sandbox.RunParams{Command: bundleCmd, Detached: true, StreamLogs: true}, logSink); err != nil || (res.ExitCode != nil && *res.ExitCode != 0) {
				sink.Send(stream.NewError(stream.EventPlayFailed, taskID, "dependency install failed"))
				return false
			}
		}
	case strings.HasSuffix(strings.ToLower(params.EntryPath), ".js"), strings.HasSuffix(strings.ToLower(params.EntryPath), ".mjs"),
		strings.HasSuffix(strings.ToLower(params.EntryPath), ".cjs"), strings.HasSuffix(strings.ToLower(params.EntryPath), ".ts"),
		strings.HasSuffix(strings.ToLower(params.EntryPath), ".tsx"):
		if pkgJSON := findClosestFile(params.Project, params.EntryPath, []string{"package.json"}); pkgJSON != "" {
			dir := path.Dir(pkgJSON)
			cdPart := ""
			lockPath := "package-lock.json"
			if dir != "." && dir != "" {
				cdPart = fmt.Sprintf("cd %s && ", dir)
				lockPath = path.Join(dir, "package-lock.json")
			}
			installCmd := "npm install --loglevel info"
			if _, ok := params.Project[lockPath]; ok {
				installCmd = "npm ci --loglevel info || npm install --loglevel info"
			}
			sink.Send(stream.New(stream.EventPlayLog, taskID, map[string]any{"data": fmt.Sprintf("Installing Node dependencies in %s...\n", orDot(dir))}))
			if res, err := mgr.Run(ctx, rc, proj, sandbox.RunParams{Command: cdPart + installCmd, Detached: true, StreamLogs: true}, logSink); err != nil || (res.ExitCode != nil && *res.ExitCode != 0) {
				sink.Send(stream.NewError(stream.EventPlayFailed, taskID, "dependency install failed"))
				return false
			}
		}
	}
	return true
}

func orDot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// commandFor wraps a Ruby invocation with bundle exec when a Gemfile is
// present, matching original_source's inline conditional.
func commandFor(command string, ruby, fastAPI bool, entryPath string, port int) string {
	if fastAPI {
		return `PYBIN=$(command -v python3 || command -v python) && exec "$PYBIN" run_fastapi.py`
	}
	if ruby {
		return fmt.Sprintf("( [ -f Gemfile ] && bundle exec %s || %s )", command, command)
	}
	return command
}

func envFor(base map[string]string, fastAPI bool, entryPath string, port int) map[string]string {
	env := map[string]string{}
	for k, v := range base {
		env[k] = v
	}
	if fastAPI {
		env["ENTRY_PATH"] = entryPath
		env["APP_VAR"] = "app"
		env["PORT"] = fmt.Sprintf("%d", port)
	}
	return env
}

func readyPatternsFor(fastAPI bool) []string {
	if fastAPI {
		return []string{"Application startup complete", "Uvicorn running on"}
	}
	return nil
}
