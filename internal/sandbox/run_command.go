package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
)

// RunParams configures sandbox_run, mirroring spec.md §4.2's tool
// signature.
type RunParams struct {
	Name          string
	Command       string
	Cwd           string
	Env           map[string]string
	Detached      bool
	ReadyPatterns []string
	Port          int
	WaitTimeoutMs int
	StreamLogs    bool
	Auto          AutoFlags
}

// RunStatus is the terminal status sandbox_run reports.
type RunStatus string

const (
	StatusReady     RunStatus = "ready"
	StatusTimedOut  RunStatus = "timed_out"
	StatusExited    RunStatus = "exited"
	StatusStarted   RunStatus = "started"
)

// FileSnapshot is a created/updated file's first 200KiB, base64-encoded,
// for the client to resync its virtual project.
type FileSnapshot struct {
	Path          string
	Base64Content string
	Truncated     bool
}

// RunResult is sandbox_run's structured summary, per spec.md §4.3 "Return
// value".
type RunResult struct {
	Status      RunStatus
	PreviewURL  string
	ExitCode    *int
	Log         string
	LogTruncated bool
	Created     []string
	Updated     []string
	Deleted     []string
	Data        []FileSnapshot
}

// Run executes one sandbox_run call: applies the toolchain/readiness/Rails
// heuristics, spawns the command, races {ready, exited, timed_out} (or, in
// attached mode, races only {log pump completion, exit}), and computes the
// FS delta against the sandbox's previous snapshot.
func (m *Manager) Run(ctx context.Context, rc *runctx.Context, proj *project.Project, params RunParams, log LogSink) (*RunResult, error) {
	name := rc.ResolveSandboxName(params.Name)
	table := rc.SandboxTable(name)
	if table.SandboxID == "" {
		return nil, fmt.Errorf("no sandbox named %q; call sandbox_create first", name)
	}
	handle, err := m.resolveHandle(ctx, table.SandboxID)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox %q: %w", name, err)
	}

	auto := params.Auto
	command := params.Command
	kind := classify(command)

	if auto.Python && kind == kindPython {
		m.ensurePython(ctx, handle, log)
	}
	if auto.Ruby && kind == kindRuby {
		m.ensureRuby(ctx, handle, table, log)
		hasGemfile := table.CurrentFileMeta != nil && hasPath(table.CurrentFileMeta, "Gemfile")
		if needsBundleExecWrap(command, hasGemfile) {
			command = wrapWithBundleExec(command)
		}
	}
	if auto.Go && kind == kindGo {
		m.ensureGo(ctx, handle, log)
	}

	cwd := params.Cwd
	if auto.RailsScaff && railsIndicator.MatchString(command) && !railsNewOrGen.MatchString(command) && cwd == "" {
		if rp := railsBinPath(table.CurrentFileList); rp != "" {
			cwd = rp
		}
	}
	cwd = safeCwd(handle.Cwd(), cwd)

	env := map[string]string{}
	for k, v := range table.Env {
		env[k] = v
	}
	for k, v := range params.Env {
		env[k] = v
	}

	if auto.RailsBind && isRailsServer(command) {
		if !strings.Contains(command, "-b ") && !strings.Contains(command, "--binding") {
			command += " -b 0.0.0.0"
		}
		if domain, err := handle.Domain(ctx, defaultPreviewPort(command)); err == nil {
			env["ALLOWED_HOST"] = hostOf(domain)
		}
	}

	readyPatterns := params.ReadyPatterns
	if auto.Readiness && len(readyPatterns) == 0 {
		readyPatterns = defaultReadyPatterns(command)
	}
	port := params.Port
	if auto.Readiness && port == 0 {
		port = defaultPreviewPort(command)
	}

	detached := params.Detached
	if auto.AutoAttach && detached && isScaffoldCommand(command) && len(readyPatterns) == 0 {
		detached = false
	}

	var cmd Cmd
	if detached {
		cmd, err = handle.RunCommandDetached(ctx, "bash", []string{"-lc", command}, env, false)
	} else {
		cmd, err = handle.RunCommand(ctx, "bash", []string{"-lc", command})
	}
	if err != nil {
		return nil, fmt.Errorf("run command: %w", err)
	}

	result := m.raceExecution(ctx, cmd, handle, readyPatterns, port, params.WaitTimeoutMs, detached, params.StreamLogs, log)

	snapshot, snapErr := m.snapshotFS(ctx, handle, project.BuildIgnorePredicate(proj))
	if snapErr == nil {
		delta := DiffSnapshots(table.CurrentFileMeta, snapshot)
		result.Created = delta.Created
		result.Updated = delta.Updated
		result.Deleted = delta.Deleted
		result.Data = m.readSnapshotFiles(ctx, handle, append(append([]string{}, delta.Created...), delta.Updated...))
		table.CurrentFileMeta = snapshot
		table.CurrentFileList = sortedKeys(snapshot)
	}

	return result, nil
}

// raceExecution runs the log pump, exit waiter, and (if applicable)
// deadline timer concurrently; the first of {ready, exited, timed_out}
// wins and the others are cancelled, per spec.md §4.3 "Execution
// lifecycle" and §5 "Cancellation".
func (m *Manager) raceExecution(ctx context.Context, cmd Cmd, handle Handle, readyPatterns []string, port, waitTimeoutMs int, detached, streamLogs bool, log LogSink) *RunResult {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var collected bytes.Buffer
	var mu sync.Mutex

	type outcome struct {
		status     RunStatus
		previewURL string
		exitCode   *int
	}
	done := make(chan outcome, 3)

	go func() {
		ch, err := cmd.Logs(raceCtx)
		if err != nil {
			return
		}
		for chunk := range ch {
			mu.Lock()
			collected.WriteString(chunk.Data)
			mu.Unlock()
			if streamLogs {
				log(chunk.Data)
			}
			if detached && len(readyPatterns) > 0 {
				for _, pat := range readyPatterns {
					if strings.Contains(chunk.Data, pat) {
						previewURL := ""
						if port > 0 {
							if url, err := handle.Domain(raceCtx, port); err == nil {
								previewURL = url
								log(fmt.Sprintf("preview available at %s", url))
							}
						}
						select {
						case done <- outcome{status: StatusReady, previewURL: previewURL}:
						default:
						}
						return
					}
				}
			}
		}
		if !detached {
			select {
			case done <- outcome{status: StatusExited}:
			default:
			}
		}
	}()

	go func() {
		res, err := cmd.Wait(raceCtx)
		if err != nil {
			return
		}
		code := res.ExitCode
		select {
		case done <- outcome{status: StatusExited, exitCode: &code}:
		default:
		}
	}()

	if detached && waitTimeoutMs > 0 && len(readyPatterns) > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(waitTimeoutMs) * time.Millisecond):
				select {
				case done <- outcome{status: StatusTimedOut}:
				default:
				}
			case <-raceCtx.Done():
			}
		}()
	}

	var final outcome
	select {
	case final = <-done:
	case <-ctx.Done():
		final = outcome{status: StatusExited}
	}
	cancel()

	mu.Lock()
	logText, truncated := trimLog(&collected)
	mu.Unlock()

	if final.status == "" {
		final.status = StatusStarted
	}

	return &RunResult{
		Status:       final.status,
		PreviewURL:   final.previewURL,
		ExitCode:     final.exitCode,
		Log:          logText,
		LogTruncated: truncated,
	}
}

func (m *Manager) ensurePython(ctx context.Context, handle Handle, log LogSink) {
	cmd, err := handle.RunCommand(ctx, "bash", []string{"-lc", "python3 -m ensurepip --upgrade && python3 -m pip install --upgrade pip"})
	if err != nil {
		return
	}
	out, _ := cmd.Stdout(ctx)
	log("ensure python pip: " + out)
	_, _ = cmd.Wait(ctx)
}

func (m *Manager) ensureRuby(ctx context.Context, handle Handle, table *runctx.SandboxTable, log LogSink) {
	cmd, err := handle.RunCommand(ctx, "bash", []string{"-lc", "ruby --version || true"})
	if err != nil {
		return
	}
	out, _ := cmd.Stdout(ctx)
	log("ruby --version: " + out)
	_, _ = cmd.Wait(ctx)
	if table.Env["BUNDLE_PATH"] == "" {
		table.Env["BUNDLE_PATH"] = "vendor/bundle"
	}
}

func (m *Manager) ensureGo(ctx context.Context, handle Handle, log LogSink) {
	cmd, err := handle.RunCommand(ctx, "bash", []string{"-lc", "command -v go || (apt-get install -y golang git)"})
	if err != nil {
		return
	}
	out, _ := cmd.Stdout(ctx)
	log("ensure go: " + out)
	_, _ = cmd.Wait(ctx)
}

// safeCwd joins a requested cwd under the sandbox's own cwd, ignoring it
// (falling back to the sandbox default) unless it resolves to the sandbox
// cwd itself or a descendant, per spec.md §4.3 "Run a Command".
func safeCwd(sandboxCwd, requested string) string {
	if requested == "" {
		return sandboxCwd
	}
	joined := requested
	if !path.IsAbs(requested) {
		joined = path.Join(sandboxCwd, requested)
	}
	cleaned := path.Clean(joined)
	if cleaned == sandboxCwd || strings.HasPrefix(cleaned, sandboxCwd+"/") {
		return cleaned
	}
	return sandboxCwd
}

func hostOf(domainURL string) string {
	withoutScheme := domainURL
	if idx := strings.Index(domainURL, "://"); idx >= 0 {
		withoutScheme = domainURL[idx+3:]
	}
	if idx := strings.IndexByte(withoutScheme, '/'); idx >= 0 {
		withoutScheme = withoutScheme[:idx]
	}
	return withoutScheme
}

func hasPath(meta map[string]string, path string) bool {
	_, ok := meta[path]
	return ok
}

// readSnapshotFiles reads up to maxSnapshotReads of the given paths (first
// snapshotReadCapBytes each), base64-encoding them for the client to
// resync, per spec.md §4.3 "FS snapshot & delta".
func (m *Manager) readSnapshotFiles(ctx context.Context, handle Handle, paths []string) []FileSnapshot {
	var out []FileSnapshot
	for i, p := range paths {
		if i >= maxSnapshotReads {
			break
		}
		full := path.Join(handle.Cwd(), p)
		cmd, err := handle.RunCommand(ctx, "head", []string{"-c", fmt.Sprintf("%d", snapshotReadCapBytes), full})
		if err != nil {
			continue
		}
		content, err := cmd.Stdout(ctx)
		if err != nil {
			continue
		}
		_, _ = cmd.Wait(ctx)
		out = append(out, FileSnapshot{
			Path:          p,
			Base64Content: base64.StdEncoding.EncodeToString([]byte(content)),
			Truncated:     len(content) >= snapshotReadCapBytes,
		})
	}
	return out
}
