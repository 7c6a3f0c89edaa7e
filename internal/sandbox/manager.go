package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/telemetry"
)

const (
	defaultCreateTimeout = 600 * time.Second
	syncChunkSize        = 64
	syncMaxAttempts      = 3
	syncInitialBackoff   = 250 * time.Millisecond
	trimmedLogBytes      = 16 * 1024
	maxSnapshotReads     = 50
	snapshotReadCapBytes = 200 * 1024
)

// LogSink receives streamed log lines tagged to the tool call that is
// currently driving sandbox activity (bootstrap output or a running
// command), per spec.md §4.3 ("All bootstrap output is emitted as log
// events tagged to the creating tool call.").
type LogSink func(line string)

// Manager is the Sandbox Session Manager (C6). One Manager is shared across
// runs; the live-handle cache is process-wide, while per-name tables live
// on each run's runctx.Context.
type Manager struct {
	platform Platform
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	limiter  *rate.Limiter

	mu      sync.Mutex
	handles map[string]Handle // sandbox_id -> live handle, process-wide cache
}

// NewManager builds a Sandbox Session Manager against the given platform.
func NewManager(platform Platform, logger telemetry.Logger, metrics telemetry.Metrics) *Manager {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Manager{
		platform: platform,
		logger:   logger,
		metrics:  metrics,
		limiter:  rate.NewLimiter(rate.Limit(32), 8), // throttles outbound platform calls (sync chunks, bootstrap commands)
		handles:  map[string]Handle{},
	}
}

// CreateParams configures sandbox_create.
type CreateParams struct {
	Name      string
	Runtime   string
	Ports     []int
	TimeoutMs int
}

// CreateResult is sandbox_create's agent-facing summary.
type CreateResult struct {
	SandboxID string
	Runtime   string
}

// Create creates (or recreates) a named sandbox: calls the platform,
// caches the handle, syncs the project, bootstraps synthetic runtimes, and
// takes the initial FS snapshot, per spec.md §4.3 "Creation".
func (m *Manager) Create(ctx context.Context, rc *runctx.Context, proj *project.Project, params CreateParams, log LogSink) (*CreateResult, error) {
	name := rc.ResolveSandboxName(params.Name)
	timeout := defaultCreateTimeout
	if params.TimeoutMs > 0 {
		timeout = time.Duration(params.TimeoutMs) * time.Millisecond
	}

	plan := PlanRuntime(params.Runtime)

	handle, err := m.platform.Create(ctx, timeout, plan.BaseRuntime, params.Ports)
	if err != nil {
		return nil, fmt.Errorf("sandbox create: %w", err)
	}

	m.mu.Lock()
	m.handles[handle.SandboxID()] = handle
	m.mu.Unlock()

	table := rc.SandboxTable(name)
	table.SandboxID = handle.SandboxID()
	table.Runtime = params.Runtime
	table.ExposedPorts = params.Ports
	rc.SetActiveSandbox(name)

	ignored := project.BuildIgnorePredicate(proj)
	if err := m.syncProject(ctx, handle, proj, ignored, log); err != nil {
		return nil, fmt.Errorf("sandbox project sync: %w", err)
	}

	if plan.Synthetic {
		for k, v := range plan.EnvDefaults {
			table.Env[k] = v
		}
		if err := m.bootstrap(ctx, handle, plan, log); err != nil {
			// A bootstrap failure is reported as a log line only: Create
			// still succeeds and the run continues with a partly
			// bootstrapped sandbox.
			log(fmt.Sprintf("bootstrap error: %v", err))
		}
	}

	snapshot, err := m.snapshotFS(ctx, handle, ignored)
	if err == nil {
		table.CurrentFileMeta = snapshot
		table.CurrentFileList = sortedKeys(snapshot)
	}

	m.metrics.IncCounter("sandbox.created", 1, "runtime", params.Runtime)
	return &CreateResult{SandboxID: handle.SandboxID(), Runtime: params.Runtime}, nil
}

// syncProject streams every ignore-filtered file to the sandbox in
// 64-file chunks, retrying each chunk up to 3 times with backoff
// 250ms*2^(attempt-1), per spec.md §4.3 "Project Sync".
func (m *Manager) syncProject(ctx context.Context, handle Handle, proj *project.Project, ignored project.Predicate, log LogSink) error {
	paths := proj.SortedPaths()
	var toSend []FileWrite
	for _, p := range paths {
		if ignored(p) && !isAlwaysSynced(p) {
			continue
		}
		content, _ := proj.Get(p)
		toSend = append(toSend, FileWrite{Path: strings.TrimPrefix(p, "./"), Content: []byte(content)})
	}

	for start := 0; start < len(toSend); start += syncChunkSize {
		end := start + syncChunkSize
		if end > len(toSend) {
			end = len(toSend)
		}
		chunk := toSend[start:end]

		var lastErr error
		for attempt := 1; attempt <= syncMaxAttempts; attempt++ {
			if err := m.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := handle.WriteFiles(ctx, chunk); err != nil {
				lastErr = err
				backoff := syncInitialBackoff * time.Duration(1<<uint(attempt-1))
				log(fmt.Sprintf("project sync chunk %d-%d failed (attempt %d/%d): %v", start, end, attempt, syncMaxAttempts, err))
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			lastErr = nil
			break
		}
		if lastErr != nil {
			return fmt.Errorf("sync chunk %d-%d: %w", start, end, lastErr)
		}
	}
	return nil
}

func isAlwaysSynced(path string) bool {
	return path == ".gitignore" || path == ".agentignore"
}

func (m *Manager) bootstrap(ctx context.Context, handle Handle, plan RuntimePlan, log LogSink) error {
	for _, cmd := range plan.BootstrapCommands {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		var c Cmd
		var err error
		if cmd.Sudo {
			c, err = handle.RunCommandDetached(ctx, cmd.Argv0, cmd.Argv, nil, true)
		} else {
			c, err = handle.RunCommand(ctx, cmd.Argv0, cmd.Argv)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Label, err)
		}
		out, _ := c.Stdout(ctx)
		log(fmt.Sprintf("%s: %s", cmd.Label, out))
		if res, err := c.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", cmd.Label, err)
		} else if res.ExitCode != 0 {
			return fmt.Errorf("%s: exit code %d", cmd.Label, res.ExitCode)
		}
	}
	return nil
}

func (m *Manager) snapshotFS(ctx context.Context, handle Handle, ignored project.Predicate) (map[string]string, error) {
	cmd, err := handle.RunCommand(ctx, "find", []string{handle.Cwd(), "-type", "f", "-printf", "%P\t%T@\t%s\n"})
	if err != nil {
		return nil, err
	}
	out, err := cmd.Stdout(ctx)
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(out, ignored), nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stop looks up the named sandbox, issues remote stop, evicts caches, and
// clears the run's per-name mapping, per spec.md §4.3 "Stop".
func (m *Manager) Stop(ctx context.Context, rc *runctx.Context, name string) error {
	name = rc.ResolveSandboxName(name)
	table := rc.SandboxTable(name)
	if table.SandboxID == "" {
		return fmt.Errorf("no sandbox named %q", name)
	}

	m.mu.Lock()
	handle, ok := m.handles[table.SandboxID]
	delete(m.handles, table.SandboxID)
	m.mu.Unlock()

	if ok {
		if err := handle.Stop(ctx); err != nil {
			m.logger.Warn(ctx, "sandbox stop returned error", "sandbox_id", table.SandboxID, "error", err.Error())
		}
	}
	rc.ClearSandbox(name)
	return nil
}

// StopByID stops a sandbox identified directly by its sandbox_id, without a
// run's per-name table. Used by the play DELETE endpoint, which only ever
// carries a sandbox_id in its query string (spec.md §6 "DELETE play").
func (m *Manager) StopByID(ctx context.Context, sandboxID string) error {
	m.mu.Lock()
	handle, ok := m.handles[sandboxID]
	delete(m.handles, sandboxID)
	m.mu.Unlock()

	if !ok {
		h, err := m.platform.Get(ctx, sandboxID)
		if err != nil {
			return fmt.Errorf("stop %s: %w", sandboxID, err)
		}
		handle = h
	}
	return handle.Stop(ctx)
}

// resolveHandle fetches (from cache, or via platform.Get for cross-run
// adoption) the live handle for a sandbox ID, per spec.md §9 Open
// Questions: an adopted sandbox is treated read/execute-only.
func (m *Manager) resolveHandle(ctx context.Context, sandboxID string) (Handle, error) {
	m.mu.Lock()
	h, ok := m.handles[sandboxID]
	m.mu.Unlock()
	if ok {
		return h, nil
	}
	h, err := m.platform.Get(ctx, sandboxID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.handles[sandboxID] = h
	m.mu.Unlock()
	return h, nil
}

// trimLog keeps the trailing trimmedLogBytes of a log transcript, marking
// truncation, per spec.md §4.3 "Return value".
func trimLog(buf *bytes.Buffer) (string, bool) {
	if buf.Len() <= trimmedLogBytes {
		return buf.String(), false
	}
	all := buf.Bytes()
	return string(all[len(all)-trimmedLogBytes:]), true
}
