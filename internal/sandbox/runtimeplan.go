package sandbox

import "strings"

// RuntimePlan is a compiled "base image + bootstrap commands + env
// defaults" for a requested symbolic runtime name, per spec.md §9
// ("Synthetic runtimes are first-class, not error cases").
type RuntimePlan struct {
	// BaseRuntime is the runtime string actually requested from the
	// platform's Create call (a native runtime base for synthetic ones).
	BaseRuntime string
	// Synthetic indicates the requested runtime is not natively supported
	// and requires bootstrap commands after creation.
	Synthetic bool
	// BootstrapCommands run, in order, immediately after project sync.
	BootstrapCommands []BootstrapCommand
	// EnvDefaults are persisted into the sandbox's per-name env table.
	EnvDefaults map[string]string
}

// BootstrapCommand is one elevated setup command run during synthetic
// runtime bootstrap, tagged so its output can be attributed in logs.
type BootstrapCommand struct {
	Argv0 string
	Argv  []string
	Sudo  bool
	Label string
}

// nativeRuntimes are passed straight through to the platform's Create call.
var nativeRuntimes = map[string]bool{
	"node22":    true,
	"python3.13": true,
}

// PlanRuntime compiles a RuntimePlan for the requested symbolic runtime
// name. Synthetic "ruby*"/"go*" runtimes are created on a node base and
// then bootstrapped per spec.md §4.3 step 4.
func PlanRuntime(runtime string) RuntimePlan {
	switch {
	case nativeRuntimes[runtime]:
		return RuntimePlan{BaseRuntime: runtime}
	case strings.HasPrefix(runtime, "ruby"):
		return rubyPlan()
	case strings.HasPrefix(runtime, "go"):
		return goPlan()
	case runtime == "":
		return RuntimePlan{BaseRuntime: "node22"}
	default:
		// Unknown runtime names are passed through verbatim; the platform
		// may support runtimes this repo doesn't know about synthesizing.
		return RuntimePlan{BaseRuntime: runtime}
	}
}

func rubyPlan() RuntimePlan {
	return RuntimePlan{
		BaseRuntime: "node22",
		Synthetic:   true,
		BootstrapCommands: []BootstrapCommand{
			{Argv0: "apt-get", Argv: []string{"install", "-y", "ruby3.2", "ruby3.2-dev"}, Sudo: true, Label: "install ruby 3.2"},
			{Argv0: "ruby", Argv: []string{"--version"}, Label: "ruby --version"},
			{Argv0: "gem", Argv: []string{"install", "rubygems-update", "bundler"}, Sudo: true, Label: "install rubygems + bundler"},
			{Argv0: "bundle", Argv: []string{"config", "set", "--local", "path", "vendor/bundle"}, Label: "configure bundler local path"},
			{Argv0: "bash", Argv: []string{"-c", "test -f Gemfile || bundle init"}, Label: "initialize gemfile"},
			{Argv0: "bundle", Argv: []string{"add", "rack", "puma"}, Label: "add rack + puma"},
			{Argv0: "bundle", Argv: []string{"install"}, Label: "bundle install"},
			{Argv0: "bundle", Argv: []string{"binstubs", "--all"}, Label: "generate binstubs"},
		},
		EnvDefaults: map[string]string{
			"BUNDLE_PATH": "vendor/bundle",
			"PATH":        "./bin:$PATH",
		},
	}
}

func goPlan() RuntimePlan {
	return RuntimePlan{
		BaseRuntime: "node22",
		Synthetic:   true,
		BootstrapCommands: []BootstrapCommand{
			{Argv0: "apt-get", Argv: []string{"install", "-y", "golang", "git"}, Sudo: true, Label: "install golang + git"},
			{Argv0: "go", Argv: []string{"version"}, Label: "go version"},
		},
		EnvDefaults: map[string]string{
			"GOPATH": "/root/go",
			"PATH":   "/usr/local/go/bin:$PATH",
		},
	}
}
