// Package collector defines the Source interface implemented by every
// data source (procfs counters, PMU groups, process snapshots, …) and
// the registry the scheduler drives.
package collector

import (
	"context"
	"os/exec"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/observer"
)

// CommandRunner abstracts external command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner is the default CommandRunner using os/exec.
type ExecCommandRunner struct{}

func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Source is a registered capability identified by a stable name. It
// collects one raw record per invocation and later transforms the
// accumulated raw log for a run into exactly one Artifact shape.
type Source interface {
	// Name is the stable identifier used in file names, findings keys,
	// and report artifact paths, e.g. "cpu_utilization".
	Name() string

	// Static sources are sampled exactly once, immediately before the
	// periodic loop starts. Dynamic sources are sampled on every tick.
	Static() bool

	// IsProfile marks sources that wrap an external profiling tool
	// (perf, asprof, jfrconv) rather than reading procfs directly.
	IsProfile() bool

	// Collect produces one raw record from the current system state.
	Collect(ctx context.Context, env Environment) (model.RawRecord, error)

	// Transform replays a run's raw records into the source's artifact.
	Transform(records []model.RawRecord, env Environment) (model.Artifact, error)
}

// Preparer is implemented by sources that need a hook invoked once
// before the first tick (e.g. opening PMU counter groups).
type Preparer interface {
	Prepare(ctx context.Context, env Environment) error
}

// Finisher is implemented by sources that need a hook invoked once
// after the last tick (e.g. closing PMU counter groups, reaping
// profiling child processes).
type Finisher interface {
	Finish(ctx context.Context, env Environment) error
}

// Environment carries the ambient collection context passed to every
// Source method: the procfs/sysfs roots, sampling cadence, and the
// observer-effect PID tracker.
type Environment struct {
	// ProcRoot and SysRoot are the procfs/sysfs mount points. Tests
	// override these with fixture directories.
	ProcRoot string
	SysRoot  string

	// Interval is the configured tick period.
	Interval time.Duration

	// HZ is the kernel's clock tick rate, used to convert jiffy-based
	// counters to wall time. DefaultEnvironment sets it to 100; it is
	// not read from the running kernel.
	HZ int64

	// RunName and RunDirectory identify the current collection run.
	RunName      string
	RunDirectory string

	// PIDTracker excludes aperf's own PID and any spawned profiling
	// tool PIDs from process-oriented collectors.
	PIDTracker *observer.PIDTracker

	// Runner executes external commands; overridable for tests.
	Runner CommandRunner
}

// DefaultEnvironment returns an Environment with production defaults.
func DefaultEnvironment() Environment {
	return Environment{
		ProcRoot: "/proc",
		SysRoot:  "/sys",
		Interval: time.Second,
		HZ:       100,
		Runner:   &ExecCommandRunner{},
	}
}
