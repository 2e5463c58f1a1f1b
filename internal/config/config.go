// Package config parses and validates the CLI-facing configuration for
// the record, report, and custom-pmu commands.
package config

import (
	"fmt"
	"strings"
	"time"
)

// RecordConfig holds the parameters of the `record` command.
type RecordConfig struct {
	Interval time.Duration
	Period   time.Duration
	RunName  string
	PMUFile  string
	Profiles []ProfileSpec
	Quiet    bool
}

// ProfileSpec is one `--profile <source>=<spec>` directive requesting
// an external profiling tool be driven alongside the periodic sources.
// Source names the tool binary that is run and Spec is passed to it as
// its single argument (e.g. "perf=record" runs `perf record`).
type ProfileSpec struct {
	Source string
	Spec   string
}

// ParseProfileSpec parses a single "source=spec" CLI argument.
func ParseProfileSpec(arg string) (ProfileSpec, error) {
	parts := strings.SplitN(arg, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ProfileSpec{}, fmt.Errorf("config: malformed --profile argument %q, want source=spec", arg)
	}
	return ProfileSpec{Source: parts[0], Spec: parts[1]}, nil
}

// Validate checks the record configuration's internal consistency.
func (c RecordConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("config: --interval must be positive, got %s", c.Interval)
	}
	if c.Period <= 0 {
		return fmt.Errorf("config: --period must be positive, got %s", c.Period)
	}
	if c.Period < c.Interval {
		return fmt.Errorf("config: --period (%s) must be >= --interval (%s)", c.Period, c.Interval)
	}
	if c.RunName == "" {
		return fmt.Errorf("config: --run-name is required")
	}
	return nil
}

// ReportConfig holds the parameters of the `report` command.
type ReportConfig struct {
	Runs      []string
	Name      string
	BaseRun   string
	AssetsDir string
}

func (c ReportConfig) Validate() error {
	if len(c.Runs) == 0 {
		return fmt.Errorf("config: report requires at least one --run")
	}
	return nil
}

// CustomPMUConfig holds the parameters of the `custom-pmu` command.
type CustomPMUConfig struct {
	PMUFile string
	Verify  bool
}
