// aperf — two-phase Linux performance-telemetry tool: record samples
// procfs/PMU/profile data at a fixed cadence; report ingests one or
// more recorded runs, evaluates the analytical rule engine, and
// assembles a static report tree.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/config"
	"github.com/dmitriimaksimovdevelop/aperf/internal/executor"
	"github.com/dmitriimaksimovdevelop/aperf/internal/pmu"
	"github.com/dmitriimaksimovdevelop/aperf/internal/report"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rules"
	"github.com/dmitriimaksimovdevelop/aperf/internal/scheduler"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "aperf",
		Short:   "Linux performance telemetry: record and report",
		Version: version,
	}

	rootCmd.AddCommand(newRecordCmd(), newReportCmd(), newCustomPMUCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func newRecordCmd() *cobra.Command {
	var (
		interval time.Duration
		period   time.Duration
		runName  string
		pmuFile  string
		profiles []string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Sample procfs, PMU counters, and profiling tools on a fixed cadence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.RecordConfig{
				Interval: interval,
				Period:   period,
				RunName:  runName,
				PMUFile:  pmuFile,
				Quiet:    quiet,
			}
			for _, p := range profiles {
				spec, err := config.ParseProfileSpec(p)
				if err != nil {
					return err
				}
				cfg.Profiles = append(cfg.Profiles, spec)
			}
			if cfg.RunName == "" {
				cfg.RunName = "run-" + uuid.NewString()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRecord(cfg)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "sampling interval")
	cmd.Flags().DurationVar(&period, "period", 60*time.Second, "total recording window")
	cmd.Flags().StringVar(&runName, "run-name", "", "name for this recording (random if omitted)")
	cmd.Flags().StringVar(&pmuFile, "pmu-file", "", "path to a JSON file overriding the built-in PMU counter list")
	cmd.Flags().StringArrayVar(&profiles, "profile", nil, "source=spec directive requesting an external profiling tool (e.g. perf=record)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress progress output")
	return cmd
}

func runRecord(cfg config.RecordConfig) error {
	env := collector.DefaultEnvironment()
	env.Interval = cfg.Interval
	env.RunName = cfg.RunName
	env.RunDirectory = cfg.RunName

	sources := scheduler.DefaultSources(env, cfg.PMUFile)

	if len(cfg.Profiles) > 0 {
		session := executor.NewRecordingSession(executor.NewProfileExecutor(false))
		defer session.Close()
		for _, p := range cfg.Profiles {
			sources = append(sources, executor.NewProfileSource(session, p.Source, []string{p.Spec}))
		}
	}

	sched := scheduler.New(sources, env, cfg.Period, cfg.Quiet)
	return sched.Run(context.Background())
}

func newReportCmd() *cobra.Command {
	var (
		runs      []string
		name      string
		baseRun   string
		assetsDir string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Ingest one or more recorded runs and assemble a static report tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.ReportConfig{
				Runs:      runs,
				Name:      name,
				BaseRun:   baseRun,
				AssetsDir: assetsDir,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runReport(cfg)
		},
	}

	cmd.Flags().StringArrayVar(&runs, "run", nil, "a run directory or .tar.gz archive (repeatable)")
	cmd.Flags().StringVar(&name, "name", "report", "output directory for the assembled report tree")
	cmd.Flags().StringVar(&baseRun, "base", "", "run name used as the comparison baseline for run-comparison rules")
	cmd.Flags().StringVar(&assetsDir, "assets", "", "pre-built front-end shell to copy into the report tree")
	return cmd
}

func runReport(cfg config.ReportConfig) error {
	workDir, err := os.MkdirTemp("", "aperf-report-*")
	if err != nil {
		return fmt.Errorf("report: create scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	runInputs, err := report.ResolveRuns(cfg.Runs, workDir)
	if err != nil {
		return err
	}

	env := collector.DefaultEnvironment()
	sources := scheduler.DefaultSources(env, "")
	engine := rules.DefaultRules()

	return report.Assemble(context.Background(), runInputs, sources, env, engine, cfg.BaseRun, cfg.Name, cfg.AssetsDir)
}

func newCustomPMUCmd() *cobra.Command {
	var (
		pmuFile string
		verify  bool
	)

	cmd := &cobra.Command{
		Use:   "custom-pmu",
		Short: "Merge or validate a custom PMU counter-list override file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.CustomPMUConfig{PMUFile: pmuFile, Verify: verify}
			if cfg.PMUFile == "" {
				return fmt.Errorf("custom-pmu: --pmu-file is required")
			}
			return runCustomPMU(cfg)
		},
	}

	cmd.Flags().StringVar(&pmuFile, "pmu-file", "", "path to the JSON PMU override file")
	cmd.Flags().BoolVar(&verify, "verify", false, "validate the file's shape without merging or opening counters")
	return cmd
}

func runCustomPMU(cfg config.CustomPMUConfig) error {
	if cfg.Verify {
		if err := pmu.VerifyConfigFile(cfg.PMUFile); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	}

	id, err := pmu.DetectCPUIdentity("/proc")
	if err != nil {
		return err
	}
	base := pmu.BuiltinCounters(id)
	overrides, err := pmu.LoadOverrides(cfg.PMUFile)
	if err != nil {
		return err
	}
	merged := pmu.MergeByName(base, overrides)
	return pmu.PersistEffectiveConfig(merged, cfg.PMUFile)
}
