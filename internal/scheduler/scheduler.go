// Package scheduler drives the record phase: a single-threaded
// cooperative loop that samples every registered data source at a
// fixed cadence and appends each successful collect to that source's
// raw log.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/observer"
	"github.com/dmitriimaksimovdevelop/aperf/internal/output"
	"github.com/dmitriimaksimovdevelop/aperf/internal/pmu"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rawlog"
)

// aperfSourceName is the synthetic data source the scheduler uses to
// record its own per-source collect/serialize latencies, per spec §4.1.
const aperfSourceName = "aperf"

// Scheduler coordinates every registered Source sequentially, once per
// tick, for the duration of one recording window.
type Scheduler struct {
	sources  []collector.Source
	env      collector.Environment
	period   time.Duration
	progress *output.Progress

	writers map[string]*rawlog.Writer
}

// New returns a Scheduler that will drive sources for the given window
// using env (whose Interval field sets the tick period).
func New(sources []collector.Source, env collector.Environment, period time.Duration, quiet bool) *Scheduler {
	return &Scheduler{
		sources:  sources,
		env:      env,
		period:   period,
		progress: output.NewProgress(!quiet),
		writers:  make(map[string]*rawlog.Writer),
	}
}

// Run executes the full record-phase contract: static sources collect
// once, then the periodic loop drives every dynamic source every tick
// until the window elapses or ctx is cancelled, then every open log is
// flushed and closed. It never returns before every writer is closed,
// even on error, so a partial run is still report-able.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			s.progress.Log("received %v, ending collection window early", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	if err := os.MkdirAll(s.env.RunDirectory, 0o755); err != nil {
		return fmt.Errorf("scheduler: create run directory: %w", err)
	}

	defer s.closeWriters()

	tracker := s.env.PIDTracker
	if tracker == nil {
		tracker = observer.NewPIDTracker(s.env.HZ)
		s.env.PIDTracker = tracker
	}
	tracker.SnapshotBefore()

	if err := s.runPrepareHooks(ctx); err != nil {
		return err
	}

	if err := s.collectStaticSources(ctx); err != nil {
		s.progress.Log("static source collection error: %v", err)
	}

	if err := s.runPeriodicLoop(ctx); err != nil {
		return err
	}

	s.runFinishHooks(ctx)

	overhead := tracker.SnapshotAfter()
	s.progress.Log("collection complete: self_cpu_ms=%d+%d rss=%dB",
		overhead.CPUUserMs, overhead.CPUSystemMs, overhead.MemoryRSSBytes)

	return nil
}

func (s *Scheduler) runPrepareHooks(ctx context.Context) error {
	for _, src := range s.sources {
		p, ok := src.(collector.Preparer)
		if !ok {
			continue
		}
		if err := p.Prepare(ctx, s.env); err != nil {
			// prepare-failed: fatal for this source, collection continues for others.
			s.progress.Log("  [%s] prepare-failed: %v", src.Name(), err)
		}
	}
	return nil
}

func (s *Scheduler) runFinishHooks(ctx context.Context) {
	for _, src := range s.sources {
		f, ok := src.(collector.Finisher)
		if !ok {
			continue
		}
		if err := f.Finish(ctx, s.env); err != nil {
			s.progress.Log("  [%s] finish error: %v", src.Name(), err)
		}
	}
}

func (s *Scheduler) collectStaticSources(ctx context.Context) error {
	for _, src := range s.sources {
		if !src.Static() {
			continue
		}
		if err := s.collectOne(ctx, src); err != nil {
			s.progress.Log("  [%s] collect-failed: %v", src.Name(), err)
		}
	}
	return nil
}

// runPeriodicLoop drives dynamic sources on a monotonic interval timer
// until the configured window has elapsed. Tick N fires at N*interval
// elapsed time; the window ends at the first tick whose elapsed time
// is >= the window length. If more than one interval elapses between
// wake-ups, the skipped ticks are logged and not caught up.
func (s *Scheduler) runPeriodicLoop(ctx context.Context) error {
	dynamic := make([]collector.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if !src.Static() {
			dynamic = append(dynamic, src)
		}
	}
	if len(dynamic) == 0 {
		return nil
	}

	interval := s.env.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	tickN := int64(0)
	lastTick := start

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			skew := now.Sub(lastTick)
			k := int64(skew / interval)
			if k > 1 {
				s.progress.Log("timer-skew: missed %d tick(s)", k-1)
			}
			lastTick = now
			tickN++

			for _, src := range dynamic {
				if err := s.collectOne(ctx, src); err != nil {
					s.progress.Log("  [%s] collect-failed: %v", src.Name(), err)
				}
			}

			if s.period > 0 && elapsed >= s.period {
				return nil
			}
		}
	}
}

// collectOne runs one source's collect step, serializes the resulting
// record to that source's log, and times both steps for the synthetic
// "aperf" timing source.
func (s *Scheduler) collectOne(ctx context.Context, src collector.Source) error {
	collectStart := time.Now()
	rec, err := src.Collect(ctx, s.env)
	collectMicros := time.Since(collectStart).Microseconds()
	if err != nil {
		return err
	}

	serializeStart := time.Now()
	w, werr := s.writerFor(src.Name())
	if werr != nil {
		return fmt.Errorf("serialize-failed: %w", werr)
	}
	if err := w.Append(rec); err != nil {
		return fmt.Errorf("serialize-failed: %w", err)
	}
	serializeMicros := time.Since(serializeStart).Microseconds()

	s.recordTiming(src.Name(), "collect_us", float64(collectMicros))
	s.recordTiming(src.Name(), "serialize_us", float64(serializeMicros))
	return nil
}

// recordTiming appends a synthetic record to the "aperf" timing
// source's own log, one line per (source, phase, microseconds) sample.
func (s *Scheduler) recordTiming(sourceName, phase string, micros float64) {
	w, err := s.writerFor(aperfSourceName)
	if err != nil {
		return
	}
	line := fmt.Sprintf("%s.%s=%.0f\n", sourceName, phase, micros)
	_ = w.Append(model.RawRecord{Timestamp: time.Now(), Payload: []byte(line)})
}

// writerFor returns (creating on first use) the log writer for the
// named source, opened at <run_directory>/<name>_<timestamp>.bin.
func (s *Scheduler) writerFor(name string) (*rawlog.Writer, error) {
	if w, ok := s.writers[name]; ok {
		return w, nil
	}
	path := filepath.Join(s.env.RunDirectory, fmt.Sprintf("%s_%s.bin", name, time.Now().Format("2006-01-02_15_04_05")))
	w, err := rawlog.Create(path)
	if err != nil {
		return nil, err
	}
	s.writers[name] = w
	return w, nil
}

func (s *Scheduler) closeWriters() {
	for name, w := range s.writers {
		if err := w.Close(); err != nil {
			s.progress.Log("  [%s] error closing log: %v", name, err)
		}
	}
}

// DefaultSources returns the standard set of data sources registered
// for a record session, in the registration order the scheduler
// visits them each tick. pmuOverridePath may be empty, in which case
// the PMU manager uses only its built-in vendor/model counter list.
func DefaultSources(env collector.Environment, pmuOverridePath string) []collector.Source {
	return []collector.Source{
		collector.NewSystemInfoSource(env.ProcRoot),
		collector.NewSysctlSource(env.ProcRoot),
		collector.NewKernelConfigSource("/boot", ""),
		collector.NewCPUSource(env.ProcRoot),
		collector.NewDiskSource(env.ProcRoot),
		collector.NewMeminfoSource(env.ProcRoot),
		collector.NewVmstatSource(env.ProcRoot),
		collector.NewInterruptsSource(env.ProcRoot),
		collector.NewNetstatSource(env.ProcRoot),
		collector.NewNUMASource(env.SysRoot),
		collector.NewProcessesSource(env.ProcRoot),
		pmu.NewManager(env.ProcRoot, env.SysRoot, pmuOverridePath),
	}
}
