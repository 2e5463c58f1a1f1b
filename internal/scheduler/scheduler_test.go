package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rawlog"
)

// fakeSource records every Collect invocation for assertions and can
// optionally fail, and optionally implement Preparer/Finisher.
type fakeSource struct {
	name      string
	static    bool
	failAfter int // 0 = never fail

	mu    sync.Mutex
	calls int

	prepared bool
	finished bool
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Static() bool    { return f.static }
func (f *fakeSource) IsProfile() bool { return false }

func (f *fakeSource) Collect(ctx context.Context, env collector.Environment) (model.RawRecord, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.failAfter > 0 && n >= f.failAfter {
		return model.RawRecord{}, errFake
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: []byte("x")}, nil
}

func (f *fakeSource) Transform(records []model.RawRecord, env collector.Environment) (model.Artifact, error) {
	return model.Artifact{}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type errString string

func (e errString) Error() string { return string(e) }

const errFake = errString("fake collect failure")

type preparingSource struct{ *fakeSource }

func (p preparingSource) Prepare(ctx context.Context, env collector.Environment) error {
	p.fakeSource.prepared = true
	return nil
}

type finishingSource struct{ *fakeSource }

func (f finishingSource) Finish(ctx context.Context, env collector.Environment) error {
	f.fakeSource.finished = true
	return nil
}

func testEnv(t *testing.T, interval time.Duration) collector.Environment {
	t.Helper()
	env := collector.DefaultEnvironment()
	env.Interval = interval
	env.RunDirectory = t.TempDir()
	return env
}

func TestStaticSourceCollectsExactlyOnce(t *testing.T) {
	static := &fakeSource{name: "kernel_config", static: true}
	dynamic := &fakeSource{name: "cpu_utilization", static: false}

	env := testEnv(t, 10*time.Millisecond)
	s := New([]collector.Source{static, dynamic}, env, 25*time.Millisecond, true)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := static.callCount(); got != 1 {
		t.Errorf("static source collected %d times, want 1", got)
	}
	if got := dynamic.callCount(); got < 2 {
		t.Errorf("dynamic source collected %d times, want >= 2", got)
	}
}

func TestCollectFailureIsolatesOtherSources(t *testing.T) {
	failing := &fakeSource{name: "flaky", static: false, failAfter: 1}
	healthy := &fakeSource{name: "healthy", static: false}

	env := testEnv(t, 10*time.Millisecond)
	s := New([]collector.Source{failing, healthy}, env, 25*time.Millisecond, true)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := healthy.callCount(); got < 2 {
		t.Errorf("healthy source collected %d times, want >= 2 despite sibling failure", got)
	}
}

func TestPrepareAndFinishHooksInvokedOnce(t *testing.T) {
	base := &fakeSource{name: "pmu", static: false}
	src := struct {
		*fakeSource
		preparingSource
		finishingSource
	}{
		fakeSource:      base,
		preparingSource: preparingSource{base},
		finishingSource: finishingSource{base},
	}

	env := testEnv(t, 10*time.Millisecond)
	s := New([]collector.Source{src}, env, 15*time.Millisecond, true)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !base.prepared {
		t.Error("prepare hook was not invoked")
	}
	if !base.finished {
		t.Error("finish hook was not invoked")
	}
}

func TestRunWritesRawLogPerSource(t *testing.T) {
	src := &fakeSource{name: "vmstat", static: false}
	env := testEnv(t, 10*time.Millisecond)
	s := New([]collector.Source{src}, env, 25*time.Millisecond, true)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(env.RunDirectory, "vmstat_*.bin"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one vmstat log file, got %v", matches)
	}

	records, err := rawlog.ReadAll(matches[0])
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) < 2 {
		t.Errorf("expected >= 2 records, got %d", len(records))
	}
}
