package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rawlog"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rules"
)

func mkRunDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestResolveRunsPlainDirectories(t *testing.T) {
	a := mkRunDir(t, "run-a")
	b := mkRunDir(t, "run-b")

	runs, err := ResolveRuns([]string{a, b}, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestResolveRunsDuplicateNameFails(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "dup")
	b := filepath.Join(base, "other", "dup")
	os.MkdirAll(a, 0o755)
	os.MkdirAll(b, 0o755)

	if _, err := ResolveRuns([]string{a, b}, t.TempDir()); err == nil {
		t.Fatal("expected a duplicate-name error")
	}
}

func TestResolveRunsArchiveRoundTrip(t *testing.T) {
	srcDir := mkRunDir(t, "run-x")
	if err := os.WriteFile(filepath.Join(srcDir, "cpu_utilization_2026-01-01_00_00_00.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(t.TempDir(), "run-x.tar.gz")
	if err := CreateTarGz(srcDir, archivePath); err != nil {
		t.Fatalf("CreateTarGz: %v", err)
	}

	runs, err := ResolveRuns([]string{archivePath}, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Name != "run-x" {
		t.Fatalf("got %+v, want one run named run-x", runs)
	}

	data, err := os.ReadFile(filepath.Join(runs[0].Directory, "cpu_utilization_2026-01-01_00_00_00.bin"))
	if err != nil {
		t.Fatalf("extracted log missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("extracted payload = %q, want %q", data, "payload")
	}
}

func TestBuildArtifactsSkipsSourceWithNoLog(t *testing.T) {
	run := RunInput{Name: "run1", Directory: mkRunDir(t, "run1")}
	env := collector.DefaultEnvironment()

	artifacts, err := BuildArtifacts([]collector.Source{collector.NewCPUSource(env.ProcRoot)}, run, env)
	if err != nil {
		t.Fatalf("BuildArtifacts: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("expected no artifacts when no log file exists, got %v", artifacts)
	}
}

func TestAssembleEndToEnd(t *testing.T) {
	env := collector.DefaultEnvironment()
	src := collector.NewCPUSource(env.ProcRoot)

	runDir := mkRunDir(t, "run1")
	w, err := rawlog.Create(filepath.Join(runDir, "cpu_utilization_2026-01-01_00_00_00.bin"))
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: []byte("cpu0 0 0 0 1000 0 0 0 0 0 0\n")},
		{Timestamp: t0.Add(time.Second), Payload: []byte("cpu0 200 0 0 1800 0 0 0 0 0 0\n")},
	}
	for _, r := range records {
		if err := w.Append(r); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()

	runs := []RunInput{{Name: "run1", Directory: runDir}}
	engine := rules.NewEngine()
	outDir := filepath.Join(t.TempDir(), "out")

	if err := Assemble(context.Background(), runs, []collector.Source{src}, env, engine, "run1", outDir, ""); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	for _, want := range []string{
		filepath.Join("data", "js", "runs.js"),
		filepath.Join("data", "js", "cpu_utilization.js"),
		filepath.Join("data", "js", "analytics.js"),
		filepath.Join("data", "archive", "run1.tar.gz"),
	} {
		if _, err := os.Stat(filepath.Join(outDir, want)); err != nil {
			t.Errorf("missing expected output %s: %v", want, err)
		}
	}
}
