package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSVarWrapsAssignment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "js", "runs.js")

	if err := WriteJSVar(path, "runs_raw", []string{"run1", "run2"}); err != nil {
		t.Fatalf("WriteJSVar: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "runs_raw = ") {
		t.Errorf("content does not start with variable assignment: %q", content)
	}
	if !strings.HasSuffix(content, ";\n") {
		t.Errorf("content does not end with terminator: %q", content)
	}
	if !strings.Contains(content, `"run1"`) {
		t.Errorf("content missing run1: %q", content)
	}
}

func TestWriteJSVarCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c", "cpu_utilization.js")

	if err := WriteJSVar(path, "cpu_utilization_raw_data", map[string]int{"x": 1}); err != nil {
		t.Fatalf("WriteJSVar: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}
