package config

import (
	"testing"
	"time"
)

func TestParseProfileSpec(t *testing.T) {
	spec, err := ParseProfileSpec("java=cpu")
	if err != nil {
		t.Fatalf("ParseProfileSpec: %v", err)
	}
	if spec.Source != "java" || spec.Spec != "cpu" {
		t.Errorf("got %+v, want Source=java Spec=cpu", spec)
	}
}

func TestParseProfileSpecMalformed(t *testing.T) {
	for _, bad := range []string{"noequals", "=cpu", "java="} {
		if _, err := ParseProfileSpec(bad); err == nil {
			t.Errorf("ParseProfileSpec(%q) should have failed", bad)
		}
	}
}

func TestRecordConfigValidate(t *testing.T) {
	valid := RecordConfig{Interval: time.Second, Period: 10 * time.Second, RunName: "run1"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	missingName := valid
	missingName.RunName = ""
	if err := missingName.Validate(); err == nil {
		t.Error("missing run name should fail validation")
	}

	periodTooShort := valid
	periodTooShort.Period = 500 * time.Millisecond
	if err := periodTooShort.Validate(); err == nil {
		t.Error("period shorter than interval should fail validation")
	}
}

func TestReportConfigValidate(t *testing.T) {
	if err := (ReportConfig{}).Validate(); err == nil {
		t.Error("empty run list should fail validation")
	}
	if err := (ReportConfig{Runs: []string{"run1"}}).Validate(); err != nil {
		t.Errorf("valid report config rejected: %v", err)
	}
}
