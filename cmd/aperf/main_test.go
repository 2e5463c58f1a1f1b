package main

import (
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/config"
)

func TestRecordConfigValidateRequiresPositiveDurations(t *testing.T) {
	cfg := config.RecordConfig{Interval: 0, Period: time.Second, RunName: "r"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestRecordConfigValidatePeriodMustCoverInterval(t *testing.T) {
	cfg := config.RecordConfig{Interval: 2 * time.Second, Period: time.Second, RunName: "r"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when period < interval")
	}
}

func TestRecordConfigValidateOK(t *testing.T) {
	cfg := config.RecordConfig{Interval: time.Second, Period: 60 * time.Second, RunName: "r"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseProfileSpec(t *testing.T) {
	spec, err := config.ParseProfileSpec("java=cpu")
	if err != nil {
		t.Fatalf("ParseProfileSpec: %v", err)
	}
	if spec.Source != "java" || spec.Spec != "cpu" {
		t.Errorf("got %+v", spec)
	}
}

func TestParseProfileSpecRejectsMalformed(t *testing.T) {
	if _, err := config.ParseProfileSpec("no-equals-sign"); err == nil {
		t.Error("expected error for malformed --profile argument")
	}
}

func TestReportConfigValidateRequiresRuns(t *testing.T) {
	cfg := config.ReportConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when no --run given")
	}
}

func TestReportConfigValidateOK(t *testing.T) {
	cfg := config.ReportConfig{Runs: []string{"run-1"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
