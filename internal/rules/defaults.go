package rules

import "github.com/dmitriimaksimovdevelop/aperf/internal/model"

// DefaultRules returns an Engine pre-loaded with the rule set every
// `report` invocation registers by default: one call per data source,
// each source's own rule-template usage grounded on the corresponding
// analytics entry in original_source.
func DefaultRules() *Engine {
	e := NewEngine()
	for _, rule := range cpuUtilizationRules() {
		e.Register("cpu_utilization", rule)
	}
	for _, rule := range DefaultPMURules() {
		e.Register("pmu", rule)
	}
	return e
}

// cpuUtilizationRules flags runs whose CPU utilization average exceeds
// a saturation threshold, per the teacher's USE-style CPU collector.
func cpuUtilizationRules() []Rule {
	return []Rule{
		{
			Kind:        StatThreshold,
			Name:        "cpu_utilization_saturated",
			Metric:      "total",
			Stat:        StatAvg,
			Comparator:  GreaterThanOrEqual,
			Threshold:   90,
			Score:       model.Bad,
			Description: "Average CPU utilization is at or near saturation.",
		},
	}
}

// DefaultPMURules returns the PMU-specific rule templates, registered
// against the "pmu" data source exactly like any other TimeSeries
// source — no new Kind is needed. Grounded on
// original_source/src/analytics/rules/perf_stat.rs: an IPC regression
// against the base run, plus per-mpki-metric absolute thresholds.
func DefaultPMURules() []Rule {
	return []Rule{
		{
			Kind:        StatRunComparison,
			Name:        "ipc_regression",
			Metric:      "ipc",
			Stat:        StatAvg,
			Comparator:  GreaterThanOrEqual,
			Threshold:   0.1,
			Abs:         true,
			Score:       model.Concerning,
			Description: "IPC moved by more than 10% relative to the base run.",
		},
		{
			Kind:        DataPointThreshold,
			Name:        "data_l1_mpki_high",
			Metric:      "data-l1-mpki",
			Comparator:  GreaterThanOrEqual,
			Threshold:   20,
			Score:       model.Bad,
			Description: "A large number of L1 cache misses means code locality can be improved.",
		},
		{
			Kind:        DataPointThreshold,
			Name:        "l2_mpki_high",
			Metric:      "l2-mpki",
			Comparator:  GreaterThanOrEqual,
			Threshold:   10,
			Score:       model.Bad,
			Description: "A large number of L2 cache misses means code locality can be improved.",
		},
		{
			Kind:        DataPointThreshold,
			Name:        "l3_mpki_high",
			Metric:      "l3-mpki",
			Comparator:  GreaterThanOrEqual,
			Threshold:   2,
			Score:       model.Bad,
			Description: "A large number of L3 cache misses means code locality can be improved.",
		},
	}
}
