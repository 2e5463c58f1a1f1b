package model

import "testing"

func TestFindingScoreZeroThreshold(t *testing.T) {
	if got := FindingScore(0.5, 0, Bad); got != float64(Bad) {
		t.Errorf("FindingScore(0.5, 0, Bad) = %v, want %v", got, Bad)
	}
	if got, want := FindingScore(2, 0, Bad), float64(Bad); got != want {
		t.Errorf("FindingScore(2, 0, Bad) = %v, want %v", got, want)
	}
}

func TestFindingScoreRunComparison(t *testing.T) {
	// S4: base avg=100, other avg=150, ratio=0.5, threshold=0.1, score=Bad.
	got := FindingScore(0.5, 0.1, Bad)
	want := (0.5 / 0.1) * float64(Bad)
	if got != want {
		t.Errorf("FindingScore(0.5, 0.1, Bad) = %v, want %v", got, want)
	}
}

func TestFindingScoreBelowThresholdInverts(t *testing.T) {
	// r < 1 is inverted so "comfortably under threshold" still scales.
	got := FindingScore(0.5, 1.0, Good)
	want := 2.0 * float64(Good)
	if got != want {
		t.Errorf("FindingScore(0.5, 1.0, Good) = %v, want %v", got, want)
	}
}

func TestTimeSeriesMetricForCreatesOnce(t *testing.T) {
	ts := NewTimeSeries()
	m1 := ts.MetricFor("user")
	m2 := ts.MetricFor("user")
	if m1 != m2 {
		t.Errorf("MetricFor did not return the same metric on second call")
	}
	if len(ts.SortedNames) != 1 || ts.SortedNames[0] != "user" {
		t.Errorf("SortedNames = %v, want [user]", ts.SortedNames)
	}
	ts.MetricFor("idle")
	if len(ts.SortedNames) != 2 || ts.SortedNames[1] != "idle" {
		t.Errorf("SortedNames = %v, want [user idle]", ts.SortedNames)
	}
}

func TestMetricAggregate(t *testing.T) {
	m := &Metric{Name: "user"}
	m.Series = append(m.Series, Series{Name: "cpu0"})
	m.Series = append(m.Series, Series{Name: "Aggregate", IsAggregate: true})
	agg := m.Aggregate()
	if agg == nil || agg.Name != "Aggregate" {
		t.Fatalf("Aggregate() = %v, want the Aggregate series", agg)
	}
}

func TestKeyValueFirstGroupWithKey(t *testing.T) {
	kv := NewKeyValue()
	kv.GroupFor("kernel:mm").KeyValues.Set("CONFIG_TRANSPARENT_HUGEPAGE", "n")
	v, ok := kv.FirstGroupWithKey("CONFIG_TRANSPARENT_HUGEPAGE")
	if !ok || v != "n" {
		t.Errorf("FirstGroupWithKey = (%q, %v), want (n, true)", v, ok)
	}
	if _, ok := kv.FirstGroupWithKey("missing"); ok {
		t.Errorf("FirstGroupWithKey(missing) found a value, want none")
	}
}
