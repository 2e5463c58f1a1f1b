// Package model defines the core data types shared by the record and
// report phases: runs, raw records, the four artifact shapes, and the
// scored finding produced by the rule engine.
package model

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Score is a named severity level. The integer value is the base
// weight a rule contributes before the finding-score function scales
// it by how far the observation crosses the rule's threshold.
type Score int

const (
	Critical   Score = -256
	Poor       Score = -16
	Bad        Score = -2
	Concerning Score = -1
	Neutral    Score = 0
	Acceptable Score = 1
	Good       Score = 2
	Great      Score = 16
	Optimal    Score = 256
)

func (s Score) String() string {
	switch s {
	case Critical:
		return "critical"
	case Poor:
		return "poor"
	case Bad:
		return "bad"
	case Concerning:
		return "concerning"
	case Neutral:
		return "neutral"
	case Acceptable:
		return "acceptable"
	case Good:
		return "good"
	case Great:
		return "great"
	case Optimal:
		return "optimal"
	default:
		return "unknown"
	}
}

// FindingScore implements the finding-score function from the
// transformer design: given an observed value and a rule's threshold
// and base score, it scales the base score by how far value crosses
// threshold. Sign of score is preserved.
func FindingScore(value, threshold float64, score Score) float64 {
	base := float64(score)
	if threshold == 0 {
		if value < 1 {
			return base
		}
		return (value - 1) * base
	}
	r := value / threshold
	if r < 1 {
		r = 1 / r
	}
	return r * base
}

// RawRecord is one {timestamp, payload} sample as written by a data
// source's collect step. Payload is the source's native wire form
// (procfs text, PMU counter-group line, …) and is opaque to the
// scheduler and raw log.
type RawRecord struct {
	Timestamp time.Time
	Payload   []byte
}

// Statistics summarizes a representative sample of a metric's values.
type Statistics struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// ValueRange is the visible (min, max) range of a metric's graph.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Series is one named line within a metric: per-CPU, per-device, or
// the cross-dimension aggregate. TimeDiff and Values are parallel
// slices of equal length; TimeDiff is strictly non-decreasing.
type Series struct {
	Name        string    `json:"name,omitempty"`
	TimeDiff    []uint64  `json:"time_diff"`
	Values      []float64 `json:"values"`
	IsAggregate bool      `json:"is_aggregate,omitempty"`
}

// Append adds one (offset, value) point to the series.
func (s *Series) Append(offset uint64, value float64) {
	s.TimeDiff = append(s.TimeDiff, offset)
	s.Values = append(s.Values, value)
}

// Metric is a named family of series sharing a common x-axis (time
// offsets from the run's t0).
type Metric struct {
	Name       string     `json:"name"`
	Series     []Series   `json:"series"`
	ValueRange ValueRange `json:"value_range"`
	Stats      Statistics `json:"stats"`
}

// Aggregate returns the metric's aggregate series, if any.
func (m *Metric) Aggregate() *Series {
	for i := range m.Series {
		if m.Series[i].IsAggregate {
			return &m.Series[i]
		}
	}
	return nil
}

// TimeSeries is the artifact shape for sources whose values evolve
// over the collection window: CPU, disk, network, memory, PMU,
// processes, NUMA, interrupts, vmstat.
type TimeSeries struct {
	Metrics      map[string]*Metric `json:"metrics"`
	SortedNames  []string           `json:"sorted_names"`
}

// NewTimeSeries returns an empty TimeSeries artifact.
func NewTimeSeries() *TimeSeries {
	return &TimeSeries{Metrics: make(map[string]*Metric)}
}

// MetricFor returns the named metric, creating it (and recording its
// name in SortedNames) on first appearance.
func (t *TimeSeries) MetricFor(name string) *Metric {
	m, ok := t.Metrics[name]
	if !ok {
		m = &Metric{Name: name}
		t.Metrics[name] = m
		t.SortedNames = append(t.SortedNames, name)
	}
	return m
}

// KeyValueGroup is one named group of flat key/value pairs.
// KeyValues preserves insertion order (testable property #6: report
// output must be byte-stable across re-assembly), backed by
// github.com/wk8/go-ordered-map/v2 rather than a plain map.
type KeyValueGroup struct {
	KeyValues *orderedmap.OrderedMap[string, string] `json:"key_values"`
}

// KeyValue is the artifact shape for sources that report a flat
// namespace of settings or counters: sysctl, kernel config, system
// info. Group names may encode hierarchy with ":" as a separator.
type KeyValue struct {
	Groups map[string]*KeyValueGroup `json:"groups"`
}

// NewKeyValue returns an empty KeyValue artifact.
func NewKeyValue() *KeyValue {
	return &KeyValue{Groups: make(map[string]*KeyValueGroup)}
}

// GroupFor returns the named group, creating it on first appearance.
func (k *KeyValue) GroupFor(name string) *KeyValueGroup {
	g, ok := k.Groups[name]
	if !ok {
		g = &KeyValueGroup{KeyValues: orderedmap.New[string, string]()}
		k.Groups[name] = g
	}
	return g
}

// FirstGroupWithKey returns the first group (in map iteration order is
// not guaranteed; callers needing determinism should pass an explicit
// group order) containing the given key, and its value.
func (k *KeyValue) FirstGroupWithKey(key string) (string, bool) {
	for _, g := range k.Groups {
		if v, ok := g.KeyValues.Get(key); ok {
			return v, true
		}
	}
	return "", false
}

// Text is the artifact shape for sources whose natural output is a
// sequence of lines: dmesg, top_functions.
type Text struct {
	Lines []string `json:"lines"`
}

// GraphRef names one rendered graphic (e.g. an external flamegraph
// SVG) owned by a run.
type GraphRef struct {
	Name         string `json:"name"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
}

// GraphGroup groups related GraphRefs under one name.
type GraphGroup struct {
	Graphs map[string]GraphRef `json:"graphs"`
}

// Graph is the artifact shape for sources that hand off pre-rendered
// graphics produced by an external collaborator (flamegraph SVGs,
// Java profile HTML).
type Graph struct {
	Groups map[string]*GraphGroup `json:"groups"`
}

// NewGraph returns an empty Graph artifact.
func NewGraph() *Graph {
	return &Graph{Groups: make(map[string]*GraphGroup)}
}

// Artifact is the sum type of the four shapes a data source may
// produce. Exactly one of the fields is non-nil.
type Artifact struct {
	TimeSeries *TimeSeries `json:"time_series,omitempty"`
	KeyValue   *KeyValue   `json:"key_value,omitempty"`
	Text       *Text       `json:"text,omitempty"`
	Graph      *Graph      `json:"graph,omitempty"`
}

// Finding is one scored observation produced by the rule engine,
// attached to (run, key) where key is the metric name or key-value
// key that triggered the rule.
type Finding struct {
	RuleName    string  `json:"rule_name"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
	Message     string  `json:"message"`
	Reference   string  `json:"reference,omitempty"`
}

// Run identifies one named collection session within a report.
type Run struct {
	Name      string
	Directory string
}
