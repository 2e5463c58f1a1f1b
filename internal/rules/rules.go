// Package rules implements the analytical rule engine: a closed set of
// tagged rule variants evaluated against a run's processed artifacts to
// produce scored findings.
package rules

import (
	"fmt"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

// Comparator is one of the five relational operators a threshold rule
// may use.
type Comparator string

const (
	LessThan           Comparator = "<"
	LessThanOrEqual    Comparator = "<="
	GreaterThan        Comparator = ">"
	GreaterThanOrEqual Comparator = ">="
	Equal              Comparator = "=="
)

func (c Comparator) match(value, threshold float64) bool {
	switch c {
	case LessThan:
		return value < threshold
	case LessThanOrEqual:
		return value <= threshold
	case GreaterThan:
		return value > threshold
	case GreaterThanOrEqual:
		return value >= threshold
	case Equal:
		return value == threshold
	default:
		return false
	}
}

// Stat names one of the scalar summaries in model.Statistics.
type Stat string

const (
	StatMin Stat = "min"
	StatAvg Stat = "avg"
	StatMax Stat = "max"
	StatP50 Stat = "p50"
	StatP90 Stat = "p90"
	StatP99 Stat = "p99"
)

func (s Stat) value(st model.Statistics) float64 {
	switch s {
	case StatMin:
		return st.Min
	case StatMax:
		return st.Max
	case StatP50:
		return st.P50
	case StatP90:
		return st.P90
	case StatP99:
		return st.P99
	default:
		return st.Avg
	}
}

// Kind discriminates the six rule variants. This is a closed sum type:
// prefer adding a case here and to Rule.evaluate over introducing a new
// rule shape via embedding or interface satisfaction.
type Kind int

const (
	StatThreshold Kind = iota
	DataPointThreshold
	StatRunComparison
	StatIntraRunComparison
	KeyExpected
	KeyRunComparison
)

// Rule is one tagged rule variant. Only the fields relevant to Kind are
// read; the others are ignored.
type Rule struct {
	Kind Kind
	Name string

	// TimeSeries fields (StatThreshold, DataPointThreshold, StatRunComparison)
	Metric     string
	Stat       Stat
	Comparator Comparator
	Threshold  float64
	Abs        bool // StatRunComparison: compare |ratio| instead of signed ratio

	// StatIntraRunComparison: compare Stat of Metric against Stat of BaselineMetric
	BaselineMetric string

	// KeyValue fields (KeyExpected, KeyRunComparison)
	Key      string
	Expected string

	Score       model.Score
	Description string
}

// Key identifies where a Finding is attached: the data source it came
// from, the run it concerns, and the metric name or key-value key that
// triggered it.
type Key struct {
	DataName string
	RunName  string
	Item     string
}

// Findings accumulates findings keyed by (data_name, run_name, key).
// Multiple findings per key are preserved in rule-evaluation order.
type Findings map[Key][]model.Finding

func (f Findings) add(k Key, finding model.Finding) {
	f[k] = append(f[k], finding)
}

// Context carries the single piece of cross-cutting state rule
// evaluation needs: the name of the base run comparison rules measure
// against. This replaces the original's process-wide global, per the
// redesign note in the spec's design section — callers construct one
// Context per report invocation and pass it explicitly.
type Context struct {
	BaseRun string
}

// Engine holds the rules registered per data source, plus evaluates
// them against that source's per-run artifacts.
type Engine struct {
	bySource map[string][]Rule
}

// NewEngine returns an empty rule engine.
func NewEngine() *Engine {
	return &Engine{bySource: make(map[string][]Rule)}
}

// Register appends rule to the sequence evaluated for dataName. Rules
// for one data source run in registration order.
func (e *Engine) Register(dataName string, rule Rule) {
	e.bySource[dataName] = append(e.bySource[dataName], rule)
}

// Evaluate runs every registered rule against artifacts, which maps
// each data source name to that source's artifacts across every run in
// the report, keyed by run name. It returns all findings produced across every registered
// data source.
func (e *Engine) Evaluate(ctx Context, artifacts map[string]map[string]model.Artifact) Findings {
	findings := make(Findings)
	for dataName, runArtifacts := range artifacts {
		for _, rule := range e.bySource[dataName] {
			rule.evaluate(ctx, dataName, runArtifacts, findings)
		}
	}
	return findings
}

func (r Rule) evaluate(ctx Context, dataName string, runs map[string]model.Artifact, out Findings) {
	switch r.Kind {
	case StatThreshold:
		r.evalStatThreshold(dataName, runs, out)
	case DataPointThreshold:
		r.evalDataPointThreshold(dataName, runs, out)
	case StatRunComparison:
		r.evalStatRunComparison(ctx, dataName, runs, out)
	case StatIntraRunComparison:
		r.evalStatIntraRunComparison(dataName, runs, out)
	case KeyExpected:
		r.evalKeyExpected(dataName, runs, out)
	case KeyRunComparison:
		r.evalKeyRunComparison(ctx, dataName, runs, out)
	}
}

func (r Rule) evalStatThreshold(dataName string, runs map[string]model.Artifact, out Findings) {
	for runName, art := range runs {
		if art.TimeSeries == nil {
			continue
		}
		metric, ok := art.TimeSeries.Metrics[r.Metric]
		if !ok {
			continue
		}
		value := r.Stat.value(metric.Stats)
		if !r.Comparator.match(value, r.Threshold) {
			continue
		}
		score := model.FindingScore(value, r.Threshold, r.Score)
		out.add(Key{dataName, runName, r.Metric}, model.Finding{
			RuleName:    r.Name,
			Score:       score,
			Description: r.Description,
			Message:     fmt.Sprintf("%s %s = %.4f (threshold %s %.4f)", r.Metric, r.Stat, value, r.Comparator, r.Threshold),
		})
	}
}

// evalDataPointThreshold scans every point of every series in the named
// metric; if any point matches, it emits one finding for the point
// that produced the largest absolute score.
func (r Rule) evalDataPointThreshold(dataName string, runs map[string]model.Artifact, out Findings) {
	for runName, art := range runs {
		if art.TimeSeries == nil {
			continue
		}
		metric, ok := art.TimeSeries.Metrics[r.Metric]
		if !ok {
			continue
		}
		var (
			best      model.Finding
			bestAbs   float64
			haveBest  bool
			bestValue float64
			bestT     uint64
		)
		for _, series := range metric.Series {
			for i, value := range series.Values {
				if !r.Comparator.match(value, r.Threshold) {
					continue
				}
				score := model.FindingScore(value, r.Threshold, r.Score)
				abs := score
				if abs < 0 {
					abs = -abs
				}
				if !haveBest || abs > bestAbs {
					haveBest = true
					bestAbs = abs
					bestValue = value
					bestT = series.TimeDiff[i]
					best = model.Finding{
						RuleName:    r.Name,
						Score:       score,
						Description: r.Description,
					}
				}
			}
		}
		if !haveBest {
			continue
		}
		best.Message = fmt.Sprintf("%s reached %.4f at t+%ds (threshold %s %.4f)", r.Metric, bestValue, bestT, r.Comparator, r.Threshold)
		out.add(Key{dataName, runName, r.Metric}, best)
	}
}

func (r Rule) evalStatRunComparison(ctx Context, dataName string, runs map[string]model.Artifact, out Findings) {
	baseArt, ok := runs[ctx.BaseRun]
	if !ok || baseArt.TimeSeries == nil {
		return
	}
	baseMetric, ok := baseArt.TimeSeries.Metrics[r.Metric]
	if !ok {
		return
	}
	base := r.Stat.value(baseMetric.Stats)
	if base == 0 {
		return
	}
	for runName, art := range runs {
		if runName == ctx.BaseRun || art.TimeSeries == nil {
			continue
		}
		metric, ok := art.TimeSeries.Metrics[r.Metric]
		if !ok {
			continue
		}
		cur := r.Stat.value(metric.Stats)
		ratio := (cur - base) / base
		compareValue := ratio
		if r.Abs && compareValue < 0 {
			compareValue = -compareValue
		}
		if !r.Comparator.match(compareValue, r.Threshold) {
			continue
		}
		score := model.FindingScore(compareValue, r.Threshold, r.Score)
		out.add(Key{dataName, runName, r.Metric}, model.Finding{
			RuleName:    r.Name,
			Score:       score,
			Description: r.Description,
			Message:     fmt.Sprintf("%s changed %.4f vs base run %q (base=%.4f, cur=%.4f)", r.Metric, ratio, ctx.BaseRun, base, cur),
		})
	}
}

func (r Rule) evalStatIntraRunComparison(dataName string, runs map[string]model.Artifact, out Findings) {
	for runName, art := range runs {
		if art.TimeSeries == nil {
			continue
		}
		baseline, ok := art.TimeSeries.Metrics[r.BaselineMetric]
		if !ok {
			continue
		}
		comparison, ok := art.TimeSeries.Metrics[r.Metric]
		if !ok {
			continue
		}
		baselineValue := r.Stat.value(baseline.Stats)
		if baselineValue == 0 {
			continue
		}
		comparisonValue := r.Stat.value(comparison.Stats)
		ratio := (comparisonValue - baselineValue) / baselineValue
		if !r.Comparator.match(ratio, r.Threshold) {
			continue
		}
		score := model.FindingScore(ratio, r.Threshold, r.Score)
		out.add(Key{dataName, runName, r.Metric}, model.Finding{
			RuleName:    r.Name,
			Score:       score,
			Description: r.Description,
			Message:     fmt.Sprintf("%s vs %s changed %.4f (baseline=%.4f, cur=%.4f)", r.Metric, r.BaselineMetric, ratio, baselineValue, comparisonValue),
		})
	}
}

func (r Rule) evalKeyExpected(dataName string, runs map[string]model.Artifact, out Findings) {
	for runName, art := range runs {
		if art.KeyValue == nil {
			continue
		}
		actual, ok := art.KeyValue.FirstGroupWithKey(r.Key)
		if !ok {
			continue
		}
		if actual == r.Expected {
			continue
		}
		out.add(Key{dataName, runName, r.Key}, model.Finding{
			RuleName:    r.Name,
			Score:       float64(r.Score),
			Description: r.Description,
			Message:     fmt.Sprintf("%s = %q, expected %q", r.Key, actual, r.Expected),
		})
	}
}

func (r Rule) evalKeyRunComparison(ctx Context, dataName string, runs map[string]model.Artifact, out Findings) {
	baseArt, ok := runs[ctx.BaseRun]
	if !ok || baseArt.KeyValue == nil {
		return
	}
	baseValue, ok := baseArt.KeyValue.FirstGroupWithKey(r.Key)
	if !ok {
		return
	}
	for runName, art := range runs {
		if runName == ctx.BaseRun || art.KeyValue == nil {
			continue
		}
		curValue, ok := art.KeyValue.FirstGroupWithKey(r.Key)
		if !ok {
			continue
		}
		if curValue == baseValue {
			continue
		}
		out.add(Key{dataName, runName, r.Key}, model.Finding{
			RuleName:    r.Name,
			Score:       float64(r.Score),
			Description: r.Description,
			Message:     fmt.Sprintf("%s = %q, base run %q has %q", r.Key, curValue, ctx.BaseRun, baseValue),
		})
	}
}
