// Package report implements the report assembler: run resolution,
// per-source artifact replay, the rule engine pass, dependency
// ordering of metric names, and emission of the static report tree.
package report

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/output"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rawlog"
	"github.com/dmitriimaksimovdevelop/aperf/internal/rules"
)

// BuildArtifacts replays every source's raw log for one run and
// returns its artifact, keyed by source name. A source with no
// matching log file on disk is silently omitted — not every run
// collects every source (e.g. profile-only runs).
func BuildArtifacts(sources []collector.Source, run RunInput, env collector.Environment) (map[string]model.Artifact, error) {
	artifacts := make(map[string]model.Artifact)
	runEnv := env
	runEnv.RunDirectory = run.Directory
	runEnv.RunName = run.Name

	for _, src := range sources {
		matches, err := filepath.Glob(filepath.Join(run.Directory, src.Name()+"_*.bin"))
		if err != nil {
			return nil, fmt.Errorf("report: glob %s: %w", src.Name(), err)
		}
		if len(matches) == 0 {
			continue
		}

		records, err := rawlog.ReadAll(matches[0])
		if err != nil && err != rawlog.ErrTruncated {
			return nil, fmt.Errorf("report: read %s: %w", matches[0], err)
		}

		artifact, terr := src.Transform(records, runEnv)
		if terr != nil {
			return nil, fmt.Errorf("report: transform %s for run %s: %w", src.Name(), run.Name, terr)
		}
		artifacts[src.Name()] = artifact
	}
	return artifacts, nil
}

// sourceOrder returns the sorted metric names a run contributed for
// the given source, or nil if the run has no TimeSeries artifact for
// it.
func sourceOrder(artifacts map[string]model.Artifact, sourceName string) []string {
	art, ok := artifacts[sourceName]
	if !ok || art.TimeSeries == nil {
		return nil
	}
	return art.TimeSeries.SortedNames
}

// mergeValueRange widens base to also cover other.
func mergeValueRange(base, other model.ValueRange, haveBase bool) model.ValueRange {
	if !haveBase {
		return other
	}
	if other.Min < base.Min {
		base.Min = other.Min
	}
	if other.Max > base.Max {
		base.Max = other.Max
	}
	return base
}

// sourceRawData is the shape serialized to data/js/<source>.js: the
// source name, its dependency-ordered metric names, and the per-run
// artifacts with merged value ranges.
type sourceRawData struct {
	Name          string                    `json:"name"`
	SortedNames   []string                  `json:"sorted_names,omitempty"`
	Runs          map[string]model.Artifact `json:"runs"`
	ValueRanges   map[string]model.ValueRange `json:"value_ranges,omitempty"`
}

// Assemble builds the full report tree at outDir: per-run artifact
// replay, rule evaluation, dependency-ordered metric names per
// source, merged value ranges, and the data/js/*.js + data/archive/*
// outputs. assetsDir, if non-empty, is a pre-built front-end shell
// (index.html/css/js, js/utils.js, js/plotly.js, images/) copied
// verbatim — the shell itself is an external collaborator this core
// does not implement.
func Assemble(ctx context.Context, runs []RunInput, sources []collector.Source, env collector.Environment, engine *rules.Engine, baseRun string, outDir string, assetsDir string) error {
	perRunArtifacts := make(map[string]map[string]model.Artifact, len(runs))
	for _, run := range runs {
		artifacts, err := BuildArtifacts(sources, run, env)
		if err != nil {
			return err
		}
		perRunArtifacts[run.Name] = artifacts
	}

	// Re-key by source name for the rule engine and JS emission: the
	// engine and the per-source output both need "source -> run ->
	// artifact", the transpose of what replay naturally produces.
	bySource := make(map[string]map[string]model.Artifact)
	for runName, artifacts := range perRunArtifacts {
		for sourceName, art := range artifacts {
			if bySource[sourceName] == nil {
				bySource[sourceName] = make(map[string]model.Artifact)
			}
			bySource[sourceName][runName] = art
		}
	}

	findings := engine.Evaluate(rules.Context{BaseRun: baseRun}, bySource)

	if assetsDir != "" {
		if err := copyTree(assetsDir, outDir); err != nil {
			return fmt.Errorf("report: copy front-end assets: %w", err)
		}
	}

	runNames := make([]string, 0, len(runs))
	for _, run := range runs {
		runNames = append(runNames, run.Name)
		archivePath := filepath.Join(outDir, "data", "archive", run.Name+".tar.gz")
		if err := CreateTarGz(run.Directory, archivePath); err != nil {
			return fmt.Errorf("report: archive run %s: %w", run.Name, err)
		}
	}
	if err := output.WriteJSVar(filepath.Join(outDir, "data", "js", "runs.js"), "runs_raw", runNames); err != nil {
		return err
	}

	for sourceName, runArtifacts := range bySource {
		perRunOrders := make(map[string][]string, len(runArtifacts))
		valueRanges := make(map[string]model.ValueRange)
		haveRange := make(map[string]bool)

		for runName, art := range runArtifacts {
			perRunOrders[runName] = sourceOrder(perRunArtifacts[runName], sourceName)
			if art.TimeSeries == nil {
				continue
			}
			for metricName, metric := range art.TimeSeries.Metrics {
				valueRanges[metricName] = mergeValueRange(valueRanges[metricName], metric.ValueRange, haveRange[metricName])
				haveRange[metricName] = true
			}
		}

		order, err := TopologicalOrder(perRunOrders)
		if err != nil {
			return fmt.Errorf("report: dependency order for %s: %w", sourceName, err)
		}

		data := sourceRawData{
			Name:        sourceName,
			SortedNames: order,
			Runs:        runArtifacts,
			ValueRanges: valueRanges,
		}
		varName := sourceName + "_raw_data"
		path := filepath.Join(outDir, "data", "js", sourceName+".js")
		if err := output.WriteJSVar(path, varName, data); err != nil {
			return err
		}
	}

	analyticsPath := filepath.Join(outDir, "data", "js", "analytics.js")
	if err := output.WriteJSVar(analyticsPath, "raw_analytics", findingsByKey(findings)); err != nil {
		return err
	}

	return nil
}

// findingsByKey flattens rules.Findings into a JSON-friendly shape:
// data_name -> run_name -> key -> []Finding.
func findingsByKey(findings rules.Findings) map[string]map[string]map[string][]model.Finding {
	out := make(map[string]map[string]map[string][]model.Finding)
	for k, list := range findings {
		if out[k.DataName] == nil {
			out[k.DataName] = make(map[string]map[string][]model.Finding)
		}
		if out[k.DataName][k.RunName] == nil {
			out[k.DataName][k.RunName] = make(map[string][]model.Finding)
		}
		out[k.DataName][k.RunName][k.Item] = list
	}
	return out
}
