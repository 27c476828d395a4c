// Package report ranks workflows and renders run results as Markdown, HTML
// and XLSX workbooks.
package report

import (
	"math"
	"sort"

	"colliderlab/domain/core"
	"colliderlab/domain/experiment"
)

// Entry is one cell of the metric table with its rank among the
// evaluations of the same study
type Entry struct {
	Study       string
	Workflow    core.WorkflowID
	VariableSet string
	Model       string
	Metric      experiment.MetricName
	Value       float64
	Rank        int
}

// Delta is the change from the baseline set to the confounder set for one
// model kind and metric
type Delta struct {
	Study      string
	Model      string
	Metric     experiment.MetricName
	Baseline   float64
	Confounder float64
	Change     float64
	// Improved is true when the confounder set scores at least as well
	Improved bool
}

// Comparison is the ranked metric table of a run
type Comparison struct {
	Entries []Entry
	Deltas  []Delta
}

// Compare ranks every evaluation per study and metric (1 is best, NaN
// last) and pairs baseline with confounder workflows of the same model
func Compare(run *experiment.RunResult) Comparison {
	var c Comparison
	for _, study := range run.Studies {
		for _, metric := range experiment.AllMetrics {
			entries := make([]Entry, 0, len(study.Evaluations))
			for _, e := range study.Evaluations {
				entries = append(entries, Entry{
					Study:       study.Name,
					Workflow:    e.Workflow.ID,
					VariableSet: e.Workflow.VariableSet.Name,
					Model:       e.Workflow.ModelKind,
					Metric:      metric,
					Value:       value(e.Metrics, metric),
				})
			}
			sort.SliceStable(entries, func(i, j int) bool {
				return metric.Better(entries[i].Value, entries[j].Value)
			})
			for i := range entries {
				entries[i].Rank = i + 1
			}
			c.Entries = append(c.Entries, entries...)
		}
		c.Deltas = append(c.Deltas, deltas(study)...)
	}
	return c
}

func value(m experiment.Metrics, name experiment.MetricName) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return math.NaN()
}

func deltas(study experiment.StudyResult) []Delta {
	var out []Delta
	seen := make(map[string]bool)
	for _, e := range study.Evaluations {
		model := e.Workflow.ModelKind
		if seen[model] {
			continue
		}
		seen[model] = true
		base, ok := study.Evaluation(core.NewWorkflowID(study.BaselineSet, model))
		if !ok {
			continue
		}
		conf, ok := study.Evaluation(core.NewWorkflowID(study.ConfounderSet, model))
		if !ok {
			continue
		}
		for _, metric := range experiment.AllMetrics {
			b, cv := value(base.Metrics, metric), value(conf.Metrics, metric)
			out = append(out, Delta{
				Study:      study.Name,
				Model:      model,
				Metric:     metric,
				Baseline:   b,
				Confounder: cv,
				Change:     cv - b,
				Improved:   cv == b || metric.Better(cv, b),
			})
		}
	}
	return out
}

// Ranking returns the entries of one study and metric, best first
func (c Comparison) Ranking(study string, metric experiment.MetricName) []Entry {
	var out []Entry
	for _, e := range c.Entries {
		if e.Study == study && e.Metric == metric {
			out = append(out, e)
		}
	}
	return out
}

// Rank returns the rank of a workflow, zero when absent
func (c Comparison) Rank(study string, workflow core.WorkflowID, metric experiment.MetricName) int {
	for _, e := range c.Entries {
		if e.Study == study && e.Workflow == workflow && e.Metric == metric {
			return e.Rank
		}
	}
	return 0
}

// StudyDeltas returns the baseline-versus-confounder changes of one study
func (c Comparison) StudyDeltas(study string) []Delta {
	var out []Delta
	for _, d := range c.Deltas {
		if d.Study == study {
			out = append(out, d)
		}
	}
	return out
}
