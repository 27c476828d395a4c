// Package experiment defines workflows, tuning results and evaluations.
package experiment

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"colliderlab/domain/causal"
	"colliderlab/domain/core"
	"colliderlab/domain/run"
)

// MetricName identifies a regression metric
type MetricName string

const (
	MetricRMSE MetricName = "rmse"
	MetricRSQ  MetricName = "rsq"
	MetricMAE  MetricName = "mae"
)

// AllMetrics is the reporting order
var AllMetrics = []MetricName{MetricRMSE, MetricRSQ, MetricMAE}

// ParseMetric validates a metric name
func ParseMetric(s string) (MetricName, error) {
	m := MetricName(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MetricRMSE, MetricRSQ, MetricMAE:
		return m, nil
	}
	return "", core.NewInvalidParameterError("metric", fmt.Sprintf("unknown metric %q", s))
}

// Minimize reports whether smaller values are better
func (m MetricName) Minimize() bool {
	return m != MetricRSQ
}

// Better reports whether a beats b under this metric. NaN never wins.
func (m MetricName) Better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	if m.Minimize() {
		return a < b
	}
	return a > b
}

// Metrics is a metric table for one evaluation
type Metrics map[MetricName]float64

// HyperParams is one point of a tuning grid
type HyperParams map[string]float64

// Get returns a parameter or a default
func (h HyperParams) Get(name string, def float64) float64 {
	if v, ok := h[name]; ok {
		return v
	}
	return def
}

// Key renders the parameters in sorted order, e.g. "learn_rate=0.05 trees=50"
func (h HyperParams) Key() string {
	if len(h) == 0 {
		return "default"
	}
	names := make([]string, 0, len(h))
	for n := range h {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + strconv.FormatFloat(h[n], 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// VariableSet names the predictors used for one outcome
type VariableSet struct {
	Name        string
	Outcome     core.VariableKey
	Predictors  []core.VariableKey
	Description string
}

// Terms returns the predictor names as strings
func (v VariableSet) Terms() []string {
	out := make([]string, len(v.Predictors))
	for i, p := range v.Predictors {
		out[i] = string(p)
	}
	return out
}

// Formula renders the set as "outcome ~ a + b"
func (v VariableSet) Formula() string {
	return string(v.Outcome) + " ~ " + strings.Join(v.Terms(), " + ")
}

// Workflow pairs a variable set with a model kind
type Workflow struct {
	ID          core.WorkflowID
	VariableSet VariableSet
	ModelKind   string
}

// NewWorkflow derives the workflow id from its parts
func NewWorkflow(set VariableSet, modelKind string) Workflow {
	return Workflow{
		ID:          core.NewWorkflowID(set.Name, modelKind),
		VariableSet: set,
		ModelKind:   modelKind,
	}
}

// FoldScore holds the assessment metrics of one configuration on one fold
type FoldScore struct {
	FoldID  string
	Metrics Metrics
}

// ConfigResult summarizes one grid point across the folds it was evaluated on
type ConfigResult struct {
	Params HyperParams
	Folds  []FoldScore
	Mean   Metrics
	StdErr Metrics
	// EliminatedAfter is the number of folds seen before the race dropped
	// the configuration; zero when it survived.
	EliminatedAfter int
	Err             error
}

// Survived reports whether the configuration completed every fold
func (c ConfigResult) Survived() bool {
	return c.Err == nil && c.EliminatedAfter == 0
}

// TuneResult is the outcome of a grid search for one workflow
type TuneResult struct {
	Workflow Workflow
	Metric   MetricName
	Configs  []ConfigResult
	Best     HyperParams
	BestMean Metrics
}

// Coefficient is one row of a regression coefficient table
type Coefficient struct {
	Term     string
	Estimate float64
	StdErr   float64 // NaN when not available (penalized fits)
	TValue   float64
	Lower    float64 // 5.5% quantile of the normal approximation
	Upper    float64 // 94.5%
}

// Importance is split-gain importance of one feature, normalized to sum to 1
type Importance struct {
	Term string
	Gain float64
}

// Evaluation is the held-out result of a finalized workflow
type Evaluation struct {
	Workflow     Workflow
	Params       HyperParams
	Metrics      Metrics
	Truth        []float64
	Predictions  []float64
	Coefficients []Coefficient
	Importances  []Importance
	Tuning       *TuneResult
	Warnings     []causal.ConditioningWarning
}

// FitFailure records a workflow that was dropped from the comparison
type FitFailure struct {
	Workflow Workflow
	Stage    string
	Err      error
}

func (f FitFailure) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", f.Workflow.ID, f.Stage, f.Err)
}

func (f FitFailure) Unwrap() error {
	return f.Err
}

// StudyResult is everything one study produced in a run
type StudyResult struct {
	Name          string
	Description   string
	Outcome       core.VariableKey
	BaselineSet   string
	ConfounderSet string
	Fingerprint   core.Hash
	Rows          int
	TrainRows     int
	TestRows      int
	Folds         int
	Edges         []causal.Edge
	Latent        []core.VariableKey
	Evaluations   []Evaluation
	Failures      []FitFailure
}

// Evaluation finds an evaluation by workflow id
func (s *StudyResult) Evaluation(id core.WorkflowID) (Evaluation, bool) {
	for _, e := range s.Evaluations {
		if e.Workflow.ID == id {
			return e, true
		}
	}
	return Evaluation{}, false
}

// RunResult groups the studies of one invocation
type RunResult struct {
	RunID     core.RunID
	Seed      int64
	Metric    MetricName
	CreatedAt core.Timestamp
	Studies   []StudyResult
	Manifest  *run.Manifest
}
