// Package tuning runs cross-validated grid searches with optional racing.
package tuning

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
	"colliderlab/internal"
	"colliderlab/internal/metrics"
	"colliderlab/internal/recipe"
	"colliderlab/ports"
)

// Options controls a grid search
type Options struct {
	Workers int
	Race    bool
	// BurnIn is the number of folds every configuration sees before the
	// race may eliminate it.
	BurnIn int
	Alpha  float64
	Metric experiment.MetricName
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{Workers: 4, Race: true, BurnIn: 3, Alpha: 0.05, Metric: experiment.MetricRMSE}
}

// Tuner evaluates hyperparameter grids over resamples
type Tuner struct {
	opts   Options
	logger *internal.Logger
}

// NewTuner creates a tuner; a nil logger discards output
func NewTuner(opts Options, logger *internal.Logger) *Tuner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Metric == "" {
		opts.Metric = experiment.MetricRMSE
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Tuner{opts: opts, logger: logger}
}

// foldData is one baked fold, shared read-only by every configuration
type foldData struct {
	id        string
	xAnalysis *mat.Dense
	yAnalysis []float64
	xAssess   *mat.Dense
	yAssess   []float64
}

// slot is the outcome of one (configuration, fold) evaluation
type slot struct {
	done    bool
	metrics experiment.Metrics
	err     error
}

// Tune scores every configuration of grid on the folds and selects the best
// by the configured metric. Configurations that fail on any fold are
// dropped. When racing, configurations significantly worse than the leader
// after the burn-in stop being evaluated. Only context errors and recipe
// failures abort the search; if no configuration survives the result is
// returned together with core.ErrNoConfiguration.
func (t *Tuner) Tune(
	ctx context.Context,
	wf experiment.Workflow,
	learner ports.Learner,
	m dataset.Matrix,
	rec recipe.Recipe,
	folds dataset.Resamples,
	grid []experiment.HyperParams,
) (*experiment.TuneResult, error) {
	if len(grid) == 0 {
		return nil, core.NewInvalidParameterError("grid", "no configurations to tune")
	}
	if folds.Len() == 0 {
		return nil, fmt.Errorf("%w: no resamples to tune on", core.ErrInsufficientData)
	}

	data := make([]foldData, folds.Len())
	for i, f := range folds.Folds {
		prepped, err := rec.Prep(m, f.Analysis)
		if err != nil {
			return nil, fmt.Errorf("prep %s: %w", f.ID, err)
		}
		fd := foldData{id: f.ID}
		if fd.xAnalysis, fd.yAnalysis, err = prepped.Bake(m, f.Analysis); err != nil {
			return nil, fmt.Errorf("bake %s analysis: %w", f.ID, err)
		}
		if fd.xAssess, fd.yAssess, err = prepped.Bake(m, f.Assessment); err != nil {
			return nil, fmt.Errorf("bake %s assessment: %w", f.ID, err)
		}
		data[i] = fd
	}

	slots := make([][]slot, len(grid))
	for c := range slots {
		slots[c] = make([]slot, len(data))
	}
	alive := make([]bool, len(grid))
	for c := range alive {
		alive[c] = true
	}
	eliminated := make([]int, len(grid))

	burnIn := len(data)
	if t.opts.Race && t.opts.BurnIn >= 2 && t.opts.BurnIn < len(data) {
		burnIn = t.opts.BurnIn
	}

	// burn-in folds for every configuration, then the remaining folds one
	// at a time with elimination before each
	folds0 := make([]int, burnIn)
	for f := range folds0 {
		folds0[f] = f
	}
	if err := t.runBatch(ctx, learner, grid, data, slots, alive, folds0); err != nil {
		return nil, err
	}
	for f := burnIn; f < len(data); f++ {
		t.dropFailed(slots, alive, f)
		t.race(wf, grid, slots, alive, eliminated, f)
		if err := t.runBatch(ctx, learner, grid, data, slots, alive, []int{f}); err != nil {
			return nil, err
		}
	}
	t.dropFailed(slots, alive, len(data))

	result := &experiment.TuneResult{
		Workflow: wf,
		Metric:   t.opts.Metric,
		Configs:  make([]experiment.ConfigResult, len(grid)),
	}
	best := -1
	for c, params := range grid {
		cr := experiment.ConfigResult{Params: params, EliminatedAfter: eliminated[c]}
		for f, s := range slots[c] {
			if !s.done {
				continue
			}
			if s.err != nil {
				cr.Err = fmt.Errorf("%s: %w", data[f].id, s.err)
				break
			}
			cr.Folds = append(cr.Folds, experiment.FoldScore{FoldID: data[f].id, Metrics: s.metrics})
		}
		cr.Mean, cr.StdErr = metrics.Summarize(cr.Folds)
		result.Configs[c] = cr
		if !cr.Survived() {
			continue
		}
		if best < 0 || t.opts.Metric.Better(cr.Mean[t.opts.Metric], result.Configs[best].Mean[t.opts.Metric]) {
			best = c
		}
	}
	if best < 0 {
		return result, fmt.Errorf("%w: %s tried %d configurations", core.ErrNoConfiguration, wf.ID, len(grid))
	}
	result.Best = grid[best]
	result.BestMean = result.Configs[best].Mean
	t.logger.Debug("[Tuner] %s best %s %s=%.4f", wf.ID, grid[best].Key(), t.opts.Metric, result.BestMean[t.opts.Metric])
	return result, nil
}

// runBatch evaluates the listed folds for every live configuration
func (t *Tuner) runBatch(
	ctx context.Context,
	learner ports.Learner,
	grid []experiment.HyperParams,
	data []foldData,
	slots [][]slot,
	alive []bool,
	folds []int,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for c := range grid {
		if !alive[c] {
			continue
		}
		for _, f := range folds {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, err := t.evaluate(gctx, learner, grid[c], data[f])
				slots[c][f] = slot{done: true, metrics: m, err: err}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (t *Tuner) evaluate(ctx context.Context, learner ports.Learner, params experiment.HyperParams, fd foldData) (experiment.Metrics, error) {
	model, err := learner.Fit(ctx, fd.xAnalysis, fd.yAnalysis, params)
	if err != nil {
		return nil, err
	}
	scores, err := metrics.Compute(fd.yAssess, model.Predict(fd.xAssess))
	if err != nil {
		return nil, err
	}
	if v := scores[t.opts.Metric]; math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: non-finite %s", core.ErrFittingFailure, t.opts.Metric)
	}
	return scores, nil
}

// dropFailed stops evaluating configurations with an error in folds [0, upTo)
func (t *Tuner) dropFailed(slots [][]slot, alive []bool, upTo int) {
	for c := range slots {
		if !alive[c] {
			continue
		}
		for f := 0; f < upTo; f++ {
			if slots[c][f].err != nil {
				alive[c] = false
				break
			}
		}
	}
}

// race eliminates live configurations that a one-sided paired t-test finds
// worse than the current leader over folds [0, seen)
func (t *Tuner) race(wf experiment.Workflow, grid []experiment.HyperParams, slots [][]slot, alive []bool, eliminated []int, seen int) {
	scores := func(c int) []float64 {
		out := make([]float64, seen)
		for f := 0; f < seen; f++ {
			out[f] = slots[c][f].metrics[t.opts.Metric]
		}
		return out
	}
	leader := -1
	var leaderMean float64
	for c := range grid {
		if !alive[c] {
			continue
		}
		mean := stat.Mean(scores(c), nil)
		if leader < 0 || t.opts.Metric.Better(mean, leaderMean) {
			leader, leaderMean = c, mean
		}
	}
	if leader < 0 {
		return
	}
	best := scores(leader)
	for c := range grid {
		if !alive[c] || c == leader {
			continue
		}
		p := PairedWorse(scores(c), best, t.opts.Metric.Minimize())
		if p < t.opts.Alpha {
			alive[c] = false
			eliminated[c] = seen
			t.logger.Debug("[Tuner] %s eliminated %s after %d folds (p=%.4f)", wf.ID, grid[c].Key(), seen, p)
		}
	}
}

// PairedWorse is the one-sided p-value of a paired t-test that candidate is
// worse than leader. Differences are oriented so that positive means worse.
// Returns 1 when the test is undefined.
func PairedWorse(candidate, leader []float64, minimize bool) float64 {
	n := len(candidate)
	if n < 2 || n != len(leader) {
		return 1
	}
	d := make([]float64, n)
	for i := range d {
		d[i] = candidate[i] - leader[i]
		if !minimize {
			d[i] = -d[i]
		}
		if math.IsNaN(d[i]) {
			return 1
		}
	}
	mean, sd := stat.MeanStdDev(d, nil)
	if sd == 0 {
		if mean > 0 {
			return 0
		}
		return 1
	}
	tv := mean / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	return 1 - dist.CDF(tv)
}
