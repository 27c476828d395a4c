// Package metrics scores regression predictions against held-out truth.
package metrics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"colliderlab/domain/core"
	"colliderlab/domain/experiment"
)

func check(truth, estimate []float64) error {
	if len(truth) == 0 {
		return fmt.Errorf("%w: no predictions to score", core.ErrInsufficientData)
	}
	if len(truth) != len(estimate) {
		return core.NewInvalidParameterError("estimate",
			fmt.Sprintf("length %d does not match truth length %d", len(estimate), len(truth)))
	}
	return nil
}

// RMSE is the root mean squared error
func RMSE(truth, estimate []float64) (float64, error) {
	if err := check(truth, estimate); err != nil {
		return math.NaN(), err
	}
	var ss float64
	for i, t := range truth {
		d := t - estimate[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(truth))), nil
}

// RSQ is the squared Pearson correlation between truth and estimate.
// A constant vector yields NaN.
func RSQ(truth, estimate []float64) (float64, error) {
	if err := check(truth, estimate); err != nil {
		return math.NaN(), err
	}
	if len(truth) < 2 {
		return math.NaN(), nil
	}
	r := stat.Correlation(truth, estimate, nil)
	return r * r, nil
}

// MAE is the mean absolute error
func MAE(truth, estimate []float64) (float64, error) {
	if err := check(truth, estimate); err != nil {
		return math.NaN(), err
	}
	var s float64
	for i, t := range truth {
		s += math.Abs(t - estimate[i])
	}
	return s / float64(len(truth)), nil
}

// Compute returns the full metric table
func Compute(truth, estimate []float64) (experiment.Metrics, error) {
	if err := check(truth, estimate); err != nil {
		return nil, err
	}
	out := experiment.Metrics{}
	for _, name := range experiment.AllMetrics {
		v, err := Metric(name, truth, estimate)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Metric dispatches on the metric name
func Metric(name experiment.MetricName, truth, estimate []float64) (float64, error) {
	switch name {
	case experiment.MetricRMSE:
		return RMSE(truth, estimate)
	case experiment.MetricRSQ:
		return RSQ(truth, estimate)
	case experiment.MetricMAE:
		return MAE(truth, estimate)
	}
	return math.NaN(), core.NewInvalidParameterError("metric", string(name))
}

// Summarize averages fold scores per metric and reports the standard error
// of the mean. NaN fold values are skipped; with fewer than two usable folds
// the standard error is NaN.
func Summarize(folds []experiment.FoldScore) (mean, stdErr experiment.Metrics) {
	mean, stdErr = experiment.Metrics{}, experiment.Metrics{}
	for _, name := range experiment.AllMetrics {
		var values stats.Float64Data
		for _, f := range folds {
			if v, ok := f.Metrics[name]; ok && !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		mean[name], stdErr[name] = math.NaN(), math.NaN()
		if len(values) == 0 {
			continue
		}
		if m, err := stats.Mean(values); err == nil {
			mean[name] = m
		}
		if len(values) > 1 {
			if sd, err := stats.StandardDeviationSample(values); err == nil {
				stdErr[name] = sd / math.Sqrt(float64(len(values)))
			}
		}
	}
	return mean, stdErr
}
