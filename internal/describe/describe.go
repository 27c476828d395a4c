// Package describe computes precis-style column summaries of a dataset.
package describe

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
)

// Interval bounds shown in summaries, an 89% central interval
const (
	LowerPercent = 5.5
	UpperPercent = 94.5
)

// Summary describes one column
type Summary struct {
	Variable  core.VariableKey
	N         int
	Mean      float64
	SD        float64
	Lower     float64
	Upper     float64
	Min       float64
	Max       float64
	Histogram string
}

// Column summarizes a single slice of values
func Column(key core.VariableKey, data []float64) (Summary, error) {
	if len(data) == 0 {
		return Summary{}, fmt.Errorf("%w: %s is empty", core.ErrInsufficientData, key)
	}
	s := Summary{Variable: key, N: len(data)}
	s.Mean, _ = stats.Mean(data)
	s.SD = math.NaN()
	if len(data) > 1 {
		s.SD, _ = stats.StandardDeviationSample(data)
	}
	s.Min, _ = stats.Min(data)
	s.Max, _ = stats.Max(data)
	s.Lower = percentile(data, LowerPercent)
	s.Upper = percentile(data, UpperPercent)
	s.Histogram = Spark(data, 10)
	return s, nil
}

// Matrix summarizes every column in order
func Matrix(m dataset.Matrix) ([]Summary, error) {
	out := make([]Summary, 0, len(m.VariableKeys))
	for _, key := range m.VariableKeys {
		col, err := m.Column(key)
		if err != nil {
			return nil, err
		}
		s, err := Column(key, col)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// percentile falls back to nearest rank when the sample is too small for
// interpolation at the requested tail
func percentile(data []float64, p float64) float64 {
	if v, err := stats.Percentile(data, p); err == nil {
		return v
	}
	if v, err := stats.PercentileNearestRank(data, p); err == nil {
		return v
	}
	return math.NaN()
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// Spark renders a text histogram with the given number of bins
func Spark(data []float64, bins int) string {
	if len(data) == 0 || bins < 1 {
		return ""
	}
	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)
	counts := make([]int, bins)
	for _, v := range data {
		b := 0
		if hi > lo {
			b = int(float64(bins) * (v - lo) / (hi - lo))
		}
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	peak := 0
	for _, c := range counts {
		peak = max(peak, c)
	}
	var sb strings.Builder
	for _, c := range counts {
		idx := 0
		if c > 0 {
			idx = int(math.Ceil(float64(c)/float64(peak)*float64(len(sparks)))) - 1
		}
		sb.WriteRune(sparks[idx])
	}
	return sb.String()
}

// Table renders summaries as an aligned text table
func Table(summaries []Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-10s %8s %8s %8s %8s %8s %8s  %s\n", "", "mean", "sd", "5.5%", "94.5%", "min", "max", "histogram")
	for _, s := range summaries {
		fmt.Fprintf(&sb, "%-10s %8.2f %8.2f %8.2f %8.2f %8.2f %8.2f  %s\n",
			s.Variable, s.Mean, s.SD, s.Lower, s.Upper, s.Min, s.Max, s.Histogram)
	}
	return sb.String()
}
