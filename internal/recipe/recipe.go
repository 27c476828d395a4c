// Package recipe selects predictors and z-scores them with statistics
// estimated on the fitting rows only.
package recipe

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
)

// Recipe is a preprocessing plan that has not seen data yet
type Recipe struct {
	Outcome    core.VariableKey
	Predictors []core.VariableKey
	Normalize  bool
}

// FromVariableSet builds a recipe for a variable set
func FromVariableSet(set experiment.VariableSet, normalize bool) Recipe {
	return Recipe{Outcome: set.Outcome, Predictors: set.Predictors, Normalize: normalize}
}

// Prepped is a recipe with its normalization statistics estimated
type Prepped struct {
	Recipe
	Means []float64
	SDs   []float64
}

// Prep estimates column means and standard deviations on rows. A constant
// column keeps a scale of one so it is centred but not divided by zero.
func (r Recipe) Prep(m dataset.Matrix, rows []int) (*Prepped, error) {
	if len(r.Predictors) == 0 {
		return nil, core.NewInvalidParameterError("predictors", "recipe has no predictors")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: recipe prepped on zero rows", core.ErrInsufficientData)
	}
	p := &Prepped{
		Recipe: r,
		Means:  make([]float64, len(r.Predictors)),
		SDs:    make([]float64, len(r.Predictors)),
	}
	if _, err := m.Index(r.Outcome); err != nil {
		return nil, err
	}
	for j, key := range r.Predictors {
		col, err := m.ColumnAt(key, rows)
		if err != nil {
			return nil, err
		}
		p.Means[j], p.SDs[j] = 0, 1
		if r.Normalize {
			mean, sd := stat.MeanStdDev(col, nil)
			p.Means[j] = mean
			if sd > 0 && !math.IsNaN(sd) {
				p.SDs[j] = sd
			}
		}
	}
	return p, nil
}

// Bake applies the prepped transformation to rows
func (p *Prepped) Bake(m dataset.Matrix, rows []int) (*mat.Dense, []float64, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to bake", core.ErrInsufficientData)
	}
	flat, err := m.Select(p.Predictors, rows)
	if err != nil {
		return nil, nil, err
	}
	k := len(p.Predictors)
	for i := range flat {
		j := i % k
		flat[i] = (flat[i] - p.Means[j]) / p.SDs[j]
	}
	y, err := m.ColumnAt(p.Outcome, rows)
	if err != nil {
		return nil, nil, err
	}
	return mat.NewDense(len(rows), k, flat), y, nil
}

// Terms returns the predictor names
func (p *Prepped) Terms() []string {
	out := make([]string, len(p.Predictors))
	for i, k := range p.Predictors {
		out[i] = string(k)
	}
	return out
}

// Unscale maps coefficients estimated on normalized predictors back to the
// raw predictor scale. The intercept's standard error is not recoverable
// from the table alone and becomes NaN.
func (p *Prepped) Unscale(coefs []experiment.Coefficient) []experiment.Coefficient {
	if !p.Normalize || len(coefs) != len(p.Predictors)+1 {
		return coefs
	}
	out := make([]experiment.Coefficient, len(coefs))
	intercept := coefs[0].Estimate
	for j := range p.Predictors {
		c := coefs[j+1]
		sd := p.SDs[j]
		c.Estimate /= sd
		c.StdErr /= sd
		c.Lower /= sd
		c.Upper /= sd
		intercept -= c.Estimate * p.Means[j]
		out[j+1] = c
	}
	out[0] = experiment.Coefficient{
		Term:     coefs[0].Term,
		Estimate: intercept,
		StdErr:   math.NaN(),
		TValue:   math.NaN(),
		Lower:    math.NaN(),
		Upper:    math.NaN(),
	}
	return out
}
