// Package gbt fits gradient-boosted regression trees with squared-error loss.
package gbt

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"colliderlab/domain/core"
	"colliderlab/domain/experiment"
	"colliderlab/ports"
)

// Kind is the registry name of this learner
const Kind = "gbt"

// Hyperparameter names and defaults
const (
	ParamTrees     = "trees"
	ParamTreeDepth = "tree_depth"
	ParamLearnRate = "learn_rate"
	ParamMinN      = "min_n"

	DefaultTrees     = 100
	DefaultTreeDepth = 3
	DefaultLearnRate = 0.1
	DefaultMinN      = 10
)

// Learner fits boosted tree ensembles. Fitting is deterministic: there is
// no row or column subsampling.
type Learner struct{}

var _ ports.Learner = (*Learner)(nil)

// New creates a boosted-tree learner
func New() *Learner {
	return &Learner{}
}

// Kind returns "gbt"
func (l *Learner) Kind() string {
	return Kind
}

// Fit grows `trees` trees of depth at most `tree_depth`; every child holds at
// least `min_n` rows and each tree's contribution is scaled by `learn_rate`.
func (l *Learner) Fit(ctx context.Context, x mat.Matrix, y []float64, params experiment.HyperParams) (ports.Model, error) {
	n, p := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d outcomes", core.ErrInvalidParameter, n, len(y))
	}

	trees := int(params.Get(ParamTrees, DefaultTrees))
	cfg := growConfig{
		maxDepth:  int(params.Get(ParamTreeDepth, DefaultTreeDepth)),
		minNode:   int(params.Get(ParamMinN, DefaultMinN)),
		learnRate: params.Get(ParamLearnRate, DefaultLearnRate),
	}
	switch {
	case trees <= 0:
		return nil, core.NewInvalidParameterError(ParamTrees, "must be positive")
	case cfg.maxDepth <= 0:
		return nil, core.NewInvalidParameterError(ParamTreeDepth, "must be positive")
	case cfg.minNode <= 0:
		return nil, core.NewInvalidParameterError(ParamMinN, "must be positive")
	case !(cfg.learnRate > 0 && cfg.learnRate <= 1):
		return nil, core.NewInvalidParameterError(ParamLearnRate, "must be in (0, 1]")
	}
	if n < 2*cfg.minNode {
		return nil, fmt.Errorf("%w: %d rows cannot be split with min_n=%d", core.ErrInsufficientData, n, cfg.minNode)
	}

	values := make([][]float64, p)
	for j := range values {
		values[j] = mat.Col(nil, j, x)
	}
	cols := newColumns(values)

	model := &Model{
		Base:     stat.Mean(y, nil),
		features: p,
		gain:     make([]float64, p),
	}
	current := make([]float64, n)
	for i := range current {
		current[i] = model.Base
	}
	residual := make([]float64, n)
	row := make([]float64, p)

	for k := 0; k < trees; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		floats.SubTo(residual, y, current)
		t := grow(cols, residual, cfg, model.gain)
		model.trees = append(model.trees, t)
		for i := range current {
			for j := range row {
				row[j] = values[j][i]
			}
			current[i] += t.predict(row)
		}
	}
	return model, nil
}

// Model is a fitted boosted ensemble
type Model struct {
	Base     float64
	trees    []tree
	features int
	gain     []float64
}

var _ ports.ImportanceModel = (*Model)(nil)

// Trees returns the ensemble size
func (m *Model) Trees() int {
	return len(m.trees)
}

// Predict sums the base score and every tree's contribution
func (m *Model) Predict(x mat.Matrix) []float64 {
	n, p := x.Dims()
	out := make([]float64, n)
	row := make([]float64, p)
	for i := range out {
		mat.Row(row, i, x)
		v := m.Base
		for t := range m.trees {
			v += m.trees[t].predict(row)
		}
		out[i] = v
	}
	return out
}

// Importances returns total split gain per feature, normalized to sum to one
func (m *Model) Importances(terms []string) []experiment.Importance {
	total := floats.Sum(m.gain)
	out := make([]experiment.Importance, m.features)
	for j := range out {
		name := fmt.Sprintf("x%d", j)
		if j < len(terms) {
			name = terms[j]
		}
		g := 0.0
		if total > 0 {
			g = m.gain[j] / total
		}
		out[j] = experiment.Importance{Term: name, Gain: g}
	}
	return out
}
