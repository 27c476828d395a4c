package tuning

import (
	"sort"

	"colliderlab/adapters/learners/gbt"
	"colliderlab/adapters/learners/linear"
	"colliderlab/domain/core"
	"colliderlab/domain/experiment"
	"colliderlab/internal/config"
)

// ExpandGrid returns the cartesian product of the candidate values. Names
// are iterated in sorted order with the last name varying fastest, so the
// grid order is stable across runs.
func ExpandGrid(values map[string][]float64) []experiment.HyperParams {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	grid := []experiment.HyperParams{{}}
	for _, name := range names {
		var next []experiment.HyperParams
		for _, base := range grid {
			for _, v := range values[name] {
				p := make(experiment.HyperParams, len(base)+1)
				for k, bv := range base {
					p[k] = bv
				}
				p[name] = v
				next = append(next, p)
			}
		}
		grid = next
	}
	return grid
}

// GridFor builds the configured grid for a model kind
func GridFor(kind string, cfg config.TuningConfig) ([]experiment.HyperParams, error) {
	switch kind {
	case linear.Kind:
		return ExpandGrid(map[string][]float64{
			linear.ParamPenalty: cfg.LinearPenalties,
		}), nil
	case gbt.Kind:
		return ExpandGrid(map[string][]float64{
			gbt.ParamTrees:     ints(cfg.GBT.Trees),
			gbt.ParamTreeDepth: ints(cfg.GBT.TreeDepth),
			gbt.ParamLearnRate: cfg.GBT.LearnRate,
			gbt.ParamMinN:      ints(cfg.GBT.MinN),
		}), nil
	}
	return nil, core.NewInvalidParameterError("model", "no grid for "+kind)
}

func ints(xs []int) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
