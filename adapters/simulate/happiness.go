package simulate

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/simulation"
	"colliderlab/ports"
)

// Happiness dataset columns
const (
	VarAge       core.VariableKey = "age"
	VarMarried   core.VariableKey = "married"
	VarHappiness core.VariableKey = "happiness"
)

// HappinessColumns is the fixed column order of the happiness dataset
var HappinessColumns = []core.VariableKey{VarAge, VarMarried, VarHappiness}

// HappinessSimulator runs the yearly birth/marriage/death process
type HappinessSimulator struct {
	rng ports.RNGPort
}

var _ ports.HappinessSimulator = (*HappinessSimulator)(nil)

// NewHappinessSimulator creates a happiness simulator over the given RNG port
func NewHappinessSimulator(rng ports.RNGPort) *HappinessSimulator {
	return &HappinessSimulator{rng: rng}
}

type person struct {
	age       int
	married   bool
	happiness float64
}

// SimulateHappiness returns the population alive after the final year,
// oldest first. Happiness is fixed at birth and never changes.
func (s *HappinessSimulator) SimulateHappiness(ctx context.Context, params simulation.HappinessParams) (*dataset.MatrixBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	src, err := s.rng.SeededStream(ctx, "happiness", params.Seed)
	if err != nil {
		return nil, err
	}

	births := birthHappiness(params.BirthsPerYear)
	population := make([]person, 0, params.BirthsPerYear*(params.MaxAge+1))

	for year := 0; year < params.Years; year++ {
		if year%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for i := range population {
			population[i].age++
		}
		for _, h := range births {
			population = append(population, person{age: 1, happiness: h})
		}

		for i := range population {
			p := &population[i]
			if p.age >= params.AgeOfMarriage && !p.married {
				marry := distuv.Bernoulli{P: logistic(p.happiness - 4), Src: src}
				p.married = marry.Rand() == 1
			}
		}

		alive := population[:0]
		for _, p := range population {
			if p.age <= params.MaxAge {
				alive = append(alive, p)
			}
		}
		population = alive
	}

	rows := make([][]float64, len(population))
	for i, p := range population {
		married := 0.0
		if p.married {
			married = 1
		}
		rows[i] = []float64{float64(p.age), married, p.happiness}
	}
	m, err := dataset.NewMatrix(HappinessColumns, rows)
	if err != nil {
		return nil, err
	}

	meta := []dataset.ColumnMeta{
		{VariableKey: VarAge, StatisticalType: dataset.TypeCount, Description: "age in years"},
		{VariableKey: VarMarried, StatisticalType: dataset.TypeBinary, Description: "1 if married"},
		{VariableKey: VarHappiness, StatisticalType: dataset.TypeNumeric, Description: "happiness, fixed at birth"},
	}
	return dataset.NewMatrixBundle("happiness", params.Seed, params.AsMap(), m, meta), nil
}

// birthHappiness spreads n values evenly over [-2, 2]
func birthHappiness(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = -2 + 4*float64(i)/float64(n-1)
	}
	return out
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
