// Package simulate generates the family education and happiness datasets.
package simulate

import (
	"context"

	"gonum.org/v1/gonum/stat/distuv"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/simulation"
	"colliderlab/ports"
)

// Family dataset columns
const (
	VarChild       core.VariableKey = "C"
	VarParent      core.VariableKey = "P"
	VarGrandparent core.VariableKey = "G"
	VarEnvironment core.VariableKey = "U"
)

// FamilyColumns is the fixed column order of the family dataset
var FamilyColumns = []core.VariableKey{VarChild, VarParent, VarGrandparent, VarEnvironment}

// FamilySimulator draws the family education structural equation model
type FamilySimulator struct {
	rng ports.RNGPort
}

var _ ports.FamilySimulator = (*FamilySimulator)(nil)

// NewFamilySimulator creates a family simulator over the given RNG port
func NewFamilySimulator(rng ports.RNGPort) *FamilySimulator {
	return &FamilySimulator{rng: rng}
}

// SimulateFamily draws N rows. Draw order is fixed (all U, then G, P, C) so
// the same seed and parameters always produce bit-identical output.
func (s *FamilySimulator) SimulateFamily(ctx context.Context, params simulation.FamilyParams) (*dataset.MatrixBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	src, err := s.rng.SeededStream(ctx, "family", params.Seed)
	if err != nil {
		return nil, err
	}

	n := params.N
	coin := distuv.Bernoulli{P: 0.5, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	u := make([]float64, n)
	for i := range u {
		u[i] = 2*coin.Rand() - 1
	}
	g := make([]float64, n)
	for i := range g {
		g[i] = noise.Rand()
	}
	p := make([]float64, n)
	for i := range p {
		p[i] = params.BGP*g[i] + params.BU*u[i] + noise.Rand()
	}
	c := make([]float64, n)
	for i := range c {
		c[i] = params.BPC*p[i] + params.BGC*g[i] + params.BU*u[i] + noise.Rand()
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{c[i], p[i], g[i], u[i]}
	}
	m, err := dataset.NewMatrix(FamilyColumns, rows)
	if err != nil {
		return nil, err
	}

	meta := []dataset.ColumnMeta{
		{VariableKey: VarChild, StatisticalType: dataset.TypeNumeric, Description: "child education"},
		{VariableKey: VarParent, StatisticalType: dataset.TypeNumeric, Description: "parent education"},
		{VariableKey: VarGrandparent, StatisticalType: dataset.TypeNumeric, Description: "grandparent education"},
		{VariableKey: VarEnvironment, StatisticalType: dataset.TypeBinary, Description: "neighbourhood effect (+1/-1)"},
	}
	return dataset.NewMatrixBundle("family", params.Seed, params.AsMap(), m, meta), nil
}
