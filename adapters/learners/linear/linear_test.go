package linear

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"colliderlab/adapters/rng"
	"colliderlab/adapters/simulate"
	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
	"colliderlab/domain/simulation"
)

func noisyPlane(n int, noise float64) (*mat.Dense, []float64) {
	r := rand.New(rand.NewPCG(1, 2))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := r.NormFloat64(), r.NormFloat64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y[i] = 1 + 2*a - 3*b + noise*r.NormFloat64()
	}
	return x, y
}

func TestOLSRecoversExactPlane(t *testing.T) {
	x, y := noisyPlane(50, 0)
	m, err := New().Fit(context.Background(), x, y, nil)
	require.NoError(t, err)

	model := m.(*Model)
	assert.InDelta(t, 1, model.Intercept, 1e-9)
	assert.InDelta(t, 2, model.Weights[0], 1e-9)
	assert.InDelta(t, -3, model.Weights[1], 1e-9)

	pred := model.Predict(mat.NewDense(1, 2, []float64{1, 1}))
	assert.InDelta(t, 0, pred[0], 1e-9)
}

func TestOLSStandardErrors(t *testing.T) {
	x, y := noisyPlane(400, 1)
	m, err := New().Fit(context.Background(), x, y, experiment.HyperParams{ParamPenalty: 0})
	require.NoError(t, err)

	coefs := m.(*Model).Coefficients([]string{"a", "b"})
	require.Len(t, coefs, 3)
	assert.Equal(t, "(Intercept)", coefs[0].Term)
	assert.Equal(t, "b", coefs[2].Term)
	for _, c := range coefs {
		assert.Greater(t, c.StdErr, 0.0)
		assert.Less(t, c.StdErr, 0.2)
		assert.Less(t, c.Lower, c.Estimate)
		assert.Greater(t, c.Upper, c.Estimate)
	}
	assert.InDelta(t, 1, m.(*Model).Sigma, 0.15)
}

func TestRidgeShrinksTowardZero(t *testing.T) {
	x, y := noisyPlane(200, 0.5)
	ols, err := New().Fit(context.Background(), x, y, experiment.HyperParams{ParamPenalty: 0})
	require.NoError(t, err)
	ridge, err := New().Fit(context.Background(), x, y, experiment.HyperParams{ParamPenalty: 1})
	require.NoError(t, err)

	o, r := ols.(*Model), ridge.(*Model)
	assert.Less(t, math.Abs(r.Weights[0]), math.Abs(o.Weights[0]))
	assert.Less(t, math.Abs(r.Weights[1]), math.Abs(o.Weights[1]))
	assert.True(t, math.IsNaN(r.StdErr[1]))

	small, err := New().Fit(context.Background(), x, y, experiment.HyperParams{ParamPenalty: 1e-9})
	require.NoError(t, err)
	assert.InDelta(t, o.Weights[0], small.(*Model).Weights[0], 1e-5)
}

func TestFitRejectsBadInput(t *testing.T) {
	x, y := noisyPlane(10, 1)

	_, err := New().Fit(context.Background(), x, y[:5], nil)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, err = New().Fit(context.Background(), x, y, experiment.HyperParams{ParamPenalty: -1})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	tiny := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	_, err = New().Fit(context.Background(), tiny, []float64{1, 2, 3}, nil)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestFitRejectsCollinearDesign(t *testing.T) {
	n := 20
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		x.Set(i, 1, 2*float64(i))
		y[i] = float64(i)
	}
	_, err := New().Fit(context.Background(), x, y, nil)
	assert.ErrorIs(t, err, core.ErrFittingFailure)
}

func familyBundle(t *testing.T, n int, seed int64) *dataset.MatrixBundle {
	params := simulation.DefaultFamilyParams()
	params.N = n
	params.Seed = seed
	b, err := simulate.NewFamilySimulator(rng.NewAdapter()).SimulateFamily(context.Background(), params)
	require.NoError(t, err)
	return b
}

func coefficient(t *testing.T, coefs []experiment.Coefficient, term string) experiment.Coefficient {
	for _, c := range coefs {
		if c.Term == term {
			return c
		}
	}
	t.Fatalf("term %s not found", term)
	return experiment.Coefficient{}
}

// Conditioning on the parent without the neighbourhood effect flips the
// grandparent effect negative even though the true effect is zero.
func TestFitOLSShowsColliderBias(t *testing.T) {
	b := familyBundle(t, 200, 1)

	_, coefs, err := FitOLS(b.Matrix, "C", core.VariableKeys("P", "G"))
	require.NoError(t, err)
	g := coefficient(t, coefs, "G")
	p := coefficient(t, coefs, "P")
	assert.Less(t, g.Estimate, 0.0)
	assert.Less(t, g.Upper, 0.0, "89%% interval should exclude zero")
	assert.Greater(t, p.Estimate, 1.2)
}

func TestFitOLSWithConfounderRecoversTruth(t *testing.T) {
	b := familyBundle(t, 4000, 1)

	_, without, err := FitOLS(b.Matrix, "C", core.VariableKeys("P", "G"))
	require.NoError(t, err)
	_, with, err := FitOLS(b.Matrix, "C", core.VariableKeys("P", "G", "U"))
	require.NoError(t, err)

	gWith, pWith := coefficient(t, with, "G"), coefficient(t, with, "P")
	gWithout, pWithout := coefficient(t, without, "G"), coefficient(t, without, "P")

	assert.InDelta(t, 0, gWith.Estimate, 0.1)
	assert.InDelta(t, 1, pWith.Estimate, 0.1)
	assert.InDelta(t, 2, coefficient(t, with, "U").Estimate, 0.15)
	assert.Less(t, math.Abs(gWith.Estimate-0), math.Abs(gWithout.Estimate-0))
	assert.Less(t, math.Abs(pWith.Estimate-1), math.Abs(pWithout.Estimate-1))
}

func TestFitOLSRequiresPredictors(t *testing.T) {
	b := familyBundle(t, 50, 1)
	_, _, err := FitOLS(b.Matrix, "C", nil)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, _, err = FitOLS(b.Matrix, "C", core.VariableKeys("missing"))
	assert.ErrorIs(t, err, core.ErrVariableNotFound)
}
