package simulate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"colliderlab/adapters/rng"
	"colliderlab/domain/core"
	"colliderlab/domain/simulation"
)

func TestFamilyDeterminism(t *testing.T) {
	sim := NewFamilySimulator(rng.NewAdapter())
	params := simulation.DefaultFamilyParams()

	a, err := sim.SimulateFamily(context.Background(), params)
	require.NoError(t, err)
	b, err := sim.SimulateFamily(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, a.Matrix.Data, b.Matrix.Data)

	params.Seed = 2
	c, err := sim.SimulateFamily(context.Background(), params)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestFamilySchemaAndDistribution(t *testing.T) {
	sim := NewFamilySimulator(rng.NewAdapter())
	params := simulation.DefaultFamilyParams()
	params.N = 5000

	b, err := sim.SimulateFamily(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, FamilyColumns, b.Matrix.VariableKeys)
	assert.Equal(t, 5000, b.Matrix.Rows())

	u, err := b.Matrix.Column(VarEnvironment)
	require.NoError(t, err)
	for _, v := range u {
		assert.True(t, v == 1 || v == -1, "U must be +/-1, got %v", v)
	}
	assert.InDelta(t, 0, stat.Mean(u, nil), 0.1)

	g, err := b.Matrix.Column(VarGrandparent)
	require.NoError(t, err)
	mean, sd := stat.MeanStdDev(g, nil)
	assert.InDelta(t, 0, mean, 0.1)
	assert.InDelta(t, 1, sd, 0.1)

	// Var(P) = b_GP^2 + b_U^2 + 1 = 6
	p, err := b.Matrix.Column(VarParent)
	require.NoError(t, err)
	assert.InDelta(t, 6, stat.Variance(p, nil), 0.5)

	meta, ok := b.Meta(VarEnvironment)
	require.True(t, ok)
	assert.Equal(t, "binary", string(meta.StatisticalType))
	assert.Equal(t, "family", b.Source)
}

func TestFamilyInvalidParameters(t *testing.T) {
	sim := NewFamilySimulator(rng.NewAdapter())
	params := simulation.DefaultFamilyParams()
	params.N = 0

	_, err := sim.SimulateFamily(context.Background(), params)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestHappinessPopulation(t *testing.T) {
	sim := NewHappinessSimulator(rng.NewAdapter())
	params := simulation.DefaultHappinessParams()

	b, err := sim.SimulateHappiness(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, HappinessColumns, b.Matrix.VariableKeys)

	// a stationary population holds one cohort per age
	assert.Equal(t, params.BirthsPerYear*params.MaxAge, b.Matrix.Rows())

	var marriedH, singleH []float64
	for _, row := range b.Matrix.Data {
		age, married, h := row[0], row[1], row[2]
		assert.GreaterOrEqual(t, age, 1.0)
		assert.LessOrEqual(t, age, float64(params.MaxAge))
		assert.GreaterOrEqual(t, h, -2.0)
		assert.LessOrEqual(t, h, 2.0)
		if married == 1 {
			assert.GreaterOrEqual(t, age, float64(params.AgeOfMarriage))
			marriedH = append(marriedH, h)
		} else {
			singleH = append(singleH, h)
		}
	}
	require.NotEmpty(t, marriedH)
	assert.Greater(t, stat.Mean(marriedH, nil), stat.Mean(singleH, nil))
}

func TestHappinessDeterminism(t *testing.T) {
	sim := NewHappinessSimulator(rng.NewAdapter())
	params := simulation.DefaultHappinessParams()
	params.Years = 200

	a, err := sim.SimulateHappiness(context.Background(), params)
	require.NoError(t, err)
	b, err := sim.SimulateHappiness(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestHappinessCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHappinessSimulator(rng.NewAdapter()).SimulateHappiness(ctx, simulation.DefaultHappinessParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBirthHappiness(t *testing.T) {
	h := birthHappiness(5)
	assert.Equal(t, []float64{-2, -1, 0, 1, 2}, h)
}
