package resample

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colliderlab/adapters/rng"
	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
)

func linearMatrix(t *testing.T, n int) dataset.Matrix {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(i % 7)}
	}
	m, err := dataset.NewMatrix(core.VariableKeys("y", "x"), rows)
	require.NoError(t, err)
	return m
}

func TestInitialSplitProportionsAndDisjointness(t *testing.T) {
	m := linearMatrix(t, 1000)
	p := NewPartitioner(rng.NewAdapter(), 1, 4)

	split, err := p.InitialSplit(context.Background(), m, "y", 0.8)
	require.NoError(t, err)
	assert.Len(t, split.Train, 800)
	assert.Len(t, split.Test, 200)

	seen := make(map[int]bool)
	for _, r := range append(append([]int{}, split.Train...), split.Test...) {
		assert.False(t, seen[r], "row %d appears twice", r)
		seen[r] = true
	}
	assert.Len(t, seen, 1000)

	// each outcome quartile contributes its share to the test set
	counts := make([]int, 4)
	for _, r := range split.Test {
		counts[r/250]++
	}
	for q, c := range counts {
		assert.Equal(t, 50, c, "quartile %d", q)
	}
}

func TestInitialSplitIsDeterministic(t *testing.T) {
	m := linearMatrix(t, 200)
	a, err := NewPartitioner(rng.NewAdapter(), 9, 4).InitialSplit(context.Background(), m, "y", 0.75)
	require.NoError(t, err)
	b, err := NewPartitioner(rng.NewAdapter(), 9, 4).InitialSplit(context.Background(), m, "y", 0.75)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewPartitioner(rng.NewAdapter(), 10, 4).InitialSplit(context.Background(), m, "y", 0.75)
	require.NoError(t, err)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestInitialSplitRejectsBadInput(t *testing.T) {
	p := NewPartitioner(rng.NewAdapter(), 1, 0)

	_, err := p.InitialSplit(context.Background(), linearMatrix(t, 100), "y", 1.2)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, err = p.InitialSplit(context.Background(), linearMatrix(t, 5), "y", 0.8)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	strat := NewPartitioner(rng.NewAdapter(), 1, 4)
	_, err = strat.InitialSplit(context.Background(), linearMatrix(t, 100), "missing", 0.8)
	assert.ErrorIs(t, err, core.ErrVariableNotFound)
}

func TestVFoldCoversTrainingRowsOnce(t *testing.T) {
	m := linearMatrix(t, 500)
	p := NewPartitioner(rng.NewAdapter(), 3, 4)
	split, err := p.InitialSplit(context.Background(), m, "y", 0.8)
	require.NoError(t, err)

	folds, err := p.VFold(context.Background(), m, split.Train, "y", 10)
	require.NoError(t, err)
	require.Equal(t, 10, folds.Len())
	assert.Equal(t, "Fold01", folds.Folds[0].ID)
	assert.Equal(t, "Fold10", folds.Folds[9].ID)

	test := make(map[int]bool)
	for _, r := range split.Test {
		test[r] = true
	}

	held := make(map[int]int)
	for _, f := range folds.Folds {
		assert.InDelta(t, 40, len(f.Assessment), 1)
		assert.Equal(t, len(split.Train), len(f.Analysis)+len(f.Assessment))
		for _, r := range f.Assessment {
			held[r]++
			assert.False(t, test[r], "test row %d leaked into folds", r)
		}
		for _, r := range f.Analysis {
			assert.False(t, test[r], "test row %d leaked into folds", r)
		}
	}
	assert.Len(t, held, len(split.Train))
	for r, n := range held {
		assert.Equal(t, 1, n, "row %d held out %d times", r, n)
	}
}

func TestVFoldRejectsBadInput(t *testing.T) {
	m := linearMatrix(t, 30)
	p := NewPartitioner(rng.NewAdapter(), 1, 0)

	_, err := p.VFold(context.Background(), m, dataset.AllRows(30), "y", 1)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, err = p.VFold(context.Background(), m, dataset.AllRows(10), "y", 10)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestQuantileBins(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	bins, err := QuantileBins(values, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 3}, bins)

	binary := []float64{0, 1, 0, 1, 1, 0}
	bins, err = QuantileBins(binary, 4)
	require.NoError(t, err)
	for i, b := range bins {
		if binary[i] == 0 {
			assert.Equal(t, 0, b)
		} else {
			assert.Greater(t, b, 0)
		}
	}

	none, err := QuantileBins(values, 1)
	require.NoError(t, err)
	assert.Equal(t, make([]int, 8), none)
}

type streamCall struct {
	runID, stage, key string
	seed              int64
}

// recordingRNG notes every stream the partitioner asks for
type recordingRNG struct {
	*rng.Adapter
	calls []streamCall
}

func (r *recordingRNG) Stream(ctx context.Context, runID, stageName, key string, baseSeed int64) (*rand.Rand, error) {
	r.calls = append(r.calls, streamCall{runID, stageName, key, baseSeed})
	return r.Adapter.Stream(ctx, runID, stageName, key, baseSeed)
}

func TestPartitionsDrawFromResampleStage(t *testing.T) {
	ctx := context.Background()
	m := linearMatrix(t, 100)
	rec := &recordingRNG{Adapter: rng.NewAdapter()}
	p := NewPartitioner(rec, 5, 0)

	split, err := p.InitialSplit(ctx, m, "y", 0.8)
	require.NoError(t, err)
	_, err = p.VFold(ctx, m, split.Train, "y", 5)
	require.NoError(t, err)

	assert.Equal(t, []streamCall{
		{"", "resample", "initial_split", 5},
		{"", "resample", "vfold", 5},
	}, rec.calls)

	again, err := NewPartitioner(rng.NewAdapter(), 5, 0).InitialSplit(ctx, m, "y", 0.8)
	require.NoError(t, err)
	assert.Equal(t, split, again)
}
