package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(t *testing.T, a *Adapter, name string, seed int64) []float64 {
	r, err := a.SeededStream(context.Background(), name, seed)
	require.NoError(t, err)
	out := make([]float64, 5)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestSeededStreamIsDeterministic(t *testing.T) {
	a := NewAdapter()
	assert.Equal(t, draws(t, a, "family", 1), draws(t, a, "family", 1))
	assert.NotEqual(t, draws(t, a, "family", 1), draws(t, a, "family", 2))
	assert.NotEqual(t, draws(t, a, "family", 1), draws(t, a, "split", 1))
}

func TestStreamMixesKeys(t *testing.T) {
	a := NewAdapter()
	ctx := context.Background()

	r1, err := a.Stream(ctx, "run", "folds", "family", 42)
	require.NoError(t, err)
	r2, err := a.Stream(ctx, "run", "folds", "family", 42)
	require.NoError(t, err)
	r3, err := a.Stream(ctx, "run", "split", "family", 42)
	require.NoError(t, err)

	v1, v2, v3 := r1.Uint64(), r2.Uint64(), r3.Uint64()
	assert.Equal(t, v1, v2)
	assert.NotEqual(t, v1, v3)
}

func TestSeededStreamHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAdapter().SeededStream(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}
