// Package rng implements seeded, named random streams.
package rng

import (
	"context"
	"math/rand/v2"

	"colliderlab/ports"
)

// Adapter implements ports.RNGPort with PCG generators. Each stream is keyed
// by the seed and a hash of its name, so independent stages never share state
// and reruns reproduce every draw.
type Adapter struct{}

var _ ports.RNGPort = (*Adapter)(nil)

// NewAdapter creates an RNG adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(hashString(name)))), nil
}

// Stream creates a deterministic RNG stream for a specific run/stage/key
func (a *Adapter) Stream(ctx context.Context, runID, stageName, key string, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	if runID != "" {
		seed = int64(hashString(runID)) + seed
	}
	if stageName != "" {
		seed = int64(hashString(stageName)) + seed
	}
	return a.SeededStream(ctx, key, seed)
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
