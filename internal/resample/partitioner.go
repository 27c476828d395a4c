// Package resample builds seeded train/test splits and cross-validation folds.
package resample

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/montanaflynn/stats"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/ports"
)

// MinRows is the smallest matrix the partitioner will split
const MinRows = 10

// stage names the RNG stage every partition stream is drawn from
const stage = "resample"

// Partitioner implements sample splitting with optional stratification on
// quantile bins of the outcome. All randomness comes from the resample
// stage's RNG streams, which carry no run ID, so two experiments sharing a
// seed share their partitions.
type Partitioner struct {
	rng    ports.RNGPort
	seed   int64
	strata int
}

// NewPartitioner creates a partitioner. strata < 2 disables stratification.
func NewPartitioner(rng ports.RNGPort, seed int64, strata int) *Partitioner {
	return &Partitioner{rng: rng, seed: seed, strata: strata}
}

// InitialSplit assigns round(trainFraction * n) rows per stratum to training
func (p *Partitioner) InitialSplit(ctx context.Context, m dataset.Matrix, outcome core.VariableKey, trainFraction float64) (dataset.Split, error) {
	if trainFraction <= 0 || trainFraction >= 1 || math.IsNaN(trainFraction) {
		return dataset.Split{}, core.NewInvalidParameterError("train_fraction", "must be in (0, 1)")
	}
	if m.Rows() < MinRows {
		return dataset.Split{}, fmt.Errorf("%w: need at least %d rows to split, got %d",
			core.ErrInsufficientData, MinRows, m.Rows())
	}

	groups, err := p.groups(m, outcome, dataset.AllRows(m.Rows()))
	if err != nil {
		return dataset.Split{}, err
	}
	rng, err := p.rng.Stream(ctx, "", stage, "initial_split", p.seed)
	if err != nil {
		return dataset.Split{}, err
	}

	split := dataset.Split{Seed: p.seed}
	for _, g := range groups {
		shuffle(rng, g)
		cut := int(math.Round(float64(len(g)) * trainFraction))
		split.Train = append(split.Train, g[:cut]...)
		split.Test = append(split.Test, g[cut:]...)
	}
	if len(split.Train) == 0 || len(split.Test) == 0 {
		return dataset.Split{}, fmt.Errorf("%w: split produced an empty partition", core.ErrInsufficientData)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split, nil
}

// VFold partitions rows into k folds. Within each stratum rows are shuffled
// and dealt round-robin, so fold sizes differ by at most one.
func (p *Partitioner) VFold(ctx context.Context, m dataset.Matrix, rows []int, outcome core.VariableKey, k int) (dataset.Resamples, error) {
	if k < 2 {
		return dataset.Resamples{}, core.NewInvalidParameterError("folds", "must be at least 2")
	}
	if len(rows) < 2*k {
		return dataset.Resamples{}, fmt.Errorf("%w: %d rows cannot fill %d folds",
			core.ErrInsufficientData, len(rows), k)
	}

	groups, err := p.groups(m, outcome, rows)
	if err != nil {
		return dataset.Resamples{}, err
	}
	rng, err := p.rng.Stream(ctx, "", stage, "vfold", p.seed)
	if err != nil {
		return dataset.Resamples{}, err
	}

	assessment := make([][]int, k)
	next := 0
	for _, g := range groups {
		shuffle(rng, g)
		for _, r := range g {
			assessment[next] = append(assessment[next], r)
			next = (next + 1) % k
		}
	}

	resamples := dataset.Resamples{Seed: p.seed, Folds: make([]dataset.Fold, k)}
	for f := range assessment {
		sort.Ints(assessment[f])
		held := make(map[int]bool, len(assessment[f]))
		for _, r := range assessment[f] {
			held[r] = true
		}
		analysis := make([]int, 0, len(rows)-len(assessment[f]))
		for _, r := range rows {
			if !held[r] {
				analysis = append(analysis, r)
			}
		}
		sort.Ints(analysis)
		resamples.Folds[f] = dataset.Fold{
			ID:         fmt.Sprintf("Fold%02d", f+1),
			Analysis:   analysis,
			Assessment: assessment[f],
		}
	}
	return resamples, nil
}

// groups returns the rows split by stratum, in stratum order. Without
// stratification there is a single group holding a copy of rows.
func (p *Partitioner) groups(m dataset.Matrix, outcome core.VariableKey, rows []int) ([][]int, error) {
	if p.strata < 2 {
		return [][]int{append([]int(nil), rows...)}, nil
	}
	values, err := m.ColumnAt(outcome, rows)
	if err != nil {
		return nil, err
	}
	bins, err := QuantileBins(values, p.strata)
	if err != nil {
		return nil, err
	}

	byBin := make(map[int][]int)
	for i, b := range bins {
		byBin[b] = append(byBin[b], rows[i])
	}
	keys := make([]int, 0, len(byBin))
	for k := range byBin {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([][]int, 0, len(keys))
	for _, k := range keys {
		out = append(out, byBin[k])
	}
	return out, nil
}

// QuantileBins assigns each value to one of `bins` groups cut at evenly
// spaced percentiles. Ties at a cut point fall into the lower bin, so
// discrete outcomes may produce fewer non-empty bins.
func QuantileBins(values []float64, bins int) ([]int, error) {
	if bins < 2 {
		return make([]int, len(values)), nil
	}
	cuts := make([]float64, bins-1)
	for i := range cuts {
		c, err := stats.Percentile(values, 100*float64(i+1)/float64(bins))
		if err != nil {
			return nil, fmt.Errorf("%w: stratification: %v", core.ErrInsufficientData, err)
		}
		cuts[i] = c
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = sort.SearchFloat64s(cuts, v)
	}
	return out, nil
}

func shuffle(rng *rand.Rand, rows []int) {
	rng.Shuffle(len(rows), func(i, j int) {
		rows[i], rows[j] = rows[j], rows[i]
	})
}
