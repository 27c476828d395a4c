package app

import (
	"context"
	"fmt"

	"colliderlab/adapters/simulate"
	"colliderlab/domain/causal"
	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
	"colliderlab/domain/simulation"
	"colliderlab/internal/config"
	apperrors "colliderlab/internal/errors"
	"colliderlab/ports"
)

// Study names
const (
	StudyFamily    = "family"
	StudyHappiness = "happiness"
)

// VarAgeScaled is adult age rescaled to [0, 1]
const VarAgeScaled core.VariableKey = "A"

// Study is a simulated dataset with its generating graph and the two
// predictor sets being compared
type Study struct {
	Name        string
	Description string
	Bundle      *dataset.MatrixBundle
	Outcome     core.VariableKey
	Baseline    experiment.VariableSet
	Confounder  experiment.VariableSet
	DAG         *causal.DAG
}

// VariableSets returns baseline first
func (s *Study) VariableSets() []experiment.VariableSet {
	return []experiment.VariableSet{s.Baseline, s.Confounder}
}

// VariableSet finds a set by name
func (s *Study) VariableSet(name string) (experiment.VariableSet, bool) {
	for _, set := range s.VariableSets() {
		if set.Name == name {
			return set, true
		}
	}
	return experiment.VariableSet{}, false
}

// StudyBuilder simulates datasets and wraps them as studies
type StudyBuilder struct {
	family    ports.FamilySimulator
	happiness ports.HappinessSimulator
}

// NewStudyBuilder creates a builder over the two simulators
func NewStudyBuilder(family ports.FamilySimulator, happiness ports.HappinessSimulator) *StudyBuilder {
	return &StudyBuilder{family: family, happiness: happiness}
}

// FamilyStudy simulates the education data. The baseline regresses C on P
// and G, conditioning on the collider P while U stays hidden.
func (b *StudyBuilder) FamilyStudy(ctx context.Context, params simulation.FamilyParams) (*Study, error) {
	bundle, err := b.family.SimulateFamily(ctx, params)
	if err != nil {
		return nil, apperrors.Wrap(err, "simulate family")
	}
	dag, err := FamilyDAG()
	if err != nil {
		return nil, err
	}
	c, p, g, u := simulate.VarChild, simulate.VarParent, simulate.VarGrandparent, simulate.VarEnvironment
	return &Study{
		Name:        StudyFamily,
		Description: "Grandparent (G), parent (P) and child (C) education with an unobserved neighbourhood effect U",
		Bundle:      bundle,
		Outcome:     c,
		Baseline: experiment.VariableSet{
			Name:        "baseline",
			Outcome:     c,
			Predictors:  []core.VariableKey{p, g},
			Description: "conditions on the collider P without its other cause U",
		},
		Confounder: experiment.VariableSet{
			Name:        "with_u",
			Outcome:     c,
			Predictors:  []core.VariableKey{p, g, u},
			Description: "adds the neighbourhood effect U",
		},
		DAG: dag,
	}, nil
}

// FamilyDAG is G->P, G->C, P->C, U->P, U->C with U latent
func FamilyDAG() (*causal.DAG, error) {
	c, p, g, u := simulate.VarChild, simulate.VarParent, simulate.VarGrandparent, simulate.VarEnvironment
	dag, err := causal.NewDAG(
		causal.Edge{From: g, To: p},
		causal.Edge{From: g, To: c},
		causal.Edge{From: p, To: c},
		causal.Edge{From: u, To: p},
		causal.Edge{From: u, To: c},
	)
	if err != nil {
		return nil, err
	}
	dag.MarkLatent(u)
	return dag, nil
}

// HappinessStudy simulates the marriage population, keeps adults of
// marriageable age and adds A, age rescaled so 0 is the marriage age and 1
// is the maximum age.
func (b *StudyBuilder) HappinessStudy(ctx context.Context, params simulation.HappinessParams) (*Study, error) {
	raw, err := b.happiness.SimulateHappiness(ctx, params)
	if err != nil {
		return nil, apperrors.Wrap(err, "simulate happiness")
	}
	ageIdx, err := raw.Matrix.Index(simulate.VarAge)
	if err != nil {
		return nil, err
	}
	minAge, span := float64(params.AgeOfMarriage), float64(params.MaxAge-params.AgeOfMarriage)
	adults := raw.Matrix.
		Filter(func(row []float64) bool { return row[ageIdx] >= minAge }).
		WithColumn(VarAgeScaled, func(row []float64) float64 { return (row[ageIdx] - minAge) / span })

	meta := append(append([]dataset.ColumnMeta(nil), raw.ColumnMeta...), dataset.ColumnMeta{
		VariableKey:     VarAgeScaled,
		StatisticalType: dataset.TypeNumeric,
		Description:     "age rescaled to [0, 1] over the adult range",
	})
	bundle := dataset.NewMatrixBundle(raw.Source, raw.Seed, raw.Params, adults, meta)

	dag, err := HappinessDAG()
	if err != nil {
		return nil, err
	}
	return &Study{
		Name:        StudyHappiness,
		Description: "Happiness and age both cause marriage; conditioning on marriage induces a spurious age effect",
		Bundle:      bundle,
		Outcome:     simulate.VarHappiness,
		Baseline: experiment.VariableSet{
			Name:        "age",
			Outcome:     simulate.VarHappiness,
			Predictors:  []core.VariableKey{VarAgeScaled},
			Description: "age alone, which has no effect on happiness",
		},
		Confounder: experiment.VariableSet{
			Name:        "age_married",
			Outcome:     simulate.VarHappiness,
			Predictors:  []core.VariableKey{VarAgeScaled, simulate.VarMarried},
			Description: "adds marital status, a collider of age and happiness",
		},
		DAG: dag,
	}, nil
}

// HappinessDAG is happiness->married <- A
func HappinessDAG() (*causal.DAG, error) {
	return causal.NewDAG(
		causal.Edge{From: simulate.VarHappiness, To: simulate.VarMarried},
		causal.Edge{From: VarAgeScaled, To: simulate.VarMarried},
	)
}

// Build simulates the named study with parameters taken from cfg
func (b *StudyBuilder) Build(ctx context.Context, name string, cfg *config.Config) (*Study, error) {
	switch name {
	case StudyFamily:
		f := cfg.Family
		return b.FamilyStudy(ctx, simulation.FamilyParams{
			N: f.N, BGP: f.BGP, BGC: f.BGC, BPC: f.BPC, BU: f.BU, Seed: cfg.Experiment.Seed,
		})
	case StudyHappiness:
		h := cfg.Happiness
		return b.HappinessStudy(ctx, simulation.HappinessParams{
			Seed: h.Seed, Years: h.Years, MaxAge: h.MaxAge, BirthsPerYear: h.BirthsPerYear, AgeOfMarriage: h.AgeOfMarriage,
		})
	}
	return nil, apperrors.InvalidParameter(fmt.Sprintf("unknown study %q (want %s or %s)", name, StudyFamily, StudyHappiness))
}

// WithMatrix returns a copy of the study over externally loaded data. The
// matrix must hold every variable either set refers to.
func (s *Study) WithMatrix(source string, m dataset.Matrix) (*Study, error) {
	for _, set := range s.VariableSets() {
		for _, key := range append([]core.VariableKey{set.Outcome}, set.Predictors...) {
			if _, err := m.Index(key); err != nil {
				return nil, apperrors.Wrapf(err, "%s data from %s", s.Name, source)
			}
		}
	}
	out := *s
	out.Bundle = dataset.NewMatrixBundle(source, 0, nil, m, nil)
	return &out, nil
}
