package app

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"colliderlab/adapters/learners"
	"colliderlab/adapters/rng"
	"colliderlab/adapters/simulate"
	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
	"colliderlab/domain/simulation"
	"colliderlab/internal/config"
	apperrors "colliderlab/internal/errors"
	"colliderlab/ports"
)

func testBuilder() *StudyBuilder {
	r := rng.NewAdapter()
	return NewStudyBuilder(simulate.NewFamilySimulator(r), simulate.NewHappinessSimulator(r))
}

// fastConfig keeps the pipeline shape but shrinks the boosted-tree grid
func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Experiment.Folds = 5
	cfg.Tuning.GBT = config.GBTGrid{
		Trees:     []int{30},
		TreeDepth: []int{2},
		LearnRate: []float64{0.2},
		MinN:      []int{10},
	}
	return cfg
}

func coefficient(t *testing.T, coefs []experiment.Coefficient, term string) experiment.Coefficient {
	t.Helper()
	for _, c := range coefs {
		if c.Term == term {
			return c
		}
	}
	t.Fatalf("no coefficient for %s", term)
	return experiment.Coefficient{}
}

func TestFamilyStudyEndToEnd(t *testing.T) {
	ctx := context.Background()
	params := simulation.DefaultFamilyParams()
	params.N = 4000
	study, err := testBuilder().FamilyStudy(ctx, params)
	require.NoError(t, err)

	svc := NewExperimentService(rng.NewAdapter(), fastConfig(), nil)
	res, err := svc.Run(ctx, study)
	require.NoError(t, err)

	assert.Empty(t, res.Failures)
	require.Len(t, res.Evaluations, 4)
	assert.Equal(t, 4000, res.Rows)
	assert.Equal(t, res.Rows, res.TrainRows+res.TestRows)
	assert.Equal(t, 5, res.Folds)
	assert.Equal(t, []core.VariableKey{simulate.VarEnvironment}, res.Latent)

	base, ok := res.Evaluation("baseline_linear")
	require.True(t, ok)
	withU, ok := res.Evaluation("with_u_linear")
	require.True(t, ok)

	// both variable sets are scored on the same held-out rows
	assert.Equal(t, base.Truth, withU.Truth)

	assert.LessOrEqual(t, withU.Metrics[experiment.MetricRMSE], base.Metrics[experiment.MetricRMSE])
	assert.GreaterOrEqual(t, withU.Metrics[experiment.MetricRSQ], base.Metrics[experiment.MetricRSQ])
	assert.InDelta(t, 1.0, withU.Metrics[experiment.MetricRMSE], 0.15)

	assert.Less(t, coefficient(t, base.Coefficients, "G").Estimate, 0.0)
	assert.InDelta(t, 0, coefficient(t, withU.Coefficients, "G").Estimate, 0.2)
	assert.InDelta(t, 1, coefficient(t, withU.Coefficients, "P").Estimate, 0.2)

	require.Len(t, base.Warnings, 1)
	assert.Equal(t, simulate.VarParent, base.Warnings[0].Collider)
	assert.Equal(t, []core.VariableKey{simulate.VarEnvironment}, base.Warnings[0].Omitted)
	assert.Empty(t, withU.Warnings)

	trees, ok := res.Evaluation("with_u_gbt")
	require.True(t, ok)
	assert.Len(t, trees.Importances, 3)
	assert.Empty(t, trees.Coefficients)
	require.NotNil(t, trees.Tuning)
	assert.Len(t, trees.Tuning.Configs, 1)
}

func TestHappinessStudyEndToEnd(t *testing.T) {
	ctx := context.Background()
	study, err := testBuilder().HappinessStudy(ctx, simulation.DefaultHappinessParams())
	require.NoError(t, err)

	// adults aged 18..65, twenty per year of age
	assert.Equal(t, 48*20, study.Bundle.Matrix.Rows())
	a, err := study.Bundle.Matrix.Column(VarAgeScaled)
	require.NoError(t, err)
	for _, v := range a {
		require.True(t, v >= 0 && v <= 1)
	}

	svc := NewExperimentService(rng.NewAdapter(), fastConfig(), nil)
	res, err := svc.Run(ctx, study)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)

	age, ok := res.Evaluation("age_linear")
	require.True(t, ok)
	married, ok := res.Evaluation("age_married_linear")
	require.True(t, ok)

	assert.Less(t, age.Metrics[experiment.MetricRSQ], 0.1)
	assert.Less(t, married.Metrics[experiment.MetricRSQ], 0.6)
	assert.LessOrEqual(t, married.Metrics[experiment.MetricRMSE], age.Metrics[experiment.MetricRMSE])

	coefs, err := svc.InspectCoefficients(study, "age_married")
	require.NoError(t, err)
	ageCoef := coefficient(t, coefs, string(VarAgeScaled))
	assert.Less(t, ageCoef.Estimate, 0.0)
	assert.Less(t, ageCoef.Upper, 0.0)
	assert.Greater(t, coefficient(t, coefs, string(simulate.VarMarried)).Estimate, 0.0)

	require.Len(t, married.Warnings, 1)
	assert.Equal(t, simulate.VarMarried, married.Warnings[0].Collider)
}

func TestInspectCoefficientsCollider(t *testing.T) {
	study, err := testBuilder().FamilyStudy(context.Background(), simulation.DefaultFamilyParams())
	require.NoError(t, err)
	svc := NewExperimentService(rng.NewAdapter(), fastConfig(), nil)

	coefs, err := svc.InspectCoefficients(study, "baseline")
	require.NoError(t, err)
	require.Len(t, coefs, 3)
	assert.Equal(t, "(Intercept)", coefs[0].Term)
	assert.Less(t, coefficient(t, coefs, "G").Estimate, 0.0)

	_, err = svc.InspectCoefficients(study, "nope")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

type brokenLearner struct{}

func (brokenLearner) Kind() string { return "gbt" }

func (brokenLearner) Fit(context.Context, mat.Matrix, []float64, experiment.HyperParams) (ports.Model, error) {
	return nil, errors.New("diverged")
}

func TestFailedWorkflowsAreExcluded(t *testing.T) {
	ctx := context.Background()
	params := simulation.DefaultFamilyParams()
	params.N = 400
	study, err := testBuilder().FamilyStudy(ctx, params)
	require.NoError(t, err)

	svc := NewExperimentService(rng.NewAdapter(), fastConfig(), nil).
		WithLearnerFactory(func(kind string) (ports.Learner, error) {
			if kind == "gbt" {
				return brokenLearner{}, nil
			}
			return learners.GetLearnerFactory(kind)
		})
	res, err := svc.Run(ctx, study)
	require.NoError(t, err)

	require.Len(t, res.Evaluations, 2)
	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.Equal(t, "gbt", f.Workflow.ModelKind)
		assert.Equal(t, StageTune, f.Stage)
		assert.ErrorIs(t, f, core.ErrFittingFailure)
		assert.ErrorIs(t, f, core.ErrNoConfiguration)
	}
	for _, e := range res.Evaluations {
		assert.Equal(t, "linear", e.Workflow.ModelKind)
	}
}

func TestUnknownModelIsAFailure(t *testing.T) {
	ctx := context.Background()
	params := simulation.DefaultFamilyParams()
	params.N = 400
	study, err := testBuilder().FamilyStudy(ctx, params)
	require.NoError(t, err)

	cfg := fastConfig()
	cfg.Tuning.Models = []string{"linear", "svm"}
	res, err := NewExperimentService(rng.NewAdapter(), cfg, nil).Run(ctx, study)
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, StageLearner, res.Failures[0].Stage)
	assert.True(t, core.IsUnknownModel(res.Failures[0]))
}

func TestRunAllSharesRunAndRejectsTinyData(t *testing.T) {
	ctx := context.Background()
	b := testBuilder()
	params := simulation.DefaultFamilyParams()
	params.N = 300
	family, err := b.FamilyStudy(ctx, params)
	require.NoError(t, err)

	svc := NewExperimentService(rng.NewAdapter(), fastConfig(), nil)
	run, err := svc.RunAll(ctx, []*Study{family})
	require.NoError(t, err)
	assert.Len(t, run.Studies, 1)
	assert.Equal(t, experiment.MetricRMSE, run.Metric)
	assert.NotEmpty(t, run.RunID)
	require.NotNil(t, run.Manifest)
	require.NoError(t, run.Manifest.Validate())
	assert.Equal(t, run.RunID, run.Manifest.RunID)
	assert.Equal(t, family.Bundle.Fingerprint, run.Manifest.Fingerprint.Inputs[0].Fingerprint)

	again, err := svc.RunAll(ctx, []*Study{family})
	require.NoError(t, err)
	assert.True(t, run.Manifest.Replays(again.Manifest))
	assert.NotEqual(t, run.RunID, again.RunID)

	params.N = 5
	tiny, err := b.FamilyStudy(ctx, params)
	require.NoError(t, err)
	_, err = svc.Run(ctx, tiny)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestRunDeterministic(t *testing.T) {
	ctx := context.Background()
	params := simulation.DefaultFamilyParams()
	params.N = 400

	run := func() experiment.Metrics {
		study, err := testBuilder().FamilyStudy(ctx, params)
		require.NoError(t, err)
		res, err := NewExperimentService(rng.NewAdapter(), fastConfig(), nil).Run(ctx, study)
		require.NoError(t, err)
		e, ok := res.Evaluation("with_u_gbt")
		require.True(t, ok)
		return e.Metrics
	}
	first, second := run(), run()
	assert.Equal(t, first[experiment.MetricRMSE], second[experiment.MetricRMSE])
	assert.False(t, math.IsNaN(first[experiment.MetricRSQ]))
}

func TestBuildStudyFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Family.N = 150

	family, err := testBuilder().Build(ctx, StudyFamily, cfg)
	require.NoError(t, err)
	assert.Equal(t, 150, family.Bundle.Matrix.Rows())

	happiness, err := testBuilder().Build(ctx, StudyHappiness, cfg)
	require.NoError(t, err)
	assert.Equal(t, StudyHappiness, happiness.Name)

	_, err = testBuilder().Build(ctx, "weather", cfg)
	assert.Equal(t, apperrors.CodeInvalidParameter, apperrors.GetCode(err))
}

func TestStudyWithMatrix(t *testing.T) {
	ctx := context.Background()
	family, err := testBuilder().FamilyStudy(ctx, simulation.DefaultFamilyParams())
	require.NoError(t, err)

	loaded, err := family.WithMatrix("family.csv", family.Bundle.Matrix)
	require.NoError(t, err)
	assert.Equal(t, "family.csv", loaded.Bundle.Source)
	assert.Equal(t, family.Bundle.Fingerprint, loaded.Bundle.Fingerprint)
	assert.NotSame(t, family.Bundle, loaded.Bundle)

	partial, err := dataset.NewMatrix([]core.VariableKey{simulate.VarChild, simulate.VarParent}, [][]float64{{1, 2}})
	require.NoError(t, err)
	_, err = family.WithMatrix("partial.csv", partial)
	assert.ErrorIs(t, err, core.ErrVariableNotFound)
}

func TestSimulationErrorsKeepInvalidParameterCode(t *testing.T) {
	ctx := context.Background()

	family := simulation.DefaultFamilyParams()
	family.N = 0
	_, err := testBuilder().FamilyStudy(ctx, family)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
	assert.Equal(t, apperrors.CodeInvalidParameter, apperrors.GetCode(err))

	happiness := simulation.DefaultHappinessParams()
	happiness.BirthsPerYear = 1
	_, err = testBuilder().HappinessStudy(ctx, happiness)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidParameter, apperrors.GetCode(err))
}
