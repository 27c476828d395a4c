package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"colliderlab/adapters/learners"
	"colliderlab/adapters/learners/linear"
	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
	"colliderlab/domain/run"
	"colliderlab/internal"
	"colliderlab/internal/config"
	apperrors "colliderlab/internal/errors"
	"colliderlab/internal/metrics"
	"colliderlab/internal/recipe"
	"colliderlab/internal/resample"
	"colliderlab/internal/tuning"
	"colliderlab/ports"
)

// Workflow stages recorded on failures
const (
	StageLearner  = "learner"
	StageGrid     = "grid"
	StageTune     = "tune"
	StageFinalize = "finalize"
	StageEvaluate = "evaluate"
)

// LearnerFactory resolves a model kind to a learner
type LearnerFactory func(kind string) (ports.Learner, error)

// ExperimentService runs the split, tune, refit and evaluate sequence for
// every (variable set, model kind) workflow of a study
type ExperimentService struct {
	rng      ports.RNGPort
	cfg      *config.Config
	learners LearnerFactory
	logger   *internal.Logger
}

// NewExperimentService creates a service using the registered learners
func NewExperimentService(rng ports.RNGPort, cfg *config.Config, logger *internal.Logger) *ExperimentService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &ExperimentService{
		rng:      rng,
		cfg:      cfg,
		learners: learners.GetLearnerFactory,
		logger:   logger,
	}
}

// WithLearnerFactory replaces learner resolution
func (s *ExperimentService) WithLearnerFactory(f LearnerFactory) *ExperimentService {
	s.learners = f
	return s
}

// RunAll runs every study with one run id and the shared seed
func (s *ExperimentService) RunAll(ctx context.Context, studies []*Study) (*experiment.RunResult, error) {
	metric, err := experiment.ParseMetric(s.cfg.Experiment.Metric)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidParameter, err)
	}
	configHash, err := config.Hash(s.cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "hash configuration")
	}
	result := &experiment.RunResult{
		RunID:     core.NewRunID(),
		Seed:      s.cfg.Experiment.Seed,
		Metric:    metric,
		CreatedAt: core.Now(),
	}
	inputs := make([]run.StudyInput, 0, len(studies))
	for _, study := range studies {
		res, err := s.Run(ctx, study)
		if err != nil {
			return nil, err
		}
		result.Studies = append(result.Studies, *res)
		inputs = append(inputs, run.StudyInput{Study: res.Name, Fingerprint: res.Fingerprint, Rows: res.Rows})
	}
	result.Manifest = run.NewManifest(result.RunID, configHash, inputs, result.Seed, string(metric))
	return result, nil
}

// Run executes the pipeline for one study. Both variable sets share the
// same split and folds. A failing workflow is recorded in Failures and the
// run continues; only partitioning errors and cancellation are returned.
func (s *ExperimentService) Run(ctx context.Context, study *Study) (*experiment.StudyResult, error) {
	startTime := time.Now()
	exp := s.cfg.Experiment

	metric, err := experiment.ParseMetric(exp.Metric)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidParameter, err)
	}
	m := study.Bundle.Matrix

	partitioner := resample.NewPartitioner(s.rng, exp.Seed, exp.Strata)
	split, err := partitioner.InitialSplit(ctx, m, study.Outcome, exp.TrainFraction)
	if err != nil {
		return nil, apperrors.Wrapf(err, "%s: initial split", study.Name)
	}
	folds, err := partitioner.VFold(ctx, m, split.Train, study.Outcome, exp.Folds)
	if err != nil {
		return nil, apperrors.Wrapf(err, "%s: cross-validation folds", study.Name)
	}
	s.logger.Info("[ExperimentService] %s: %d rows, %d train / %d test, %d folds",
		study.Name, m.Rows(), len(split.Train), len(split.Test), folds.Len())

	result := &experiment.StudyResult{
		Name:          study.Name,
		Description:   study.Description,
		Outcome:       study.Outcome,
		BaselineSet:   study.Baseline.Name,
		ConfounderSet: study.Confounder.Name,
		Fingerprint:   study.Bundle.Fingerprint,
		Rows:          m.Rows(),
		TrainRows:     len(split.Train),
		TestRows:      len(split.Test),
		Folds:         folds.Len(),
	}
	if study.DAG != nil {
		result.Edges = study.DAG.Edges()
		for _, v := range study.DAG.Variables() {
			if study.DAG.IsLatent(v) {
				result.Latent = append(result.Latent, v)
			}
		}
	}

	tuner := tuning.NewTuner(tuning.Options{
		Workers: s.cfg.Tuning.Workers,
		Race:    s.cfg.Tuning.Race,
		BurnIn:  s.cfg.Tuning.BurnIn,
		Alpha:   s.cfg.Tuning.Alpha,
		Metric:  metric,
	}, s.logger)

	for _, set := range study.VariableSets() {
		for _, kind := range s.cfg.Tuning.Models {
			wf := experiment.NewWorkflow(set, kind)
			eval, failure := s.runWorkflow(ctx, tuner, study, wf, split, folds)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if failure != nil {
				s.logger.Warn("[ExperimentService] %v", apperrors.FittingFailure(string(wf.ID), failure))
				result.Failures = append(result.Failures, *failure)
				continue
			}
			s.logger.Info("[ExperimentService] %s %s best=%s rmse=%.4f rsq=%.4f",
				study.Name, wf.ID, eval.Params.Key(), eval.Metrics[experiment.MetricRMSE], eval.Metrics[experiment.MetricRSQ])
			result.Evaluations = append(result.Evaluations, *eval)
		}
	}

	s.logger.Debug("[ExperimentService] %s finished in %v", study.Name, time.Since(startTime))
	return result, nil
}

func (s *ExperimentService) runWorkflow(
	ctx context.Context,
	tuner *tuning.Tuner,
	study *Study,
	wf experiment.Workflow,
	split dataset.Split,
	folds dataset.Resamples,
) (*experiment.Evaluation, *experiment.FitFailure) {
	fail := func(stage string, err error) *experiment.FitFailure {
		return &experiment.FitFailure{Workflow: wf, Stage: stage, Err: core.NewFittingError(wf.ID, err)}
	}
	m := study.Bundle.Matrix

	learner, err := s.learners(wf.ModelKind)
	if err != nil {
		return nil, fail(StageLearner, err)
	}
	grid, err := tuning.GridFor(wf.ModelKind, s.cfg.Tuning)
	if err != nil {
		return nil, fail(StageGrid, err)
	}
	rec := recipe.FromVariableSet(wf.VariableSet, s.cfg.Experiment.Normalize)

	tuned, err := tuner.Tune(ctx, wf, learner, m, rec, folds, grid)
	if err != nil {
		return nil, fail(StageTune, err)
	}

	prepped, err := rec.Prep(m, split.Train)
	if err != nil {
		return nil, fail(StageFinalize, err)
	}
	xTrain, yTrain, err := prepped.Bake(m, split.Train)
	if err != nil {
		return nil, fail(StageFinalize, err)
	}
	model, err := learner.Fit(ctx, xTrain, yTrain, tuned.Best)
	if err != nil {
		return nil, fail(StageFinalize, err)
	}

	xTest, yTest, err := prepped.Bake(m, split.Test)
	if err != nil {
		return nil, fail(StageEvaluate, err)
	}
	predictions := model.Predict(xTest)
	scores, err := metrics.Compute(yTest, predictions)
	if err != nil {
		return nil, fail(StageEvaluate, err)
	}

	eval := &experiment.Evaluation{
		Workflow:    wf,
		Params:      tuned.Best,
		Metrics:     scores,
		Truth:       yTest,
		Predictions: predictions,
		Tuning:      tuned,
	}
	if cm, ok := model.(ports.CoefficientModel); ok {
		eval.Coefficients = prepped.Unscale(cm.Coefficients(prepped.Terms()))
	}
	if im, ok := model.(ports.ImportanceModel); ok {
		eval.Importances = im.Importances(prepped.Terms())
	}
	if study.DAG != nil {
		eval.Warnings = study.DAG.AuditPredictors(wf.VariableSet.Outcome, wf.VariableSet.Predictors)
	}
	return eval, nil
}

// InspectCoefficients fits an unpenalized OLS of the named variable set on
// all rows and returns its coefficient table on the raw scale
func (s *ExperimentService) InspectCoefficients(study *Study, setName string) ([]experiment.Coefficient, error) {
	set, ok := study.VariableSet(setName)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("variable set %q in study %s", setName, study.Name))
	}
	_, coefs, err := linear.FitOLS(study.Bundle.Matrix, set.Outcome, set.Predictors)
	if err != nil {
		if errors.Is(err, core.ErrFittingFailure) {
			return nil, apperrors.FittingFailure(string(core.NewWorkflowID(set.Name, linear.Kind)), err)
		}
		return nil, apperrors.Wrap(err, "inspect coefficients")
	}
	return coefs, nil
}
