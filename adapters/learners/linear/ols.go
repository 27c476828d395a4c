package linear

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
)

// FitOLS regresses outcome on predictors over every row of m on the raw
// scale and returns the model with its coefficient table. This is the
// quick "precis" view of a structural model, without resampling.
func FitOLS(m dataset.Matrix, outcome core.VariableKey, predictors []core.VariableKey) (*Model, []experiment.Coefficient, error) {
	if len(predictors) == 0 {
		return nil, nil, core.NewInvalidParameterError("predictors", "at least one predictor is required")
	}
	y, err := m.Column(outcome)
	if err != nil {
		return nil, nil, err
	}
	flat, err := m.Select(predictors, nil)
	if err != nil {
		return nil, nil, err
	}
	x := mat.NewDense(m.Rows(), len(predictors), flat)

	fitted, err := New().Fit(context.Background(), x, y, experiment.HyperParams{ParamPenalty: 0})
	if err != nil {
		return nil, nil, err
	}
	model := fitted.(*Model)

	terms := make([]string, len(predictors))
	for i, p := range predictors {
		terms[i] = string(p)
	}
	return model, model.Coefficients(terms), nil
}
