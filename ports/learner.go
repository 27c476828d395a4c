package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"colliderlab/domain/experiment"
)

// Learner fits one model family for a given hyperparameter configuration
type Learner interface {
	// Kind is the model family name, e.g. "linear" or "gbt"
	Kind() string

	// Fit trains on x (rows=observations) and y. Implementations must not
	// retain or modify x.
	Fit(ctx context.Context, x mat.Matrix, y []float64, params experiment.HyperParams) (Model, error)
}

// Model is a fitted learner
type Model interface {
	Predict(x mat.Matrix) []float64
}

// CoefficientModel exposes linear coefficients (intercept first)
type CoefficientModel interface {
	Model
	Coefficients(terms []string) []experiment.Coefficient
}

// ImportanceModel exposes per-feature importances
type ImportanceModel interface {
	Model
	Importances(terms []string) []experiment.Importance
}
