package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Parameter errors
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNonFinite        = fmt.Errorf("%w: non-finite value", ErrInvalidParameter)

	// Data errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrVariableNotFound = errors.New("variable not found")

	// Model errors
	ErrFittingFailure  = errors.New("model fitting failed")
	ErrSingularDesign  = fmt.Errorf("%w: singular design matrix", ErrFittingFailure)
	ErrNoConfiguration = fmt.Errorf("%w: no configuration survived tuning", ErrFittingFailure)
	ErrUnknownModel    = errors.New("unknown model kind")

	// Determinism errors
	ErrNonDeterministic = errors.New("non-deterministic result")
)

// Error constructors with context
func NewInvalidParameterError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, field, reason)
}

func NewVariableNotFoundError(key VariableKey) error {
	return fmt.Errorf("%w: %s", ErrVariableNotFound, key)
}

func NewFittingError(workflow WorkflowID, err error) error {
	if errors.Is(err, ErrFittingFailure) {
		return fmt.Errorf("workflow %s: %w", workflow, err)
	}
	return fmt.Errorf("%w for workflow %s: %w", ErrFittingFailure, workflow, err)
}

// Error checking helpers
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}

func IsFittingFailure(err error) bool {
	return errors.Is(err, ErrFittingFailure)
}

func IsUnknownModel(err error) bool {
	return errors.Is(err, ErrUnknownModel)
}
