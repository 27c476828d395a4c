package ports

import (
	"context"

	"colliderlab/domain/dataset"
	"colliderlab/domain/simulation"
)

// FamilySimulator produces the family education dataset {C, P, G, U}
type FamilySimulator interface {
	SimulateFamily(ctx context.Context, params simulation.FamilyParams) (*dataset.MatrixBundle, error)
}

// HappinessSimulator produces the happiness dataset {age, married, happiness}.
// The pipeline treats it as a black box with a fixed output schema.
type HappinessSimulator interface {
	SimulateHappiness(ctx context.Context, params simulation.HappinessParams) (*dataset.MatrixBundle, error)
}
