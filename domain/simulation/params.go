// Package simulation holds the parameters of the two data-generating processes.
package simulation

import (
	"math"

	"colliderlab/domain/core"
)

// FamilyParams parameterizes the grandparent/parent/child education model:
//
//	G ~ Normal(0, 1)
//	U = 2*Bernoulli(0.5) - 1
//	P ~ Normal(BGP*G + BU*U, 1)
//	C ~ Normal(BPC*P + BGC*G + BU*U, 1)
type FamilyParams struct {
	N    int
	BGP  float64
	BGC  float64
	BPC  float64
	BU   float64
	Seed int64
}

// DefaultFamilyParams returns the textbook setting
func DefaultFamilyParams() FamilyParams {
	return FamilyParams{N: 200, BGP: 1, BGC: 0, BPC: 1, BU: 2, Seed: 1}
}

// Validate rejects non-positive N and non-finite coefficients
func (p FamilyParams) Validate() error {
	if p.N <= 0 {
		return core.NewInvalidParameterError("N", "must be positive")
	}
	coefficients := map[string]float64{"b_GP": p.BGP, "b_GC": p.BGC, "b_PC": p.BPC, "b_U": p.BU}
	for _, name := range []string{"b_GP", "b_GC", "b_PC", "b_U"} {
		v := coefficients[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewInvalidParameterError(name, "must be finite")
		}
	}
	return nil
}

// AsMap is used for bundle provenance
func (p FamilyParams) AsMap() map[string]float64 {
	return map[string]float64{
		"n":    float64(p.N),
		"b_GP": p.BGP,
		"b_GC": p.BGC,
		"b_PC": p.BPC,
		"b_U":  p.BU,
	}
}

// HappinessParams parameterizes the age-structured marriage simulation.
// Each year everyone ages, BirthsPerYear newborns arrive with happiness
// evenly spread over [-2, 2], unmarried adults marry with probability
// logistic(happiness - 4), and anyone older than MaxAge leaves.
type HappinessParams struct {
	Seed          int64
	Years         int
	MaxAge        int
	BirthsPerYear int
	AgeOfMarriage int
}

// DefaultHappinessParams returns the textbook setting
func DefaultHappinessParams() HappinessParams {
	return HappinessParams{Seed: 1977, Years: 1000, MaxAge: 65, BirthsPerYear: 20, AgeOfMarriage: 18}
}

// Validate rejects settings that cannot produce an adult population
func (p HappinessParams) Validate() error {
	switch {
	case p.Years <= 0:
		return core.NewInvalidParameterError("Years", "must be positive")
	case p.BirthsPerYear < 2:
		return core.NewInvalidParameterError("BirthsPerYear", "must be at least 2")
	case p.AgeOfMarriage <= 0:
		return core.NewInvalidParameterError("AgeOfMarriage", "must be positive")
	case p.MaxAge < p.AgeOfMarriage:
		return core.NewInvalidParameterError("MaxAge", "must not be below AgeOfMarriage")
	}
	return nil
}

// AsMap is used for bundle provenance
func (p HappinessParams) AsMap() map[string]float64 {
	return map[string]float64{
		"years":           float64(p.Years),
		"max_age":         float64(p.MaxAge),
		"births_per_year": float64(p.BirthsPerYear),
		"age_of_marriage": float64(p.AgeOfMarriage),
	}
}
