package simulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"colliderlab/domain/core"
)

func TestFamilyParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultFamilyParams().Validate())

	tests := []struct {
		name   string
		mutate func(*FamilyParams)
	}{
		{"zero n", func(p *FamilyParams) { p.N = 0 }},
		{"negative n", func(p *FamilyParams) { p.N = -5 }},
		{"nan coefficient", func(p *FamilyParams) { p.BGC = math.NaN() }},
		{"inf coefficient", func(p *FamilyParams) { p.BU = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultFamilyParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), core.ErrInvalidParameter)
		})
	}
}

func TestHappinessParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultHappinessParams().Validate())

	p := DefaultHappinessParams()
	p.MaxAge = 10
	assert.ErrorIs(t, p.Validate(), core.ErrInvalidParameter)

	p = DefaultHappinessParams()
	p.BirthsPerYear = 1
	assert.ErrorIs(t, p.Validate(), core.ErrInvalidParameter)

	p = DefaultHappinessParams()
	p.Years = 0
	assert.ErrorIs(t, p.Validate(), core.ErrInvalidParameter)
}
