// Package learners maps model kinds to learner implementations.
package learners

import (
	"fmt"
	"sort"

	"colliderlab/adapters/learners/gbt"
	"colliderlab/adapters/learners/linear"
	"colliderlab/domain/core"
	"colliderlab/ports"
)

var registry = map[string]func() ports.Learner{
	linear.Kind: func() ports.Learner { return linear.New() },
	gbt.Kind:    func() ports.Learner { return gbt.New() },
}

// GetLearnerFactory returns a fresh learner for the model kind
func GetLearnerFactory(kind string) (ports.Learner, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownModel, kind)
	}
	return factory(), nil
}

// Kinds lists the registered model kinds in sorted order
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
