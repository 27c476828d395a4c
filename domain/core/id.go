package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID       ID
	VariableKey ID
	WorkflowID  ID
)

// String conversions for domain IDs
func (id RunID) String() string       { return ID(id).String() }
func (id VariableKey) String() string { return ID(id).String() }
func (id WorkflowID) String() string  { return ID(id).String() }

// NewRunID creates a time-ordered run identifier
func NewRunID() RunID {
	return RunID(NewID())
}

// NewWorkflowID joins a variable set name and a model kind, e.g. "with_u_linear"
func NewWorkflowID(variableSet, modelKind string) WorkflowID {
	return WorkflowID(variableSet + "_" + modelKind)
}

// ParseRunID parses a string into RunID. Run IDs name report directories,
// so anything that is not a single path element is rejected.
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", NewInvalidParameterError("run_id", "cannot be empty")
	}
	if s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return "", NewInvalidParameterError("run_id", fmt.Sprintf("%q is not a single path element", s))
	}
	return RunID(s), nil
}

// VariableKeys converts plain names into variable keys
func VariableKeys(names ...string) []VariableKey {
	keys := make([]VariableKey, len(names))
	for i, n := range names {
		keys[i] = VariableKey(n)
	}
	return keys
}
