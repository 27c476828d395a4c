// Package run records what a run was computed from so it can be replayed.
package run

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"colliderlab/domain/core"
)

// CodeVersion is stamped into every manifest
const CodeVersion = "0.3.0"

// StudyInput identifies the dataset one study was run on
type StudyInput struct {
	Study       string    `json:"study"`
	Fingerprint core.Hash `json:"fingerprint"`
	Rows        int       `json:"rows"`
}

// Fingerprint ensures deterministic replay: two runs with the same
// fingerprint produce identical reports
type Fingerprint struct {
	ConfigHash  core.Hash    `json:"config_hash"`
	Inputs      []StudyInput `json:"inputs"`
	Seed        int64        `json:"seed"`
	CodeVersion string       `json:"code_version"`
	Fingerprint core.Hash    `json:"fingerprint"` // Hash of all above
}

// NewFingerprint sorts inputs by study and hashes everything that can
// change a result
func NewFingerprint(configHash core.Hash, inputs []StudyInput, seed int64, codeVersion string) Fingerprint {
	sorted := append([]StudyInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Study < sorted[j].Study })

	return Fingerprint{
		ConfigHash:  configHash,
		Inputs:      sorted,
		Seed:        seed,
		CodeVersion: codeVersion,
		Fingerprint: computeFingerprint(configHash, sorted, seed, codeVersion),
	}
}

func computeFingerprint(configHash core.Hash, inputs []StudyInput, seed int64, codeVersion string) core.Hash {
	parts := make([]string, len(inputs))
	for i, in := range inputs {
		parts[i] = fmt.Sprintf("%s=%s/%d", in.Study, in.Fingerprint, in.Rows)
	}
	data := fmt.Sprintf("config:%s|inputs:%s|seed:%d|code:%s",
		configHash, strings.Join(parts, ","), seed, codeVersion)

	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

// Manifest is written next to the reports of a run
type Manifest struct {
	RunID       core.RunID     `json:"run_id"`
	Seed        int64          `json:"seed"`
	Metric      string         `json:"metric"`
	CodeVersion string         `json:"code_version"`
	Fingerprint Fingerprint    `json:"fingerprint"`
	CreatedAt   core.Timestamp `json:"created_at"`
}

// NewManifest creates a run manifest
func NewManifest(runID core.RunID, configHash core.Hash, inputs []StudyInput, seed int64, metric string) *Manifest {
	return &Manifest{
		RunID:       runID,
		Seed:        seed,
		Metric:      metric,
		CodeVersion: CodeVersion,
		Fingerprint: NewFingerprint(configHash, inputs, seed, CodeVersion),
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewInvalidParameterError("run_id", "cannot be empty")
	}
	if m.Fingerprint.ConfigHash.IsEmpty() {
		return core.NewInvalidParameterError("config_hash", "cannot be empty")
	}
	if len(m.Fingerprint.Inputs) == 0 {
		return core.NewInvalidParameterError("inputs", "at least one study is required")
	}
	for _, in := range m.Fingerprint.Inputs {
		if in.Fingerprint.IsEmpty() {
			return core.NewInvalidParameterError("inputs", "study "+in.Study+" has no dataset fingerprint")
		}
	}
	return nil
}

// Replays reports whether other was computed from the same inputs
func (m *Manifest) Replays(other *Manifest) bool {
	return other != nil && m.Fingerprint.Fingerprint == other.Fingerprint.Fingerprint
}
