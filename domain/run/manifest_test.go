package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colliderlab/domain/core"
)

func inputs() []StudyInput {
	return []StudyInput{
		{Study: "happiness", Fingerprint: core.Hash("h1"), Rows: 960},
		{Study: "family", Fingerprint: core.Hash("f1"), Rows: 4000},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	fp1 := NewFingerprint("cfg", inputs(), 42, "1.0.0")
	fp2 := NewFingerprint("cfg", inputs(), 42, "1.0.0")

	assert.Equal(t, fp1.Fingerprint, fp2.Fingerprint)
	assert.Len(t, string(fp1.Fingerprint), 64)
	assert.Equal(t, "family", fp1.Inputs[0].Study, "inputs are sorted")
}

func TestFingerprintOrderIndependent(t *testing.T) {
	in := inputs()
	reversed := []StudyInput{in[1], in[0]}
	assert.Equal(t,
		NewFingerprint("cfg", in, 1, "v").Fingerprint,
		NewFingerprint("cfg", reversed, 1, "v").Fingerprint)
}

func TestFingerprintUnique(t *testing.T) {
	base := NewFingerprint("cfg", inputs(), 42, "1.0.0")

	changed := inputs()
	changed[1].Fingerprint = "f2"

	testCases := []struct {
		name string
		fp   Fingerprint
	}{
		{"different config", NewFingerprint("other", inputs(), 42, "1.0.0")},
		{"different data", NewFingerprint("cfg", changed, 42, "1.0.0")},
		{"different seed", NewFingerprint("cfg", inputs(), 43, "1.0.0")},
		{"different code", NewFingerprint("cfg", inputs(), 42, "1.0.1")},
		{"fewer studies", NewFingerprint("cfg", inputs()[:1], 42, "1.0.0")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, base.Fingerprint, tc.fp.Fingerprint)
		})
	}
}

func TestManifestValidate(t *testing.T) {
	m := NewManifest(core.NewRunID(), "cfg", inputs(), 1, "rmse")
	require.NoError(t, m.Validate())
	assert.Equal(t, CodeVersion, m.CodeVersion)

	other := NewManifest(core.NewRunID(), "cfg", inputs(), 1, "rmse")
	assert.True(t, m.Replays(other))
	assert.False(t, m.Replays(nil))

	noRun := *m
	noRun.RunID = ""
	assert.True(t, core.IsInvalidParameter(noRun.Validate()))

	noData := NewManifest(core.NewRunID(), "cfg", nil, 1, "rmse")
	assert.True(t, core.IsInvalidParameter(noData.Validate()))

	blank := NewManifest(core.NewRunID(), "cfg", []StudyInput{{Study: "family"}}, 1, "rmse")
	assert.Error(t, blank.Validate())
}
