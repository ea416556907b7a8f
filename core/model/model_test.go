package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeLabels(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeOK:          "ok",
		OutcomeNonConverge: "non_converge",
		OutcomeVoltage:     "voltage",
		OutcomeLineLoading: "line_loading",
		Outcome(42):        "unknown",
	}
	for o, want := range cases {
		assert.Equal(t, want, o.String())
	}
	assert.True(t, OutcomeOK.Feasible())
	assert.False(t, OutcomeVoltage.Feasible())
}

func TestOutcomeJSON(t *testing.T) {
	in := StepResult{Bottleneck: OutcomeLineLoading, Baseline: OutcomeVoltage}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"bottleneck":"line_loading"`)

	var out StepResult
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, OutcomeLineLoading, out.Bottleneck)
	assert.Equal(t, OutcomeVoltage, out.Baseline)

	assert.Error(t, json.Unmarshal([]byte(`{"bottleneck":"nope"}`), &out))
}

func TestErrorKind(t *testing.T) {
	cfg := Configf("build", "no slack bus")
	wrapped := fmt.Errorf("startup: %w", cfg)
	assert.Equal(t, "configuration", ErrorKind(wrapped))
	assert.Equal(t, "data_alignment", ErrorKind(Alignf("align", "index mismatch")))
	assert.Equal(t, "runtime", ErrorKind(errors.New("boom")))
	assert.Equal(t, "", ErrorKind(nil))

	var ce *ConfigurationError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "build", ce.Op)
}

func TestBranchName(t *testing.T) {
	b := BranchRecord{From: 3, To: 17, Status: 1}
	assert.Equal(t, "3-17", b.Name())
	assert.True(t, b.InService())
	assert.Equal(t, "slack", BusSlack.String())
}
