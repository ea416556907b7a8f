package model

import (
	"strconv"
	"time"
)

// Outcome classifies a power-flow solution against the operating limits.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNonConverge
	OutcomeVoltage
	OutcomeLineLoading
)

// String returns the label used in logs and exports.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNonConverge:
		return "non_converge"
	case OutcomeVoltage:
		return "voltage"
	case OutcomeLineLoading:
		return "line_loading"
	default:
		return "unknown"
	}
}

// Feasible is true only for OutcomeOK.
func (o Outcome) Feasible() bool { return o == OutcomeOK }

// MarshalText encodes the outcome by its label.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes a label produced by MarshalText.
func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, ok := ParseOutcome(string(b))
	if !ok {
		return errUnknownOutcome(string(b))
	}
	*o = parsed
	return nil
}

// ParseOutcome converts a label back into an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	for _, o := range []Outcome{OutcomeOK, OutcomeNonConverge, OutcomeVoltage, OutcomeLineLoading} {
		if o.String() == s {
			return o, true
		}
	}
	return OutcomeOK, false
}

// KPI holds the per-step indicators computed from the baseline solution.
type KPI struct {
	PTotalMW      float64 `json:"P_total_MW"`
	MaxLoadingPct float64 `json:"max_loading_pct"`
	VoltageDevPct float64 `json:"voltage_dev_pct"`
	LossRatePct   float64 `json:"loss_rate_pct"`
}

// StepResult is the append-only record produced for each timestamp.
type StepResult struct {
	Time              time.Time `json:"time"`
	Baseline          Outcome   `json:"baseline"`
	BaselineConverged bool      `json:"baseline_converged"`
	KPI               KPI       `json:"kpi"`
	VminPU            float64   `json:"vmin_pu"`
	VmaxPU            float64   `json:"vmax_pu"`
	Alpha             float64   `json:"alpha"`
	Bottleneck        Outcome   `json:"bottleneck"`
	Reliable          bool      `json:"reliable"`
	ZeroInfeasible    bool      `json:"zero_infeasible"`
	Trials            int       `json:"trials"`
	// LineLoading and BusVoltage are omitted when the baseline did not converge.
	LineLoading []float64 `json:"line_loading,omitempty"`
	BusVoltage  []float64 `json:"bus_voltage,omitempty"`
}

// Summary aggregates the alpha* series of a run.
type Summary struct {
	RunID               string         `json:"run_id,omitempty"`
	Steps               int            `json:"steps"`
	AlphaMean           float64        `json:"alpha_mean"`
	AlphaP50            float64        `json:"alpha_p50"`
	AlphaP90            float64        `json:"alpha_p90"`
	AlphaMin            float64        `json:"alpha_min"`
	AlphaMax            float64        `json:"alpha_max"`
	BottleneckCounts    map[string]int `json:"bottleneck_counts"`
	UnreliableSteps     int            `json:"unreliable_steps"`
	ZeroInfeasibleSteps int            `json:"zero_infeasible_steps"`
}

func lineName(from, to int) string {
	return strconv.Itoa(from) + "-" + strconv.Itoa(to)
}
