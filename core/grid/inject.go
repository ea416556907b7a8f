package grid

import (
	"fmt"
	"math"

	"github.com/kilianp07/hostcap/core/model"
)

// DefaultPowerFactor is the lagging power factor assumed for every load.
const DefaultPowerFactor = 0.95

// Snapshot is the per-unit load and PV availability of one timestamp.
// PV is aligned with the PVAssignment of the run.
type Snapshot struct {
	LoadBus []int
	LoadPU  []float64
	PV      []float64
}

// Applier rewrites the injections of a network for one step and alpha.
type Applier struct {
	PowerFactor float64
}

// NewApplier returns an Applier using pf, or the default power factor when pf
// is outside (0, 1].
func NewApplier(pf float64) Applier {
	if pf <= 0 || pf > 1 {
		pf = DefaultPowerFactor
	}
	return Applier{PowerFactor: pf}
}

// Apply clears every load and PV injection and registers the ones of snap.
// Non-positive loads and PV injections are skipped. The backing slices are
// reused so repeated calls during a search do not allocate.
func (a Applier) Apply(net *Network, snap Snapshot, assign model.PVAssignment, alpha float64) error {
	if len(snap.LoadBus) != len(snap.LoadPU) {
		return fmt.Errorf("apply injections: %d load buses for %d values", len(snap.LoadBus), len(snap.LoadPU))
	}
	if len(assign) != len(snap.PV) {
		return fmt.Errorf("apply injections: %d PV sites for %d values", len(assign), len(snap.PV))
	}
	pf := a.PowerFactor
	if pf <= 0 || pf > 1 {
		pf = DefaultPowerFactor
	}
	sn := net.Base.SBaseMVA

	net.Loads = net.Loads[:0]
	for i, busID := range snap.LoadBus {
		p := snap.LoadPU[i] * sn
		if !(p > 0) {
			continue
		}
		idx, ok := net.Index(busID)
		if !ok {
			return fmt.Errorf("apply injections: load bus %d not in network", busID)
		}
		s := p / pf
		q := math.Sqrt(math.Max(0, s*s-p*p))
		net.Loads = append(net.Loads, Load{Bus: idx, PMW: p, QMvar: q})
	}

	net.Gens = net.Gens[:0]
	for i, site := range assign {
		p := math.Max(0, snap.PV[i]) * alpha * sn
		if !(p > 0) {
			continue
		}
		idx, ok := net.Index(site.Bus)
		if !ok {
			return fmt.Errorf("apply injections: PV bus %d not in network", site.Bus)
		}
		net.Gens = append(net.Gens, StaticGen{Bus: idx, PMW: p, Source: site.Source})
	}
	return nil
}
