// Package grid holds the solver-ready network model, the builder that creates
// it from parsed topology and the applier that rewrites its injections.
package grid

import (
	"math"
	"sort"
	"strconv"

	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/topology"
)

// DefaultMaxIkA is the line current rating used when a branch has no rateA.
const DefaultMaxIkA = 0.4

// Bus is a network node. Index is its position in Network.Buses.
type Bus struct {
	ID    int
	Index int
	VnKV  float64
	Name  string
	Type  model.BusType
}

// Line connects two buses by internal index. Impedances are in ohms.
type Line struct {
	From   int
	To     int
	ROhm   float64
	XOhm   float64
	MaxIkA float64
	Name   string
}

// ExtGrid is the reference injection holding the slack voltage.
type ExtGrid struct {
	Bus  int
	VmPU float64
}

// Load is a consumption at a bus, MW and Mvar.
type Load struct {
	Bus   int
	PMW   float64
	QMvar float64
}

// StaticGen is a PV injection at a bus, MW and Mvar.
type StaticGen struct {
	Bus    int
	PMW    float64
	QMvar  float64
	Source string
}

// Network is the mutable model handed to the power-flow solver. The Applier
// is the only component that writes Loads and Gens.
type Network struct {
	Base  Base
	Buses []Bus
	Lines []Line
	Ext   ExtGrid
	Loads []Load
	Gens  []StaticGen

	index map[int]int
}

// BuildOptions tunes the builder.
type BuildOptions struct {
	DefaultMaxIkA float64
}

// Index returns the internal index of an external bus id.
func (n *Network) Index(busID int) (int, bool) {
	i, ok := n.index[busID]
	return i, ok
}

// BusIDs returns the external bus ids in internal order.
func (n *Network) BusIDs() []int {
	ids := make([]int, len(n.Buses))
	for i, b := range n.Buses {
		ids[i] = b.ID
	}
	return ids
}

// LineNames returns the line labels in internal order.
func (n *Network) LineNames() []string {
	names := make([]string, len(n.Lines))
	for i, l := range n.Lines {
		names[i] = l.Name
	}
	return names
}

// TotalLoadMW sums the active power of every registered load.
func (n *Network) TotalLoadMW() float64 {
	var sum float64
	for _, l := range n.Loads {
		sum += l.PMW
	}
	return sum
}

// TotalGenMW sums the active power of every registered PV injection.
func (n *Network) TotalGenMW() float64 {
	var sum float64
	for _, g := range n.Gens {
		sum += g.PMW
	}
	return sum
}

// Build converts parsed topology into a network. Branch impedances are
// converted from per-unit to ohms with the process-wide base, never a per-bus one.
func Build(topo *topology.Topology, base Base, opts BuildOptions) (*Network, error) {
	if !base.Valid() {
		return nil, model.Configf("build network", "invalid base sbase=%v vbase=%v", base.SBaseMVA, base.VBaseKV)
	}
	if opts.DefaultMaxIkA <= 0 {
		opts.DefaultMaxIkA = DefaultMaxIkA
	}
	buses := append([]model.BusRecord(nil), topo.Buses...)
	sort.SliceStable(buses, func(i, j int) bool { return buses[i].ID < buses[j].ID })

	net := &Network{Base: base, index: make(map[int]int, len(buses)), Ext: ExtGrid{Bus: -1, VmPU: 1.0}}
	for _, r := range buses {
		vn := r.BaseKV
		if vn <= 0 {
			vn = base.VBaseKV
		}
		idx := len(net.Buses)
		net.Buses = append(net.Buses, Bus{ID: r.ID, Index: idx, VnKV: vn, Name: "Bus " + strconv.Itoa(r.ID), Type: r.Type})
		net.index[r.ID] = idx
		if r.Type == model.BusSlack {
			if net.Ext.Bus >= 0 {
				return nil, model.Configf("build network", "more than one slack bus (%d and %d)", net.Buses[net.Ext.Bus].ID, r.ID)
			}
			net.Ext.Bus = idx
		}
	}
	if net.Ext.Bus < 0 {
		return nil, model.Configf("build network", "no slack bus in topology")
	}

	zbase := base.ZBase()
	for _, br := range topo.Branches {
		if !br.InService() {
			continue
		}
		from, okF := net.index[br.From]
		to, okT := net.index[br.To]
		if !okF || !okT {
			return nil, model.Configf("build network", "branch %s references an unknown bus", br.Name())
		}
		maxI := opts.DefaultMaxIkA
		if br.RateA > 0 {
			maxI = br.RateA / (math.Sqrt(3) * base.VBaseKV)
		}
		net.Lines = append(net.Lines, Line{
			From:   from,
			To:     to,
			ROhm:   br.RPU * zbase,
			XOhm:   br.XPU * zbase,
			MaxIkA: maxI,
			Name:   br.Name(),
		})
	}
	return net, nil
}
