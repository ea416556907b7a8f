// Package powerflow provides a backward/forward sweep solver for radial
// feeders implementing core/powerflow.Solver.
package powerflow

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/kilianp07/hostcap/core/grid"
	corepf "github.com/kilianp07/hostcap/core/powerflow"
)

// ErrNotRadial is returned for networks that are meshed or disconnected.
var ErrNotRadial = errors.New("network is not radial")

// collapseVm is the magnitude under which a sweep is considered diverged.
const collapseVm = 1e-3

// plan is the radial ordering of a network: buses in breadth-first order
// from the slack and, for every non-root bus, the line feeding it.
type plan struct {
	order  []int // internal bus indices, root first
	parent []int // parent bus, -1 for the root
	feeder []int // line index feeding the bus, -1 for the root
	zpu    []complex128
}

// SweepSolver solves radial networks by backward/forward sweep. Plans are
// cached per network; the cache is guarded so one solver may be shared.
type SweepSolver struct {
	mu    sync.Mutex
	net   *grid.Network
	cache *plan
}

// NewSweepSolver returns a solver with an empty plan cache.
func NewSweepSolver() *SweepSolver { return &SweepSolver{} }

// Prepare validates that net is radial and caches its ordering.
func (s *SweepSolver) Prepare(net *grid.Network) error {
	_, err := s.planFor(net)
	return err
}

func (s *SweepSolver) planFor(net *grid.Network) (*plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.net == net && s.cache != nil {
		return s.cache, nil
	}
	p, err := buildPlan(net)
	if err != nil {
		return nil, err
	}
	s.net, s.cache = net, p
	return p, nil
}

func buildPlan(net *grid.Network) (*plan, error) {
	n := len(net.Buses)
	if net.Ext.Bus < 0 || net.Ext.Bus >= n {
		return nil, fmt.Errorf("%w: reference bus not set", ErrNotRadial)
	}
	if len(net.Lines) != n-1 {
		return nil, fmt.Errorf("%w: %d buses need %d lines, got %d", ErrNotRadial, n, n-1, len(net.Lines))
	}

	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	lineOf := make(map[[2]int]int, len(net.Lines))
	for li, l := range net.Lines {
		if l.From == l.To {
			return nil, fmt.Errorf("%w: line %s is a self loop", ErrNotRadial, l.Name)
		}
		key := pairKey(l.From, l.To)
		if _, dup := lineOf[key]; dup {
			return nil, fmt.Errorf("%w: parallel lines on %s", ErrNotRadial, l.Name)
		}
		lineOf[key] = li
		g.SetEdge(g.NewEdge(simple.Node(l.From), simple.Node(l.To)))
	}

	p := &plan{
		order:  make([]int, 0, n),
		parent: make([]int, n),
		feeder: make([]int, n),
		zpu:    make([]complex128, n),
	}
	for i := range p.parent {
		p.parent[i], p.feeder[i] = -1, -1
	}
	root := net.Ext.Bus
	discovered := make([]bool, n)
	discovered[root] = true
	p.order = append(p.order, root)
	bf := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			u, v := int(e.From().ID()), int(e.To().ID())
			if discovered[v] && !discovered[u] {
				u, v = v, u
			}
			if discovered[u] && !discovered[v] {
				discovered[v] = true
				p.parent[v] = u
				p.feeder[v] = lineOf[pairKey(u, v)]
				p.order = append(p.order, v)
			}
			return true
		},
	}
	bf.Walk(g, simple.Node(root), nil)
	if len(p.order) != n {
		return nil, fmt.Errorf("%w: %d of %d buses reachable from the reference bus", ErrNotRadial, len(p.order), n)
	}

	sb := net.Base.SBaseMVA
	for _, b := range p.order[1:] {
		l := net.Lines[p.feeder[b]]
		vn := net.Buses[p.parent[b]].VnKV
		zb := vn * vn / sb
		p.zpu[b] = complex(l.ROhm/zb, l.XOhm/zb)
	}
	return p, nil
}

// Solve runs the sweep from a flat start. The result carries the last
// iterate even when the iteration budget is exhausted.
func (s *SweepSolver) Solve(net *grid.Network, opts corepf.Options) (corepf.Result, error) {
	p, err := s.planFor(net)
	if err != nil {
		return corepf.Result{}, err
	}
	if opts.MaxIterations <= 0 || opts.Tolerance <= 0 {
		def := corepf.DefaultOptions()
		if opts.MaxIterations <= 0 {
			opts.MaxIterations = def.MaxIterations
		}
		if opts.Tolerance <= 0 {
			opts.Tolerance = def.Tolerance
		}
	}

	n := len(net.Buses)
	sb := net.Base.SBaseMVA
	sLoad := make([]complex128, n)
	for _, l := range net.Loads {
		sLoad[l.Bus] += complex(l.PMW/sb, l.QMvar/sb)
	}
	for _, g := range net.Gens {
		sLoad[g.Bus] -= complex(g.PMW/sb, g.QMvar/sb)
	}

	root := net.Ext.Bus
	v := make([]complex128, n)
	for i := range v {
		v[i] = complex(net.Ext.VmPU, 0)
	}
	inj := make([]complex128, n)
	branch := make([]complex128, n) // current in the line feeding each bus

	res := corepf.Result{}
	for it := 1; it <= opts.MaxIterations; it++ {
		res.Iterations = it
		for i := range inj {
			inj[i] = cmplx.Conj(sLoad[i] / v[i])
			branch[i] = 0
		}
		for k := len(p.order) - 1; k >= 1; k-- {
			b := p.order[k]
			branch[b] += inj[b]
			branch[p.parent[b]] += branch[b]
		}
		maxDelta := 0.0
		diverged := false
		for _, b := range p.order[1:] {
			nv := v[p.parent[b]] - p.zpu[b]*branch[b]
			if cmplx.IsNaN(nv) || cmplx.IsInf(nv) || cmplx.Abs(nv) < collapseVm {
				diverged = true
				break
			}
			maxDelta = math.Max(maxDelta, cmplx.Abs(nv-v[b]))
			v[b] = nv
		}
		if diverged {
			break
		}
		if maxDelta < opts.Tolerance {
			res.Converged = true
			break
		}
	}

	res.VmPU = make([]float64, n)
	res.VaDeg = make([]float64, n)
	for i, vi := range v {
		res.VmPU[i] = cmplx.Abs(vi)
		res.VaDeg[i] = cmplx.Phase(vi) * 180 / math.Pi
	}
	res.LoadingPercent = make([]float64, len(net.Lines))
	res.LineLossMW = make([]float64, len(net.Lines))
	for _, b := range p.order[1:] {
		li := p.feeder[b]
		l := net.Lines[li]
		vn := net.Buses[p.parent[b]].VnKV
		iKA := cmplx.Abs(branch[b]) * sb / (math.Sqrt(3) * vn)
		if l.MaxIkA > 0 {
			res.LoadingPercent[li] = iKA / l.MaxIkA * 100
		}
		mag := cmplx.Abs(branch[b])
		res.LineLossMW[li] = mag * mag * real(p.zpu[b]) * sb
		res.LossMW += res.LineLossMW[li]
	}
	// branch[root] accumulated every current leaving the reference bus.
	sSlack := v[root]*cmplx.Conj(branch[root]) + sLoad[root]
	res.SlackPMW = real(sSlack) * sb
	res.SlackQMvar = imag(sSlack) * sb
	return res, nil
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
