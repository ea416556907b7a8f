package simulation

import (
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/model"
)

// SourceID returns the id of the i-th generation source, counting from 1.
func SourceID(i int) string { return "PV" + strconv.Itoa(i) }

// CandidateBuses returns the sorted ids of every non-slack bus.
func CandidateBuses(net *grid.Network) []int {
	out := make([]int, 0, len(net.Buses))
	for _, b := range net.Buses {
		if b.Type != model.BusSlack {
			out = append(out, b.ID)
		}
	}
	sort.Ints(out)
	return out
}

// AssignPV maps PV1..PVcount to buses. A non-empty fixed mapping is used as
// is after validation; otherwise count distinct candidates are drawn with a
// PCG generator seeded by seed, so equal seeds give equal mappings.
func AssignPV(candidates []int, count int, seed uint64, fixed map[string]int) (model.PVAssignment, error) {
	if count <= 0 {
		return nil, model.Configf("assign PV", "PV count must be positive, got %d", count)
	}
	allowed := make(map[int]bool, len(candidates))
	for _, b := range candidates {
		allowed[b] = true
	}

	out := make(model.PVAssignment, count)
	if len(fixed) > 0 {
		if len(fixed) != count {
			return nil, model.Configf("assign PV", "fixed mapping has %d sources, PV count is %d", len(fixed), count)
		}
		for i := range out {
			id := SourceID(i + 1)
			bus, ok := fixed[id]
			if !ok {
				return nil, model.Configf("assign PV", "fixed mapping misses %s", id)
			}
			if !allowed[bus] {
				return nil, model.Configf("assign PV", "%s mapped to bus %d, which is not a PV candidate", id, bus)
			}
			out[i] = model.PVSite{Source: id, Bus: bus}
		}
		return out, nil
	}

	if count > len(candidates) {
		return nil, model.Configf("assign PV", "%d PV sources for %d candidate buses", count, len(candidates))
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(len(candidates))
	for i := range out {
		out[i] = model.PVSite{Source: SourceID(i + 1), Bus: candidates[perm[i]]}
	}
	return out, nil
}
