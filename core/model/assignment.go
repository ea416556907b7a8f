package model

// PVSite binds one generation source to the bus it injects into.
type PVSite struct {
	Source string `json:"source"`
	Bus    int    `json:"bus"`
}

// PVAssignment is the fixed source-to-bus mapping of a run, ordered like the
// generation table columns.
type PVAssignment []PVSite

// Sources returns the source ids in order.
func (a PVAssignment) Sources() []string {
	out := make([]string, len(a))
	for i, s := range a {
		out[i] = s.Source
	}
	return out
}

// Map returns the assignment as source -> bus.
func (a PVAssignment) Map() map[string]int {
	out := make(map[string]int, len(a))
	for _, s := range a {
		out[s.Source] = s.Bus
	}
	return out
}
