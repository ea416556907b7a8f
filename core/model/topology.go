package model

// BusType is the MATPOWER-style bus type code found in the topology file.
type BusType int

const (
	BusLoad      BusType = 1
	BusGenerator BusType = 2
	BusSlack     BusType = 3
)

// String returns a human-readable representation of the bus type.
func (t BusType) String() string {
	switch t {
	case BusLoad:
		return "load"
	case BusGenerator:
		return "generator"
	case BusSlack:
		return "slack"
	default:
		return "unknown"
	}
}

// BusRecord is one row of the bus matrix. Values are kept as parsed.
type BusRecord struct {
	ID     int
	Type   BusType
	PdKW   float64 // nominal active demand, overwritten by the load series
	QdKVar float64
	Gs     float64
	Bs     float64
	Area   int
	Vm     float64 // voltage magnitude set-point, p.u.
	Va     float64 // voltage angle set-point, degrees
	BaseKV float64
	Zone   int
	VmaxPU float64
	VminPU float64
}

// BranchRecord is one row of the branch matrix. Impedances are per-unit on
// the system base.
type BranchRecord struct {
	From   int
	To     int
	RPU    float64
	XPU    float64
	BPU    float64
	RateA  float64 // MVA, 0 means unrated
	RateB  float64
	RateC  float64
	Ratio  float64
	Angle  float64
	Status int
	AngMin float64
	AngMax float64
}

// InService reports whether the branch participates in the network.
func (b BranchRecord) InService() bool { return b.Status == 1 }

// Name returns the "<from>-<to>" label used for lines in every export.
func (b BranchRecord) Name() string { return lineName(b.From, b.To) }
