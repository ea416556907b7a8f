// Package topology reads the bus and branch matrices of a MATPOWER-style case
// file. Impedances stay per-unit; conversion happens when the network is built.
package topology

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/kilianp07/hostcap/core/model"
)

// Columns of the bus and branch matrices.
const (
	BusColumns    = 13
	BranchColumns = 13
)

var (
	numberRe    = regexp.MustCompile(`^[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?$`)
	tokenSplit  = regexp.MustCompile(`[\s,]+`)
	blockRegexp = func(name string) *regexp.Regexp {
		return regexp.MustCompile(`(?s)\b` + regexp.QuoteMeta(name) + `\s*=\s*\[(.*?)\]\s*;`)
	}
	busBlock    = blockRegexp("bus")
	branchBlock = blockRegexp("branch")
)

// Topology is the parsed content of a case file.
type Topology struct {
	Buses    []model.BusRecord
	Branches []model.BranchRecord
	// Dropped counts branches removed because they are out of service.
	Dropped int
}

// RowError reports a matrix row that did not parse completely.
type RowError struct {
	Block string
	Row   int // 1-based among rows holding a number
	Got   int
	Want  int
	Token string
}

func (e *RowError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s row %d: invalid token %q", e.Block, e.Row, e.Token)
	}
	return fmt.Sprintf("%s row %d: got %d fields, want %d", e.Block, e.Row, e.Got, e.Want)
}

// ParseFile reads and parses a case file.
func ParseFile(path string) (*Topology, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{Op: "read topology", Err: err}
	}
	return Parse(string(b))
}

// Parse extracts the bus and branch matrices from text.
func Parse(text string) (*Topology, error) {
	busRows, err := matrix(text, "bus", busBlock, BusColumns)
	if err != nil {
		return nil, err
	}
	branchRows, err := matrix(text, "branch", branchBlock, BranchColumns)
	if err != nil {
		return nil, err
	}

	topo := &Topology{Buses: make([]model.BusRecord, 0, len(busRows))}
	seen := make(map[int]bool, len(busRows))
	for i, r := range busRows {
		id, ok := asInt(r[0])
		if !ok || id <= 0 {
			return nil, model.Configf("parse topology", "bus row %d: bus id %v is not a positive integer", i+1, r[0])
		}
		if seen[id] {
			return nil, model.Configf("parse topology", "duplicate bus id %d", id)
		}
		seen[id] = true
		topo.Buses = append(topo.Buses, model.BusRecord{
			ID: id, Type: model.BusType(int(r[1])), PdKW: r[2], QdKVar: r[3], Gs: r[4], Bs: r[5],
			Area: int(r[6]), Vm: r[7], Va: r[8], BaseKV: r[9], Zone: int(r[10]), VmaxPU: r[11], VminPU: r[12],
		})
	}

	for i, r := range branchRows {
		br := model.BranchRecord{
			RPU: r[2], XPU: r[3], BPU: r[4], RateA: r[5], RateB: r[6], RateC: r[7],
			Ratio: r[8], Angle: r[9], Status: int(r[10]), AngMin: r[11], AngMax: r[12],
		}
		from, okF := asInt(r[0])
		to, okT := asInt(r[1])
		if !okF || !okT {
			return nil, model.Configf("parse topology", "branch row %d: endpoints must be integers", i+1)
		}
		br.From, br.To = from, to
		if !br.InService() {
			topo.Dropped++
			continue
		}
		if !seen[from] || !seen[to] {
			return nil, model.Configf("parse topology", "branch %s references an unknown bus", br.Name())
		}
		topo.Branches = append(topo.Branches, br)
	}
	return topo, nil
}

// matrix returns the numeric rows of a named block.
func matrix(text, name string, re *regexp.Regexp, width int) ([][]float64, error) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, model.Configf("parse topology", "matrix block %q not found", name)
	}
	var rows [][]float64
	n := 0
	for _, line := range strings.Split(stripComments(m[1]), "\n") {
		for _, raw := range strings.Split(line, ";") {
			tokens := fields(raw)
			if len(tokens) == 0 || !anyNumber(tokens) {
				continue
			}
			n++
			row := make([]float64, 0, width)
			for _, tok := range tokens {
				if !numberRe.MatchString(tok) {
					return nil, &model.ConfigurationError{Op: "parse topology", Err: &RowError{Block: name, Row: n, Token: tok}}
				}
				v, err := strconv.ParseFloat(tok, 64)
				if err != nil {
					return nil, &model.ConfigurationError{Op: "parse topology", Err: &RowError{Block: name, Row: n, Token: tok}}
				}
				row = append(row, v)
			}
			if len(row) != width {
				return nil, &model.ConfigurationError{Op: "parse topology", Err: &RowError{Block: name, Row: n, Got: len(row), Want: width}}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// anyNumber reports whether a row holds at least one numeric token. Rows
// without one are labels or separators and are skipped.
func anyNumber(tokens []string) bool {
	for _, tok := range tokens {
		if numberRe.MatchString(tok) {
			return true
		}
	}
	return false
}

func fields(raw string) []string {
	var out []string
	for _, tok := range tokenSplit.Split(raw, -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func stripComments(body string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if idx := strings.IndexByte(l, '%'); idx >= 0 {
			lines[i] = l[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

func asInt(v float64) (int, bool) {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int(v), true
}
