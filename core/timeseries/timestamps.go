package timeseries

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// SyntheticEpoch anchors the hourly index used for tables without any
// parseable timestamp.
var SyntheticEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SyntheticStep is the spacing of the synthetic index.
const SyntheticStep = time.Hour

// SyntheticIndex returns n hourly timestamps from SyntheticEpoch.
func SyntheticIndex(n int) []time.Time {
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = SyntheticEpoch.Add(time.Duration(i) * SyntheticStep)
	}
	return idx
}

// ParseTimestamp reports whether a cell is a timestamp. Plain numbers are
// never timestamps; naive values are read as UTC.
func ParseTimestamp(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	if _, ok := parseNumber(s); ok {
		return time.Time{}, false
	}
	if !strings.ContainsFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// rowIndex is the time index of a raw table: retained row positions in time
// order and their timestamps.
type rowIndex struct {
	times     []time.Time
	rows      []int
	synthetic bool
	dropped   int
}

// indexRows parses column col of raw. When every cell fails the synthetic
// index applies to all rows; otherwise rows with a bad or duplicate
// timestamp are dropped and the rest sorted by time.
func indexRows(raw *RawTable, col int) rowIndex {
	n := len(raw.Rows)
	times := make([]time.Time, 0, n)
	rows := make([]int, 0, n)
	for r := 0; r < n; r++ {
		if t, ok := ParseTimestamp(raw.Cell(r, col)); ok {
			times = append(times, t)
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return rowIndex{times: SyntheticIndex(n), rows: all, synthetic: true}
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })

	out := rowIndex{times: make([]time.Time, 0, len(rows)), rows: make([]int, 0, len(rows))}
	for _, o := range order {
		if k := len(out.times); k > 0 && out.times[k-1].Equal(times[o]) {
			continue
		}
		out.times = append(out.times, times[o])
		out.rows = append(out.rows, rows[o])
	}
	out.dropped = n - len(out.rows)
	return out
}
