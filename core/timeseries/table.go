// Package timeseries turns raw load and PV tables into aligned fixed-step
// per-unit series sharing one time index.
package timeseries

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is a fixed-step time series with named columns. Values[c][r] is
// column c at Index[r].
type Table struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64
}

// NewTable allocates a zeroed table over index.
func NewTable(index []time.Time, columns []string) *Table {
	t := &Table{Index: index, Columns: columns, Values: make([][]float64, len(columns))}
	for i := range t.Values {
		t.Values[i] = make([]float64, len(index))
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Index) }

// Col returns the position of a named column or -1.
func (t *Table) Col(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Row copies row r into dst, growing it as needed.
func (t *Table) Row(r int, dst []float64) []float64 {
	dst = dst[:0]
	for _, col := range t.Values {
		dst = append(dst, col[r])
	}
	return dst
}

// Slice returns rows [lo, hi) sharing the underlying storage.
func (t *Table) Slice(lo, hi int) *Table {
	out := &Table{Index: t.Index[lo:hi], Columns: t.Columns, Values: make([][]float64, len(t.Values))}
	for i, col := range t.Values {
		out.Values[i] = col[lo:hi]
	}
	return out
}

// CountNaN returns the number of NaN cells.
func (t *Table) CountNaN() int {
	n := 0
	for _, col := range t.Values {
		for _, v := range col {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// Validate checks the index is strictly increasing and every column covers it.
func (t *Table) Validate() error {
	for i := 1; i < len(t.Index); i++ {
		if !t.Index[i].After(t.Index[i-1]) {
			return fmt.Errorf("index not strictly increasing at row %d (%s)", i, t.Index[i].Format(time.RFC3339))
		}
	}
	if len(t.Columns) != len(t.Values) {
		return fmt.Errorf("%d column names for %d columns", len(t.Columns), len(t.Values))
	}
	for i, col := range t.Values {
		if len(col) != len(t.Index) {
			return fmt.Errorf("column %s has %d rows, index has %d", t.Columns[i], len(col), len(t.Index))
		}
	}
	return nil
}

// BusColumns parses the column names of a load table as bus ids.
func BusColumns(t *Table) ([]int, error) {
	ids := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		id, err := strconv.Atoi(c)
		if err != nil {
			return nil, fmt.Errorf("load column %q is not a bus id", c)
		}
		ids[i] = id
	}
	return ids, nil
}

// RawTable is the first sheet of a tabular file as text cells. Header is the
// first row; Rows excludes it.
type RawTable struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Width returns the widest row length including the header.
func (r *RawTable) Width() int {
	w := len(r.Header)
	for _, row := range r.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Cell returns a trimmed cell, or "" when the row is short.
func (r *RawTable) Cell(row, col int) string {
	if row >= len(r.Rows) || col >= len(r.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(r.Rows[row][col])
}

// TableSource lists and reads tabular files. References are opaque to the
// aligner; List returns them sorted by name.
type TableSource interface {
	List(root string) ([]string, error)
	Read(ref string) (*RawTable, error)
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
