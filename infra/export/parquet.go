package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kilianp07/hostcap/core/model"
)

// parquetMatrix writes one row per timestamp: a millisecond timestamp column
// and one optional double column per element.
type parquetMatrix struct{}

func (parquetMatrix) Ext() string { return ".parquet" }

func (parquetMatrix) Write(path string, m Matrix) (err error) {
	group := parquet.Group{timeColumn: parquet.Timestamp(parquet.Millisecond)}
	for _, c := range m.Columns {
		if c == timeColumn {
			return fmt.Errorf("%w: column name %q is reserved", model.ErrExportFormatUnavailable, c)
		}
		group[c] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	schema := parquet.NewSchema("hostcap", group)

	// Leaf order is the schema's sorted field order.
	leaf := make(map[string]int, len(group))
	for i, path := range schema.Columns() {
		leaf[strings.Join(path, ".")] = i
	}
	timeIdx := leaf[timeColumn]
	colIdx := make([]int, len(m.Columns))
	for j, c := range m.Columns {
		colIdx[j] = leaf[c]
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := parquet.NewWriter(f, schema)
	rows := make([]parquet.Row, len(m.Index))
	for i, ts := range m.Index {
		row := make(parquet.Row, len(group))
		row[timeIdx] = parquet.Int64Value(ts.UnixMilli()).Level(0, 0, timeIdx)
		var vals []float64
		if i < len(m.Rows) {
			vals = m.Rows[i]
		}
		for j, idx := range colIdx {
			if j < len(vals) {
				row[idx] = parquet.DoubleValue(vals[j]).Level(0, 1, idx)
			} else {
				row[idx] = parquet.NullValue().Level(0, 0, idx)
			}
		}
		rows[i] = row
	}
	if _, err := w.WriteRows(rows); err != nil {
		return err
	}
	return w.Close()
}
