package export

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kilianp07/hostcap/core/factory"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/simulation"
)

// Matrix is a time-indexed table of per-element values. A nil row marks a
// step without values.
type Matrix struct {
	Index   []time.Time
	Columns []string
	Rows    [][]float64
}

// MatrixWriter writes a Matrix in one file format.
type MatrixWriter interface {
	// Ext is the file extension including the dot.
	Ext() string
	Write(path string, m Matrix) error
}

var matrixWriters = factory.NewRegistry[MatrixWriter]()

// RegisterMatrixWriter adds a matrix format.
func RegisterMatrixWriter(name string, f factory.Factory[MatrixWriter]) error {
	return matrixWriters.Register(name, f)
}

// MatrixFormats lists the registered formats.
func MatrixFormats() []string { return matrixWriters.Names() }

func init() {
	_ = RegisterMatrixWriter("csv", func(map[string]any) (MatrixWriter, error) { return csvMatrix{}, nil })
	_ = RegisterMatrixWriter("parquet", func(map[string]any) (MatrixWriter, error) { return parquetMatrix{}, nil })
}

// writeMatrix writes m with the configured format. Any failure of a non-csv
// format falls back to csv with a warning.
func (e *Exporter) writeMatrix(base string, m Matrix) (string, error) {
	format := e.opts.MatrixFormat
	if format != "csv" {
		w, err := matrixWriters.Create(factory.ModuleConfig{Type: format})
		if err == nil {
			p := e.path(base + w.Ext())
			if err = w.Write(p, m); err == nil {
				return p, nil
			}
			_ = os.Remove(p)
		}
		if errors.Is(err, model.ErrExportFormatUnavailable) {
			e.log.Warnf("%s: %s writer unavailable, writing csv instead", base, format)
		} else {
			e.log.Warnf("%s: %s export failed (%v), writing csv instead", base, format, err)
		}
	}
	p := e.path(base + csvMatrix{}.Ext())
	if err := (csvMatrix{}).Write(p, m); err != nil {
		return "", fmt.Errorf("%s: %w", base, err)
	}
	return p, nil
}

func (e *Exporter) writeLineLoading(rep *simulation.Report) (string, error) {
	m := Matrix{Columns: rep.LineNames}
	for _, s := range rep.Steps {
		m.Index = append(m.Index, s.Time)
		m.Rows = append(m.Rows, s.LineLoading)
	}
	return e.writeMatrix(LineLoadingBase, m)
}

func (e *Exporter) writeBusVoltage(rep *simulation.Report) (string, error) {
	m := Matrix{Columns: make([]string, len(rep.BusIDs))}
	for i, id := range rep.BusIDs {
		m.Columns[i] = strconv.Itoa(id)
	}
	for _, s := range rep.Steps {
		m.Index = append(m.Index, s.Time)
		m.Rows = append(m.Rows, s.BusVoltage)
	}
	return e.writeMatrix(BusVoltageBase, m)
}

type csvMatrix struct{}

func (csvMatrix) Ext() string { return ".csv" }

func (csvMatrix) Write(path string, m Matrix) error {
	records := make([][]string, len(m.Index))
	for i, ts := range m.Index {
		rec := make([]string, 1+len(m.Columns))
		rec[0] = formatTime(ts)
		if i < len(m.Rows) {
			for j, v := range m.Rows[i] {
				if j < len(m.Columns) {
					rec[1+j] = formatFloat(v)
				}
			}
		}
		records[i] = rec
	}
	return writeCSVFile(path, append([]string{timeColumn}, m.Columns...), records)
}
