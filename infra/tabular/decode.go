package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/kilianp07/hostcap/core/timeseries"
)

// ErrEmptyTable is returned for files without a single row.
var ErrEmptyTable = errors.New("empty table")

// Decode parses the first sheet of a table file. name selects the format.
func Decode(name string, data []byte) (*timeseries.RawTable, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		rows, err = decodeCSV(data)
	case ".xlsx":
		rows, err = decodeXLSX(data)
	case ".xls":
		rows, err = decodeXLS(data)
	default:
		return nil, fmt.Errorf("unsupported table format %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	rows = trimTrailingEmpty(rows)
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	return &timeseries.RawTable{Name: name, Header: rows[0], Rows: rows[1:]}, nil
}

func decodeCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// sniffDelimiter picks ';' or tab when the first line has no comma.
func sniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.ContainsRune(line, ',') {
		return ','
	}
	if bytes.ContainsRune(line, ';') {
		return ';'
	}
	if bytes.ContainsRune(line, '\t') {
		return '\t'
	}
	return ','
}

func decodeXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}
	return f.GetRows(sheets[0])
}

func decodeXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyTable
	}
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
