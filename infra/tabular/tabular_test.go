package tabular

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestDecodeCSV(t *testing.T) {
	tab, err := Decode("load.csv", []byte("\xef\xbb\xbftime,1,2\n2023-01-01 00:00,0.1,0.2\n2023-01-01 00:15,0.3,\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "1", "2"}, tab.Header)
	require.Len(t, tab.Rows, 2)
	assert.Equal(t, "0.3", tab.Cell(1, 1))
	assert.Equal(t, "", tab.Cell(1, 2))
}

func TestDecodeCSVSemicolon(t *testing.T) {
	tab, err := Decode("pv.CSV", []byte("date;power\n2023-01-01 10:00;1.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "power"}, tab.Header)
	assert.Equal(t, "1.5", tab.Cell(0, 1))
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode("a.csv", []byte("\n\n"))
	assert.ErrorIs(t, err, ErrEmptyTable)
	_, err = Decode("a.txt", []byte("x"))
	assert.Error(t, err)
}

func TestSourceWalksDirectorySorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.csv"), "t,p\n")
	writeFile(t, filepath.Join(dir, "sub", "a.csv"), "t,p\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, ".hidden.csv"), "t,p\n")

	refs, err := NewSource(nil).List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.csv"), filepath.Join(dir, "sub", "a.csv")}, refs)
}

func TestSourceSingleFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "load.csv")
	writeFile(t, p, "time,1\n2023-01-01,0.5\n")
	s := NewSource(nil)
	refs, err := s.List(p)
	require.NoError(t, err)
	require.Equal(t, []string{p}, refs)

	tab, err := s.Read(refs[0])
	require.NoError(t, err)
	assert.Equal(t, p, tab.Name)
	assert.Equal(t, "0.5", tab.Cell(0, 1))

	_, err = s.List(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSourceReadsZipMembers(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "pv.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"pv/site2.csv":         "t,p\n2023-01-01 00:00,2\n",
		"pv/site1.csv":         "t,p\n2023-01-01 00:00,1\n",
		"readme.md":            "x",
		"__MACOSX/._site1.csv": "junk",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	s := NewSource(nil)
	refs, err := s.List(archive)
	require.NoError(t, err)
	require.Equal(t, []string{archive + "!pv/site1.csv", archive + "!pv/site2.csv"}, refs)

	tab, err := s.Read(refs[1])
	require.NoError(t, err)
	assert.Equal(t, "2", tab.Cell(0, 1))

	_, err = s.Read(archive + "!pv/none.csv")
	assert.Error(t, err)
}

func TestSourceReadsFirstXLSXSheet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "load.xlsx")
	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	require.NoError(t, x.SetSheetRow(sheet, "A1", &[]any{"time", "1", "2"}))
	require.NoError(t, x.SetSheetRow(sheet, "A2", &[]any{"2023-01-01 00:00", 0.25, 0.5}))
	_, err := x.NewSheet("ignored")
	require.NoError(t, err)
	require.NoError(t, x.SetSheetRow("ignored", "A1", &[]any{"other"}))
	require.NoError(t, x.SaveAs(p))
	require.NoError(t, x.Close())

	tab, err := NewSource(nil).Read(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "1", "2"}, tab.Header)
	assert.Equal(t, "0.25", tab.Cell(0, 1))
	assert.Equal(t, "0.5", tab.Cell(0, 2))
}
