package tabular

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nwaples/rardecode/v2"

	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/core/timeseries"
)

// archiveSep separates an archive path from a member name in a reference.
const archiveSep = "!"

// Source implements timeseries.TableSource on the local filesystem.
type Source struct {
	log logger.Logger
}

// NewSource creates a Source. log may be nil.
func NewSource(log logger.Logger) *Source {
	return &Source{log: logger.OrNop(log)}
}

var _ timeseries.TableSource = (*Source)(nil)

// List returns the table references under root: a directory is walked
// recursively, an archive is listed, a single table file is returned as is.
func (s *Source) List(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	var refs []string
	switch {
	case info.IsDir():
		refs, err = listDir(root)
	case isArchive(root, ".zip"):
		refs, err = listZip(root)
	case isArchive(root, ".rar"):
		refs, err = listRar(root)
	case timeseries.IsTableFile(root):
		refs = []string{root}
	default:
		return nil, fmt.Errorf("%s is not a directory, archive or table file", root)
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(refs)
	s.log.Debugf("found %d tables under %s", len(refs), root)
	return refs, nil
}

// Read decodes the first sheet of the referenced table.
func (s *Source) Read(ref string) (*timeseries.RawTable, error) {
	data, name, err := readRef(ref)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	t, err := Decode(name, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	t.Name = ref
	return t, nil
}

func isArchive(p, ext string) bool {
	return strings.EqualFold(filepath.Ext(p), ext)
}

func listDir(root string) ([]string, error) {
	var refs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || hidden(d.Name()) {
			return nil
		}
		if timeseries.IsTableFile(p) {
			refs = append(refs, p)
		}
		return nil
	})
	return refs, err
}

// hidden skips dotfiles and the resource forks some archivers add.
func hidden(name string) bool {
	return strings.HasPrefix(path.Base(name), ".") || strings.HasPrefix(name, "__MACOSX/")
}

func listZip(archive string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	var refs []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || hidden(f.Name) || !timeseries.IsTableFile(f.Name) {
			continue
		}
		refs = append(refs, archive+archiveSep+f.Name)
	}
	return refs, nil
}

func listRar(archive string) ([]string, error) {
	rr, err := rardecode.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rr.Close() }()
	var refs []string
	for {
		h, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if h.IsDir || hidden(h.Name) || !timeseries.IsTableFile(h.Name) {
			continue
		}
		refs = append(refs, archive+archiveSep+h.Name)
	}
	return refs, nil
}

// readRef returns the bytes of a reference and the name that selects its decoder.
func readRef(ref string) ([]byte, string, error) {
	archive, member, ok := strings.Cut(ref, archiveSep)
	if !ok {
		data, err := os.ReadFile(ref)
		return data, ref, err
	}
	switch {
	case isArchive(archive, ".zip"):
		data, err := readZipMember(archive, member)
		return data, member, err
	case isArchive(archive, ".rar"):
		data, err := readRarMember(archive, member)
		return data, member, err
	}
	return nil, "", fmt.Errorf("unsupported archive %s", archive)
}

func readZipMember(archive, member string) ([]byte, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	f, err := zr.Open(member)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func readRarMember(archive, member string) ([]byte, error) {
	rr, err := rardecode.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rr.Close() }()
	for {
		h, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", member, fs.ErrNotExist)
		}
		if err != nil {
			return nil, err
		}
		if h.Name == member {
			return io.ReadAll(rr)
		}
	}
}
