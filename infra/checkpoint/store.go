// Package checkpoint persists step results as JSON lines so an interrupted
// run can resume where it stopped.
package checkpoint

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/core/model"
)

const (
	kind    = "hostcap-checkpoint"
	version = 1
	// maxLine bounds one encoded step; voltage vectors of large feeders fit.
	maxLine = 4 << 20
)

type header struct {
	Kind        string    `json:"kind"`
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Created     time.Time `json:"created"`
}

// Store appends one JSON line per step after a header line.
type Store struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// Fingerprint hashes everything that determines a run's results.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Open prepares the checkpoint at path. With resume, the steps of a previous
// run with the same fingerprint are returned and new steps are appended after
// them; otherwise, or when the fingerprint differs, the file starts over.
func Open(path, fingerprint string, resume bool, log logger.Logger) (*Store, []model.StepResult, error) {
	log = logger.OrNop(log)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	if resume {
		steps, end, err := load(path, fingerprint)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Infof("no checkpoint at %s, starting a new one", path)
		case errors.Is(err, errMismatch):
			log.Warnf("checkpoint %s belongs to another run, starting over", path)
		case err != nil:
			log.Warnf("checkpoint %s unreadable, starting over: %v", path, err)
		default:
			s, err := reopen(path, end)
			if err != nil {
				return nil, nil, err
			}
			log.Infof("checkpoint %s holds %d steps", path, len(steps))
			return s, steps, nil
		}
	}
	s, err := create(path, fingerprint)
	return s, nil, err
}

var errMismatch = errors.New("fingerprint mismatch")

// load reads the header and every complete step line. end is the byte offset
// just after the last complete line.
func load(path, fingerprint string) ([]model.StepResult, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("missing header")
	}
	var h header
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil || h.Kind != kind {
		return nil, 0, fmt.Errorf("bad header")
	}
	if h.Version != version || h.Fingerprint != fingerprint {
		return nil, 0, errMismatch
	}
	end := int64(len(sc.Bytes()) + 1)
	var steps []model.StepResult
	for sc.Scan() {
		var r model.StepResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn final line from an interrupted write.
			break
		}
		steps = append(steps, r)
		end += int64(len(sc.Bytes()) + 1)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	return steps, end, nil
}

func create(path, fingerprint string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Store{f: f, enc: json.NewEncoder(f), path: path}
	if err := s.enc.Encode(header{Kind: kind, Version: version, Fingerprint: fingerprint, Created: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// reopen cuts a torn tail and appends after the last complete line. A final
// line missing its newline gets one.
func reopen(path string, end int64) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	unterminated := end > info.Size()
	if !unterminated {
		if err := os.Truncate(path, end); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if unterminated {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &Store{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Append writes one step.
func (s *Store) Append(r model.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("checkpoint %s closed", s.path)
	}
	return s.enc.Encode(r)
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Close flushes and closes the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Sync()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}
