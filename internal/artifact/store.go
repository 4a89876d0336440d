// Package artifact persists JSON artifacts twice: an immutable timestamped
// archive and a "latest" pointer that is overwritten every cycle.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/globallink/internal/contracts"
)

// ErrNoLatest is returned when no latest artifact has been written yet
var ErrNoLatest = errors.New("no latest artifact")

// Store writes <dir>/<prefix>_<YYYYMMDD_HHMM>.json and <dir>/<latest>
type Store struct {
	kind   string // artifact kind reported in PersistenceError
	dir    string
	prefix string
	latest string
}

// NewRawStore is the raw snapshot layout: market_snap_<ts>.json + latest_snap.json
func NewRawStore(dir string) *Store {
	return &Store{kind: "raw_snapshot", dir: dir, prefix: "market_snap", latest: "latest_snap.json"}
}

// NewMetricsStore is the metrics layout: metrics_<ts>.json + latest_metrics.json
func NewMetricsStore(dir string) *Store {
	return &Store{kind: "metrics_matrix", dir: dir, prefix: "metrics", latest: "latest_metrics.json"}
}

// Dir returns the artifact directory
func (s *Store) Dir() string { return s.dir }

// ArchivePath returns the archive path for a cycle time
func (s *Store) ArchivePath(ts time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", s.prefix, ts.Format(contracts.ArchiveLayout)))
}

// LatestPath returns the latest pointer path
func (s *Store) LatestPath() string {
	return filepath.Join(s.dir, s.latest)
}

// Write persists v to the archive, then to the latest pointer, and returns
// the archive path
func (s *Store) Write(ts time.Time, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", &contracts.PersistenceError{Artifact: s.kind, Err: fmt.Errorf("marshal: %w", err)}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &contracts.PersistenceError{Artifact: s.kind, Path: s.dir, Err: err}
	}

	archive := s.ArchivePath(ts)
	if err := writeAtomic(archive, data); err != nil {
		return "", &contracts.PersistenceError{Artifact: s.kind, Path: archive, Err: err}
	}
	if err := writeAtomic(s.LatestPath(), data); err != nil {
		return archive, &contracts.PersistenceError{Artifact: s.kind, Path: s.LatestPath(), Err: err}
	}

	return archive, nil
}

// ReadLatest decodes the latest pointer into dest
func (s *Store) ReadLatest(dest interface{}) error {
	err := ReadFile(s.LatestPath(), dest)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoLatest, s.LatestPath())
	}
	return err
}

// Archives lists archived artifacts sorted by filename, oldest first
func (s *Store) Archives() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &contracts.PersistenceError{Artifact: s.kind, Path: s.dir, Err: err}
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == s.latest {
			continue
		}
		if strings.HasPrefix(name, s.prefix+"_") && strings.HasSuffix(name, ".json") {
			paths = append(paths, filepath.Join(s.dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile decodes a JSON artifact
func ReadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeAtomic writes to a sibling temp file and renames it into place
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
