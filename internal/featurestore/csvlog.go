package featurestore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

var csvHeader = []string{"timestamp", "value"}

// CSVLog stores one file per indicator: <dir>/<key>.csv with header timestamp,value
type CSVLog struct {
	dir    string
	loc    *time.Location
	logger *logger.Logger
}

// NewCSVLog creates the history directory if needed
func NewCSVLog(dir string, loc *time.Location, log *logger.Logger) (*CSVLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &contracts.PersistenceError{Artifact: "history", Path: dir, Err: err}
	}
	return &CSVLog{dir: dir, loc: loc, logger: log.WithField("module", "csvlog")}, nil
}

func (c *CSVLog) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("invalid series key %q", key)
	}
	return filepath.Join(c.dir, key+".csv"), nil
}

// AppendIfNew implements SeriesLog
func (c *CSVLog) AppendIfNew(ctx context.Context, key string, p contracts.Point) (AppendOutcome, error) {
	path, err := c.path(key)
	if err != nil {
		return Stale, err
	}

	points, err := c.ReadAll(ctx, key)
	if err != nil {
		return Stale, err
	}

	var last *contracts.Point
	if len(points) > 0 {
		last = &points[len(points)-1]
	}
	outcome := decide(last, p)
	if outcome != Appended {
		return outcome, nil
	}

	if err := c.append(path, len(points) == 0, p); err != nil {
		return Stale, &contracts.PersistenceError{Artifact: "history", Path: path, Err: err}
	}
	return Appended, nil
}

func (c *CSVLog) append(path string, withHeader bool, p contracts.Point) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	// A file that exists but is empty still needs its header
	if !withHeader {
		if info, statErr := f.Stat(); statErr == nil && info.Size() == 0 {
			withHeader = true
		}
	}

	w := csv.NewWriter(f)
	if withHeader {
		_ = w.Write(csvHeader)
	}
	_ = w.Write([]string{
		p.Timestamp.In(c.loc).Format(contracts.TimestampLayout),
		strconv.FormatFloat(p.Value, 'f', -1, 64),
	})
	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadAll implements SeriesLog. A missing file is an empty series;
// rows that cannot be parsed are skipped.
func (c *CSVLog) ReadAll(_ context.Context, key string) ([]contracts.Point, error) {
	path, err := c.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &contracts.PersistenceError{Artifact: "history", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var points []contracts.Point
	skipped := 0
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &contracts.PersistenceError{Artifact: "history", Path: path, Err: err}
		}
		if line == 0 && len(rec) > 0 && rec[0] == csvHeader[0] {
			continue
		}

		p, ok := c.parseRow(rec)
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}

	if skipped > 0 {
		c.logger.WithFields(map[string]interface{}{
			"key":     key,
			"skipped": skipped,
		}).Warn("Skipped malformed history rows")
	}

	return points, nil
}

func (c *CSVLog) parseRow(rec []string) (contracts.Point, bool) {
	if len(rec) < 2 {
		return contracts.Point{}, false
	}

	ts, err := contracts.ParseTimestamp(strings.TrimSpace(rec[0]), c.loc)
	if err != nil {
		return contracts.Point{}, false
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil || !contracts.IsFinite(v) {
		return contracts.Point{}, false
	}

	return contracts.Point{Timestamp: ts, Value: v}, true
}
