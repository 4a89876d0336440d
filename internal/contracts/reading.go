package contracts

import (
	"fmt"
	"math"
	"time"
)

// Timestamp layouts
const (
	// TimestampLayout is the cycle timestamp written into snapshots and series
	TimestampLayout = "2006-01-02 15:04"
	// ArchiveLayout is the filename-safe form used for archived artifacts
	ArchiveLayout = "20060102_1504"
	// DateLayout is the trading date of a daily bar
	DateLayout = "2006-01-02"
)

// CloseHour is the local hour a daily close is stamped with in a series
const CloseHour = 15

// ParseTimestamp reads a cycle timestamp in TimestampLayout or in the
// ArchiveLayout older snapshots carry in their meta
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.ParseInLocation(TimestampLayout, s, loc); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(ArchiveLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither %q nor %q", s, TimestampLayout, ArchiveLayout)
	}
	return ts, nil
}

// DailyPoint stamps the value of a trading date at the local close
func DailyPoint(date string, v float64, loc *time.Location) (Point, error) {
	if len(date) > len(DateLayout) {
		date = date[:len(DateLayout)]
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return Point{}, err
	}
	return Point{Timestamp: day.Add(CloseHour * time.Hour), Value: v}, nil
}

// Status is the outcome of one acquisition chain
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Unit is the unit a volume figure is denominated in
type Unit string

const (
	UnitLot   Unit = "LOT"   // 1 lot = LotSize shares
	UnitShare Unit = "SHARE" // already in shares
)

// DefaultLotSize is the A-share board lot
const DefaultLotSize = 100

// ToShares converts v to shares. Unknown units are taken as shares.
func (u Unit) ToShares(v float64, lotSize int) float64 {
	if u == UnitLot {
		if lotSize <= 0 {
			lotSize = DefaultLotSize
		}
		return v * float64(lotSize)
	}
	return v
}

// Reading is one macro indicator as acquired in a cycle
// ⭐ SSOT: provider 응답은 adapter 경계에서 Reading으로 정규화
type Reading struct {
	Key       string   `json:"key"`
	Value     *float64 `json:"value"`
	Price     *float64 `json:"price,omitempty"`
	Yield     *float64 `json:"yield,omitempty"`
	ChangePct *float64 `json:"change_pct"`
	Status    Status   `json:"status"`
	Source    string   `json:"source"`
	Unit      string   `json:"unit,omitempty"`
	AsOf      string   `json:"as_of,omitempty"`
}

// Scalar is the canonical number of a reading: price, then value, then yield
func (r Reading) Scalar() (float64, bool) {
	for _, p := range []*float64{r.Price, r.Value, r.Yield} {
		if p != nil && IsFinite(*p) {
			return *p, true
		}
	}
	return 0, false
}

// OK reports whether the reading carries a usable value
func (r Reading) OK() bool {
	if r.Status != StatusSuccess {
		return false
	}
	_, ok := r.Scalar()
	return ok
}

// FailedReading is the shape of an exhausted chain: no value, no source
func FailedReading(key, unit string) Reading {
	return Reading{Key: key, Status: StatusFailed, Unit: unit}
}

// Observation is what an indicator provider hands back: one finite
// number in the unit the catalog declares for the indicator.
type Observation struct {
	Value     float64
	ChangePct *float64
	AsOf      string
}

// ReportedVolume is the volume of a live quote. Zero, negative or
// non-finite volume is what providers show when nothing is reported, so it
// is missing rather than a real zero.
func ReportedVolume(v float64) *float64 {
	if !IsFinite(v) || v <= 0 {
		return nil
	}
	return &v
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// IsFinite reports whether v is neither NaN nor ±Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
