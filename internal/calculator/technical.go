package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
)

// MinClosedBars is the closed history a signal needs; the live price is the fifth point
const MinClosedBars = 4

// volumeWindow is how many closed bars the average volume spans
const volumeWindow = 5

// technical computes the signal of every instrument with a quote and sorts by bias
func (c *Calculator) technical(snap *contracts.RawSnapshot) []contracts.TechnicalSignal {
	var cycleDate string
	if ts, err := contracts.ParseTimestamp(snap.Meta.Timestamp, c.loc); err == nil {
		cycleDate = ts.Format(contracts.DateLayout)
	}

	signals := make([]contracts.TechnicalSignal, 0, len(snap.Spot))
	for _, spot := range snap.Spot {
		sig, err := Signal(spot, snap.History[spot.Code], cycleDate, c.catalog.LotSize)
		if err != nil {
			log := c.logger.WithField("code", spot.Code).WithError(err)
			if errors.Is(err, contracts.ErrInsufficientHistory) || errors.Is(err, contracts.ErrUndefinedSignal) {
				log.Debug("Instrument skipped")
			} else {
				log.Warn("Instrument skipped")
			}
			continue
		}
		signals = append(signals, sig)
	}

	SortSignals(signals)
	return signals
}

// SortSignals orders signals by bias ascending, then by code
func SortSignals(signals []contracts.TechnicalSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].BiasPct != signals[j].BiasPct {
			return signals[i].BiasPct < signals[j].BiasPct
		}
		return signals[i].Code < signals[j].Code
	})
}

// Signal computes bias against the intraday MA5 and the volume ratio of one
// instrument. Bars dated cycleDate or later are the forming bar and are ignored.
func Signal(spot contracts.InstrumentSnapshot, hist contracts.InstrumentHistory, cycleDate string, lotSize int) (contracts.TechnicalSignal, error) {
	if spot.Status != contracts.StatusSuccess || spot.Price == nil {
		return contracts.TechnicalSignal{}, fmt.Errorf("%w: no live quote", contracts.ErrUndefinedSignal)
	}
	price := *spot.Price
	if !contracts.IsFinite(price) || price <= 0 {
		return contracts.TechnicalSignal{}, fmt.Errorf("%w: price %v", contracts.ErrUndefinedSignal, price)
	}

	closed := closedBars(hist.Bars, cycleDate)
	if len(closed) < MinClosedBars {
		return contracts.TechnicalSignal{}, fmt.Errorf("%w: %d closed bars", contracts.ErrInsufficientHistory, len(closed))
	}

	sum := price
	for _, b := range closed[len(closed)-MinClosedBars:] {
		sum += b.Close
	}
	ma5 := sum / float64(MinClosedBars+1)

	ratio, err := volumeRatio(spot, closed, lotSize)
	if err != nil {
		return contracts.TechnicalSignal{}, err
	}

	sig := contracts.TechnicalSignal{
		Code:        spot.Code,
		Name:        spot.Name,
		Price:       price,
		MA5:         featurestore.Round3(ma5),
		BiasPct:     featurestore.Round3((price/ma5 - 1) * 100),
		VolumeRatio: featurestore.Round3(ratio),
	}
	if spot.ChangePct != nil && contracts.IsFinite(*spot.ChangePct) {
		sig.ChangePct = contracts.Float(featurestore.Round3(*spot.ChangePct))
	}
	return sig, nil
}

func closedBars(bars []contracts.Bar, cycleDate string) []contracts.Bar {
	out := make([]contracts.Bar, 0, len(bars))
	for _, b := range bars {
		if cycleDate != "" && b.Date >= cycleDate {
			continue
		}
		if !contracts.IsFinite(b.Close) || b.Close <= 0 {
			continue
		}
		out = append(out, b)
	}
	contracts.SortBars(out)
	return out
}

// volumeRatio compares live volume with the mean of the last closed bars, both in shares
func volumeRatio(spot contracts.InstrumentSnapshot, closed []contracts.Bar, lotSize int) (float64, error) {
	if spot.Volume == nil || !contracts.IsFinite(*spot.Volume) {
		return 0, fmt.Errorf("%w: no live volume", contracts.ErrUndefinedSignal)
	}
	current := spot.Unit.ToShares(*spot.Volume, lotSize)

	window := closed
	if len(window) > volumeWindow {
		window = window[len(window)-volumeWindow:]
	}

	var total float64
	for _, b := range window {
		total += b.Unit.ToShares(b.Volume, lotSize)
	}
	avg := total / float64(len(window))
	if !contracts.IsFinite(avg) || avg <= 0 {
		return 0, fmt.Errorf("%w: average volume %v", contracts.ErrUndefinedSignal, avg)
	}

	return current / avg, nil
}
