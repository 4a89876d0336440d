package contracts

import "sort"

// Exchange codes
const (
	ExchangeSH = "sh"
	ExchangeSZ = "sz"
)

// Instrument is one tracked exchange-traded fund
type Instrument struct {
	Code     string `json:"code" yaml:"code" validate:"required,len=6,numeric"`
	Name     string `json:"name" yaml:"name" validate:"required"`
	Exchange string `json:"exchange" yaml:"exchange" validate:"required,oneof=sh sz"`
}

// Quote is a live quote as returned by a quote provider
type Quote struct {
	Name      string
	Price     float64
	Volume    *float64
	ChangePct *float64
	Unit      Unit
}

// Bar is one closed daily candle
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Unit   Unit    `json:"unit"`
}

// SortBars orders bars by date ascending
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
}

// InstrumentSnapshot is the live quote of one instrument within a snapshot
type InstrumentSnapshot struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	Volume    *float64 `json:"volume"`
	ChangePct *float64 `json:"change_pct"`
	Unit      Unit     `json:"unit,omitempty"`
	Status    Status   `json:"status"`
	Source    string   `json:"source"`
}

// InstrumentHistory is the recent daily window of one instrument
type InstrumentHistory struct {
	Code   string `json:"code"`
	Status Status `json:"status"`
	Source string `json:"source"`
	Bars   []Bar  `json:"bars"`
}

// SnapshotMeta identifies the cycle a snapshot belongs to
type SnapshotMeta struct {
	Timestamp   string `json:"timestamp"`
	Timezone    string `json:"timezone"`
	RunID       string `json:"run_id"`
	CatalogHash string `json:"catalog_hash,omitempty"`
}

// RawSnapshot is the single artifact produced by one acquisition cycle
// ⭐ SSOT: Acquisition → Feature Store / Calculator 데이터 전달
type RawSnapshot struct {
	Meta    SnapshotMeta                 `json:"meta"`
	Macro   map[string]Reading           `json:"macro"`
	Spot    []InstrumentSnapshot         `json:"spot"`
	History map[string]InstrumentHistory `json:"history"`
}

// Coverage counts successful macro readings, quotes and histories
func (s *RawSnapshot) Coverage() (macroOK, spotOK, historyOK int) {
	for _, r := range s.Macro {
		if r.Status == StatusSuccess {
			macroOK++
		}
	}
	for _, q := range s.Spot {
		if q.Status == StatusSuccess {
			spotOK++
		}
	}
	for _, h := range s.History {
		if h.Status == StatusSuccess {
			historyOK++
		}
	}
	return macroOK, spotOK, historyOK
}
