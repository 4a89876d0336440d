package contracts

// MacroEntry joins today's raw reading with its historical features
type MacroEntry struct {
	Value     *float64      `json:"value"`
	ChangePct *float64      `json:"change_pct"`
	Status    Status        `json:"status"`
	Source    string        `json:"source"`
	Unit      string        `json:"unit,omitempty"`
	Features  FeatureVector `json:"features"`
}

// HealthEntry says whether an indicator is fresh
type HealthEntry struct {
	Status     Status  `json:"status"`
	LastUpdate *string `json:"last_update"`
	Source     string  `json:"source,omitempty"`
}

// TechnicalSignal is the short-horizon overheating signal of one instrument
type TechnicalSignal struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	MA5         float64  `json:"ma5"`
	BiasPct     float64  `json:"bias_pct"`
	VolumeRatio float64  `json:"volume_ratio"`
	ChangePct   *float64 `json:"change_pct"`
}

// MetricsMatrix is the single artifact handed to downstream consumers
// ⭐ SSOT: Calculator 출력
type MetricsMatrix struct {
	AsOf            string                 `json:"as_of"`
	RunID           string                 `json:"run_id"`
	MacroMatrix     map[string]MacroEntry  `json:"macro_matrix"`
	MacroHealth     map[string]HealthEntry `json:"macro_health"`
	TechnicalMatrix []TechnicalSignal      `json:"technical_matrix"`
}

// Failed lists indicators whose chain was exhausted this cycle
func (m *MetricsMatrix) Failed() []string {
	var keys []string
	for k, h := range m.MacroHealth {
		if h.Status != StatusSuccess {
			keys = append(keys, k)
		}
	}
	return keys
}
