package catalog

import "github.com/wonny/globallink/internal/contracts"

// Kind says which canonical field an indicator's number lands in
type Kind string

const (
	KindPrice Kind = "price" // quotes, FX, index levels
	KindYield Kind = "yield" // rates in percent
	KindValue Kind = "value" // plain magnitudes
	KindFlow  Kind = "flow"  // capital flows in currency; rescaled when stored
)

// ProviderRef is one step of a fallback chain
type ProviderRef struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Symbol string `yaml:"symbol" json:"symbol" validate:"required"`
}

// Indicator is one tracked macro indicator and its ordered provider chain
type Indicator struct {
	Key       string        `yaml:"key" json:"key" validate:"required"`
	Kind      Kind          `yaml:"kind" json:"kind" validate:"required,oneof=price yield value flow"`
	Unit      string        `yaml:"unit" json:"unit"`
	Providers []ProviderRef `yaml:"providers" json:"providers" validate:"required,min=1,dive"`
}

// Catalog is the full set of tracked keys and how to acquire them
// ⭐ SSOT: 추적 대상 지표/종목과 provider 순서는 여기서만 정의
type Catalog struct {
	LotSize          int                    `yaml:"lot_size" json:"lot_size" validate:"gt=0"`
	HistoryDays      int                    `yaml:"history_days" json:"history_days" validate:"gte=30,lte=45"`
	Indicators       []Indicator            `yaml:"indicators" json:"indicators" validate:"required,min=1,dive"`
	Instruments      []contracts.Instrument `yaml:"instruments" json:"instruments" validate:"dive"`
	QuoteProviders   []string               `yaml:"quote_providers" json:"quote_providers" validate:"dive,required"`
	HistoryProviders []string               `yaml:"history_providers" json:"history_providers" validate:"dive,required"`
}

// Keys returns indicator keys in catalog order
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.Indicators))
	for _, ind := range c.Indicators {
		keys = append(keys, ind.Key)
	}
	return keys
}

// Indicator looks up an indicator by key
func (c *Catalog) Indicator(key string) (Indicator, bool) {
	for _, ind := range c.Indicators {
		if ind.Key == key {
			return ind, true
		}
	}
	return Indicator{}, false
}

// IsFlow reports whether key is a capital-flow indicator
func (c *Catalog) IsFlow(key string) bool {
	ind, ok := c.Indicator(key)
	return ok && ind.Kind == KindFlow
}

// Instrument looks up an instrument by code
func (c *Catalog) Instrument(code string) (contracts.Instrument, bool) {
	for _, inst := range c.Instruments {
		if inst.Code == code {
			return inst, true
		}
	}
	return contracts.Instrument{}, false
}

// SymbolFor returns the symbol a named provider uses for this indicator
func (ind Indicator) SymbolFor(provider string) (string, bool) {
	for _, p := range ind.Providers {
		if p.Name == provider {
			return p.Symbol, true
		}
	}
	return "", false
}
