package acquisition

import (
	"sort"

	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
)

// Registry resolves catalog provider names to adapters
type Registry struct {
	indicators map[string]contracts.IndicatorProvider
	quotes     map[string]contracts.QuoteProvider
	histories  map[string]contracts.HistoryProvider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		indicators: make(map[string]contracts.IndicatorProvider),
		quotes:     make(map[string]contracts.QuoteProvider),
		histories:  make(map[string]contracts.HistoryProvider),
	}
}

// Register adds p under every provider role it implements
func (r *Registry) Register(p interface{ Name() string }) *Registry {
	if ip, ok := p.(contracts.IndicatorProvider); ok {
		r.indicators[ip.Name()] = ip
	}
	if qp, ok := p.(contracts.QuoteProvider); ok {
		r.quotes[qp.Name()] = qp
	}
	if hp, ok := p.(contracts.HistoryProvider); ok {
		r.histories[hp.Name()] = hp
	}
	return r
}

// Indicator returns the indicator provider registered under name
func (r *Registry) Indicator(name string) (contracts.IndicatorProvider, bool) {
	p, ok := r.indicators[name]
	return p, ok
}

// Quote returns the quote provider registered under name
func (r *Registry) Quote(name string) (contracts.QuoteProvider, bool) {
	p, ok := r.quotes[name]
	return p, ok
}

// History returns the history provider registered under name
func (r *Registry) History(name string) (contracts.HistoryProvider, bool) {
	p, ok := r.histories[name]
	return p, ok
}

// Names lists every registered provider name once
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	for n := range r.indicators {
		seen[n] = struct{}{}
	}
	for n := range r.quotes {
		seen[n] = struct{}{}
	}
	for n := range r.histories {
		seen[n] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check verifies every provider the catalog names is registered for its role
func (r *Registry) Check(cat *catalog.Catalog) error {
	return catalog.RequireProviders(cat,
		func(n string) bool { _, ok := r.indicators[n]; return ok },
		func(n string) bool { _, ok := r.quotes[n]; return ok },
		func(n string) bool { _, ok := r.histories[n]; return ok },
	)
}
