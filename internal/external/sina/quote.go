package sina

import (
	"context"
	"strings"

	"github.com/wonny/globallink/internal/contracts"
)

// Field positions per symbol family
const (
	gbPrice     = 1 // gb_*: US indices and stocks
	gbChangePct = 2

	fxBid       = 1 // fx_s*: FX and bond yields
	fxPrevClose = 3
	fxLatest    = 8

	hfLatest    = 0 // hf_*: global futures
	hfPrevClose = 7

	aPrevClose = 2 // sh*/sz*: A-share listings
	aPrice     = 3
	aVolume    = 8 // shares
)

// FetchIndicator parses an index, FX, yield or futures quote
func (c *Client) FetchIndicator(ctx context.Context, symbol string) (contracts.Observation, error) {
	fields, err := c.fetch(ctx, symbol)
	if err != nil {
		return contracts.Observation{}, err
	}

	obs, ok := parseIndicator(symbol, fields)
	if !ok {
		return contracts.Observation{}, contracts.Malformed("sina %s: no usable price in %d fields", symbol, len(fields))
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"value":  obs.Value,
	}).Debug("Fetched indicator")
	return obs, nil
}

func parseIndicator(symbol string, fields []string) (contracts.Observation, bool) {
	switch {
	case strings.HasPrefix(symbol, "gb_"):
		price, ok := field(fields, gbPrice)
		if !ok || price <= 0 {
			return contracts.Observation{}, false
		}
		obs := contracts.Observation{Value: price}
		if pct, ok := field(fields, gbChangePct); ok {
			obs.ChangePct = contracts.Float(pct)
		}
		return obs, true

	case strings.HasPrefix(symbol, "fx_"):
		price, ok := field(fields, fxLatest)
		if !ok || price <= 0 {
			price, ok = field(fields, fxBid)
		}
		if !ok || price <= 0 {
			return contracts.Observation{}, false
		}
		prev, _ := field(fields, fxPrevClose)
		return contracts.Observation{Value: price, ChangePct: changeFrom(price, prev)}, true

	case strings.HasPrefix(symbol, "hf_"):
		price, ok := field(fields, hfLatest)
		if !ok || price <= 0 {
			return contracts.Observation{}, false
		}
		prev, _ := field(fields, hfPrevClose)
		return contracts.Observation{Value: price, ChangePct: changeFrom(price, prev)}, true

	case strings.HasPrefix(symbol, "sh"), strings.HasPrefix(symbol, "sz"):
		price, ok := field(fields, aPrice)
		if !ok || price <= 0 {
			return contracts.Observation{}, false
		}
		prev, _ := field(fields, aPrevClose)
		return contracts.Observation{Value: price, ChangePct: changeFrom(price, prev)}, true
	}

	return contracts.Observation{}, false
}

// FetchQuote returns the live quote of an ETF; sina reports volume in shares
func (c *Client) FetchQuote(ctx context.Context, inst contracts.Instrument) (contracts.Quote, error) {
	symbol := inst.Exchange + inst.Code

	fields, err := c.fetch(ctx, symbol)
	if err != nil {
		return contracts.Quote{}, err
	}

	price, ok := field(fields, aPrice)
	if !ok || price <= 0 {
		// 0 is what sina shows before the open and for suspended listings
		return contracts.Quote{}, contracts.Malformed("sina %s: no price", symbol)
	}

	q := contracts.Quote{Name: inst.Name, Price: price, Unit: contracts.UnitShare}
	if name := strings.TrimSpace(fields[0]); name != "" {
		q.Name = name
	}
	if vol, ok := field(fields, aVolume); ok {
		q.Volume = contracts.ReportedVolume(vol)
	}
	if prev, ok := field(fields, aPrevClose); ok {
		q.ChangePct = changeFrom(price, prev)
	}
	return q, nil
}
