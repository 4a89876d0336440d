package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wonny/globallink/internal/contracts"
)

// quoteFields: f43 latest, f47 volume (lots), f57 code, f58 name, f60 prev close, f170 change %
const quoteFields = "f43,f47,f57,f58,f60,f170"

type quoteResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Price     number `json:"f43"`
		Volume    number `json:"f47"`
		Code      string `json:"f57"`
		Name      string `json:"f58"`
		PrevClose number `json:"f60"`
		ChangePct number `json:"f170"`
	} `json:"data"`
}

func (c *Client) fetchQuote(ctx context.Context, secid string) (*quoteResponse, error) {
	params := url.Values{}
	params.Set("secid", secid)
	params.Set("fltt", "2") // decimal prices instead of scaled integers
	params.Set("invt", "2")
	params.Set("fields", quoteFields)

	var resp quoteResponse
	if err := c.httpClient.GetJSON(ctx, c.quoteURL+"/api/qt/stock/get?"+params.Encode(), &resp); err != nil {
		return nil, contracts.Unavailable("eastmoney quote %s: %v", secid, err)
	}
	if resp.Data == nil {
		return nil, contracts.Unavailable("eastmoney quote %s: empty data", secid)
	}
	if !resp.Data.Price.ok || resp.Data.Price.value <= 0 {
		return nil, contracts.Malformed("eastmoney quote %s: no price", secid)
	}
	return &resp, nil
}

// FetchIndicator resolves a secid quote (e.g. "100.HSI") or a connect flow
// ("kamt:north", "kamt:south")
func (c *Client) FetchIndicator(ctx context.Context, symbol string) (contracts.Observation, error) {
	if leg, ok := strings.CutPrefix(symbol, "kamt:"); ok {
		return c.fetchFlow(ctx, leg)
	}

	resp, err := c.fetchQuote(ctx, symbol)
	if err != nil {
		return contracts.Observation{}, err
	}

	obs := contracts.Observation{Value: resp.Data.Price.value, ChangePct: resp.Data.ChangePct.ptr()}
	if obs.ChangePct == nil && resp.Data.PrevClose.ok && resp.Data.PrevClose.value > 0 {
		obs.ChangePct = contracts.Float((resp.Data.Price.value/resp.Data.PrevClose.value - 1) * 100)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"value":  obs.Value,
	}).Debug("Fetched indicator")
	return obs, nil
}

// FetchQuote returns the live quote of an ETF; eastmoney reports volume in lots
func (c *Client) FetchQuote(ctx context.Context, inst contracts.Instrument) (contracts.Quote, error) {
	resp, err := c.fetchQuote(ctx, secID(inst))
	if err != nil {
		return contracts.Quote{}, err
	}

	name := resp.Data.Name
	if name == "" {
		name = inst.Name
	}

	q := contracts.Quote{
		Name:      name,
		Price:     resp.Data.Price.value,
		ChangePct: resp.Data.ChangePct.ptr(),
		Unit:      contracts.UnitLot,
	}
	if resp.Data.Volume.ok {
		q.Volume = contracts.ReportedVolume(resp.Data.Volume.value)
	}
	return q, nil
}

type flowLeg struct {
	DayNetAmtIn number `json:"dayNetAmtIn"` // 10k CNY
}

type kamtResponse struct {
	Data *struct {
		HK2SH flowLeg `json:"hk2sh"`
		HK2SZ flowLeg `json:"hk2sz"`
		SH2HK flowLeg `json:"sh2hk"`
		SZ2HK flowLeg `json:"sz2hk"`
	} `json:"data"`
}

// fetchFlow returns today's net connect inflow in CNY
func (c *Client) fetchFlow(ctx context.Context, leg string) (contracts.Observation, error) {
	params := url.Values{}
	params.Set("fields1", "f1,f2,f3,f4")
	params.Set("fields2", "f51,f52,f53,f54,f63")

	var resp kamtResponse
	if err := c.httpClient.GetJSON(ctx, c.quoteURL+"/api/qt/kamt/get?"+params.Encode(), &resp); err != nil {
		return contracts.Observation{}, contracts.Unavailable("eastmoney kamt: %v", err)
	}
	if resp.Data == nil {
		return contracts.Observation{}, contracts.Unavailable("eastmoney kamt: empty data")
	}

	var a, b flowLeg
	switch leg {
	case "north":
		a, b = resp.Data.HK2SH, resp.Data.HK2SZ
	case "south":
		a, b = resp.Data.SH2HK, resp.Data.SZ2HK
	default:
		return contracts.Observation{}, fmt.Errorf("eastmoney kamt: unknown leg %q", leg)
	}

	if !a.DayNetAmtIn.ok && !b.DayNetAmtIn.ok {
		return contracts.Observation{}, contracts.Malformed("eastmoney kamt %s: no dayNetAmtIn", leg)
	}
	// Both legs at exactly zero means the figure is not published, not a flat day
	if a.DayNetAmtIn.value == 0 && b.DayNetAmtIn.value == 0 {
		return contracts.Observation{}, contracts.Unavailable("eastmoney kamt %s: not published", leg)
	}

	total := (a.DayNetAmtIn.value + b.DayNetAmtIn.value) * 1e4

	c.logger.WithFields(map[string]interface{}{
		"leg":   leg,
		"value": total,
	}).Debug("Fetched connect flow")
	return contracts.Observation{Value: total}, nil
}
