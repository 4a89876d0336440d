package eastmoney

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/globallink/internal/contracts"
)

type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// FetchHistory returns daily bars in [from, to]; volume is in lots
func (c *Client) FetchHistory(ctx context.Context, inst contracts.Instrument, from, to time.Time) ([]contracts.Bar, error) {
	bars, err := c.klines(ctx, secID(inst), from, to)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"code":  inst.Code,
		"count": len(bars),
	}).Debug("Fetched daily bars")
	return bars, nil
}

// Series returns the daily closes of a market-prefixed secid ("171.CN10Y"),
// stamped at the session close. Connect flows have no kline.
func (c *Client) Series(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Point, error) {
	if strings.HasPrefix(symbol, "kamt:") {
		return nil, contracts.Unavailable("eastmoney %s: no daily series", symbol)
	}

	bars, err := c.klines(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]contracts.Point, 0, len(bars))
	for _, b := range bars {
		p, err := contracts.DailyPoint(b.Date, b.Close, c.loc)
		if err != nil {
			continue
		}
		points = append(points, p)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"points": len(points),
	}).Debug("Fetched daily series")
	return points, nil
}

func (c *Client) klines(ctx context.Context, secid string, from, to time.Time) ([]contracts.Bar, error) {
	params := url.Values{}
	params.Set("secid", secid)
	params.Set("klt", "101") // daily
	params.Set("fqt", "1")   // forward-adjusted
	params.Set("beg", from.Format("20060102"))
	params.Set("end", to.Format("20060102"))
	params.Set("fields1", "f1,f2,f3")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56")

	var resp klineResponse
	if err := c.httpClient.GetJSON(ctx, c.klineURL+"/api/qt/stock/kline/get?"+params.Encode(), &resp); err != nil {
		return nil, contracts.Unavailable("eastmoney kline %s: %v", secid, err)
	}
	if resp.Data == nil || len(resp.Data.Klines) == 0 {
		return nil, contracts.Unavailable("eastmoney kline %s: no bars", secid)
	}

	bars := parseKlines(resp.Data.Klines)
	if len(bars) == 0 {
		return nil, contracts.Malformed("eastmoney kline %s: no parseable bars", secid)
	}
	return bars, nil
}

// parseKlines reads "date,open,close,high,low,volume" rows, skipping bad ones
func parseKlines(rows []string) []contracts.Bar {
	bars := make([]contracts.Bar, 0, len(rows))
	for _, row := range rows {
		parts := strings.Split(row, ",")
		if len(parts) < 6 {
			continue
		}
		if _, err := time.Parse(contracts.DateLayout, parts[0]); err != nil {
			continue
		}

		var vals [5]float64
		ok := true
		for i := range vals {
			v, err := parseFloat(parts[i+1])
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok || vals[1] <= 0 {
			continue
		}

		bars = append(bars, contracts.Bar{
			Date:   parts[0],
			Open:   vals[0],
			Close:  vals[1],
			High:   vals[2],
			Low:    vals[3],
			Volume: vals[4],
			Unit:   contracts.UnitLot,
		})
	}
	contracts.SortBars(bars)
	return bars
}
