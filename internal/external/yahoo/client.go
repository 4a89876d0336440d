package yahoo

import (
	"context"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

// Name is the provider name used in the catalog
const Name = "yahoo"

type quoteFunc func(symbol string) (*finance.Quote, error)
type chartFunc func(params *chart.Params) ([]finance.ChartBar, error)

// Client wraps the finance-go quote and chart endpoints
type Client struct {
	logger *logger.Logger
	loc    *time.Location
	quote  quoteFunc
	chart  chartFunc
}

// NewClient creates a yahoo client; loc is the timezone bar dates are reported in
func NewClient(log *logger.Logger, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		logger: log.WithField("provider", Name),
		loc:    loc,
		quote:  quote.Get,
		chart:  collectChart,
	}
}

// Name implements the provider interfaces
func (c *Client) Name() string { return Name }

func collectChart(params *chart.Params) ([]finance.ChartBar, error) {
	iter := chart.Get(params)
	var bars []finance.ChartBar
	for iter.Next() {
		bars = append(bars, *iter.Bar())
	}
	return bars, iter.Err()
}

// call runs fn on its own goroutine; finance-go takes no context
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Client) getQuote(ctx context.Context, symbol string) (*finance.Quote, error) {
	q, err := call(ctx, func() (*finance.Quote, error) { return c.quote(symbol) })
	if err != nil {
		return nil, contracts.Unavailable("yahoo %s: %v", symbol, err)
	}
	if q == nil {
		return nil, contracts.Unavailable("yahoo %s: no quote", symbol)
	}
	if q.RegularMarketPrice <= 0 {
		return nil, contracts.Malformed("yahoo %s: no regular market price", symbol)
	}
	return q, nil
}

// FetchIndicator returns the regular market price of an index, future or rate
func (c *Client) FetchIndicator(ctx context.Context, symbol string) (contracts.Observation, error) {
	q, err := c.getQuote(ctx, symbol)
	if err != nil {
		return contracts.Observation{}, err
	}

	obs := contracts.Observation{
		Value:     q.RegularMarketPrice,
		ChangePct: changePct(q),
	}
	if q.RegularMarketTime > 0 {
		obs.AsOf = time.Unix(int64(q.RegularMarketTime), 0).In(c.loc).Format(contracts.TimestampLayout)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"value":  obs.Value,
	}).Debug("Fetched indicator")
	return obs, nil
}

// Symbol maps a listed instrument to its yahoo ticker
func Symbol(inst contracts.Instrument) string {
	if inst.Exchange == contracts.ExchangeSZ {
		return inst.Code + ".SZ"
	}
	return inst.Code + ".SS"
}

// FetchQuote returns the live quote of an ETF; yahoo reports volume in shares
func (c *Client) FetchQuote(ctx context.Context, inst contracts.Instrument) (contracts.Quote, error) {
	q, err := c.getQuote(ctx, Symbol(inst))
	if err != nil {
		return contracts.Quote{}, err
	}

	out := contracts.Quote{
		Name:      inst.Name,
		Price:     q.RegularMarketPrice,
		ChangePct: changePct(q),
		Volume:    contracts.ReportedVolume(float64(q.RegularMarketVolume)),
		Unit:      contracts.UnitShare,
	}
	return out, nil
}

// changePct reads the daily change. finance-go leaves absent fields at zero,
// so a zero percent counts only when a previous close backs it.
func changePct(q *finance.Quote) *float64 {
	pct := q.RegularMarketChangePercent
	switch prev := q.RegularMarketPreviousClose; {
	case prev > 0 && pct == 0:
		pct = (q.RegularMarketPrice/prev - 1) * 100
	case pct != 0:
	case q.RegularMarketChange != 0 && q.RegularMarketPrice-q.RegularMarketChange > 0:
		pct = q.RegularMarketChange / (q.RegularMarketPrice - q.RegularMarketChange) * 100
	default:
		return nil
	}
	if !contracts.IsFinite(pct) {
		return nil
	}
	return contracts.Float(pct)
}

func (c *Client) bars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}

	raw, err := call(ctx, func() ([]finance.ChartBar, error) { return c.chart(params) })
	if err != nil {
		return nil, contracts.Unavailable("yahoo chart %s: %v", symbol, err)
	}

	bars := make([]contracts.Bar, 0, len(raw))
	for _, b := range raw {
		closePx := b.Close.InexactFloat64()
		if closePx <= 0 {
			continue
		}
		bars = append(bars, contracts.Bar{
			Date:   time.Unix(int64(b.Timestamp), 0).In(c.loc).Format(contracts.DateLayout),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  closePx,
			Volume: float64(b.Volume),
			Unit:   contracts.UnitShare,
		})
	}
	if len(bars) == 0 {
		return nil, contracts.Unavailable("yahoo chart %s: no bars", symbol)
	}
	contracts.SortBars(bars)
	return bars, nil
}

// FetchHistory returns daily bars of inst in [from, to]
func (c *Client) FetchHistory(ctx context.Context, inst contracts.Instrument, from, to time.Time) ([]contracts.Bar, error) {
	return c.bars(ctx, Symbol(inst), from, to)
}

// Series returns daily closes of symbol as series points stamped at the local close.
// Used to seed indicator history before the first live cycle.
func (c *Client) Series(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Point, error) {
	bars, err := c.bars(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]contracts.Point, 0, len(bars))
	for _, b := range bars {
		p, err := contracts.DailyPoint(b.Date, b.Close, c.loc)
		if err != nil {
			return nil, contracts.Malformed("yahoo %s: bad bar date %q", symbol, b.Date)
		}
		points = append(points, p)
	}
	return points, nil
}
