package yahoo

import (
	"context"
	"errors"
	"testing"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

var shanghai = time.FixedZone("CST", 8*3600)

func newStubClient(q quoteFunc, ch chartFunc) *Client {
	c := NewClient(logger.NewNop(), shanghai)
	if q != nil {
		c.quote = q
	}
	if ch != nil {
		c.chart = ch
	}
	return c
}

func TestFetchIndicator(t *testing.T) {
	client := newStubClient(func(symbol string) (*finance.Quote, error) {
		assert.Equal(t, "^VIX", symbol)
		return &finance.Quote{
			RegularMarketPrice:         13.4,
			RegularMarketChangePercent: -2.5,
			RegularMarketTime:          1715371200,
		}, nil
	}, nil)

	obs, err := client.FetchIndicator(context.Background(), "^VIX")
	require.NoError(t, err)
	assert.Equal(t, 13.4, obs.Value)
	require.NotNil(t, obs.ChangePct)
	assert.Equal(t, -2.5, *obs.ChangePct)
	assert.Equal(t, "2024-05-11 04:00", obs.AsOf)
}

func TestChangePct(t *testing.T) {
	tests := []struct {
		name  string
		quote finance.Quote
		want  *float64
	}{
		{"price only", finance.Quote{RegularMarketPrice: 13.4}, nil},
		{"reported", finance.Quote{RegularMarketPrice: 13.4, RegularMarketChangePercent: -2.5}, contracts.Float(-2.5)},
		{"derived from previous close", finance.Quote{RegularMarketPrice: 10.5, RegularMarketPreviousClose: 10}, contracts.Float(5)},
		{"flat session", finance.Quote{RegularMarketPrice: 10, RegularMarketPreviousClose: 10}, contracts.Float(0)},
		{"derived from change", finance.Quote{RegularMarketPrice: 9, RegularMarketChange: -1}, contracts.Float(-10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := changePct(&tt.quote)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestFetchIndicator_NoChangeReported(t *testing.T) {
	client := newStubClient(func(string) (*finance.Quote, error) {
		return &finance.Quote{RegularMarketPrice: 13.4}, nil
	}, nil)

	obs, err := client.FetchIndicator(context.Background(), "^VIX")
	require.NoError(t, err)
	assert.Equal(t, 13.4, obs.Value)
	assert.Nil(t, obs.ChangePct, "absent change must not read as a flat day")
}

func TestFetchIndicator_Unavailable(t *testing.T) {
	tests := []struct {
		name  string
		quote quoteFunc
		want  error
	}{
		{"error", func(string) (*finance.Quote, error) { return nil, errors.New("remote error") }, contracts.ErrProviderUnavailable},
		{"nil quote", func(string) (*finance.Quote, error) { return nil, nil }, contracts.ErrProviderUnavailable},
		{"zero price", func(string) (*finance.Quote, error) { return &finance.Quote{}, nil }, contracts.ErrMalformedSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newStubClient(tt.quote, nil).FetchIndicator(context.Background(), "GC=F")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchIndicator_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	client := newStubClient(func(string) (*finance.Quote, error) {
		<-release
		return &finance.Quote{RegularMarketPrice: 1}, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchIndicator(ctx, "^IXIC")
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrProviderUnavailable)
}

func TestFetchQuote(t *testing.T) {
	tests := []struct {
		inst   contracts.Instrument
		symbol string
	}{
		{contracts.Instrument{Code: "510300", Name: "沪深300", Exchange: "sh"}, "510300.SS"},
		{contracts.Instrument{Code: "159915", Name: "创业板", Exchange: "sz"}, "159915.SZ"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			client := newStubClient(func(symbol string) (*finance.Quote, error) {
				assert.Equal(t, tt.symbol, symbol)
				return &finance.Quote{RegularMarketPrice: 3.5, RegularMarketVolume: 120000}, nil
			}, nil)

			q, err := client.FetchQuote(context.Background(), tt.inst)
			require.NoError(t, err)
			assert.Equal(t, 3.5, q.Price)
			assert.Equal(t, tt.inst.Name, q.Name)
			assert.Equal(t, contracts.UnitShare, q.Unit)
			require.NotNil(t, q.Volume)
			assert.Equal(t, 120000.0, *q.Volume)
			assert.Nil(t, q.ChangePct)
		})
	}
}

func TestFetchQuote_NothingButPrice(t *testing.T) {
	client := newStubClient(func(string) (*finance.Quote, error) {
		return &finance.Quote{RegularMarketPrice: 3.5}, nil
	}, nil)

	q, err := client.FetchQuote(context.Background(), contracts.Instrument{Code: "510300", Exchange: "sh"})
	require.NoError(t, err)
	assert.Nil(t, q.Volume)
	assert.Nil(t, q.ChangePct)
}

func chartBar(ts int, closePx float64, volume int) finance.ChartBar {
	px := decimal.NewFromFloat(closePx)
	return finance.ChartBar{Open: px, High: px, Low: px, Close: px, AdjClose: px, Volume: volume, Timestamp: ts}
}

func TestFetchHistory(t *testing.T) {
	// 2024-05-09 and 2024-05-10 at 01:30 UTC, i.e. 09:30 in Shanghai
	client := newStubClient(nil, func(p *chart.Params) ([]finance.ChartBar, error) {
		assert.Equal(t, "510300.SS", p.Symbol)
		return []finance.ChartBar{
			chartBar(1715304600, 3.52, 2000),
			chartBar(1715218200, 3.50, 1000),
			chartBar(1715391000, 0, 0), // null close from a holiday row
		}, nil
	})

	from := time.Date(2024, 4, 1, 0, 0, 0, 0, shanghai)
	bars, err := client.FetchHistory(context.Background(), contracts.Instrument{Code: "510300", Exchange: "sh"}, from, from.AddDate(0, 1, 15))
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, "2024-05-09", bars[0].Date)
	assert.Equal(t, 3.50, bars[0].Close)
	assert.Equal(t, "2024-05-10", bars[1].Date)
	assert.Equal(t, 2000.0, bars[1].Volume)
	assert.Equal(t, contracts.UnitShare, bars[1].Unit)
}

func TestFetchHistory_Empty(t *testing.T) {
	client := newStubClient(nil, func(*chart.Params) ([]finance.ChartBar, error) { return nil, nil })

	_, err := client.FetchHistory(context.Background(), contracts.Instrument{Code: "510300", Exchange: "sh"}, time.Now(), time.Now())
	assert.ErrorIs(t, err, contracts.ErrProviderUnavailable)
}

func TestSeries(t *testing.T) {
	client := newStubClient(nil, func(*chart.Params) ([]finance.ChartBar, error) {
		return []finance.ChartBar{chartBar(1715218200, 16300.5, 0)}, nil
	})

	points, err := client.Series(context.Background(), "^IXIC", time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, time.Date(2024, 5, 9, 15, 0, 0, 0, shanghai).Equal(points[0].Timestamp))
	assert.Equal(t, 16300.5, points[0].Value)
}
