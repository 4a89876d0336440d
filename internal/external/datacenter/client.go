package datacenter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/config"
	"github.com/wonny/globallink/pkg/logger"
)

// Name is the provider name used in the catalog
const Name = "datacenter"

const reportPath = "/api/data/v1/get"

const (
	seriesPageSize = 500
	maxSeriesPages = 20
)

// report describes one datacenter-web report and the column holding the figure
type report struct {
	name       string
	filter     string
	sortColumn string
	valueField string
	dateField  string
	scale      float64
}

// reports maps catalog symbols to the report that serves them
var reports = map[string]report{
	"northbound": {
		name:       "RPT_MUTUAL_DEAL_HISTORY",
		filter:     `(MUTUAL_TYPE="005")`,
		sortColumn: "TRADE_DATE",
		valueField: "NET_DEAL_AMT",
		dateField:  "TRADE_DATE",
		scale:      1e8, // reported in 亿元
	},
	"southbound": {
		name:       "RPT_MUTUAL_DEAL_HISTORY",
		filter:     `(MUTUAL_TYPE="006")`,
		sortColumn: "TRADE_DATE",
		valueField: "NET_DEAL_AMT",
		dateField:  "TRADE_DATE",
		scale:      1e8,
	},
	"margin": {
		name:       "RPTA_WEB_RZRQ_LSTOTAL",
		sortColumn: "DIM_DATE",
		valueField: "RZRQYE",
		dateField:  "DIM_DATE",
		scale:      1,
	},
	"shibor": {
		name:       "RPT_IMP_INTRESTRATEN",
		filter:     `(MARKET_CODE="001")(CURRENCY_CODE="CNY")(INDICATOR_ID="001")`,
		sortColumn: "REPORT_DATE",
		valueField: "IR_RATE",
		dateField:  "REPORT_DATE",
		scale:      1,
	},
}

// response is the datacenter-web envelope
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  *struct {
		Pages int                      `json:"pages"`
		Data  []map[string]interface{} `json:"data"`
	} `json:"result"`
}

// page selects one slice of a report
type page struct {
	filter   string
	sortType string
	size     int
	number   int
}

// Client reads eastmoney datacenter-web reports
type Client struct {
	client *resty.Client
	loc    *time.Location
	logger *logger.Logger
}

// NewClient creates a datacenter client with the provider retry policy
func NewClient(cfg *config.Config, log *logger.Logger, baseURL string) *Client {
	delay := cfg.Providers.RetryDelay
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(cfg.Providers.Timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)").
		SetRetryCount(cfg.Providers.Retries).
		SetRetryWaitTime(delay).
		SetRetryMaxWaitTime(delay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		client: client,
		loc:    time.Local,
		logger: log.WithField("provider", Name),
	}
}

// WithLocation sets the zone daily series points are stamped in
func (c *Client) WithLocation(loc *time.Location) *Client {
	c.loc = loc
	return c
}

// Name implements contracts.IndicatorProvider
func (c *Client) Name() string { return Name }

// FetchIndicator returns the latest non-null row of the report named by symbol
func (c *Client) FetchIndicator(ctx context.Context, symbol string) (contracts.Observation, error) {
	rep, ok := reports[symbol]
	if !ok {
		return contracts.Observation{}, fmt.Errorf("datacenter: unknown report %q", symbol)
	}

	rows, _, err := c.query(ctx, rep, page{filter: rep.filter, sortType: "-1", size: 5, number: 1})
	if err != nil {
		return contracts.Observation{}, err
	}

	for _, row := range rows {
		v, ok := toFloat(row[rep.valueField])
		if !ok {
			continue
		}
		obs := contracts.Observation{Value: v * rep.scale}
		if d, ok := row[rep.dateField].(string); ok && len(d) >= len(contracts.DateLayout) {
			obs.AsOf = d[:len(contracts.DateLayout)]
		}
		if pct, ok := toFloat(row["CHANGE_RATE"]); ok {
			obs.ChangePct = contracts.Float(pct)
		}

		c.logger.WithFields(map[string]interface{}{
			"report": rep.name,
			"symbol": symbol,
			"as_of":  obs.AsOf,
		}).Debug("Fetched report")
		return obs, nil
	}

	return contracts.Observation{}, contracts.Malformed("datacenter %s: no row carries %s", rep.name, rep.valueField)
}

// Series pages the report named by symbol between from and to, oldest first.
// Points carry the same scale as FetchIndicator.
func (c *Client) Series(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Point, error) {
	rep, ok := reports[symbol]
	if !ok {
		return nil, fmt.Errorf("datacenter: unknown report %q", symbol)
	}

	pg := page{
		filter: rep.filter + fmt.Sprintf("(%s>='%s')(%s<='%s')",
			rep.dateField, from.In(c.loc).Format(contracts.DateLayout),
			rep.dateField, to.In(c.loc).Format(contracts.DateLayout)),
		sortType: "1",
		size:     seriesPageSize,
		number:   1,
	}

	var points []contracts.Point
	for {
		rows, pages, err := c.query(ctx, rep, pg)
		if err != nil {
			if len(points) == 0 {
				return nil, err
			}
			c.logger.WithFields(map[string]interface{}{
				"report": rep.name,
				"page":   pg.number,
			}).WithError(err).Warn("Series truncated at failing page")
			break
		}
		for _, row := range rows {
			v, ok := toFloat(row[rep.valueField])
			if !ok {
				continue
			}
			d, _ := row[rep.dateField].(string)
			p, err := contracts.DailyPoint(d, v*rep.scale, c.loc)
			if err != nil {
				continue
			}
			points = append(points, p)
		}
		if pg.number >= pages || pg.number >= maxSeriesPages {
			break
		}
		pg.number++
	}

	if len(points) == 0 {
		return nil, contracts.Unavailable("datacenter %s: no rows between %s and %s", rep.name,
			from.Format(contracts.DateLayout), to.Format(contracts.DateLayout))
	}

	c.logger.WithFields(map[string]interface{}{
		"report": rep.name,
		"symbol": symbol,
		"points": len(points),
	}).Debug("Fetched report series")
	return points, nil
}

func (c *Client) query(ctx context.Context, rep report, pg page) ([]map[string]interface{}, int, error) {
	params := map[string]string{
		"reportName":  rep.name,
		"columns":     "ALL",
		"sortColumns": rep.sortColumn,
		"sortTypes":   pg.sortType,
		"pageSize":    strconv.Itoa(pg.size),
		"pageNumber":  strconv.Itoa(pg.number),
		"source":      "WEB",
		"client":      "WEB",
	}
	if pg.filter != "" {
		params["filter"] = pg.filter
	}

	var body response
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		ForceContentType("application/json").
		Get(reportPath)
	if err != nil {
		return nil, 0, contracts.Unavailable("datacenter %s: %v", rep.name, err)
	}
	if resp.IsError() {
		return nil, 0, contracts.Unavailable("datacenter %s: status %d", rep.name, resp.StatusCode())
	}
	if !body.Success || body.Result == nil || len(body.Result.Data) == 0 {
		return nil, 0, contracts.Unavailable("datacenter %s: empty result (%s)", rep.name, body.Message)
	}
	return body.Result.Data, body.Result.Pages, nil
}

// toFloat accepts JSON numbers and numeric strings
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, contracts.IsFinite(f)
}
