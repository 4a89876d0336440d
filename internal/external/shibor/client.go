package shibor

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/httputil"
	"github.com/wonny/globallink/pkg/logger"
)

// Name is the provider name used in the catalog
const Name = "shibor"

// Client scrapes the daily SHIBOR fixing table
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	url        string
}

// NewClient creates a new shibor client
func NewClient(httpClient *httputil.Client, log *logger.Logger, url string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("provider", Name),
		url:        url,
	}
}

// Name implements contracts.IndicatorProvider
func (c *Client) Name() string { return Name }

// FetchIndicator returns the fixing of one term (O/N, 1W, 2W, 1M, ...)
func (c *Client) FetchIndicator(ctx context.Context, term string) (contracts.Observation, error) {
	body, err := c.httpClient.GetBody(ctx, c.url)
	if err != nil {
		return contracts.Observation{}, contracts.Unavailable("shibor: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return contracts.Observation{}, contracts.Malformed("shibor: parse html: %v", err)
	}

	rate, bp, found := findTerm(doc, term)
	if !found {
		return contracts.Observation{}, contracts.Malformed("shibor: term %s not in table", term)
	}

	obs := contracts.Observation{Value: rate}
	if bp != nil {
		// change is published in basis points
		if prev := rate - *bp/100; prev > 0 {
			obs.ChangePct = contracts.Float((rate/prev - 1) * 100)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"term": term,
		"rate": rate,
	}).Debug("Fetched fixing")
	return obs, nil
}

// findTerm locates the row whose first cell is term. The first numeric
// cell after it is the rate, the next one the change in bp.
func findTerm(doc *goquery.Document, term string) (float64, *float64, bool) {
	var (
		rate  float64
		bp    *float64
		found bool
	)

	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 || !strings.EqualFold(strings.TrimSpace(cells.First().Text()), term) {
			return true
		}

		var nums []float64
		cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(cell.Text()), 64); err == nil && contracts.IsFinite(v) {
				nums = append(nums, v)
			}
		})
		if len(nums) == 0 || nums[0] <= 0 {
			return true
		}

		rate, found = nums[0], true
		if len(nums) > 1 {
			bp = contracts.Float(nums[1])
		}
		return false
	})

	return rate, bp, found
}
