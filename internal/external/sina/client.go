package sina

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/httputil"
	"github.com/wonny/globallink/pkg/logger"
)

// Name is the provider name used in the catalog
const Name = "sina"

// Referer is required by hq.sinajs.cn; requests without it get 403
const Referer = "https://finance.sina.com.cn"

// Client reads the sina hq text quote service
// ⭐ SSOT: hq.sinajs.cn 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new sina client; the http client is cloned to carry the Referer
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient.Clone().WithHeader("Referer", Referer),
		logger:     log.WithField("provider", Name),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name implements the provider interfaces
func (c *Client) Name() string { return Name }

// hqLine matches: var hq_str_<symbol>="<csv>";
var hqLine = regexp.MustCompile(`var hq_str_([A-Za-z0-9_$]+)="([^"]*)"`)

// fetch returns the comma-separated fields of one symbol
func (c *Client) fetch(ctx context.Context, symbol string) ([]string, error) {
	body, err := c.httpClient.GetBody(ctx, fmt.Sprintf("%s/list=%s", c.baseURL, symbol))
	if err != nil {
		return nil, contracts.Unavailable("sina %s: %v", symbol, err)
	}

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(body)
	if err != nil {
		decoded = body
	}

	fields, ok := parseHQ(string(decoded))[symbol]
	if !ok {
		return nil, contracts.Malformed("sina %s: symbol missing from response", symbol)
	}
	if len(fields) == 0 {
		return nil, contracts.Unavailable("sina %s: empty quote", symbol)
	}
	return fields, nil
}

// parseHQ splits a multi-line hq response into per-symbol fields
func parseHQ(body string) map[string][]string {
	out := make(map[string][]string)
	for _, m := range hqLine.FindAllStringSubmatch(body, -1) {
		if strings.TrimSpace(m[2]) == "" {
			out[m[1]] = nil
			continue
		}
		out[m[1]] = strings.Split(m[2], ",")
	}
	return out
}

// field parses fields[i] as a positive finite number
func field(fields []string, i int) (float64, bool) {
	if i >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil || !contracts.IsFinite(v) {
		return 0, false
	}
	return v, true
}

func changeFrom(price, prev float64) *float64 {
	if prev <= 0 {
		return nil
	}
	return contracts.Float((price/prev - 1) * 100)
}
