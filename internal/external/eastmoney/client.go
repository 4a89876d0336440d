package eastmoney

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/httputil"
	"github.com/wonny/globallink/pkg/logger"
)

// Name is the provider name used in the catalog
const Name = "eastmoney"

// Client handles communication with the eastmoney push2 quote service
// ⭐ SSOT: eastmoney push2 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	loc        *time.Location
	quoteURL   string // push2: real-time quotes and connect flows
	klineURL   string // push2his: daily klines
}

// NewClient creates a new eastmoney client
func NewClient(httpClient *httputil.Client, log *logger.Logger, quoteURL, klineURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("provider", Name),
		loc:        time.Local,
		quoteURL:   strings.TrimRight(quoteURL, "/"),
		klineURL:   strings.TrimRight(klineURL, "/"),
	}
}

// WithLocation sets the zone daily series points are stamped in
func (c *Client) WithLocation(loc *time.Location) *Client {
	c.loc = loc
	return c
}

// Name implements the provider interfaces
func (c *Client) Name() string { return Name }

// secID builds the market-prefixed id: 1 = Shanghai, 0 = Shenzhen
func secID(inst contracts.Instrument) string {
	if inst.Exchange == contracts.ExchangeSH {
		return "1." + inst.Code
	}
	return "0." + inst.Code
}

// number accepts a JSON number, a numeric string, or the "-" placeholder
// eastmoney sends for missing fields
type number struct {
	value float64
	ok    bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !contracts.IsFinite(v) {
		return nil
	}
	n.value, n.ok = v, true
	return nil
}

func (n number) ptr() *float64 {
	if !n.ok {
		return nil
	}
	return contracts.Float(n.value)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if !contracts.IsFinite(v) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
