package shibor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/config"
	"github.com/wonny/globallink/pkg/httputil"
	"github.com/wonny/globallink/pkg/logger"
)

const fixingPage = `<html><body>
<table class="shiborquxian">
  <tr><th>期限</th><th>Shibor(%)</th><th></th><th>涨跌(BP)</th></tr>
  <tr><td>O/N</td><td>1.7050</td><td><img src="down.gif"></td><td>-10.00</td></tr>
  <tr><td>1W</td><td>1.8120</td><td><img src="up.gif"></td><td>2.30</td></tr>
  <tr><td>1M</td><td>-</td><td></td><td></td></tr>
</table>
</body></html>`

func newTestClient(t *testing.T, code int, body string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{Env: "test", Providers: config.ProviderConfig{Timeout: 2 * time.Second}}
	return NewClient(httputil.New(cfg, logger.NewNop()), logger.NewNop(), server.URL)
}

func TestFetchIndicator(t *testing.T) {
	client := newTestClient(t, http.StatusOK, fixingPage)

	obs, err := client.FetchIndicator(context.Background(), "O/N")
	require.NoError(t, err)
	assert.Equal(t, 1.705, obs.Value)
	require.NotNil(t, obs.ChangePct)
	// previous fixing 1.805
	assert.InDelta(t, (1.705/1.805-1)*100, *obs.ChangePct, 1e-9)

	obs, err = client.FetchIndicator(context.Background(), "1w")
	require.NoError(t, err)
	assert.Equal(t, 1.812, obs.Value)
}

func TestFetchIndicator_Failures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		term string
		want error
	}{
		{"term missing", http.StatusOK, fixingPage, "3M", contracts.ErrMalformedSchema},
		{"term without rate", http.StatusOK, fixingPage, "1M", contracts.ErrMalformedSchema},
		{"server error", http.StatusInternalServerError, "", "O/N", contracts.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, tt.code, tt.body).FetchIndicator(context.Background(), tt.term)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
