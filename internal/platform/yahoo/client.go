// Package yahoo fetches last-trade prices from Yahoo Finance's chart
// endpoint. It serves as the polling fallback for symbols that have no
// streaming source.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// Client is the REST client for the Yahoo Finance chart API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chart API client.
//
// baseURL is the API root, e.g. "https://query1.finance.yahoo.com".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// LastPrice returns the regular-market price of a Yahoo symbol such as
// "BTC-USD" or "GC=F".
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("/v8/finance/chart/%s?interval=1m&range=1d", url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("yahoo: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; signalguard)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("yahoo: get %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("yahoo: read %s: %w", symbol, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return 0, fmt.Errorf("yahoo: get %s: %w", symbol, err)
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return 0, fmt.Errorf("yahoo: decode %s: %w", symbol, err)
	}
	if cr.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo: %s: %s: %s", symbol, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || cr.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("yahoo: %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return cr.Chart.Result[0].Meta.RegularMarketPrice, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
