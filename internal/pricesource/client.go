package pricesource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Client fetches spot prices from a CoinGecko-compatible simple-price API:
// GET {base}/simple/price?ids=a,b,c&vs_currencies=usd returning
// {"bitcoin":{"usd":96450.0}, ...}. Symbols the API does not quote are
// simply absent from the result map.
type Client struct {
	baseURL  string
	apiKey   string
	currency string
	http     *http.Client
}

func NewClient(baseURL, apiKey, currency string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		currency: strings.ToLower(currency),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(symbols, ","))
	q.Set("vs_currencies", c.currency)
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build quote request")
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "quote request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("quote API returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode quote response")
	}

	prices := make(map[string]decimal.Decimal, len(body))
	for symbol, quotes := range body {
		quote, ok := quotes[c.currency]
		if !ok {
			log.Debugf("no %s quote for %s in response", c.currency, symbol)
			continue
		}
		prices[symbol] = quote
	}
	return prices, nil
}
