package pricesource

import (
	"context"
	"strings"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Paprika fetches spot prices from the CoinPaprika API, one ticker request
// per symbol. Symbols are CoinPaprika ticker ids (e.g. "btc-bitcoin").
type Paprika struct {
	client *coinpaprika.Client
	quote  string
}

// NewPaprika builds the CoinPaprika-backed source. An empty key uses the
// free API tier.
func NewPaprika(apiKey, currency string) *Paprika {
	var client *coinpaprika.Client
	if apiKey != "" {
		client = coinpaprika.NewClient(nil, coinpaprika.WithAPIKey(apiKey))
	} else {
		client = coinpaprika.NewClient(nil)
	}
	return &Paprika{client: client, quote: strings.ToUpper(currency)}
}

// FetchPrices resolves each symbol independently: a symbol the API rejects
// is omitted from the result, but when every symbol fails the whole fetch
// is reported as failed.
func (p *Paprika) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	opts := &coinpaprika.TickersOptions{Quotes: p.quote}
	prices := make(map[string]decimal.Decimal, len(symbols))

	var firstErr error
	failed := 0
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ticker, err := p.client.Tickers.GetByID(symbol, opts)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
			log.Debugf("no paprika ticker for %s: %v", symbol, err)
			continue
		}

		quote, ok := ticker.Quotes[p.quote]
		if !ok || quote.Price == nil {
			log.Debugf("no %s quote for %s in paprika ticker", p.quote, symbol)
			continue
		}
		prices[symbol] = decimal.NewFromFloat(*quote.Price)
	}

	if len(symbols) > 0 && failed == len(symbols) {
		return nil, errors.Wrap(firstErr, "paprika quote fetch failed")
	}
	return prices, nil
}
