package pricesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/shopspring/decimal"
)

// redirectTransport rewrites every request to the test server so the
// coinpaprika client can be exercised against canned responses.
type redirectTransport struct {
	srv *httptest.Server
}

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(t.srv.URL)
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.URL.Scheme = target.Scheme
	clone.URL.Host = target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func testPaprika(srv *httptest.Server) *Paprika {
	client := coinpaprika.NewClient(&http.Client{Transport: redirectTransport{srv: srv}})
	return &Paprika{client: client, quote: "USD"}
}

func TestPaprikaFetchPrices(t *testing.T) {
	var gotQuotes string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/tickers/bitcoin"):
			gotQuotes = r.URL.Query().Get("quotes")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"bitcoin","quotes":{"USD":{"price":96450.5}}}`))
		case strings.HasSuffix(r.URL.Path, "/tickers/tether"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"tether","quotes":{"USD":{}}}`))
		default:
			http.Error(w, "upstream down", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := testPaprika(srv)
	prices, err := p.FetchPrices(context.Background(), []string{"bitcoin", "ethereum", "tether"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if gotQuotes != "USD" {
		t.Errorf("expected quotes=USD on the ticker request, got %q", gotQuotes)
	}
	if len(prices) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(prices))
	}
	if !prices["bitcoin"].Equal(decimal.RequireFromString("96450.5")) {
		t.Errorf("bitcoin quote mismatch: %s", prices["bitcoin"])
	}
	if _, ok := prices["ethereum"]; ok {
		t.Error("a symbol the API errors on must be omitted")
	}
	if _, ok := prices["tether"]; ok {
		t.Error("a ticker without a price must be omitted")
	}
}

func TestPaprikaAllSymbolsFailedAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := testPaprika(srv)
	if _, err := p.FetchPrices(context.Background(), []string{"bitcoin", "ethereum"}); err == nil {
		t.Fatal("expected an error when every symbol fails")
	}
}
