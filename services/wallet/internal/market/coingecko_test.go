package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFetchTopMarketsBuildsQueryAndDecodes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"bitcoin","symbol":"BTC","name":"Bitcoin","current_price":64000.5,"market_cap":1,"market_cap_rank":1,"total_volume":null,"price_change_percentage_24h":1.2}]`))
	}))
	defer srv.Close()

	client := NewCoinGeckoClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, RequestsPerMin: 600})
	quotes, err := client.FetchTopMarkets(context.Background(), 2, 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected one quote, got %d", len(quotes))
	}
	if quotes[0].Symbol != "btc" {
		t.Fatalf("expected lowercased symbol, got %q", quotes[0].Symbol)
	}
	if !quotes[0].CurrentPrice.Equal(decimal.RequireFromString("64000.5")) {
		t.Fatalf("unexpected price %s", quotes[0].CurrentPrice)
	}
	want := "order=market_cap_desc&page=2&per_page=50&price_change_percentage=24h&sparkline=false&vs_currency=usd"
	if gotQuery != want {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestFetchTopMarketsRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewCoinGeckoClient(ClientConfig{BaseURL: srv.URL, RequestsPerMin: 600})
	if _, err := client.FetchTopMarkets(context.Background(), 1, 10); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestFetchTrendingAndHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/trending", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"coins":[{"item":{"id":"pepe","name":"Pepe","symbol":"PEPE","small":"img","market_cap_rank":40}}]}`))
	})
	mux.HandleFunc("/coins/bitcoin/market_chart", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("days") != "30" {
			t.Errorf("expected days=30")
		}
		_, _ = w.Write([]byte(`{"prices":[[1700000000000,35000.5],[1700003600000,35100]]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewCoinGeckoClient(ClientConfig{BaseURL: srv.URL, RequestsPerMin: 600})
	coins, err := client.FetchTrending(context.Background())
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(coins) != 1 || coins[0].Symbol != "pepe" || coins[0].Image != "img" {
		t.Fatalf("unexpected trending %+v", coins)
	}

	history, err := client.FetchPriceHistory(context.Background(), "bitcoin", 30)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history.Prices) != 2 || history.Prices[0].Price != 35000.5 {
		t.Fatalf("unexpected history %+v", history)
	}
	if !history.Prices[0].At.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected timestamp %s", history.Prices[0].At)
	}
}

func TestFetchCoinDetailsFlattensMarketData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/solana" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("market_data") != "true" || r.URL.Query().Get("tickers") != "false" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"id":"solana","symbol":"SOL","name":"Solana","image":{"large":"sol.png"},` +
			`"market_data":{"current_price":{"usd":131.5,"eur":120},"market_cap":{"usd":55000000000},` +
			`"total_volume":{"usd":3000000000},"price_change_percentage_24h":-1.5},"description":{"en":"Fast chain."}}`))
	}))
	defer srv.Close()

	client := NewCoinGeckoClient(ClientConfig{BaseURL: srv.URL, RequestsPerMin: 600})
	details, err := client.FetchCoinDetails(context.Background(), "solana")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Symbol != "sol" || details.Image != "sol.png" || details.Description != "Fast chain." {
		t.Fatalf("unexpected details %+v", details)
	}
	if !details.CurrentPrice.Equal(decimal.RequireFromString("131.5")) {
		t.Fatalf("expected usd price, got %s", details.CurrentPrice)
	}
	if details.PriceChangePercentage24h != -1.5 {
		t.Fatalf("unexpected change %v", details.PriceChangePercentage24h)
	}
}
