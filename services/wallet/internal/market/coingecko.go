package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerMin int
}

// CoinGeckoClient talks to the public CoinGecko API. Requests are throttled
// client side to stay under the free-tier limit.
type CoinGeckoClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewCoinGeckoClient(cfg ClientConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 30
	}
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMin)), 5),
	}
}

func (c *CoinGeckoClient) FetchTopMarkets(ctx context.Context, page, perPage int) ([]Quote, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h")

	var quotes []Quote
	if err := c.get(ctx, "/coins/markets", q, &quotes); err != nil {
		return nil, err
	}
	for i := range quotes {
		quotes[i].Symbol = strings.ToLower(quotes[i].Symbol)
	}
	return quotes, nil
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Symbol        string `json:"symbol"`
			Small         string `json:"small"`
			MarketCapRank int    `json:"market_cap_rank"`
		} `json:"item"`
	} `json:"coins"`
}

func (c *CoinGeckoClient) FetchTrending(ctx context.Context) ([]TrendingCoin, error) {
	var resp trendingResponse
	if err := c.get(ctx, "/search/trending", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]TrendingCoin, 0, len(resp.Coins))
	for _, coin := range resp.Coins {
		out = append(out, TrendingCoin{
			ID:            coin.Item.ID,
			Name:          coin.Item.Name,
			Symbol:        strings.ToLower(coin.Item.Symbol),
			Image:         coin.Item.Small,
			MarketCapRank: coin.Item.MarketCapRank,
		})
	}
	return out, nil
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

func (c *CoinGeckoClient) FetchPriceHistory(ctx context.Context, id string, days int) (PriceHistory, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))

	var resp marketChartResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/market_chart", q, &resp); err != nil {
		return PriceHistory{}, err
	}
	points := make([]PricePoint, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		points = append(points, PricePoint{At: time.UnixMilli(int64(p[0])).UTC(), Price: p[1]})
	}
	return PriceHistory{ID: id, Days: days, Prices: points}, nil
}

type coinResponse struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Image  struct {
		Large string `json:"large"`
	} `json:"image"`
	MarketData struct {
		CurrentPrice             map[string]decimal.Decimal `json:"current_price"`
		MarketCap                map[string]decimal.Decimal `json:"market_cap"`
		TotalVolume              map[string]decimal.Decimal `json:"total_volume"`
		PriceChangePercentage24h float64                    `json:"price_change_percentage_24h"`
	} `json:"market_data"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
}

func (c *CoinGeckoClient) FetchCoinDetails(ctx context.Context, id string) (CoinDetails, error) {
	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("market_data", "true")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")

	var resp coinResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(id), q, &resp); err != nil {
		return CoinDetails{}, err
	}
	md := resp.MarketData
	return CoinDetails{
		ID:                       resp.ID,
		Symbol:                   strings.ToLower(resp.Symbol),
		Name:                     resp.Name,
		Image:                    resp.Image.Large,
		CurrentPrice:             md.CurrentPrice["usd"],
		MarketCap:                md.MarketCap["usd"],
		TotalVolume:              md.TotalVolume["usd"],
		PriceChangePercentage24h: md.PriceChangePercentage24h,
		Description:              resp.Description.En,
	}, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("coingecko %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coingecko %s: decode: %w", path, err)
	}
	return nil
}
