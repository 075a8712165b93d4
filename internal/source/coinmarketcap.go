package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// CoinMarketCap reads the slug-based quotes-latest endpoint. Requires
// an API key, supplied as a header per CoinMarketCap's documented
// contract.
type CoinMarketCap struct {
	BaseURL string
	APIKey  string
}

// NewCoinMarketCap returns a source reading from the public
// CoinMarketCap API, authenticated with apiKey.
func NewCoinMarketCap(apiKey string) *CoinMarketCap {
	return &CoinMarketCap{
		BaseURL: "https://pro-api.coinmarketcap.com/v2",
		APIKey:  apiKey,
	}
}

func (c *CoinMarketCap) Name() string { return "coin-market-cap" }

// coinMarketCapStatus is the documented error envelope: a status object
// that may or may not carry an error_message. Its absence is not an
// error.
type coinMarketCapStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type coinMarketCapResponse struct {
	Status coinMarketCapStatus `json:"status"`
	Data   map[string]struct {
		Quote map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

func (c *CoinMarketCap) Fetch(ctx context.Context) (ratio.Rate, error) {
	url := fmt.Sprintf("%s/cryptocurrency/quotes/latest?slug=concordium&convert=EUR", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("coin-market-cap: building request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.APIKey)
	req.Header.Set("Accept", "application/json")

	body, err := doGet(req)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("coin-market-cap: %w", err)
	}

	var parsed coinMarketCapResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ratio.Rate{}, fmt.Errorf("coin-market-cap: decoding response: %w", err)
	}
	if parsed.Status.ErrorMessage != "" {
		return ratio.Rate{}, fmt.Errorf("coin-market-cap: upstream error: %s", parsed.Status.ErrorMessage)
	}

	for _, entry := range parsed.Data {
		eur, ok := entry.Quote["EUR"]
		if !ok {
			continue
		}
		return ratio.FromFloat(eur.Price)
	}
	return ratio.Rate{}, fmt.Errorf("coin-market-cap: response missing EUR quote")
}
