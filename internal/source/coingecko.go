package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// CoinGecko reads the simple-price endpoint, symbol-based, for the
// concordium/eur pair.
type CoinGecko struct {
	BaseURL string // overridable for tests; defaults to the public API
}

// NewCoinGecko returns a source reading from the public CoinGecko API.
func NewCoinGecko() *CoinGecko {
	return &CoinGecko{BaseURL: "https://api.coingecko.com/api/v3"}
}

func (c *CoinGecko) Name() string { return "coin-gecko" }

// coinGeckoResponse mirrors /simple/price?ids=concordium&vs_currencies=eur,
// e.g. {"concordium":{"eur":0.0123}}. The error envelope here is simply
// an empty top-level object; absence of the key is the error signal,
// not a dedicated error field.
type coinGeckoResponse map[string]map[string]float64

func (c *CoinGecko) Fetch(ctx context.Context) (ratio.Rate, error) {
	url := fmt.Sprintf("%s/simple/price?ids=concordium&vs_currencies=eur", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("coin-gecko: building request: %w", err)
	}

	body, err := doGet(req)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("coin-gecko: %w", err)
	}

	var parsed coinGeckoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ratio.Rate{}, fmt.Errorf("coin-gecko: decoding response: %w", err)
	}

	eur, ok := parsed["concordium"]["eur"]
	if !ok {
		return ratio.Rate{}, fmt.Errorf("coin-gecko: response missing concordium.eur")
	}

	return ratio.FromFloat(eur)
}
