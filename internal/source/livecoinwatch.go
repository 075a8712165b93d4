package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// LiveCoinWatch reads the single-coin endpoint, symbol-based. The
// upstream API is POST-with-JSON-body, not a query string, and
// requires an API key header.
type LiveCoinWatch struct {
	BaseURL string
	APIKey  string
}

// NewLiveCoinWatch returns a source reading from the public
// LiveCoinWatch API, authenticated with apiKey.
func NewLiveCoinWatch(apiKey string) *LiveCoinWatch {
	return &LiveCoinWatch{
		BaseURL: "https://api.livecoinwatch.com/coins/single",
		APIKey:  apiKey,
	}
}

func (l *LiveCoinWatch) Name() string { return "live-coin-watch" }

type liveCoinWatchRequest struct {
	Currency string `json:"currency"`
	Code     string `json:"code"`
	Meta     bool   `json:"meta"`
}

type liveCoinWatchResponse struct {
	Rate  float64 `json:"rate"`
	Error string  `json:"error,omitempty"`
}

func (l *LiveCoinWatch) Fetch(ctx context.Context) (ratio.Rate, error) {
	payload, err := json.Marshal(liveCoinWatchRequest{Currency: "EUR", Code: "CCD", Meta: false})
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("live-coin-watch: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("live-coin-watch: building request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", l.APIKey)

	body, err := doGet(req)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("live-coin-watch: %w", err)
	}

	var parsed liveCoinWatchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ratio.Rate{}, fmt.Errorf("live-coin-watch: decoding response: %w", err)
	}
	if parsed.Error != "" {
		return ratio.Rate{}, fmt.Errorf("live-coin-watch: upstream error: %s", parsed.Error)
	}

	return ratio.FromFloat(parsed.Rate)
}
