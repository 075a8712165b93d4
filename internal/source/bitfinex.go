package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// Bitfinex reads the public ticker endpoint. Bitfinex's ticker response
// is a bare JSON array, not an object; the last-price field is at a
// fixed index, per §4.1.
type Bitfinex struct {
	BaseURL string
}

// NewBitfinex returns a source reading from the public Bitfinex ticker
// API for the CCD/EUR pair.
func NewBitfinex() *Bitfinex {
	return &Bitfinex{BaseURL: "https://api-pub.bitfinex.com/v2"}
}

func (b *Bitfinex) Name() string { return "bitfinex" }

// bitfinexLastPriceIndex is the documented position of LAST_PRICE in
// the ticker array: [BID, BID_SIZE, ASK, ASK_SIZE, DAILY_CHANGE,
// DAILY_CHANGE_RELATIVE, LAST_PRICE, VOLUME, HIGH, LOW].
const bitfinexLastPriceIndex = 6

func (b *Bitfinex) Fetch(ctx context.Context) (ratio.Rate, error) {
	url := fmt.Sprintf("%s/ticker/tCCDEUR", b.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("bitfinex: building request: %w", err)
	}

	body, err := doGet(req)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("bitfinex: %w", err)
	}

	var ticker []float64
	if err := json.Unmarshal(body, &ticker); err != nil {
		return ratio.Rate{}, fmt.Errorf("bitfinex: decoding ticker array: %w", err)
	}
	if len(ticker) <= bitfinexLastPriceIndex {
		return ratio.Rate{}, fmt.Errorf("bitfinex: ticker array too short (%d elements)", len(ticker))
	}

	return ratio.FromFloat(ticker[bitfinexLastPriceIndex])
}
