package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// TestSource consumes a test harness's GET /rate endpoint, which
// returns a plain float64 either as bare text or as a JSON number. The
// harness also exposes POST /add, PUT /reset, and PUT /update-resort/:f64
// for driving test scenarios, but the core never calls those — they
// are operator/test tooling, not part of the poller contract.
type TestSource struct {
	name    string
	baseURL string
}

// NewTestSource builds a source for the given URL, named after the full
// URL so multiple test sources remain distinguishable in metrics and
// logs.
func NewTestSource(url string) *TestSource {
	return &TestSource{
		name:    "test-source:" + url,
		baseURL: strings.TrimSuffix(url, "/"),
	}
}

func (t *TestSource) Name() string { return t.name }

func (t *TestSource) Fetch(ctx context.Context) (ratio.Rate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/rate", nil)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("test-source: building request: %w", err)
	}

	body, err := doGet(req)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("test-source: %w", err)
	}

	text := strings.TrimSpace(string(body))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return ratio.Rate{}, fmt.Errorf("test-source: unparseable rate %q: %w", text, err)
	}

	return ratio.FromFloat(v)
}
