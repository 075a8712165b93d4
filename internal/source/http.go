package source

import (
	"fmt"
	"io"
	"net/http"
)

// httpClient is shared by all concrete sources. None of the examples in
// the retrieval pack reach for an HTTP client library beyond net/http
// for a simple GET+JSON round trip, so this stays stdlib.
var httpClient = &http.Client{}

func doGet(req *http.Request) ([]byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source: reading response body: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("source: upstream %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("source: client error %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
