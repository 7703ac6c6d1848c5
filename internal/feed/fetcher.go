package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"dropsync-api/internal/domain"
)

func fetchErr(url string, err error) *domain.FetchError {
	return &domain.FetchError{URL: url, Err: err}
}

// Fetcher retrieves raw supplier feed content over HTTP(S).
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded request timeout. Supplier
// endpoints are untrusted and may be slow; the timeout guarantees a run
// cannot hang on a dead feed.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the feed at url and returns the raw bytes.
// Network failures, non-2xx responses and empty bodies all yield a
// *domain.FetchError so the orchestrator can apply its retry budget.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetchErr(url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fetchErr(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fetchErr(url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetchErr(url, err)
	}

	if len(body) == 0 {
		return nil, fetchErr(url, fmt.Errorf("empty body"))
	}

	return body, nil
}
