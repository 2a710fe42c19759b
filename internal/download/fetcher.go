package download

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPFetcher performs transfers with a retrying HTTP client.
type HTTPFetcher struct {
	client *retryablehttp.Client
}

// NewHTTPFetcher creates a fetcher with the given retry limit.
func NewHTTPFetcher(retryMax int) *HTTPFetcher {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.Logger = nil // category logging happens at the manager level
	return &HTTPFetcher{client: c}
}

// Fetch downloads url into the file at dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}
