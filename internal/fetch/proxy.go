// internal/fetch/proxy.go
package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dipshanrana/clipfetch/internal/media"
)

// ProxyFetch requests an image the way an Instagram page embed would, and
// returns the upstream response as-is. Non-2xx statuses are NOT converted to
// errors; the proxy endpoint passes them through to its caller. The caller
// owns resp.Body.
func (f *Fetcher) ProxyFetch(ctx context.Context, rawURL string) (*http.Response, error) {
	if !media.IsHTTPURL(rawURL) {
		return nil, fmt.Errorf("%w: proxy url %q must be http(s)", media.ErrInvalidInput, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrInvalidInput, err)
	}

	// CDN hotlink protection checks these against what a real page load sends.
	req.Header.Set("User-Agent", fallbackUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.instagram.com/")
	req.Header.Set("Origin", "https://www.instagram.com")
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxying %s: %w", rawURL, err)
	}
	return resp, nil
}
