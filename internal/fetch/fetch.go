// internal/fetch/fetch.go
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/browser"
	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// Route selects the download mechanism.
type Route int

const (
	// RouteAuto picks based on the asset and origin hosts.
	RouteAuto Route = iota
	// RouteDirect forces the plain HTTP path.
	RouteDirect
	// RouteBrowser forces the browser-driven path.
	RouteBrowser
)

// browserHostMarkers identifies CDNs that reject requests lacking a live
// browser fingerprint.
var browserHostMarkers = []string{"tiktok.com", "tiktokcdn.com", "instagram.com"}

// fallbackUserAgent is used when the session carries no user agent.
const fallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Fetcher turns a direct asset URL plus its session context into bytes on
// disk or in memory. Hostile CDNs get a real browser; everything else goes
// through a long-timeout HTTP client.
type Fetcher struct {
	cfg         config.FetchConfig
	downloadCfg config.DownloadConfig
	manager     *browser.Manager
	loader      *browser.Loader
	client      *http.Client
	logger      *zap.Logger
}

// NewFetcher builds the fetcher and its HTTP client.
func NewFetcher(
	cfg config.FetchConfig,
	downloadCfg config.DownloadConfig,
	manager *browser.Manager,
	loader *browser.Loader,
	logger *zap.Logger,
) *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        20,
		IdleConnTimeout:     30 * time.Second,
		// The middleware negotiates compression itself.
		DisableCompression: true,
	}

	return &Fetcher{
		cfg:         cfg,
		downloadCfg: downloadCfg,
		manager:     manager,
		loader:      loader,
		client: &http.Client{
			Transport: NewCompressionMiddleware(transport),
			Timeout:   cfg.ReadTimeout,
		},
		logger: logger.Named("fetch"),
	}
}

// FetchToPath downloads the asset to the download directory and returns the
// written file's path.
func (f *Fetcher) FetchToPath(ctx context.Context, assetURL string, session media.SessionContext, referer, originURL string, route Route) (string, error) {
	if strings.HasPrefix(assetURL, "blob:") {
		return "", fmt.Errorf("%w: blob URL indicates MediaSource playback, no direct asset exists", media.ErrNoMediaFound)
	}
	if !media.IsHTTPURL(assetURL) {
		return "", fmt.Errorf("%w: asset url %q must be http(s)", media.ErrInvalidInput, assetURL)
	}

	if f.shouldUseBrowser(assetURL, originURL, route) {
		return f.browserFetch(ctx, assetURL, originURL, session)
	}
	return f.directFetchToPath(ctx, assetURL, session, referer)
}

// FetchToBuffer downloads the asset into memory and reports its content type.
func (f *Fetcher) FetchToBuffer(ctx context.Context, assetURL string, session media.SessionContext, referer string) (string, []byte, error) {
	if !media.IsHTTPURL(assetURL) {
		return "", nil, fmt.Errorf("%w: asset url %q must be http(s)", media.ErrInvalidInput, assetURL)
	}

	resp, err := f.get(ctx, assetURL, session, referer)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: %s", media.ErrEmptyResponse, assetURL)
	}
	return resp.Header.Get("Content-Type"), data, nil
}

func (f *Fetcher) shouldUseBrowser(assetURL, originURL string, route Route) bool {
	switch route {
	case RouteDirect:
		return false
	case RouteBrowser:
		return true
	}
	for _, marker := range browserHostMarkers {
		if hostContains(assetURL, marker) || hostContains(originURL, marker) {
			return true
		}
	}
	return false
}

func hostContains(rawURL, marker string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), marker)
}

// directFetchToPath streams the asset to disk.
func (f *Fetcher) directFetchToPath(ctx context.Context, assetURL string, session media.SessionContext, referer string) (string, error) {
	resp, err := f.get(ctx, assetURL, session, referer)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(f.downloadCfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	filename := deriveFilename(resp.Header.Get("Content-Disposition"), assetURL)
	path := filepath.Join(f.downloadCfg.Dir, filename)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("closing %s: %w", path, closeErr)
	}
	if written == 0 {
		os.Remove(path)
		return "", fmt.Errorf("%w: %s", media.ErrEmptyResponse, assetURL)
	}

	f.logger.Info("Direct download complete.",
		zap.String("path", path), zap.Int64("bytes", written))
	return path, nil
}

// get performs the request with the session fingerprint attached and rejects
// non-success statuses.
func (f *Fetcher) get(ctx context.Context, assetURL string, session media.SessionContext, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrInvalidInput, err)
	}

	ua := session.UserAgent
	if ua == "" {
		ua = fallbackUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
	// Some CDNs only answer ranged requests for media assets.
	req.Header.Set("Range", "bytes=0-")
	if session.Cookies != "" {
		req.Header.Set("Cookie", session.Cookies)
	}
	switch {
	case referer != "":
		req.Header.Set("Referer", referer)
	case hostContains(assetURL, "pexels.com"):
		req.Header.Set("Referer", "https://www.pexels.com/")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", assetURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &media.UpstreamRejectedError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

// deriveFilename picks a local filename: the Content-Disposition name, then
// an .mp4 path segment from the URL, then a timestamped default.
func deriveFilename(contentDisposition, assetURL string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := sanitizeFilename(params["filename"]); name != "" {
				return name
			}
		}
	}

	if u, err := url.Parse(assetURL); err == nil {
		segment := u.Path
		if idx := strings.LastIndex(segment, "/"); idx >= 0 {
			segment = segment[idx+1:]
		}
		if strings.Contains(segment, ".mp4") {
			if name := sanitizeFilename(segment); name != "" {
				return name
			}
		}
	}

	return fmt.Sprintf("video_%d.mp4", time.Now().UnixMilli())
}

// sanitizeFilename strips path separators so upstream names cannot escape
// the download directory.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Trim(name, ". ")
	if name == "" || name == "/" {
		return ""
	}
	return name
}
