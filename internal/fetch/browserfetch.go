// internal/fetch/browserfetch.go
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/browser"
	"github.com/dipshanrana/clipfetch/internal/extract"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// captchaGraceWait gives a user in GUI mode a moment to clear a challenge
// before extraction runs against the origin page.
const captchaGraceWait = 5 * time.Second

// downloadFreshness bounds how old a file may be to count as the download
// this request triggered.
const downloadFreshness = 60 * time.Second

// browserFetch downloads through a live browser. The asset URLs these CDNs
// sign expire within seconds, so the flow re-extracts a fresh URL from the
// origin page inside the same session that will perform the download.
func (f *Fetcher) browserFetch(ctx context.Context, assetURL, originURL string, session media.SessionContext) (string, error) {
	platform := media.PlatformFor(originURL)
	if platform == media.PlatformGeneric {
		platform = media.PlatformFor(assetURL)
	}
	log := f.logger.With(zap.String("platform", string(platform)))

	bs, err := f.manager.Acquire(ctx, browser.SessionOptions{
		CaptureNetwork: true,
		AllowGUI:       true,
	})
	if err != nil {
		return "", err
	}
	defer bs.Release()

	// Establish referer and cookies by visiting the post itself.
	target := originURL
	if target == "" {
		target = assetURL
	}
	capture, err := f.loader.Load(ctx, bs, target, browser.LoadOptions{
		CookieHeader: session.Cookies,
		Platform:     platform,
	})
	if err != nil {
		return "", err
	}
	if err := bs.Run(ctx, chromedp.Sleep(captchaGraceWait)); err != nil {
		return "", err
	}

	freshURL := assetURL
	if originURL != "" {
		if u := refreshAssetURL(platform, bs, capture); u != "" {
			log.Debug("Refreshed signed asset URL from origin page.")
			freshURL = u
		}
	}
	if strings.HasPrefix(freshURL, "blob:") {
		return "", fmt.Errorf("%w: player exposes only a blob URL", media.ErrNoMediaFound)
	}
	if !media.IsHTTPURL(freshURL) {
		return "", fmt.Errorf("%w: no downloadable asset URL on %s", media.ErrNoMediaFound, target)
	}

	if err := os.MkdirAll(f.downloadCfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	headers := map[string]string{
		"Referer":    platform.RootOrigin(),
		"User-Agent": fallbackUserAgent,
	}
	if headers["Referer"] == "" {
		headers["Referer"] = target
	}
	if err := bs.SetExtraHeaders(ctx, headers); err != nil {
		return "", err
	}
	if err := bs.AllowDownloads(ctx, f.downloadCfg.Dir); err != nil {
		return "", err
	}

	started := time.Now()
	// Navigating at a media URL aborts the page load once the download
	// starts; that abort is expected, not a failure.
	if err := bs.Run(ctx, chromedp.Navigate(freshURL)); err != nil {
		log.Debug("Navigation to asset URL returned an error (expected for downloads).", zap.Error(err))
	}

	path, err := f.awaitDownload(ctx, started)
	if err != nil {
		return "", err
	}

	final := filepath.Join(f.downloadCfg.Dir,
		fmt.Sprintf("%s_%d.mp4", platform, time.Now().UnixMilli()))
	if renameErr := os.Rename(path, final); renameErr != nil {
		log.Warn("Could not rename finished download, keeping original name.",
			zap.String("path", path), zap.Error(renameErr))
		return path, nil
	}
	log.Info("Browser-driven download complete.", zap.String("path", final))
	return final, nil
}

// refreshAssetURL reruns a minimal extraction against the live origin page.
func refreshAssetURL(platform media.Platform, bs *browser.Session, capture *browser.Capture) string {
	page := extract.NewPage(bs, capture)

	if platform == media.PlatformTikTok {
		if blob := page.Doc.ScriptByID("__UNIVERSAL_DATA_FOR_REHYDRATION__"); blob != "" {
			if u := extract.ExtractJSONStringValue(blob, "playAddr"); media.IsHTTPURL(u) {
				return u
			}
		}
	}
	if og := page.Doc.Meta["og:video"]; media.IsHTTPURL(og) {
		return og
	}
	for _, src := range extract.VideoSources(capture.HTML) {
		if media.IsHTTPURL(src) || strings.HasPrefix(src, "blob:") {
			return src
		}
	}
	for _, s := range page.Doc.Scripts {
		if strings.Contains(s.Text, "video_url") {
			if u := extract.ExtractJSONStringValue(s.Text, "video_url"); media.IsHTTPURL(u) {
				return u
			}
		}
	}
	return ""
}

// awaitDownload polls the download directory until a finished file appears
// or the window closes.
func (f *Fetcher) awaitDownload(ctx context.Context, since time.Time) (string, error) {
	deadline := time.Now().Add(f.downloadCfg.PollTimeout)
	ticker := time.NewTicker(f.downloadCfg.PollInterval)
	defer ticker.Stop()

	for {
		if path := f.findFinishedDownload(since); path != "" {
			return path, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: nothing landed in %s within %s",
				media.ErrDownloadTimeout, f.downloadCfg.Dir, f.downloadCfg.PollTimeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// findFinishedDownload returns the most recently modified regular file that
// looks like a completed download, or "".
func (f *Fetcher) findFinishedDownload(since time.Time) string {
	entries, err := os.ReadDir(f.downloadCfg.Dir)
	if err != nil {
		f.logger.Debug("Could not read download directory.", zap.Error(err))
		return ""
	}

	var newestPath string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newestPath = filepath.Join(f.downloadCfg.Dir, entry.Name())
		}
	}

	if newestPath == "" {
		return ""
	}
	name := filepath.Base(newestPath)
	if strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") {
		return ""
	}
	if newestMod.Before(since) || time.Since(newestMod) > downloadFreshness {
		return ""
	}
	info, err := os.Stat(newestPath)
	if err != nil || info.Size() <= f.downloadCfg.MinSize {
		return ""
	}
	return newestPath
}
