// internal/extract/youtube.go
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/browser"
	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// forcePlaybackJS starts the player muted so it issues stream requests
// without an interaction gesture.
const forcePlaybackJS = `(() => {
	const v = document.querySelector('video');
	if (!v) return false;
	v.muted = true;
	const p = v.play();
	if (p && p.catch) p.catch(() => {});
	return true;
})()`

const probePollInterval = time.Second

// YouTubeExtractor is the one network-sniffing cascade: it never parses the
// player payload, it watches the requests the player makes and picks out a
// progressive muxed stream.
type YouTubeExtractor struct {
	cfg    config.ExtractConfig
	logger *zap.Logger
}

func NewYouTubeExtractor(cfg config.ExtractConfig, logger *zap.Logger) *YouTubeExtractor {
	return &YouTubeExtractor{cfg: cfg, logger: logger.Named("youtube")}
}

func (x *YouTubeExtractor) Platform() media.Platform { return media.PlatformYouTube }

func (x *YouTubeExtractor) Extract(ctx context.Context, page *Page, originURL string) (*media.Descriptor, error) {
	if page.Session == nil || page.Session.Probe() == nil {
		return nil, fmt.Errorf("%w: YouTube extraction needs a network-capturing session", media.ErrNoMediaFound)
	}

	var started bool
	if err := page.Session.Run(ctx, chromedp.Evaluate(forcePlaybackJS, &started)); err != nil {
		x.logger.Debug("Could not force playback.", zap.Error(err))
	} else if !started {
		x.logger.Debug("No video element on the watch page yet.")
	}

	streamURL, err := x.scanForStream(ctx, page.Session)
	if err != nil {
		return nil, err
	}

	return &media.Descriptor{
		Kind:         media.KindVideo,
		VideoURL:     streamURL,
		Title:        page.Doc.Title,
		ThumbnailURL: page.Doc.Meta["og:image"],
		Description:  page.Doc.Meta["og:description"],
	}, nil
}

// scanForStream polls the probe until a progressive stream request shows up
// or the scan window closes.
func (x *YouTubeExtractor) scanForStream(ctx context.Context, session *browser.Session) (string, error) {
	deadline := time.Now().Add(x.cfg.YouTubeScanWindow)
	ticker := time.NewTicker(probePollInterval)
	defer ticker.Stop()

	for {
		for _, ev := range session.Probe().Drain() {
			if IsProgressiveStreamURL(ev.URL) {
				x.logger.Debug("Found progressive stream request.", zap.String("url", ev.URL))
				return ev.URL, nil
			}
		}
		if time.Now().After(deadline) {
			// DASH-only streams never match; refusing is deliberate since a
			// fragment URL is useless without remuxing.
			return "", fmt.Errorf("%w: no progressive (itag 18/22) stream within %s",
				media.ErrNoMediaFound, x.cfg.YouTubeScanWindow)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsProgressiveStreamURL reports whether u is a googlevideo playback request
// for one of the legacy progressive muxed MP4 formats.
func IsProgressiveStreamURL(u string) bool {
	if !media.IsHTTPURL(u) {
		return false
	}
	if !strings.Contains(u, "googlevideo.com") || !strings.Contains(u, "videoplayback") {
		return false
	}
	if strings.Contains(u, "mime=audio") {
		return false
	}
	return strings.Contains(u, "itag=18") || strings.Contains(u, "itag=22")
}
