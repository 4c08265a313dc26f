// internal/extract/instagram.go
package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// InstagramExtractor runs the longest cascade of the set. Instagram posts
// can be a single video, a single image, or a multi-slide carousel, and the
// markup exposes each differently depending on login state and rollout
// bucket, so every strategy here fills gaps the previous one left.
type InstagramExtractor struct {
	cfg    config.ExtractConfig
	walker *Walker
	logger *zap.Logger
}

func NewInstagramExtractor(cfg config.ExtractConfig, logger *zap.Logger) *InstagramExtractor {
	return &InstagramExtractor{
		cfg:    cfg,
		walker: NewWalker(cfg, logger),
		logger: logger.Named("instagram"),
	}
}

func (x *InstagramExtractor) Platform() media.Platform { return media.PlatformInstagram }

func (x *InstagramExtractor) Extract(ctx context.Context, page *Page, originURL string) (*media.Descriptor, error) {
	d := &media.Descriptor{}

	// 1. Video probe: a <video> src or og:video means this is a video post
	// and the image strategies can be skipped entirely.
	d.VideoURL = x.findVideoURL(page)

	// 2. Carousel walk, only for image posts and only with a live session.
	if d.VideoURL == "" && page.Session != nil {
		d.ImageURLs = x.walker.Walk(ctx, page.Session)
	}

	// 3. display_url occurrences in application/json script blocks.
	if d.VideoURL == "" && len(d.ImageURLs) == 0 {
		for _, blob := range page.Doc.ScriptsByType("application/json") {
			if !strings.Contains(blob, "display_url") {
				continue
			}
			if urls := ExtractDisplayURLs(blob); len(urls) > 0 {
				x.logger.Debug("Recovered images from application/json blocks.", zap.Int("count", len(urls)))
				d.ImageURLs = urls
				break
			}
		}
	}

	// 4. Last structured attempt: scan the concatenated text of every
	// script that mentions media keys at all.
	if d.VideoURL == "" && len(d.ImageURLs) == 0 {
		x.scanScriptBlob(page, d)
	}

	// 5. Post-processing.
	d.ImageURLs = media.DedupeURLs(d.ImageURLs)
	if !media.IsHTTPURL(d.VideoURL) {
		d.VideoURL = ""
	}

	// 6. Kind resolution.
	d.Kind = resolveInstagramKind(originURL, d)

	// 7. Metadata.
	x.fillMeta(page, d)

	// 8. Last chance: an image post that produced nothing but has og:image.
	// A path-forced video kind stays a failure; og:image would only be the
	// poster frame.
	if len(d.ImageURLs) == 0 && d.VideoURL == "" && d.Kind != media.KindVideo {
		if og := page.Doc.Meta["og:image"]; media.IsHTTPURL(og) {
			d.ImageURLs = []string{og}
			d.Kind = media.KindImage
		}
	}

	if d.VideoURL == "" && len(d.ImageURLs) == 0 {
		return nil, fmt.Errorf("%w: every Instagram strategy came up empty for %s", media.ErrNoMediaFound, originURL)
	}
	return d, nil
}

// findVideoURL checks <video> elements and og:video.
func (x *InstagramExtractor) findVideoURL(page *Page) string {
	for _, src := range VideoSources(page.Capture.HTML) {
		if media.IsHTTPURL(src) {
			return src
		}
		// blob: sources mean MediaSource playback; the page may still
		// expose a direct URL through the later strategies.
		x.logger.Debug("Skipping non-http video source.", zap.String("src", src))
	}
	if og := page.Doc.Meta["og:video"]; media.IsHTTPURL(og) {
		return og
	}
	return ""
}

// scanScriptBlob concatenates every media-bearing script and mines it for a
// video_url, a bare .mp4 literal, and display_url images.
func (x *InstagramExtractor) scanScriptBlob(page *Page, d *media.Descriptor) {
	var blob strings.Builder
	for _, s := range page.Doc.Scripts {
		if strings.Contains(s.Text, "display_url") ||
			strings.Contains(s.Text, "video_url") ||
			strings.Contains(s.Text, ".mp4") ||
			strings.Contains(s.Text, "video_versions") {
			blob.WriteString(s.Text)
			blob.WriteByte('\n')
		}
	}
	if blob.Len() == 0 {
		return
	}
	text := blob.String()

	if u := ExtractJSONStringValue(text, "video_url"); media.IsHTTPURL(u) {
		d.VideoURL = u
	} else if u := FindMP4URL(text); u != "" {
		d.VideoURL = u
	}
	d.ImageURLs = append(d.ImageURLs, ExtractDisplayURLs(text)...)
}

// resolveInstagramKind applies the kind rules: a video URL always wins, the
// origin path can force video, otherwise the image count decides.
func resolveInstagramKind(originURL string, d *media.Descriptor) media.Kind {
	if d.VideoURL != "" {
		return media.KindVideo
	}
	if len(d.ImageURLs) == 0 &&
		(strings.Contains(originURL, "/reel/") ||
			strings.Contains(originURL, "/tv/") ||
			strings.Contains(originURL, "/v/")) {
		return media.KindVideo
	}
	switch {
	case len(d.ImageURLs) > 1:
		return media.KindCarousel
	case len(d.ImageURLs) == 1:
		return media.KindImage
	default:
		return media.KindUnknown
	}
}

func (x *InstagramExtractor) fillMeta(page *Page, d *media.Descriptor) {
	d.Title = page.Doc.Title
	d.Description = page.Doc.Meta["og:description"]
	d.ThumbnailURL = page.Doc.Meta["og:image"]

	if author := InstagramAuthor(page.Doc.Meta["og:title"]); author != "" {
		d.AuthorName = author
	} else if author := InstagramAuthor(page.Doc.Title); author != "" {
		d.AuthorName = author
	} else if og := page.Doc.Meta["og:title"]; og != "" {
		d.AuthorName = og
	}
}
