// internal/extract/extract.go
package extract

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/browser"
	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// Page is everything an extractor may work with: the parsed capture for
// document strategies, and the live session for strategies that need the
// browser (carousel walking, network sniffing). Session is nil in tests that
// exercise pure document cascades.
type Page struct {
	Session *browser.Session
	Capture *browser.Capture
	Doc     *Document
}

// NewPage parses the capture into a Page.
func NewPage(session *browser.Session, capture *browser.Capture) *Page {
	return &Page{
		Session: session,
		Capture: capture,
		Doc:     ParseDocument(capture.HTML),
	}
}

// Extractor turns a loaded page into a media descriptor. Implementations
// apply their strategies in a fixed order and return on the first success;
// individual strategy failures are logged and swallowed so the cascade
// continues.
type Extractor interface {
	Platform() media.Platform
	Extract(ctx context.Context, page *Page, originURL string) (*media.Descriptor, error)
}

// Engine routes a post URL to the right extractor and owns the browser
// choreography around it: acquire a session, load the page, run the cascade,
// release the session.
type Engine struct {
	manager *browser.Manager
	loader  *browser.Loader
	logger  *zap.Logger

	extractors map[media.Platform]Extractor
	fallback   Extractor
}

// NewEngine wires the per-platform extractors.
func NewEngine(manager *browser.Manager, loader *browser.Loader, cfg config.ExtractConfig, logger *zap.Logger) *Engine {
	log := logger.Named("extract")

	pexels := NewPexelsExtractor(log)
	e := &Engine{
		manager: manager,
		loader:  loader,
		logger:  log,
		extractors: map[media.Platform]Extractor{
			media.PlatformPexels:    pexels,
			media.PlatformTikTok:    NewTikTokExtractor(log),
			media.PlatformInstagram: NewInstagramExtractor(cfg, log),
			media.PlatformYouTube:   NewYouTubeExtractor(cfg, log),
		},
		// Unrecognized hosts get the structured-data cascade; ld+json and
		// Open Graph are the closest thing the open web has to a contract.
		fallback: pexels,
	}
	return e
}

// ExtractorFor returns the extractor responsible for the platform.
func (e *Engine) ExtractorFor(platform media.Platform) Extractor {
	if ex, ok := e.extractors[platform]; ok {
		return ex
	}
	return e.fallback
}

// Extract resolves a post URL into a media descriptor. cookieHeader is the
// optional user-supplied cookie string attached before navigation.
func (e *Engine) Extract(ctx context.Context, rawURL, cookieHeader string) (*media.Descriptor, error) {
	if !media.IsHTTPURL(rawURL) {
		return nil, fmt.Errorf("%w: url %q must be http(s)", media.ErrInvalidInput, rawURL)
	}

	platform := media.PlatformFor(rawURL)
	extractor := e.ExtractorFor(platform)
	log := e.logger.With(zap.String("platform", string(platform)), zap.String("url", rawURL))

	session, err := e.manager.Acquire(ctx, browser.SessionOptions{
		// Only the network-sniffing cascade reads the probe, but capture is
		// harmless elsewhere and keeps session setup uniform.
		CaptureNetwork: platform == media.PlatformYouTube,
	})
	if err != nil {
		return nil, err
	}
	defer session.Release()

	capture, err := e.loader.Load(ctx, session, rawURL, browser.LoadOptions{
		CookieHeader: cookieHeader,
		Platform:     platform,
	})
	if err != nil {
		return nil, err
	}
	if capture.LoginWalled {
		log.Warn("Navigation landed on a login page, attempting extraction anyway.",
			zap.String("final_url", capture.FinalURL))
	}

	page := NewPage(session, capture)
	descriptor, err := extractor.Extract(ctx, page, rawURL)
	if err != nil {
		if capture.LoginWalled && errors.Is(err, media.ErrNoMediaFound) {
			return nil, fmt.Errorf("%w: %s", media.ErrLoginWalled, rawURL)
		}
		return nil, err
	}

	descriptor.Platform = platform
	descriptor.OriginURL = rawURL
	descriptor.Session = capture.SessionContext()
	if err := descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("extraction produced an inconsistent descriptor: %w", err)
	}

	log.Info("Extraction succeeded.",
		zap.String("kind", string(descriptor.Kind)),
		zap.Int("image_count", len(descriptor.ImageURLs)),
		zap.Bool("has_video", descriptor.VideoURL != ""))
	return descriptor, nil
}
