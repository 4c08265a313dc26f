// internal/extract/carousel.go
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/browser"
	"github.com/dipshanrana/clipfetch/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// collectSlideImagesJS returns the src of every full-resolution post image
// currently in the DOM. Thumbnail size markers exclude the preview strip.
const collectSlideImagesJS = `(() => {
	const out = [];
	const nodes = document.querySelectorAll(
		'article img, div[role="presentation"] img, div[role="button"] img');
	const small = ['150x150', 's150x150', 's320x320', 's240x240'];
	for (const img of nodes) {
		const src = img.src || '';
		if (!src.startsWith('http')) continue;
		if (!src.includes('cdninstagram') && !src.includes('fbcdn')) continue;
		if (small.some(m => src.includes(m))) continue;
		out.push(src);
	}
	return out;
})()`

// nextControlScript tries each configured selector in order; an <svg> match
// resolves to its enclosing button. The action runs against the first hit.
const nextControlScript = `(() => {
	const selectors = %s;
	let btn = null;
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (!el) continue;
		btn = el.tagName.toLowerCase() === 'svg' ? el.closest('button') : el;
		if (btn) break;
	}
	if (!btn) return false;
	%s
	return true;
})()`

const scrollAction = `btn.scrollIntoView({block: 'center'});`

// Instagram's overlay intercepts native element clicks; a bubbling
// MouseEvent fired at the button still reaches the slider.
const clickAction = `btn.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));`

// selectorListJSON renders the selector list as a JS array literal.
func selectorListJSON(selectors []string) string {
	if len(selectors) == 0 {
		selectors = config.DefaultCarouselSelectors()
	}
	data, err := json.Marshal(selectors)
	if err != nil {
		data, _ = json.Marshal(config.DefaultCarouselSelectors())
	}
	return string(data)
}

// pageDriver is the slice of session behavior the walk loop needs. The
// indirection keeps the loop testable without a live browser.
type pageDriver interface {
	evaluate(ctx context.Context, js string, out any) error
	pause(ctx context.Context, d time.Duration) error
}

// sessionDriver backs pageDriver with a real browser session.
type sessionDriver struct {
	s *browser.Session
}

func (d sessionDriver) evaluate(ctx context.Context, js string, out any) error {
	return d.s.Run(ctx, chromedp.Evaluate(js, out))
}

func (d sessionDriver) pause(ctx context.Context, dur time.Duration) error {
	return d.s.Run(ctx, chromedp.Sleep(dur))
}

// Walker iterates the slides of an image carousel within a single page
// load, accumulating unique high-resolution image URLs.
type Walker struct {
	cfg    config.ExtractConfig
	logger *zap.Logger

	findNextJS  string
	clickNextJS string
}

func NewWalker(cfg config.ExtractConfig, logger *zap.Logger) *Walker {
	selectors := selectorListJSON(cfg.CarouselSelectors)
	return &Walker{
		cfg:         cfg,
		logger:      logger.Named("carousel"),
		findNextJS:  fmt.Sprintf(nextControlScript, selectors, scrollAction),
		clickNextJS: fmt.Sprintf(nextControlScript, selectors, clickAction),
	}
}

// Walk returns the image URLs discovered across all slides, in first-seen
// order. Per-slide failures stop the walk but never fail it; whatever was
// collected so far is returned.
func (w *Walker) Walk(ctx context.Context, session *browser.Session) []string {
	return w.walk(ctx, sessionDriver{s: session})
}

func (w *Walker) walk(ctx context.Context, page pageDriver) []string {
	seen := make(map[string]struct{})
	var ordered []string

	collect := func() error {
		var srcs []string
		if err := page.evaluate(ctx, collectSlideImagesJS, &srcs); err != nil {
			return fmt.Errorf("collecting slide images: %w", err)
		}
		for _, src := range srcs {
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			ordered = append(ordered, src)
		}
		return nil
	}

	if err := collect(); err != nil {
		w.logger.Debug("Initial slide collection failed.", zap.Error(err))
		return ordered
	}

	for slide := 0; slide < w.cfg.CarouselMaxSlides; slide++ {
		if !w.advance(ctx, page) {
			break
		}
		// Let the slide animation finish and the new image hydrate.
		if err := page.pause(ctx, w.cfg.CarouselSettleWait); err != nil {
			break
		}
		if err := collect(); err != nil {
			w.logger.Debug("Slide collection failed mid-walk.", zap.Error(err), zap.Int("slide", slide))
			break
		}
	}

	w.logger.Debug("Carousel walk finished.", zap.Int("images", len(ordered)))
	return ordered
}

// advance finds and clicks the Next control, retrying the lookup a few
// times; the control renders late on slow slides.
func (w *Walker) advance(ctx context.Context, page pageDriver) bool {
	found := false
	for attempt := 0; attempt < w.cfg.CarouselClickRetry; attempt++ {
		var ok bool
		if err := page.evaluate(ctx, w.findNextJS, &ok); err != nil {
			w.logger.Debug("Next control lookup failed.", zap.Error(err))
			return false
		}
		if ok {
			found = true
			break
		}
		if err := page.pause(ctx, w.cfg.CarouselRetryWait); err != nil {
			return false
		}
	}
	if !found {
		return false
	}

	// Pause after the scroll so the control is actually clickable.
	if err := page.pause(ctx, 500*time.Millisecond); err != nil {
		return false
	}
	var clicked bool
	if err := page.evaluate(ctx, w.clickNextJS, &clicked); err != nil {
		w.logger.Debug("Next click failed.", zap.Error(err))
		return false
	}
	return clicked
}
