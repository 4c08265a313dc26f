// internal/browser/loader.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// cookieSettleWait gives the browser time to land on the platform origin
// before cookies are attached to it.
const cookieSettleWait = 2 * time.Second

// Loader drives a session through the full page load sequence: optional
// cookie pre-injection, navigation, hydration wait, then state capture.
type Loader struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLoader creates a page loader.
func NewLoader(cfg config.BrowserConfig, logger *zap.Logger) *Loader {
	return &Loader{cfg: cfg, logger: logger.Named("loader")}
}

// LoadOptions tunes a single page load.
type LoadOptions struct {
	// CookieHeader is a user-supplied "name=value; name=value" string to
	// attach before navigating. Injection needs a known platform origin.
	CookieHeader string
	Platform     media.Platform
}

// Capture is the page state collected after a completed load.
type Capture struct {
	FinalURL  string
	HTML      string
	UserAgent string
	// Cookies is the live cookie jar serialized as "name=value; name=value".
	Cookies string
	// LoginWalled is set when the platform redirected the navigation to a
	// login page. Extraction may still succeed from the partial document.
	LoginWalled bool
}

// Load runs the full sequence against an already acquired session and
// returns the captured page state. The session stays usable afterwards for
// follow-up browser work (carousel walking, probe scans).
func (l *Loader) Load(ctx context.Context, s *Session, rawURL string, opts LoadOptions) (*Capture, error) {
	navCtx, cancel := context.WithTimeout(ctx, l.cfg.NavigationTimeout)
	defer cancel()

	if opts.CookieHeader != "" {
		if err := l.injectCookies(navCtx, s, opts.Platform, opts.CookieHeader); err != nil {
			// Cookie trouble degrades the load to anonymous, it does not
			// abort it.
			l.logger.Warn("Cookie injection failed, continuing without cookies.",
				zap.String("platform", string(opts.Platform)), zap.Error(err))
		}
	}

	l.logger.Debug("Navigating.", zap.String("url", rawURL))
	if err := s.Run(navCtx, chromedp.Navigate(rawURL)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", media.ErrNavigationFailed, rawURL, err)
	}

	if l.cfg.HydrationWait > 0 {
		// Client-side frameworks rewrite the DOM well after the load event;
		// capturing too early yields a skeleton document.
		if err := s.Run(navCtx, chromedp.Sleep(l.cfg.HydrationWait)); err != nil {
			return nil, fmt.Errorf("hydration wait interrupted: %w", err)
		}
	}

	return l.capture(ctx, s)
}

// injectCookies walks the platform root origin first. A cookie can only be
// set for a domain the browser has a document on.
func (l *Loader) injectCookies(ctx context.Context, s *Session, platform media.Platform, header string) error {
	origin := platform.RootOrigin()
	if origin == "" {
		return fmt.Errorf("no known origin for platform %q", platform)
	}
	cookies := ParseCookieHeader(header)
	if len(cookies) == 0 {
		return fmt.Errorf("cookie header contained no name=value pairs")
	}

	domain := platform.CookieDomain()
	err := s.Run(ctx,
		chromedp.Navigate(origin),
		chromedp.Sleep(cookieSettleWait),
		chromedp.ActionFunc(func(c context.Context) error {
			for _, ck := range cookies {
				err := network.SetCookie(ck.Name, ck.Value).
					WithDomain(domain).
					WithPath("/").
					WithSecure(true).
					Do(c)
				if err != nil {
					return fmt.Errorf("setting cookie %q: %w", ck.Name, err)
				}
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}
	l.logger.Debug("Injected cookies.", zap.Int("count", len(cookies)), zap.String("domain", domain))
	return nil
}

// capture collects the final URL, rendered HTML, user agent, and cookie jar.
func (l *Loader) capture(ctx context.Context, s *Session) (*Capture, error) {
	out := &Capture{}

	err := s.Run(ctx,
		chromedp.Location(&out.FinalURL),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
		chromedp.Evaluate("navigator.userAgent", &out.UserAgent),
		chromedp.ActionFunc(func(c context.Context) error {
			cookies, err := network.GetCookies().Do(c)
			if err != nil {
				l.logger.Warn("Failed to read cookies from browser.", zap.Error(err))
				return nil
			}
			pairs := make([]string, 0, len(cookies))
			for _, ck := range cookies {
				pairs = append(pairs, ck.Name+"="+ck.Value)
			}
			out.Cookies = strings.Join(pairs, "; ")
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture page state: %w", err)
	}

	out.LoginWalled = looksLikeLoginURL(out.FinalURL)
	return out, nil
}

// SessionContext packages the capture into the triple that travels with
// extracted media URLs.
func (c *Capture) SessionContext() media.SessionContext {
	return media.SessionContext{
		Cookies:   c.Cookies,
		UserAgent: c.UserAgent,
		Referer:   c.FinalURL,
	}
}

// Cookie is one parsed name=value pair from a Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// ParseCookieHeader splits a "name=value; name=value" header into pairs,
// dropping malformed fragments.
func ParseCookieHeader(header string) []Cookie {
	parts := strings.Split(header, ";")
	out := make([]Cookie, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

func looksLikeLoginURL(u string) bool {
	lowered := strings.ToLower(u)
	return strings.Contains(lowered, "/accounts/login") ||
		strings.Contains(lowered, "/login") ||
		strings.Contains(lowered, "passport") && strings.Contains(lowered, "tiktok")
}
