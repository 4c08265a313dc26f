// internal/media/media.go
package media

import (
	"fmt"
	"strings"
)

// Platform identifies which third-party site a post URL belongs to.
type Platform string

const (
	PlatformPexels    Platform = "pexels"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformGeneric   Platform = "generic"
)

// Kind classifies the media discovered behind a post URL.
type Kind string

const (
	KindVideo    Kind = "video"
	KindImage    Kind = "image"
	KindCarousel Kind = "carousel"
	KindUnknown  Kind = "unknown"
)

// SessionContext is the (cookies, userAgent, referer) triple captured from a
// live browser load. CDNs for TikTok and Instagram reject requests that do
// not carry a matching fingerprint, so the context travels with every asset
// URL extracted from the same page load.
type SessionContext struct {
	// Cookies is serialized as "name=value; name=value" in the order the
	// browser reported them.
	Cookies   string
	UserAgent string
	// Referer is the final navigated URL after redirects.
	Referer string
}

// IsZero reports whether no session state was captured.
func (s SessionContext) IsZero() bool {
	return s.Cookies == "" && s.UserAgent == "" && s.Referer == ""
}

// Descriptor is the product of a successful extraction.
type Descriptor struct {
	Platform  Platform
	Kind      Kind
	OriginURL string

	VideoURL  string
	ImageURLs []string

	ThumbnailURL string
	Title        string
	AuthorName   string
	Description  string

	Session SessionContext
}

// Validate enforces the structural invariants of a descriptor: a known kind
// carries at least one media URL; a video kind carries a video URL, with
// companion images allowed (some pages expose display_url next to the
// video); image kinds carry no video URL; every stored URL is http(s);
// ImageURLs holds no duplicates.
func (d *Descriptor) Validate() error {
	hasVideo := d.VideoURL != ""
	hasImages := len(d.ImageURLs) > 0

	if d.Kind != KindUnknown && !hasVideo && !hasImages {
		return fmt.Errorf("descriptor for %s carries no media URLs", d.OriginURL)
	}
	if d.Kind == KindVideo && !hasVideo {
		return fmt.Errorf("video descriptor for %s has no videoUrl", d.OriginURL)
	}
	if (d.Kind == KindImage || d.Kind == KindCarousel) && hasVideo {
		return fmt.Errorf("%s descriptor for %s carries a videoUrl", d.Kind, d.OriginURL)
	}

	if hasVideo && !IsHTTPURL(d.VideoURL) {
		return fmt.Errorf("videoUrl %q is not http(s)", d.VideoURL)
	}

	seen := make(map[string]struct{}, len(d.ImageURLs))
	for _, u := range d.ImageURLs {
		if !IsHTTPURL(u) {
			return fmt.Errorf("imageUrl %q is not http(s)", u)
		}
		if _, dup := seen[u]; dup {
			return fmt.Errorf("imageUrl %q appears more than once", u)
		}
		seen[u] = struct{}{}
	}

	if d.Kind == KindCarousel && len(d.ImageURLs) < 2 {
		return fmt.Errorf("carousel descriptor for %s has only %d image(s)", d.OriginURL, len(d.ImageURLs))
	}
	return nil
}

// IsHTTPURL reports whether u carries an http or https scheme.
func IsHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// DedupeURLs removes duplicates and non-http entries while preserving
// first-seen order.
func DedupeURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if !strings.HasPrefix(u, "http") {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
