// internal/media/platform.go
package media

import (
	"net/url"
	"strings"

	"github.com/tidwall/match"
)

// hostPatterns maps a platform to the glob patterns its hosts satisfy. The
// patterns are matched against the lowercased host with any leading "www."
// stripped, so "tiktok.com" and "vm.tiktok.com" both resolve to TikTok.
var hostPatterns = map[Platform][]string{
	PlatformTikTok:    {"tiktok.com", "*.tiktok.com"},
	PlatformInstagram: {"instagram.com", "*.instagram.com"},
	PlatformYouTube:   {"youtube.com", "*.youtube.com", "youtu.be"},
	PlatformPexels:    {"pexels.com", "*.pexels.com"},
}

// platformOrder fixes the evaluation order so dispatch is deterministic.
var platformOrder = []Platform{PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformPexels}

// PlatformFor classifies a post URL by its host. Unrecognized hosts map to
// PlatformGeneric. The function depends only on the host component, never on
// the path or query.
func PlatformFor(rawURL string) Platform {
	host := hostOf(rawURL)
	if host == "" {
		return PlatformGeneric
	}
	for _, p := range platformOrder {
		for _, pattern := range hostPatterns[p] {
			if match.Match(host, pattern) {
				return p
			}
		}
	}
	return PlatformGeneric
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Tolerate scheme-less input like "www.tiktok.com/@u/video/1".
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return ""
		}
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// RootOrigin is the origin the page loader visits before attaching cookies:
// a cookie can only be set for a domain the browser is currently on.
func (p Platform) RootOrigin() string {
	switch p {
	case PlatformTikTok:
		return "https://www.tiktok.com/"
	case PlatformInstagram:
		return "https://www.instagram.com/"
	case PlatformYouTube:
		return "https://www.youtube.com/"
	case PlatformPexels:
		return "https://www.pexels.com/"
	default:
		return ""
	}
}

// CookieDomain is the domain attribute used when injecting user-supplied
// cookies for the platform.
func (p Platform) CookieDomain() string {
	switch p {
	case PlatformTikTok:
		return ".tiktok.com"
	case PlatformInstagram:
		return ".instagram.com"
	case PlatformYouTube:
		return ".youtube.com"
	case PlatformPexels:
		return ".pexels.com"
	default:
		return ""
	}
}
